// Package domain contains core concepts of the chat system.
// This file defines Participant entities and related invariants.
// No runtime, network, or UI logic should be added here.
package domain

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

const PlaceholderDisplayName = "Anonymous"

// Profile is the display metadata attached to a user.
type Profile struct {
	ID          string
	DisplayName string
	AvatarURL   string
	Bio         string
	Status      string
}

// PresenceEntry lives only as long as the subscription that published it.
type PresenceEntry struct {
	UserID   string
	Profile  Profile
	OnlineAt time.Time
	Typing   bool
}

// DefaultAvatarURL derives a stable avatar from the user identifier.
func DefaultAvatarURL(userID string) string {
	return fmt.Sprintf("https://api.dicebear.com/7.x/identicon/svg?seed=%s", url.QueryEscape(userID))
}

// PlaceholderProfile is used when nothing better is known about a user.
func PlaceholderProfile(userID string) Profile {
	return Profile{
		ID:          userID,
		DisplayName: PlaceholderDisplayName,
		AvatarURL:   DefaultAvatarURL(userID),
	}
}

// NormalizeProfile fills missing display metadata with placeholder values.
func NormalizeProfile(p Profile) Profile {
	if strings.TrimSpace(p.DisplayName) == "" {
		p.DisplayName = PlaceholderDisplayName
	}
	if strings.TrimSpace(p.AvatarURL) == "" {
		p.AvatarURL = DefaultAvatarURL(p.ID)
	}
	return p
}
