package domain

import "time"

type RoomID string

func (id RoomID) String() string { return string(id) }

type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// Room scopes messages and presence. A private room is readable and
// writable only by its members; a public room by any authenticated caller.
type Room struct {
	ID          RoomID
	Name        string
	Description string
	CreatedBy   string
	Visibility  Visibility
	CreatedAt   time.Time
}

func (r Room) IsPrivate() bool {
	return r.Visibility == VisibilityPrivate
}

type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationDeclined InvitationStatus = "declined"
)

// Invitation moves exactly once from pending to accepted or declined.
type Invitation struct {
	ID            string
	RoomID        RoomID
	InvitedBy     string
	InvitedUserID string
	Status        InvitationStatus
	CreatedAt     time.Time
	RespondedAt   *time.Time
}

func (i Invitation) IsPending() bool {
	return i.Status == InvitationPending
}
