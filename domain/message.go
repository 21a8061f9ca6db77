// Package domain contains core concepts of the chat system.
// This file defines Message events and related rules.
// Messages are immutable except for an explicit edit by their author.
package domain

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

type MessageKind string

const (
	KindText        MessageKind = "text"
	KindSystem      MessageKind = "system"
	KindAction      MessageKind = "action"
	KindVisualShare MessageKind = "visual-share"
	KindReply       MessageKind = "reply"
)

// ReplyPreviewLength bounds the denormalized excerpt stored on replies.
const ReplyPreviewLength = 100

func (k MessageKind) Valid() bool {
	switch k {
	case KindText, KindSystem, KindAction, KindVisualShare, KindReply:
		return true
	default:
		return false
	}
}

// Message represents a chat event persisted in a room.
type Message struct {
	ID           uuid.UUID
	RoomID       RoomID
	UserID       string
	Content      string
	Kind         MessageKind
	ActionData   map[string]any
	ReplyTo      *uuid.UUID
	ReplyPreview string
	Language     string
	Edited       bool
	EditedAt     *time.Time
	CreatedAt    time.Time

	// Author is resolved at delivery time and never persisted.
	Author Profile
}

// Before reports whether m sorts before other within a room:
// creation time first, identifier as tie breaker.
func (m Message) Before(other Message) bool {
	if !m.CreatedAt.Equal(other.CreatedAt) {
		return m.CreatedAt.Before(other.CreatedAt)
	}
	return m.ID.String() < other.ID.String()
}

// SortMessages orders messages oldest first.
func SortMessages(messages []Message) {
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].Before(messages[j])
	})
}

// ReplyPreview truncates content to the excerpt stored on a reply.
func ReplyPreview(content string) string {
	runes := []rune(content)
	if len(runes) <= ReplyPreviewLength {
		return content
	}
	return string(runes[:ReplyPreviewLength]) + "…"
}

// MessagePage is the newest slice of a room history, oldest first,
// along with the cursor pointing at older messages.
type MessagePage struct {
	RoomID   RoomID
	Messages []Message
	Cursor   *string
}

// Merge inserts a message at its ordered position, replacing any message
// with the same identifier, and keeps at most limit newest entries.
func (p MessagePage) Merge(message Message, limit int) MessagePage {
	messages := make([]Message, 0, len(p.Messages)+1)
	for _, m := range p.Messages {
		if m.ID != message.ID {
			messages = append(messages, m)
		}
	}
	messages = append(messages, message)
	SortMessages(messages)
	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	return MessagePage{RoomID: p.RoomID, Messages: messages, Cursor: p.Cursor}
}
