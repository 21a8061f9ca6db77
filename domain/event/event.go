package event

import (
	"chat-core/domain"
	"time"
)

// Event is anything delivered on a room channel.
type Event interface {
	RoomID() domain.RoomID
}

// MessageInserted is emitted once a message row has been committed.
type MessageInserted struct {
	Message domain.Message
}

func (m MessageInserted) RoomID() domain.RoomID {
	return m.Message.RoomID
}

// Broadcast is an ephemeral signal exchanged between channels of a room.
// It is never persisted and may be dropped by the transport.
type Broadcast struct {
	Room    domain.RoomID
	Name    string
	Payload map[string]any
}

func (b Broadcast) RoomID() domain.RoomID {
	return b.Room
}

const TypingBroadcast = "typing"

func NewTypingBroadcast(room domain.RoomID, userID string) Broadcast {
	return Broadcast{Room: room, Name: TypingBroadcast, Payload: map[string]any{"userId": userID}}
}

// UserID extracts the sender of a typing broadcast.
func (b Broadcast) UserID() (string, bool) {
	userID, ok := b.Payload["userId"].(string)
	return userID, ok && userID != ""
}

// PresencePayload is what a subscriber tracks about itself on a channel.
type PresencePayload struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	AvatarURL   string    `json:"avatar_url"`
	OnlineAt    time.Time `json:"online_at"`
}

// PresenceSynced carries the full participant set of a room.
// A later sync always supersedes an earlier one.
type PresenceSynced struct {
	Room  domain.RoomID
	State []PresencePayload
}

func (p PresenceSynced) RoomID() domain.RoomID {
	return p.Room
}

func (p PresencePayload) ToEntry() domain.PresenceEntry {
	return domain.PresenceEntry{
		UserID: p.UserID,
		Profile: domain.NormalizeProfile(domain.Profile{
			ID:          p.UserID,
			DisplayName: p.DisplayName,
			AvatarURL:   p.AvatarURL,
		}),
		OnlineAt: p.OnlineAt,
	}
}
