package domain

import (
	"github.com/google/uuid"
)

type Command interface {
	TargetRoom() RoomID
}

// PostMessageCommand carries a message body before moderation and storage.
type PostMessageCommand struct {
	Room       RoomID         `validate:"required"`
	Content    string         `validate:"required"`
	Kind       MessageKind    `validate:"omitempty,oneof=text system action visual-share reply"`
	ActionData map[string]any `validate:"-"`
}

func (p PostMessageCommand) TargetRoom() RoomID { return p.Room }

type ReplyCommand struct {
	Room    RoomID    `validate:"required"`
	ReplyTo uuid.UUID `validate:"required"`
	Content string    `validate:"required"`
}

func (r ReplyCommand) TargetRoom() RoomID { return r.Room }

type CreateRoomCommand struct {
	Name        string `validate:"required,max=100"`
	Description string `validate:"max=500"`
}

type CreateNotificationCommand struct {
	UserID string         `validate:"required"`
	Type   string         `validate:"required,max=64"`
	Title  string         `validate:"required,max=200"`
	Body   string         `validate:"max=2000"`
	Data   map[string]any `validate:"-"`
}
