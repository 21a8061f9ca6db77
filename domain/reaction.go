package domain

import (
	"time"

	"github.com/google/uuid"
)

// Reaction is unique per (message, user, emoji).
type Reaction struct {
	MessageID uuid.UUID
	UserID    string
	Emoji     string
	CreatedAt time.Time
}
