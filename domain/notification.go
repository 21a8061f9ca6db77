package domain

import (
	"time"

	"github.com/google/uuid"
)

type Notification struct {
	ID        uuid.UUID
	UserID    string
	Type      string
	Title     string
	Body      string
	Data      map[string]any
	Read      bool
	CreatedAt time.Time
}
