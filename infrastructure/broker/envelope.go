package broker

import (
	"chat-core/domain"
	"time"

	"github.com/google/uuid"
)

const Producer = "chat-core"

type Envelope struct {
	Meta Meta `json:"meta"`
	Data any  `json:"data"`
}

type Meta struct {
	// Trace / request correlation ID
	CorrelationID *string `json:"correlation_id,omitempty"`
	// Unique event ID
	ID string `json:"id"`
	// Emitting service
	Producer string `json:"producer"`
	// Timestamp when the event was emitted
	Time time.Time `json:"time"`
	// Event name and version, e.g. notifications.room_invitation.v1
	Type string `json:"type"`
}

type NotificationData struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Body      string         `json:"body,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// RoutingKey is the topic a notification is published under.
func RoutingKey(n domain.Notification) string {
	return "notifications." + n.Type + ".v1"
}

func NewNotificationEnvelope(n domain.Notification, now time.Time) Envelope {
	id := n.ID.String()
	return Envelope{
		Meta: Meta{
			CorrelationID: &id,
			ID:            uuid.NewString(),
			Producer:      Producer,
			Time:          now.UTC(),
			Type:          RoutingKey(n),
		},
		Data: NotificationData{
			ID:        id,
			UserID:    n.UserID,
			Type:      n.Type,
			Title:     n.Title,
			Body:      n.Body,
			Data:      n.Data,
			CreatedAt: n.CreatedAt,
		},
	}
}
