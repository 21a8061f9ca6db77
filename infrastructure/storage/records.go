package storage

import (
	"chat-core/domain"
	"encoding/json"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// Rows are stored as JSON and mapped to domain entities here, once.
// Missing display metadata is defaulted by domain.NormalizeProfile.

type messageRow struct {
	ID           string         `json:"id"`
	RoomID       string         `json:"room_id"`
	UserID       string         `json:"user_id"`
	Content      string         `json:"content"`
	Type         string         `json:"type"`
	ActionData   map[string]any `json:"action_data,omitempty"`
	ReplyTo      string         `json:"reply_to,omitempty"`
	ReplyPreview string         `json:"reply_preview,omitempty"`
	Language     string         `json:"language,omitempty"`
	Edited       bool           `json:"edited"`
	EditedAt     *int64         `json:"edited_at,omitempty"`
	CreatedAt    int64          `json:"created_at"`
}

func fromMessage(m domain.Message) messageRow {
	row := messageRow{
		ID:           m.ID.String(),
		RoomID:       string(m.RoomID),
		UserID:       m.UserID,
		Content:      m.Content,
		Type:         string(m.Kind),
		ActionData:   m.ActionData,
		ReplyPreview: m.ReplyPreview,
		Language:     m.Language,
		Edited:       m.Edited,
		CreatedAt:    m.CreatedAt.UnixNano(),
	}
	if m.ReplyTo != nil {
		row.ReplyTo = m.ReplyTo.String()
	}
	if m.EditedAt != nil {
		at := m.EditedAt.UnixNano()
		row.EditedAt = &at
	}
	return row
}

func (r messageRow) toMessage() (domain.Message, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return domain.Message{}, err
	}
	kind := domain.MessageKind(r.Type)
	if !kind.Valid() {
		kind = domain.KindText
	}
	message := domain.Message{
		ID:           id,
		RoomID:       domain.RoomID(r.RoomID),
		UserID:       r.UserID,
		Content:      r.Content,
		Kind:         kind,
		ActionData:   r.ActionData,
		ReplyPreview: r.ReplyPreview,
		Language:     r.Language,
		Edited:       r.Edited,
		CreatedAt:    time.Unix(0, r.CreatedAt).UTC(),
	}
	if r.ReplyTo != "" {
		replyTo, err := uuid.Parse(r.ReplyTo)
		if err != nil {
			return domain.Message{}, err
		}
		message.ReplyTo = &replyTo
	}
	if r.EditedAt != nil {
		at := time.Unix(0, *r.EditedAt).UTC()
		message.EditedAt = &at
	}
	return message, nil
}

type roomRow struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	CreatedBy   string `json:"created_by"`
	IsPublic    bool   `json:"is_public"`
	IsPrivate   bool   `json:"is_private"`
	CreatedAt   int64  `json:"created_at"`
}

func fromRoom(r domain.Room) roomRow {
	return roomRow{
		ID:          string(r.ID),
		Name:        r.Name,
		Description: r.Description,
		CreatedBy:   r.CreatedBy,
		IsPublic:    !r.IsPrivate(),
		IsPrivate:   r.IsPrivate(),
		CreatedAt:   r.CreatedAt.UnixNano(),
	}
}

func (r roomRow) toRoom() domain.Room {
	visibility := domain.VisibilityPublic
	if r.IsPrivate {
		visibility = domain.VisibilityPrivate
	}
	return domain.Room{
		ID:          domain.RoomID(r.ID),
		Name:        r.Name,
		Description: r.Description,
		CreatedBy:   r.CreatedBy,
		Visibility:  visibility,
		CreatedAt:   time.Unix(0, r.CreatedAt).UTC(),
	}
}

type memberRow struct {
	RoomID   string `json:"room_id"`
	UserID   string `json:"user_id"`
	JoinedAt int64  `json:"joined_at"`
}

type invitationRow struct {
	ID            string `json:"id"`
	RoomID        string `json:"room_id"`
	InvitedBy     string `json:"invited_by"`
	InvitedUserID string `json:"invited_user_id"`
	Status        string `json:"status"`
	CreatedAt     int64  `json:"created_at"`
	RespondedAt   *int64 `json:"responded_at,omitempty"`
}

func fromInvitation(i domain.Invitation) invitationRow {
	row := invitationRow{
		ID:            i.ID,
		RoomID:        string(i.RoomID),
		InvitedBy:     i.InvitedBy,
		InvitedUserID: i.InvitedUserID,
		Status:        string(i.Status),
		CreatedAt:     i.CreatedAt.UnixNano(),
	}
	if i.RespondedAt != nil {
		at := i.RespondedAt.UnixNano()
		row.RespondedAt = &at
	}
	return row
}

func (r invitationRow) toInvitation() domain.Invitation {
	invitation := domain.Invitation{
		ID:            r.ID,
		RoomID:        domain.RoomID(r.RoomID),
		InvitedBy:     r.InvitedBy,
		InvitedUserID: r.InvitedUserID,
		Status:        domain.InvitationStatus(r.Status),
		CreatedAt:     time.Unix(0, r.CreatedAt).UTC(),
	}
	if r.RespondedAt != nil {
		at := time.Unix(0, *r.RespondedAt).UTC()
		invitation.RespondedAt = &at
	}
	return invitation
}

type reactionRow struct {
	MessageID string `json:"message_id"`
	UserID    string `json:"user_id"`
	Emoji     string `json:"emoji"`
	CreatedAt int64  `json:"created_at"`
}

func (r reactionRow) toReaction() (domain.Reaction, error) {
	id, err := uuid.Parse(r.MessageID)
	if err != nil {
		return domain.Reaction{}, err
	}
	return domain.Reaction{
		MessageID: id,
		UserID:    r.UserID,
		Emoji:     r.Emoji,
		CreatedAt: time.Unix(0, r.CreatedAt).UTC(),
	}, nil
}

type notificationRow struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Body      string         `json:"body,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Read      bool           `json:"read"`
	CreatedAt int64          `json:"created_at"`
}

func fromNotification(n domain.Notification) notificationRow {
	return notificationRow{
		ID:        n.ID.String(),
		UserID:    n.UserID,
		Type:      n.Type,
		Title:     n.Title,
		Body:      n.Body,
		Data:      n.Data,
		Read:      n.Read,
		CreatedAt: n.CreatedAt.UnixNano(),
	}
}

func (r notificationRow) toNotification() (domain.Notification, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return domain.Notification{}, err
	}
	return domain.Notification{
		ID:        id,
		UserID:    r.UserID,
		Type:      r.Type,
		Title:     r.Title,
		Body:      r.Body,
		Data:      r.Data,
		Read:      r.Read,
		CreatedAt: time.Unix(0, r.CreatedAt).UTC(),
	}, nil
}

type profileRow struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url"`
	Bio         string `json:"bio"`
	Status      string `json:"status"`
}

func (r profileRow) toProfile() domain.Profile {
	return domain.NormalizeProfile(domain.Profile{
		ID:          r.ID,
		DisplayName: r.DisplayName,
		AvatarURL:   r.AvatarURL,
		Bio:         r.Bio,
		Status:      r.Status,
	})
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

// getJSON decodes the value stored at key. It returns badger.ErrKeyNotFound
// untouched so callers can map it to their own sentinel.
func getJSON(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(value []byte) error {
		return json.Unmarshal(value, v)
	})
}

// scanKeys collects the keys under prefix. Writes are only issued once the
// iterator is closed.
func scanKeys(txn *badger.Txn, prefix []byte) [][]byte {
	options := badger.DefaultIteratorOptions
	options.PrefetchValues = false
	it := txn.NewIterator(options)
	defer it.Close()

	var keys [][]byte
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	return keys
}

func deletePrefix(txn *badger.Txn, prefix []byte) error {
	for _, key := range scanKeys(txn, prefix) {
		if err := txn.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

// scanJSON decodes every value under prefix, in key order.
func scanJSON[T any](txn *badger.Txn, prefix []byte) ([]T, error) {
	options := badger.DefaultIteratorOptions
	it := txn.NewIterator(options)
	defer it.Close()

	var rows []T
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		var row T
		if err := it.Item().Value(func(value []byte) error {
			return json.Unmarshal(value, &row)
		}); err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}
