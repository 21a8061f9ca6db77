package storage

import (
	"chat-core/domain"
	"chat-core/errors"
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

type INotificationRepository interface {
	CreateNotification(ctx context.Context, notification domain.Notification) (domain.Notification, error)
	MarkRead(ctx context.Context, id uuid.UUID, userID string) error
	MarkAllRead(ctx context.Context, userID string) (int, error)
	ListNotifications(ctx context.Context, userID string, unreadOnly bool) ([]domain.Notification, error)
}

type NotificationRepository struct {
	db  *badger.DB
	log *slog.Logger
	now func() time.Time
}

func NewNotificationRepository(db *badger.DB, log *slog.Logger) *NotificationRepository {
	return &NotificationRepository{db: db, log: log, now: time.Now}
}

func (n *NotificationRepository) CreateNotification(_ context.Context, notification domain.Notification) (domain.Notification, error) {
	if notification.ID == uuid.Nil {
		notification.ID = uuid.New()
	}
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = n.now().UTC()
	}
	notification.Read = false

	err := n.db.Update(func(txn *badger.Txn) error {
		key := notificationKey(notification.UserID, notification.CreatedAt, notification.ID)
		if err := setJSON(txn, key, fromNotification(notification)); err != nil {
			return err
		}
		return txn.Set(notificationIndexKey(notification.ID), key)
	})
	if err != nil {
		return domain.Notification{}, err
	}
	return notification, nil
}

// MarkRead flags one notification of userID as read. A notification owned
// by someone else is reported as not found.
func (n *NotificationRepository) MarkRead(_ context.Context, id uuid.UUID, userID string) error {
	return n.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(notificationIndexKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return errors.ErrNotificationNotFound
		}
		if err != nil {
			return err
		}
		key, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		var row notificationRow
		if err := getJSON(txn, key, &row); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return errors.ErrNotificationNotFound
			}
			return err
		}
		if row.UserID != userID {
			return errors.ErrNotificationNotFound
		}
		if row.Read {
			return nil
		}
		row.Read = true
		return setJSON(txn, key, row)
	})
}

// MarkAllRead flags every unread notification of userID and returns how
// many changed.
func (n *NotificationRepository) MarkAllRead(_ context.Context, userID string) (int, error) {
	var updated int
	err := n.db.Update(func(txn *badger.Txn) error {
		prefix := notificationPrefix(userID)
		type pending struct {
			key []byte
			row notificationRow
		}
		var unread []pending

		it := txn.NewIterator(badger.DefaultIteratorOptions)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var row notificationRow
			if err := it.Item().Value(func(value []byte) error {
				return json.Unmarshal(value, &row)
			}); err != nil {
				it.Close()
				return err
			}
			if !row.Read {
				unread = append(unread, pending{key: it.Item().KeyCopy(nil), row: row})
			}
		}
		it.Close()

		for _, p := range unread {
			p.row.Read = true
			if err := setJSON(txn, p.key, p.row); err != nil {
				return err
			}
		}
		updated = len(unread)
		return nil
	})
	return updated, err
}

// ListNotifications returns the notifications of userID, newest first.
func (n *NotificationRepository) ListNotifications(_ context.Context, userID string, unreadOnly bool) ([]domain.Notification, error) {
	var rows []notificationRow
	err := n.db.View(func(txn *badger.Txn) error {
		var err error
		rows, err = scanJSON[notificationRow](txn, notificationPrefix(userID))
		return err
	})
	if err != nil {
		return nil, err
	}
	notifications := make([]domain.Notification, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		if unreadOnly && rows[i].Read {
			continue
		}
		notification, err := rows[i].toNotification()
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, notification)
	}
	return notifications, nil
}
