//go:generate go run go.uber.org/mock/mockgen -source=message_repository.go -destination=../../mocks/mock_message_repository.go -package=mocks
package storage

import (
	"chat-core/contract"
	"chat-core/domain"
	"chat-core/domain/event"
	"chat-core/domain/search"
	"chat-core/errors"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

const DefaultPageSize = 50

type IMessageRepository interface {
	StoreMessage(ctx context.Context, message domain.Message) (domain.Message, error)
	GetMessage(ctx context.Context, id uuid.UUID) (domain.Message, error)
	GetMessages(ctx context.Context, room domain.RoomID, cursor *string) ([]domain.Message, *string, error)
	UpdateContent(ctx context.Context, id uuid.UUID, editor, content string) (domain.Message, error)
	DeleteMessage(ctx context.Context, id uuid.UUID, author string) error
	Search(ctx context.Context, query search.Query) ([]domain.Message, error)
}

type MessageRepository struct {
	db        *badger.DB
	index     *SearchIndex
	publisher contract.ChangePublisher
	log       *slog.Logger
	pageSize  int
	now       func() time.Time
}

func NewMessageRepository(db *badger.DB, index *SearchIndex, publisher contract.ChangePublisher, log *slog.Logger, pageSize int) *MessageRepository {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &MessageRepository{
		db:        db,
		index:     index,
		publisher: publisher,
		log:       log,
		pageSize:  pageSize,
		now:       time.Now,
	}
}

func (m *MessageRepository) PageSize() int {
	return m.pageSize
}

// StoreMessage persists a message and announces the committed row to the
// room's channels. The key is "msg:{room}:{timestamp_padded}:{uuid}" so a
// prefix scan yields the room history in creation order, the uuid breaking
// ties between messages of the same nanosecond.
//
// A reply is checked against its target inside the same transaction: the
// target must exist in the same room, and its preview is denormalized.
func (m *MessageRepository) StoreMessage(ctx context.Context, message domain.Message) (domain.Message, error) {
	if message.ID == uuid.Nil {
		message.ID = uuid.New()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = m.now().UTC()
	}
	if message.Kind == "" {
		message.Kind = domain.KindText
	}

	err := m.db.Update(func(txn *badger.Txn) error {
		if message.ReplyTo != nil {
			target, err := m.load(txn, *message.ReplyTo)
			if err != nil {
				if errors.Is(err, errors.ErrMessageNotFound) {
					return errors.ErrReplyTargetMissing
				}
				return err
			}
			if target.RoomID != message.RoomID {
				return errors.ErrReplyTargetMissing
			}
			message.Kind = domain.KindReply
			message.ReplyPreview = domain.ReplyPreview(target.Content)
		}
		key := messageKey(message.RoomID, message.CreatedAt, message.ID)
		if err := setJSON(txn, key, fromMessage(message)); err != nil {
			return err
		}
		return txn.Set(messageIndexKey(message.ID), key)
	})
	if err != nil {
		return domain.Message{}, err
	}

	if m.index != nil {
		if err := m.index.Index(message); err != nil {
			m.log.Warn(fmt.Sprintf("Message %s stored but not indexed: %v", message.ID, err))
		}
	}
	if m.publisher != nil {
		m.publisher.Publish(ctx, event.MessageInserted{Message: message})
	}
	return message, nil
}

func (m *MessageRepository) GetMessage(_ context.Context, id uuid.UUID) (domain.Message, error) {
	var message domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		var err error
		message, err = m.load(txn, id)
		return err
	})
	return message, err
}

// GetMessages retrieves one page of a room, newest first, using a reverse
// prefix scan. The returned cursor points at the last message of the page
// and is nil once the history is exhausted.
func (m *MessageRepository) GetMessages(_ context.Context, room domain.RoomID, cursor *string) ([]domain.Message, *string, error) {
	var rows []messageRow
	var lastKey string
	err := m.db.View(func(txn *badger.Txn) error {
		prefix := messagePrefix(room)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch cursor {
		case nil:
			// Start past the newest possible timestamp and walk back in time
			seekKey = append(append([]byte{}, prefix...), []byte(seekNewest)...)
		default:
			seekKey = append(append([]byte{}, prefix...), []byte(*cursor)...)
		}

		it.Seek(seekKey)
		if cursor != nil && it.ValidForPrefix(prefix) && string(it.Item().Key()[len(prefix):]) == *cursor {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if len(rows) == m.pageSize {
				m.log.Debug(fmt.Sprintf("Maximum of %d messages reached", m.pageSize))
				break
			}
			item := it.Item()
			lastKey = string(item.Key()[len(prefix):])
			var row messageRow
			if err := item.Value(func(value []byte) error {
				return json.Unmarshal(value, &row)
			}); err != nil {
				return err
			}
			rows = append(rows, row)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	messages := make([]domain.Message, 0, len(rows))
	for _, row := range rows {
		message, err := row.toMessage()
		if err != nil {
			return nil, nil, err
		}
		messages = append(messages, message)
	}
	if len(rows) < m.pageSize {
		return messages, nil, nil
	}
	return messages, &lastKey, nil
}

// UpdateContent rewrites the body of a message. Only its author may do so;
// anyone else gets ErrNotAuthor and the row is left untouched.
func (m *MessageRepository) UpdateContent(_ context.Context, id uuid.UUID, editor, content string) (domain.Message, error) {
	var message domain.Message
	err := m.db.Update(func(txn *badger.Txn) error {
		current, err := m.load(txn, id)
		if err != nil {
			return err
		}
		if current.UserID != editor {
			return errors.ErrNotAuthor
		}
		editedAt := m.now().UTC()
		current.Content = content
		current.Edited = true
		current.EditedAt = &editedAt
		message = current
		return setJSON(txn, messageKey(current.RoomID, current.CreatedAt, current.ID), fromMessage(current))
	})
	if err != nil {
		return domain.Message{}, err
	}
	if m.index != nil {
		if err := m.index.Index(message); err != nil {
			m.log.Warn(fmt.Sprintf("Message %s edited but not reindexed: %v", id, err))
		}
	}
	return message, nil
}

// DeleteMessage removes a message and its reactions. Only its author may
// do so.
func (m *MessageRepository) DeleteMessage(_ context.Context, id uuid.UUID, author string) error {
	err := m.db.Update(func(txn *badger.Txn) error {
		current, err := m.load(txn, id)
		if err != nil {
			return err
		}
		if current.UserID != author {
			return errors.ErrNotAuthor
		}
		if err := txn.Delete(messageKey(current.RoomID, current.CreatedAt, current.ID)); err != nil {
			return err
		}
		if err := txn.Delete(messageIndexKey(id)); err != nil {
			return err
		}
		return deletePrefix(txn, reactionPrefix(id))
	})
	if err != nil {
		return err
	}
	if m.index != nil {
		if err := m.index.Delete(id); err != nil {
			m.log.Warn(fmt.Sprintf("Message %s deleted but still indexed: %v", id, err))
		}
	}
	return nil
}

// Search runs a full-text query and loads the matches, newest first.
// Identifiers still in the index but gone from the store are skipped.
func (m *MessageRepository) Search(ctx context.Context, query search.Query) ([]domain.Message, error) {
	if m.index == nil {
		return nil, nil
	}
	ids, err := m.index.Search(ctx, query)
	if err != nil {
		return nil, err
	}

	messages := make([]domain.Message, 0, len(ids))
	err = m.db.View(func(txn *badger.Txn) error {
		for _, id := range ids {
			message, err := m.load(txn, id)
			if errors.Is(err, errors.ErrMessageNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			messages = append(messages, message)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	domain.SortMessages(messages)
	newestFirst := make([]domain.Message, 0, len(messages))
	for i := len(messages) - 1; i >= 0 && len(newestFirst) < query.Normalize().Limit; i-- {
		newestFirst = append(newestFirst, messages[i])
	}
	return newestFirst, nil
}

func (m *MessageRepository) load(txn *badger.Txn, id uuid.UUID) (domain.Message, error) {
	item, err := txn.Get(messageIndexKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Message{}, errors.ErrMessageNotFound
	}
	if err != nil {
		return domain.Message{}, err
	}
	key, err := item.ValueCopy(nil)
	if err != nil {
		return domain.Message{}, err
	}
	var row messageRow
	if err := getJSON(txn, key, &row); err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return domain.Message{}, errors.ErrMessageNotFound
		}
		return domain.Message{}, err
	}
	return row.toMessage()
}
