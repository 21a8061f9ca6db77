package storage

import (
	"chat-core/domain"
	"chat-core/errors"
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

type IReactionRepository interface {
	AddReaction(ctx context.Context, reaction domain.Reaction) error
	RemoveReaction(ctx context.Context, messageID uuid.UUID, userID, emoji string) error
	Reactions(ctx context.Context, messageID uuid.UUID) ([]domain.Reaction, error)
}

type ReactionRepository struct {
	db  *badger.DB
	log *slog.Logger
	now func() time.Time
}

func NewReactionRepository(db *badger.DB, log *slog.Logger) *ReactionRepository {
	return &ReactionRepository{db: db, log: log, now: time.Now}
}

// AddReaction stores the (message, user, emoji) triple. The key is the
// triple itself, so adding it twice leaves one row.
func (r *ReactionRepository) AddReaction(_ context.Context, reaction domain.Reaction) error {
	return r.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(messageIndexKey(reaction.MessageID)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return errors.ErrMessageNotFound
			}
			return err
		}
		key := reactionKey(reaction.MessageID, reaction.UserID, reaction.Emoji)
		if _, err := txn.Get(key); err == nil {
			return nil
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if reaction.CreatedAt.IsZero() {
			reaction.CreatedAt = r.now().UTC()
		}
		return setJSON(txn, key, reactionRow{
			MessageID: reaction.MessageID.String(),
			UserID:    reaction.UserID,
			Emoji:     reaction.Emoji,
			CreatedAt: reaction.CreatedAt.UnixNano(),
		})
	})
}

// RemoveReaction deletes the triple. Removing a reaction that does not
// exist succeeds and changes nothing.
func (r *ReactionRepository) RemoveReaction(_ context.Context, messageID uuid.UUID, userID, emoji string) error {
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(reactionKey(messageID, userID, emoji))
	})
}

// Reactions lists the reactions of a message, oldest first.
func (r *ReactionRepository) Reactions(_ context.Context, messageID uuid.UUID) ([]domain.Reaction, error) {
	var rows []reactionRow
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		rows, err = scanJSON[reactionRow](txn, reactionPrefix(messageID))
		return err
	})
	if err != nil {
		return nil, err
	}
	reactions := make([]domain.Reaction, 0, len(rows))
	for _, row := range rows {
		reaction, err := row.toReaction()
		if err != nil {
			return nil, err
		}
		reactions = append(reactions, reaction)
	}
	sort.SliceStable(reactions, func(i, j int) bool {
		return reactions[i].CreatedAt.Before(reactions[j].CreatedAt)
	})
	return reactions, nil
}
