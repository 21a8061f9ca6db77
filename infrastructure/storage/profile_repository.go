package storage

import (
	"chat-core/domain"
	"chat-core/errors"
	"context"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
)

type IProfileRepository interface {
	SaveProfile(ctx context.Context, profile domain.Profile) error
	GetProfile(ctx context.Context, id string) (domain.Profile, error)
}

type ProfileRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewProfileRepository(db *badger.DB, log *slog.Logger) *ProfileRepository {
	return &ProfileRepository{db: db, log: log}
}

func (p *ProfileRepository) SaveProfile(_ context.Context, profile domain.Profile) error {
	return p.db.Update(func(txn *badger.Txn) error {
		return setJSON(txn, profileKey(profile.ID), profileRow{
			ID:          profile.ID,
			DisplayName: profile.DisplayName,
			AvatarURL:   profile.AvatarURL,
			Bio:         profile.Bio,
			Status:      profile.Status,
		})
	})
}

// GetProfile returns the stored profile with missing display metadata
// defaulted.
func (p *ProfileRepository) GetProfile(_ context.Context, id string) (domain.Profile, error) {
	var row profileRow
	err := p.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, profileKey(id), &row)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Profile{}, errors.ErrProfileNotFound
	}
	if err != nil {
		return domain.Profile{}, err
	}
	return row.toProfile(), nil
}
