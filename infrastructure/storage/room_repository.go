//go:generate go run go.uber.org/mock/mockgen -source=room_repository.go -destination=../../mocks/mock_room_repository.go -package=mocks
package storage

import (
	"chat-core/domain"
	"chat-core/errors"
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

type IRoomRepository interface {
	CreateRoom(ctx context.Context, room domain.Room) (domain.Room, error)
	GetRoom(ctx context.Context, id domain.RoomID) (domain.Room, error)
	ListRooms(ctx context.Context) ([]domain.Room, error)
	IsMember(ctx context.Context, room domain.RoomID, userID string) (bool, error)
	AddMember(ctx context.Context, room domain.RoomID, userID string) error
	RemoveMember(ctx context.Context, room domain.RoomID, userID string) error
	Members(ctx context.Context, room domain.RoomID) ([]string, error)
	MemberRooms(ctx context.Context, userID string) ([]domain.RoomID, error)
	CreateInvitation(ctx context.Context, invitation domain.Invitation) (domain.Invitation, error)
	GetInvitation(ctx context.Context, id string) (domain.Invitation, error)
	RespondInvitation(ctx context.Context, id, caller string, accept bool) (domain.Invitation, error)
	PendingInvitations(ctx context.Context, userID string) ([]domain.Invitation, error)
}

type RoomRepository struct {
	db  *badger.DB
	log *slog.Logger
	now func() time.Time
}

func NewRoomRepository(db *badger.DB, log *slog.Logger) *RoomRepository {
	return &RoomRepository{db: db, log: log, now: time.Now}
}

// CreateRoom inserts the room and its creator's membership in one
// transaction: both rows exist or neither does.
func (r *RoomRepository) CreateRoom(_ context.Context, room domain.Room) (domain.Room, error) {
	if room.ID == "" {
		room.ID = domain.RoomID(uuid.NewString())
	}
	if room.CreatedAt.IsZero() {
		room.CreatedAt = r.now().UTC()
	}
	if room.Visibility == "" {
		room.Visibility = domain.VisibilityPublic
	}

	err := r.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(roomKey(room.ID)); err == nil {
			return fmt.Errorf("room %s already exists", room.ID)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := setJSON(txn, roomKey(room.ID), fromRoom(room)); err != nil {
			return err
		}
		return r.addMember(txn, room.ID, room.CreatedBy)
	})
	if err != nil {
		return domain.Room{}, err
	}
	r.log.Debug(fmt.Sprintf("Room %s created by %s (%s)", room.ID, room.CreatedBy, room.Visibility))
	return room, nil
}

func (r *RoomRepository) GetRoom(_ context.Context, id domain.RoomID) (domain.Room, error) {
	var room domain.Room
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		room, err = loadRoom(txn, id)
		return err
	})
	return room, err
}

// ListRooms returns every room, oldest first.
func (r *RoomRepository) ListRooms(_ context.Context) ([]domain.Room, error) {
	var rows []roomRow
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		rows, err = scanJSON[roomRow](txn, []byte(roomPrefix))
		return err
	})
	if err != nil {
		return nil, err
	}
	rooms := make([]domain.Room, 0, len(rows))
	for _, row := range rows {
		rooms = append(rooms, row.toRoom())
	}
	sort.SliceStable(rooms, func(i, j int) bool {
		if !rooms[i].CreatedAt.Equal(rooms[j].CreatedAt) {
			return rooms[i].CreatedAt.Before(rooms[j].CreatedAt)
		}
		return rooms[i].ID < rooms[j].ID
	})
	return rooms, nil
}

func (r *RoomRepository) IsMember(_ context.Context, room domain.RoomID, userID string) (bool, error) {
	var member bool
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		member, err = isMember(txn, room, userID)
		return err
	})
	return member, err
}

func (r *RoomRepository) AddMember(_ context.Context, room domain.RoomID, userID string) error {
	return r.db.Update(func(txn *badger.Txn) error {
		if _, err := loadRoom(txn, room); err != nil {
			return err
		}
		return r.addMember(txn, room, userID)
	})
}

func (r *RoomRepository) RemoveMember(_ context.Context, room domain.RoomID, userID string) error {
	return r.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(memberKey(room, userID)); err != nil {
			return err
		}
		return txn.Delete(membershipKey(userID, room))
	})
}

func (r *RoomRepository) Members(_ context.Context, room domain.RoomID) ([]string, error) {
	var rows []memberRow
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		rows, err = scanJSON[memberRow](txn, memberPrefix(room))
		return err
	})
	if err != nil {
		return nil, err
	}
	members := make([]string, 0, len(rows))
	for _, row := range rows {
		members = append(members, row.UserID)
	}
	sort.Strings(members)
	return members, nil
}

func (r *RoomRepository) MemberRooms(_ context.Context, userID string) ([]domain.RoomID, error) {
	var rows []memberRow
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		rows, err = scanJSON[memberRow](txn, membershipPrefix(userID))
		return err
	})
	if err != nil {
		return nil, err
	}
	rooms := make([]domain.RoomID, 0, len(rows))
	for _, row := range rows {
		rooms = append(rooms, domain.RoomID(row.RoomID))
	}
	return rooms, nil
}

// CreateInvitation records a pending invitation. The room must exist, a
// private room only accepts invitations from its members, and an invitee
// cannot already be a member or hold another pending invitation.
func (r *RoomRepository) CreateInvitation(_ context.Context, invitation domain.Invitation) (domain.Invitation, error) {
	if invitation.InvitedBy == invitation.InvitedUserID {
		return domain.Invitation{}, errors.ErrSelfInvitation
	}
	if invitation.ID == "" {
		invitation.ID = uuid.NewString()
	}
	invitation.Status = domain.InvitationPending
	invitation.CreatedAt = r.now().UTC()
	invitation.RespondedAt = nil

	err := r.db.Update(func(txn *badger.Txn) error {
		room, err := loadRoom(txn, invitation.RoomID)
		if err != nil {
			return err
		}
		if room.IsPrivate() {
			inviterIsMember, err := isMember(txn, room.ID, invitation.InvitedBy)
			if err != nil {
				return err
			}
			if !inviterIsMember {
				return errors.ErrForbidden
			}
		}
		alreadyMember, err := isMember(txn, room.ID, invitation.InvitedUserID)
		if err != nil {
			return err
		}
		if alreadyMember {
			return errors.ErrAlreadyMember
		}
		pending := pendingInviteKey(room.ID, invitation.InvitedUserID)
		if _, err := txn.Get(pending); err == nil {
			return errors.ErrInvitationExists
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := setJSON(txn, inviteKey(invitation.ID), fromInvitation(invitation)); err != nil {
			return err
		}
		return txn.Set(pending, []byte(invitation.ID))
	})
	if err != nil {
		return domain.Invitation{}, err
	}
	return invitation, nil
}

func (r *RoomRepository) GetInvitation(_ context.Context, id string) (domain.Invitation, error) {
	var invitation domain.Invitation
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		invitation, err = loadInvitation(txn, id)
		return err
	})
	return invitation, err
}

// RespondInvitation moves a pending invitation to accepted or declined.
// Accepting writes the status and the membership in the same transaction,
// so an accepted invitation never points at a non-member.
func (r *RoomRepository) RespondInvitation(_ context.Context, id, caller string, accept bool) (domain.Invitation, error) {
	var invitation domain.Invitation
	err := r.db.Update(func(txn *badger.Txn) error {
		current, err := loadInvitation(txn, id)
		if err != nil {
			return err
		}
		if current.InvitedUserID != caller {
			return errors.ErrNotInvitee
		}
		if !current.IsPending() {
			return errors.ErrInvalidTransition
		}

		respondedAt := r.now().UTC()
		current.RespondedAt = &respondedAt
		current.Status = domain.InvitationDeclined
		if accept {
			current.Status = domain.InvitationAccepted
			if err := r.addMember(txn, current.RoomID, current.InvitedUserID); err != nil {
				return err
			}
		}
		if err := setJSON(txn, inviteKey(current.ID), fromInvitation(current)); err != nil {
			return err
		}
		invitation = current
		return txn.Delete(pendingInviteKey(current.RoomID, current.InvitedUserID))
	})
	if err != nil {
		return domain.Invitation{}, err
	}
	return invitation, nil
}

// PendingInvitations lists the invitations awaiting userID's answer, oldest
// first.
func (r *RoomRepository) PendingInvitations(_ context.Context, userID string) ([]domain.Invitation, error) {
	var rows []invitationRow
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		rows, err = scanJSON[invitationRow](txn, []byte(invitePrefix))
		return err
	})
	if err != nil {
		return nil, err
	}
	var invitations []domain.Invitation
	for _, row := range rows {
		invitation := row.toInvitation()
		if invitation.InvitedUserID == userID && invitation.IsPending() {
			invitations = append(invitations, invitation)
		}
	}
	sort.SliceStable(invitations, func(i, j int) bool {
		return invitations[i].CreatedAt.Before(invitations[j].CreatedAt)
	})
	return invitations, nil
}

// addMember is idempotent: an existing membership keeps its join time.
func (r *RoomRepository) addMember(txn *badger.Txn, room domain.RoomID, userID string) error {
	member, err := isMember(txn, room, userID)
	if err != nil || member {
		return err
	}
	row := memberRow{RoomID: string(room), UserID: userID, JoinedAt: r.now().UTC().UnixNano()}
	if err := setJSON(txn, memberKey(room, userID), row); err != nil {
		return err
	}
	return setJSON(txn, membershipKey(userID, room), row)
}

func isMember(txn *badger.Txn, room domain.RoomID, userID string) (bool, error) {
	_, err := txn.Get(memberKey(room, userID))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return false, nil
	default:
		return false, err
	}
}

func loadRoom(txn *badger.Txn, id domain.RoomID) (domain.Room, error) {
	var row roomRow
	if err := getJSON(txn, roomKey(id), &row); err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return domain.Room{}, errors.ErrRoomNotFound
		}
		return domain.Room{}, err
	}
	return row.toRoom(), nil
}

func loadInvitation(txn *badger.Txn, id string) (domain.Invitation, error) {
	var row invitationRow
	if err := getJSON(txn, inviteKey(id), &row); err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return domain.Invitation{}, errors.ErrInvitationNotFound
		}
		return domain.Invitation{}, err
	}
	return row.toInvitation(), nil
}
