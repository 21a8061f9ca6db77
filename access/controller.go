// Package access decides which rooms a caller may read or write and drives
// the invitation lifecycle of private rooms.
package access

import (
	"chat-core/domain"
	"chat-core/errors"
	"chat-core/infrastructure/storage"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
)

type Controller struct {
	rooms    storage.IRoomRepository
	log      *slog.Logger
	validate *validator.Validate
}

func NewController(rooms storage.IRoomRepository, log *slog.Logger) *Controller {
	return &Controller{
		rooms:    rooms,
		log:      log,
		validate: validator.New(),
	}
}

// ListAccessibleRooms returns public rooms plus the rooms caller created.
// Private rooms the caller joined through an invitation are not listed here;
// see ListJoinedRooms.
func (c *Controller) ListAccessibleRooms(ctx context.Context, caller string) ([]domain.Room, error) {
	rooms, err := c.rooms.ListRooms(ctx)
	if err != nil {
		return nil, err
	}
	accessible := make([]domain.Room, 0, len(rooms))
	for _, room := range rooms {
		if !room.IsPrivate() || room.CreatedBy == caller {
			accessible = append(accessible, room)
		}
	}
	return accessible, nil
}

// ListJoinedRooms returns every room caller is a member of.
func (c *Controller) ListJoinedRooms(ctx context.Context, caller string) ([]domain.Room, error) {
	ids, err := c.rooms.MemberRooms(ctx, caller)
	if err != nil {
		return nil, err
	}
	joined := make([]domain.Room, 0, len(ids))
	for _, id := range ids {
		room, err := c.rooms.GetRoom(ctx, id)
		if errors.Is(err, errors.ErrRoomNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		joined = append(joined, room)
	}
	return joined, nil
}

// CreatePrivateRoom creates the room and makes caller its first member,
// atomically.
func (c *Controller) CreatePrivateRoom(ctx context.Context, name, description, caller string) (domain.Room, error) {
	return c.createRoom(ctx, name, description, caller, domain.VisibilityPrivate)
}

func (c *Controller) CreatePublicRoom(ctx context.Context, name, description, caller string) (domain.Room, error) {
	return c.createRoom(ctx, name, description, caller, domain.VisibilityPublic)
}

func (c *Controller) createRoom(ctx context.Context, name, description, caller string, visibility domain.Visibility) (domain.Room, error) {
	cmd := domain.CreateRoomCommand{Name: strings.TrimSpace(name), Description: strings.TrimSpace(description)}
	if err := c.validate.Struct(cmd); err != nil {
		return domain.Room{}, fmt.Errorf("%w: %v", errors.ErrInvalidContent, err)
	}
	room, err := c.rooms.CreateRoom(ctx, domain.Room{
		Name:        cmd.Name,
		Description: cmd.Description,
		CreatedBy:   caller,
		Visibility:  visibility,
	})
	if err != nil {
		return domain.Room{}, fmt.Errorf("create room %q: %w", cmd.Name, err)
	}
	c.log.Info(fmt.Sprintf("%s room %s created by %s", visibility, room.ID, caller))
	return room, nil
}

// CanRead reports whether caller may read room. Public rooms are open to any
// authenticated caller; private ones to members only.
func (c *Controller) CanRead(ctx context.Context, roomID domain.RoomID, caller string) (bool, error) {
	if caller == "" {
		return false, errors.ErrNotAuthenticated
	}
	room, err := c.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return false, err
	}
	if !room.IsPrivate() {
		return true, nil
	}
	return c.rooms.IsMember(ctx, roomID, caller)
}

// CanWrite follows the same rule as CanRead.
func (c *Controller) CanWrite(ctx context.Context, roomID domain.RoomID, caller string) (bool, error) {
	return c.CanRead(ctx, roomID, caller)
}

// Authorize returns ErrForbidden unless caller may read room.
func (c *Controller) Authorize(ctx context.Context, roomID domain.RoomID, caller string) error {
	allowed, err := c.CanRead(ctx, roomID, caller)
	if err != nil {
		return err
	}
	if !allowed {
		return errors.ErrForbidden
	}
	return nil
}

// Members lists the members of room. Only callers allowed to read it may.
func (c *Controller) Members(ctx context.Context, roomID domain.RoomID, caller string) ([]string, error) {
	if err := c.Authorize(ctx, roomID, caller); err != nil {
		return nil, err
	}
	return c.rooms.Members(ctx, roomID)
}

// Invite creates a pending invitation for invitee.
func (c *Controller) Invite(ctx context.Context, roomID domain.RoomID, inviter, invitee string) (domain.Invitation, error) {
	if inviter == "" {
		return domain.Invitation{}, errors.ErrNotAuthenticated
	}
	invitee = strings.TrimSpace(invitee)
	if invitee == "" {
		return domain.Invitation{}, fmt.Errorf("%w: empty invitee", errors.ErrInvalidContent)
	}
	invitation, err := c.rooms.CreateInvitation(ctx, domain.Invitation{
		RoomID:        roomID,
		InvitedBy:     inviter,
		InvitedUserID: invitee,
	})
	if err != nil {
		return domain.Invitation{}, fmt.Errorf("invite %s to room %s: %w", invitee, roomID, err)
	}
	c.log.Info(fmt.Sprintf("%s invited %s to room %s", inviter, invitee, roomID))
	return invitation, nil
}

// Respond accepts or declines an invitation. Only the invitee may answer,
// only once. Accepting adds the membership in the same write.
func (c *Controller) Respond(ctx context.Context, invitationID, caller string, accept bool) (domain.Invitation, error) {
	if caller == "" {
		return domain.Invitation{}, errors.ErrNotAuthenticated
	}
	invitation, err := c.rooms.RespondInvitation(ctx, invitationID, caller, accept)
	if err != nil {
		return domain.Invitation{}, fmt.Errorf("respond to invitation %s: %w", invitationID, err)
	}
	c.log.Info(fmt.Sprintf("%s %s invitation %s to room %s", caller, invitation.Status, invitation.ID, invitation.RoomID))
	return invitation, nil
}

func (c *Controller) PendingInvitations(ctx context.Context, caller string) ([]domain.Invitation, error) {
	if caller == "" {
		return nil, errors.ErrNotAuthenticated
	}
	return c.rooms.PendingInvitations(ctx, caller)
}
