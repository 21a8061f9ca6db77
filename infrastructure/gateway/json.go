package gateway

import (
	"chat-core/domain"
	"chat-core/errors"
	"encoding/json"
	"net/http"
	"time"

	"github.com/samber/lo"
)

type profileResponse struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url"`
	Bio         string `json:"bio,omitempty"`
	Status      string `json:"status,omitempty"`
}

type messageResponse struct {
	ID           string          `json:"id"`
	RoomID       string          `json:"room_id"`
	UserID       string          `json:"user_id"`
	Content      string          `json:"content"`
	Kind         string          `json:"kind"`
	ActionData   map[string]any  `json:"action_data,omitempty"`
	ReplyTo      *string         `json:"reply_to,omitempty"`
	ReplyPreview string          `json:"reply_preview,omitempty"`
	Language     string          `json:"language,omitempty"`
	Edited       bool            `json:"edited"`
	EditedAt     *time.Time      `json:"edited_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	Author       profileResponse `json:"author"`
}

type pageResponse struct {
	RoomID   string            `json:"room_id"`
	Messages []messageResponse `json:"messages"`
	Cursor   *string           `json:"cursor"`
}

type roomResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedBy   string    `json:"created_by"`
	Visibility  string    `json:"visibility"`
	CreatedAt   time.Time `json:"created_at"`
}

type invitationResponse struct {
	ID            string     `json:"id"`
	RoomID        string     `json:"room_id"`
	InvitedBy     string     `json:"invited_by"`
	InvitedUserID string     `json:"invited_user_id"`
	Status        string     `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
	RespondedAt   *time.Time `json:"responded_at,omitempty"`
}

type notificationResponse struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Body      string         `json:"body,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Read      bool           `json:"read"`
	CreatedAt time.Time      `json:"created_at"`
}

type reactionResponse struct {
	MessageID string    `json:"message_id"`
	UserID    string    `json:"user_id"`
	Emoji     string    `json:"emoji"`
	CreatedAt time.Time `json:"created_at"`
}

type presenceResponse struct {
	UserID   string          `json:"user_id"`
	Profile  profileResponse `json:"profile"`
	OnlineAt time.Time       `json:"online_at"`
	Typing   bool            `json:"typing"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func toProfileResponse(p domain.Profile) profileResponse {
	return profileResponse{ID: p.ID, DisplayName: p.DisplayName, AvatarURL: p.AvatarURL, Bio: p.Bio, Status: p.Status}
}

func toMessageResponse(m domain.Message) messageResponse {
	var replyTo *string
	if m.ReplyTo != nil {
		replyTo = lo.ToPtr(m.ReplyTo.String())
	}
	return messageResponse{
		ID:           m.ID.String(),
		RoomID:       string(m.RoomID),
		UserID:       m.UserID,
		Content:      m.Content,
		Kind:         string(m.Kind),
		ActionData:   m.ActionData,
		ReplyTo:      replyTo,
		ReplyPreview: m.ReplyPreview,
		Language:     m.Language,
		Edited:       m.Edited,
		EditedAt:     m.EditedAt,
		CreatedAt:    m.CreatedAt,
		Author:       toProfileResponse(m.Author),
	}
}

func toMessageResponses(messages []domain.Message) []messageResponse {
	return lo.Map(messages, func(m domain.Message, _ int) messageResponse { return toMessageResponse(m) })
}

func toPageResponse(p domain.MessagePage) pageResponse {
	return pageResponse{RoomID: string(p.RoomID), Messages: toMessageResponses(p.Messages), Cursor: p.Cursor}
}

func toRoomResponses(rooms []domain.Room) []roomResponse {
	return lo.Map(rooms, func(r domain.Room, _ int) roomResponse { return toRoomResponse(r) })
}

func toRoomResponse(r domain.Room) roomResponse {
	return roomResponse{
		ID:          string(r.ID),
		Name:        r.Name,
		Description: r.Description,
		CreatedBy:   r.CreatedBy,
		Visibility:  string(r.Visibility),
		CreatedAt:   r.CreatedAt,
	}
}

func toInvitationResponse(i domain.Invitation) invitationResponse {
	return invitationResponse{
		ID:            i.ID,
		RoomID:        string(i.RoomID),
		InvitedBy:     i.InvitedBy,
		InvitedUserID: i.InvitedUserID,
		Status:        string(i.Status),
		CreatedAt:     i.CreatedAt,
		RespondedAt:   i.RespondedAt,
	}
}

func toNotificationResponses(notifications []domain.Notification) []notificationResponse {
	return lo.Map(notifications, func(n domain.Notification, _ int) notificationResponse {
		return notificationResponse{
			ID:        n.ID.String(),
			Type:      n.Type,
			Title:     n.Title,
			Body:      n.Body,
			Data:      n.Data,
			Read:      n.Read,
			CreatedAt: n.CreatedAt,
		}
	})
}

func toReactionResponses(reactions []domain.Reaction) []reactionResponse {
	return lo.Map(reactions, func(r domain.Reaction, _ int) reactionResponse {
		return reactionResponse{MessageID: r.MessageID.String(), UserID: r.UserID, Emoji: r.Emoji, CreatedAt: r.CreatedAt}
	})
}

func toPresenceResponses(entries []domain.PresenceEntry) []presenceResponse {
	return lo.Map(entries, func(e domain.PresenceEntry, _ int) presenceResponse {
		return presenceResponse{UserID: e.UserID, Profile: toProfileResponse(e.Profile), OnlineAt: e.OnlineAt, Typing: e.Typing}
	})
}

// statusFor maps a service error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errors.ErrNotAuthenticated), errors.Is(err, errors.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, errors.ErrForbidden), errors.Is(err, errors.ErrNotAuthor), errors.Is(err, errors.ErrNotInvitee):
		return http.StatusForbidden
	case errors.Is(err, errors.ErrRoomNotFound), errors.Is(err, errors.ErrMessageNotFound),
		errors.Is(err, errors.ErrInvitationNotFound), errors.Is(err, errors.ErrNotificationNotFound),
		errors.Is(err, errors.ErrProfileNotFound):
		return http.StatusNotFound
	case errors.Is(err, errors.ErrInvalidContent), errors.Is(err, errors.ErrReplyTargetMissing),
		errors.Is(err, errors.ErrSelfInvitation):
		return http.StatusBadRequest
	case errors.Is(err, errors.ErrAlreadyMember), errors.Is(err, errors.ErrInvitationExists),
		errors.Is(err, errors.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, errors.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, errors.ErrNotSubscribed):
		return http.StatusPreconditionFailed
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = http.StatusText(status)
	}
	writeJSON(w, status, errorResponse{Error: message})
}

func decode(r *http.Request, v any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	if err := decoder.Decode(v); err != nil {
		return errors.Join(errors.ErrInvalidContent, err)
	}
	return nil
}
