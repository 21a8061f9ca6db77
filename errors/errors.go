package errors

import (
	goerrors "errors"
	"fmt"
)

var (
	ErrWorkerPanic = fmt.Errorf("worker panic")
	ErrEmptyWords  = fmt.Errorf("no words have been found")

	ErrNotAuthenticated = fmt.Errorf("no active user")
	ErrInvalidToken     = fmt.Errorf("invalid or expired token")
	ErrForbidden        = fmt.Errorf("access denied")
	ErrRateLimited      = fmt.Errorf("rate limit exceeded")
	ErrInvalidContent   = fmt.Errorf("invalid content")

	ErrRoomNotFound         = fmt.Errorf("room not found")
	ErrMessageNotFound      = fmt.Errorf("message not found")
	ErrInvitationNotFound   = fmt.Errorf("invitation not found")
	ErrNotificationNotFound = fmt.Errorf("notification not found")
	ErrProfileNotFound      = fmt.Errorf("profile not found")

	ErrNotAuthor          = fmt.Errorf("only the author can modify this message")
	ErrReplyTargetMissing = fmt.Errorf("reply target does not exist in this room")

	ErrNotInvitee        = fmt.Errorf("invitation is addressed to another user")
	ErrInvalidTransition = fmt.Errorf("invitation has already been answered")
	ErrAlreadyMember     = fmt.Errorf("user is already a member of the room")
	ErrInvitationExists  = fmt.Errorf("a pending invitation already exists")
	ErrSelfInvitation    = fmt.Errorf("cannot invite yourself")

	ErrChannelClosed   = fmt.Errorf("realtime channel closed")
	ErrNotSubscribed   = fmt.Errorf("no live subscription for room")
	ErrManagerClosed   = fmt.Errorf("subscription manager closed")
	ErrPublisherClosed = fmt.Errorf("publisher closed")
)

// Is mirrors the standard library so callers only import this package.
func Is(err, target error) bool {
	return goerrors.Is(err, target)
}

func As(err error, target any) bool {
	return goerrors.As(err, target)
}

func Join(errs ...error) error {
	return goerrors.Join(errs...)
}
