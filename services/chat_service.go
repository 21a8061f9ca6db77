package services

import (
	"chat-core/access"
	"chat-core/auth"
	"chat-core/cache"
	"chat-core/contract"
	"chat-core/domain"
	"chat-core/domain/search"
	"chat-core/errors"
	"chat-core/infrastructure/storage"
	"chat-core/moderation"
	"chat-core/observability"
	"chat-core/presence"
	"chat-core/runtime"
	"chat-core/subscription"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

const (
	DefaultMaxContentLength = 4000
	NotificationInvitation  = "room_invitation"
)

// Dependencies are shared by every chat service instance of a process.
type Dependencies struct {
	Messages      storage.IMessageRepository
	Reactions     storage.IReactionRepository
	Notifications storage.INotificationRepository
	Profiles      storage.IProfileRepository
	Access        *access.Controller
	Hub           *runtime.Hub
	Moderator     *moderation.Moderator
	Notifier      contract.NotificationSink
	Metrics       *observability.Metrics
}

// Options size the state owned by one instance.
type Options struct {
	MaxSubscriptions int
	ProfileCacheSize int
	MessageCacheSize int
	PageSize         int
	MaxContentLength int
}

// ChatService is the public surface of the collaboration core for one client.
// It owns its caches, presence state and subscriptions; nothing is shared
// with other instances but the Dependencies.
//
// The caller identity is read from the context (auth.UserIDKey). Mutations
// return typed errors and log them. Reads fail closed: on any error they log
// and return an empty result, which callers must read as "possibly
// incomplete".
type ChatService struct {
	log      *slog.Logger
	deps     Dependencies
	opts     Options
	validate *validator.Validate

	profiles      *cache.ProfileCache
	pages         *cache.MessageCache
	presence      *presence.Tracker
	subscriptions *subscription.Manager
}

func NewChatService(log *slog.Logger, deps Dependencies, opts Options) (*ChatService, error) {
	if opts.MaxContentLength <= 0 {
		opts.MaxContentLength = DefaultMaxContentLength
	}
	if opts.PageSize <= 0 {
		opts.PageSize = storage.DefaultPageSize
	}
	profiles, err := cache.NewProfileCache(opts.ProfileCacheSize, deps.Metrics)
	if err != nil {
		return nil, err
	}
	pages, err := cache.NewMessageCache(opts.MessageCacheSize, deps.Metrics)
	if err != nil {
		return nil, err
	}

	s := &ChatService{
		log:      log,
		deps:     deps,
		opts:     opts,
		validate: validator.New(),
		profiles: profiles,
		pages:    pages,
		presence: presence.NewTracker(),
	}
	s.subscriptions, err = subscription.NewManager(log, deps.Hub,
		subscription.WithMaxSubscriptions(opts.MaxSubscriptions),
		subscription.WithMetrics(deps.Metrics),
		subscription.WithTeardownHook(s.forgetRoom),
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Handlers are the callbacks of a joined room.
type Handlers struct {
	OnMessage  func(domain.Message)
	OnPresence func([]domain.PresenceEntry)
	OnTyping   func(userID string)
	OnError    func(error)
}

// --- messages ---

func (s *ChatService) SendMessage(ctx context.Context, room domain.RoomID, content string) (domain.Message, error) {
	return s.Post(ctx, domain.PostMessageCommand{Room: room, Content: content, Kind: domain.KindText})
}

// SendAction posts an "/me" style action with its structured payload.
func (s *ChatService) SendAction(ctx context.Context, room domain.RoomID, content string, data map[string]any) (domain.Message, error) {
	return s.Post(ctx, domain.PostMessageCommand{Room: room, Content: content, Kind: domain.KindAction, ActionData: data})
}

// SendVisualShare posts a generated image along with its caption.
func (s *ChatService) SendVisualShare(ctx context.Context, room domain.RoomID, caption, imageURL string) (domain.Message, error) {
	return s.Post(ctx, domain.PostMessageCommand{
		Room:       room,
		Content:    caption,
		Kind:       domain.KindVisualShare,
		ActionData: map[string]any{"image_url": imageURL},
	})
}

// SendReply answers target, which must exist in the same room. The store
// denormalizes a preview of the target.
func (s *ChatService) SendReply(ctx context.Context, room domain.RoomID, target uuid.UUID, content string) (domain.Message, error) {
	cmd := domain.ReplyCommand{Room: room, ReplyTo: target, Content: content}
	if err := s.validate.Struct(cmd); err != nil {
		return domain.Message{}, s.fail("send_reply", fmt.Errorf("%w: %v", errors.ErrInvalidContent, err))
	}
	return s.post(ctx, "send_reply", domain.PostMessageCommand{Room: room, Content: content, Kind: domain.KindReply}, &target)
}

// Post validates, moderates and stores a message. Subscribers of the room,
// including the sender, observe it through their channel once committed.
func (s *ChatService) Post(ctx context.Context, cmd domain.PostMessageCommand) (domain.Message, error) {
	if cmd.Kind == domain.KindReply {
		return domain.Message{}, s.fail("send_message", fmt.Errorf("%w: replies need a target", errors.ErrInvalidContent))
	}
	return s.post(ctx, "send_message", cmd, nil)
}

func (s *ChatService) post(ctx context.Context, op string, cmd domain.PostMessageCommand, replyTo *uuid.UUID) (domain.Message, error) {
	userID, err := s.caller(ctx)
	if err != nil {
		return domain.Message{}, s.fail(op, err)
	}
	cmd.Content = strings.TrimSpace(cmd.Content)
	if err := s.validateContent(cmd); err != nil {
		return domain.Message{}, s.fail(op, err)
	}
	if err := s.deps.Access.Authorize(ctx, cmd.Room, userID); err != nil {
		return domain.Message{}, s.fail(op, fmt.Errorf("write room %s: %w", cmd.Room, err))
	}

	message := domain.Message{
		RoomID:     cmd.Room,
		UserID:     userID,
		Content:    cmd.Content,
		Kind:       lo.Ternary(cmd.Kind == "", domain.KindText, cmd.Kind),
		ActionData: cmd.ActionData,
		ReplyTo:    replyTo,
	}
	if s.deps.Moderator != nil && message.Kind != domain.KindSystem {
		sanitized := s.deps.Moderator.Sanitize(message.Content)
		message.Content = sanitized.Content
		message.Language = sanitized.Language
		if len(sanitized.CensoredWords) > 0 {
			s.log.Info(fmt.Sprintf("Censored %d words in message from %s", len(sanitized.CensoredWords), userID))
		}
	}

	stored, err := s.deps.Messages.StoreMessage(ctx, message)
	if err != nil {
		return domain.Message{}, s.fail(op, fmt.Errorf("store message in room %s: %w", cmd.Room, err))
	}
	s.deps.Metrics.IncMessagesSent()
	s.pages.Remove(cmd.Room)
	s.subscriptions.Touch(cmd.Room)
	return stored, nil
}

// forgetRoom drops the room state that was only kept current by its
// subscription.
func (s *ChatService) forgetRoom(room domain.RoomID) {
	s.presence.Clear(room)
	s.pages.Remove(room)
}

// pageIsLive reports whether the cached page of room is kept current by a
// live subscription of this service.
func (s *ChatService) pageIsLive(room domain.RoomID) bool {
	handle, ok := s.subscriptions.Get(room)
	return ok && handle.Live()
}

func (s *ChatService) validateContent(cmd domain.PostMessageCommand) error {
	if err := s.validate.Struct(cmd); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidContent, err)
	}
	if length := utf8.RuneCountInString(cmd.Content); length > s.opts.MaxContentLength {
		return fmt.Errorf("%w: %d characters, at most %d", errors.ErrInvalidContent, length, s.opts.MaxContentLength)
	}
	return nil
}

// EditMessage replaces the body of a message. The store only lets the author
// do it; anyone else gets ErrNotAuthor and the message is unchanged.
func (s *ChatService) EditMessage(ctx context.Context, id uuid.UUID, content string) (domain.Message, error) {
	userID, err := s.caller(ctx)
	if err != nil {
		return domain.Message{}, s.fail("edit_message", err)
	}
	current, err := s.deps.Messages.GetMessage(ctx, id)
	if err != nil {
		return domain.Message{}, s.fail("edit_message", err)
	}
	cmd := domain.PostMessageCommand{Room: current.RoomID, Content: strings.TrimSpace(content), Kind: current.Kind}
	if err := s.validateContent(cmd); err != nil {
		return domain.Message{}, s.fail("edit_message", err)
	}
	if s.deps.Moderator != nil {
		cmd.Content = s.deps.Moderator.Sanitize(cmd.Content).Content
	}

	edited, err := s.deps.Messages.UpdateContent(ctx, id, userID, cmd.Content)
	if err != nil {
		return domain.Message{}, s.fail("edit_message", fmt.Errorf("edit message %s: %w", id, err))
	}
	s.pages.Remove(edited.RoomID)
	s.subscriptions.Touch(edited.RoomID)
	return edited, nil
}

// DeleteMessage removes a message and its reactions. Author only.
func (s *ChatService) DeleteMessage(ctx context.Context, id uuid.UUID) error {
	userID, err := s.caller(ctx)
	if err != nil {
		return s.fail("delete_message", err)
	}
	current, err := s.deps.Messages.GetMessage(ctx, id)
	if err != nil {
		return s.fail("delete_message", err)
	}
	if err := s.deps.Messages.DeleteMessage(ctx, id, userID); err != nil {
		return s.fail("delete_message", fmt.Errorf("delete message %s: %w", id, err))
	}
	s.pages.Remove(current.RoomID)
	return nil
}

// --- reactions ---

// AddReaction is idempotent: reacting twice with the same emoji keeps one row.
func (s *ChatService) AddReaction(ctx context.Context, messageID uuid.UUID, emoji string) error {
	userID, room, err := s.reactionTarget(ctx, messageID, emoji)
	if err != nil {
		return s.fail("add_reaction", err)
	}
	if err := s.deps.Reactions.AddReaction(ctx, domain.Reaction{MessageID: messageID, UserID: userID, Emoji: emoji}); err != nil {
		return s.fail("add_reaction", fmt.Errorf("react to %s: %w", messageID, err))
	}
	s.subscriptions.Touch(room)
	return nil
}

// RemoveReaction succeeds when the reaction does not exist.
func (s *ChatService) RemoveReaction(ctx context.Context, messageID uuid.UUID, emoji string) error {
	userID, err := s.caller(ctx)
	if err != nil {
		return s.fail("remove_reaction", err)
	}
	if err := s.deps.Reactions.RemoveReaction(ctx, messageID, userID, strings.TrimSpace(emoji)); err != nil {
		return s.fail("remove_reaction", fmt.Errorf("remove reaction on %s: %w", messageID, err))
	}
	return nil
}

func (s *ChatService) reactionTarget(ctx context.Context, messageID uuid.UUID, emoji string) (string, domain.RoomID, error) {
	userID, err := s.caller(ctx)
	if err != nil {
		return "", "", err
	}
	emoji = strings.TrimSpace(emoji)
	if emoji == "" || utf8.RuneCountInString(emoji) > 16 {
		return "", "", fmt.Errorf("%w: emoji", errors.ErrInvalidContent)
	}
	message, err := s.deps.Messages.GetMessage(ctx, messageID)
	if err != nil {
		return "", "", err
	}
	if err := s.deps.Access.Authorize(ctx, message.RoomID, userID); err != nil {
		return "", "", err
	}
	return userID, message.RoomID, nil
}

func (s *ChatService) Reactions(ctx context.Context, messageID uuid.UUID) []domain.Reaction {
	if _, _, err := s.readableMessage(ctx, messageID); err != nil {
		s.readFailed("reactions", err)
		return []domain.Reaction{}
	}
	reactions, err := s.deps.Reactions.Reactions(ctx, messageID)
	if err != nil {
		s.readFailed("reactions", err)
		return []domain.Reaction{}
	}
	return reactions
}

func (s *ChatService) readableMessage(ctx context.Context, messageID uuid.UUID) (string, domain.Message, error) {
	userID, err := s.caller(ctx)
	if err != nil {
		return "", domain.Message{}, err
	}
	message, err := s.deps.Messages.GetMessage(ctx, messageID)
	if err != nil {
		return "", domain.Message{}, err
	}
	return userID, message, s.deps.Access.Authorize(ctx, message.RoomID, userID)
}

// --- reads ---

// FetchMessages returns one page of a room, oldest first. The newest page
// (nil cursor) is served from the message cache and kept up to date by live
// inserts; older pages always hit the store.
func (s *ChatService) FetchMessages(ctx context.Context, room domain.RoomID, cursor *string) domain.MessagePage {
	empty := domain.MessagePage{RoomID: room, Messages: []domain.Message{}}
	userID, err := s.caller(ctx)
	if err != nil {
		s.readFailed("fetch_messages", err)
		return empty
	}
	if err := s.deps.Access.Authorize(ctx, room, userID); err != nil {
		s.readFailed("fetch_messages", err)
		return empty
	}
	live := cursor == nil && s.pageIsLive(room)
	if live {
		if page, ok := s.pages.Get(room); ok {
			return page
		}
	}

	messages, next, err := s.deps.Messages.GetMessages(ctx, room, cursor)
	if err != nil {
		s.readFailed("fetch_messages", err)
		return empty
	}
	domain.SortMessages(messages)
	for i := range messages {
		messages[i].Author = s.ResolveProfile(ctx, room, messages[i].UserID)
	}
	page := domain.MessagePage{RoomID: room, Messages: messages, Cursor: next}
	if live {
		s.pages.Put(room, page)
	}
	return page
}

// SearchMessages runs a full-text search, newest first, at most 50 results.
// input accepts the "--room", "--lang" and "--limit" flags; room, when set,
// overrides any "--room" flag. Results from rooms the caller cannot read are
// dropped.
func (s *ChatService) SearchMessages(ctx context.Context, input string, room *domain.RoomID) []domain.Message {
	userID, err := s.caller(ctx)
	if err != nil {
		s.readFailed("search_messages", err)
		return []domain.Message{}
	}
	query := search.NewSearchQuery(input).WithRoom(room)
	if query.IsEmpty() {
		return []domain.Message{}
	}
	if query.RoomID != nil {
		if err := s.deps.Access.Authorize(ctx, *query.RoomID, userID); err != nil {
			s.readFailed("search_messages", err)
			return []domain.Message{}
		}
	}

	found, err := s.deps.Messages.Search(ctx, query)
	if err != nil {
		s.readFailed("search_messages", err)
		return []domain.Message{}
	}

	readable := make(map[domain.RoomID]bool)
	results := make([]domain.Message, 0, len(found))
	for _, message := range found {
		allowed, known := readable[message.RoomID]
		if !known {
			allowed, err = s.deps.Access.CanRead(ctx, message.RoomID, userID)
			allowed = allowed && err == nil
			readable[message.RoomID] = allowed
		}
		if allowed {
			message.Author = s.ResolveProfile(ctx, message.RoomID, message.UserID)
			results = append(results, message)
		}
	}
	return lo.Slice(results, 0, search.MaxLimit)
}

// --- notifications ---

func (s *ChatService) CreateNotification(ctx context.Context, cmd domain.CreateNotificationCommand) (domain.Notification, error) {
	if _, err := s.caller(ctx); err != nil {
		return domain.Notification{}, s.fail("create_notification", err)
	}
	if err := s.validate.Struct(cmd); err != nil {
		return domain.Notification{}, s.fail("create_notification", fmt.Errorf("%w: %v", errors.ErrInvalidContent, err))
	}
	notification, err := s.deps.Notifications.CreateNotification(ctx, domain.Notification{
		UserID: cmd.UserID,
		Type:   cmd.Type,
		Title:  cmd.Title,
		Body:   cmd.Body,
		Data:   cmd.Data,
	})
	if err != nil {
		return domain.Notification{}, s.fail("create_notification", err)
	}
	if s.deps.Notifier != nil {
		s.deps.Notifier.Notify(ctx, notification)
	}
	return notification, nil
}

func (s *ChatService) MarkRead(ctx context.Context, id uuid.UUID) error {
	userID, err := s.caller(ctx)
	if err != nil {
		return s.fail("mark_read", err)
	}
	if err := s.deps.Notifications.MarkRead(ctx, id, userID); err != nil {
		return s.fail("mark_read", err)
	}
	return nil
}

func (s *ChatService) MarkAllRead(ctx context.Context) (int, error) {
	userID, err := s.caller(ctx)
	if err != nil {
		return 0, s.fail("mark_all_read", err)
	}
	updated, err := s.deps.Notifications.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, s.fail("mark_all_read", err)
	}
	return updated, nil
}

func (s *ChatService) ListNotifications(ctx context.Context, unreadOnly bool) []domain.Notification {
	userID, err := s.caller(ctx)
	if err != nil {
		s.readFailed("list_notifications", err)
		return []domain.Notification{}
	}
	notifications, err := s.deps.Notifications.ListNotifications(ctx, userID, unreadOnly)
	if err != nil {
		s.readFailed("list_notifications", err)
		return []domain.Notification{}
	}
	return notifications
}

// --- rooms ---

func (s *ChatService) ListRooms(ctx context.Context) []domain.Room {
	userID, err := s.caller(ctx)
	if err != nil {
		s.readFailed("list_rooms", err)
		return []domain.Room{}
	}
	rooms, err := s.deps.Access.ListAccessibleRooms(ctx, userID)
	if err != nil {
		s.readFailed("list_rooms", err)
		return []domain.Room{}
	}
	return rooms
}

func (s *ChatService) ListJoinedRooms(ctx context.Context) []domain.Room {
	userID, err := s.caller(ctx)
	if err != nil {
		s.readFailed("list_joined_rooms", err)
		return []domain.Room{}
	}
	rooms, err := s.deps.Access.ListJoinedRooms(ctx, userID)
	if err != nil {
		s.readFailed("list_joined_rooms", err)
		return []domain.Room{}
	}
	return rooms
}

func (s *ChatService) CreateRoom(ctx context.Context, name, description string, private bool) (domain.Room, error) {
	userID, err := s.caller(ctx)
	if err != nil {
		return domain.Room{}, s.fail("create_room", err)
	}
	create := s.deps.Access.CreatePublicRoom
	if private {
		create = s.deps.Access.CreatePrivateRoom
	}
	room, err := create(ctx, name, description, userID)
	if err != nil {
		return domain.Room{}, s.fail("create_room", err)
	}
	return room, nil
}

func (s *ChatService) Members(ctx context.Context, room domain.RoomID) []string {
	userID, err := s.caller(ctx)
	if err != nil {
		s.readFailed("members", err)
		return []string{}
	}
	members, err := s.deps.Access.Members(ctx, room, userID)
	if err != nil {
		s.readFailed("members", err)
		return []string{}
	}
	return members
}

// Invite creates a pending invitation and notifies the invitee.
func (s *ChatService) Invite(ctx context.Context, room domain.RoomID, invitee string) (domain.Invitation, error) {
	userID, err := s.caller(ctx)
	if err != nil {
		return domain.Invitation{}, s.fail("invite", err)
	}
	invitation, err := s.deps.Access.Invite(ctx, room, userID, invitee)
	if err != nil {
		return domain.Invitation{}, s.fail("invite", err)
	}

	inviter := s.ResolveProfile(ctx, room, userID)
	_, err = s.CreateNotification(ctx, domain.CreateNotificationCommand{
		UserID: invitation.InvitedUserID,
		Type:   NotificationInvitation,
		Title:  fmt.Sprintf("%s invited you to a room", inviter.DisplayName),
		Data: map[string]any{
			"invitation_id": invitation.ID,
			"room_id":       string(invitation.RoomID),
			"invited_by":    invitation.InvitedBy,
		},
	})
	if err != nil {
		s.log.Warn(fmt.Sprintf("Invitation %s created without notification: %v", invitation.ID, err))
	}
	return invitation, nil
}

// RespondInvitation accepts or declines an invitation addressed to the
// caller. On accept, a system message announces the new member.
func (s *ChatService) RespondInvitation(ctx context.Context, invitationID string, accept bool) (domain.Invitation, error) {
	userID, err := s.caller(ctx)
	if err != nil {
		return domain.Invitation{}, s.fail("respond_invitation", err)
	}
	invitation, err := s.deps.Access.Respond(ctx, invitationID, userID, accept)
	if err != nil {
		return domain.Invitation{}, s.fail("respond_invitation", err)
	}
	if invitation.Status == domain.InvitationAccepted {
		profile := s.ResolveProfile(ctx, invitation.RoomID, userID)
		_, err := s.Post(ctx, domain.PostMessageCommand{
			Room:    invitation.RoomID,
			Content: fmt.Sprintf("%s joined the room", profile.DisplayName),
			Kind:    domain.KindSystem,
		})
		if err != nil {
			s.log.Warn(fmt.Sprintf("No join announcement for invitation %s: %v", invitation.ID, err))
		}
	}
	return invitation, nil
}

func (s *ChatService) PendingInvitations(ctx context.Context) []domain.Invitation {
	userID, err := s.caller(ctx)
	if err != nil {
		s.readFailed("pending_invitations", err)
		return []domain.Invitation{}
	}
	invitations, err := s.deps.Access.PendingInvitations(ctx, userID)
	if err != nil {
		s.readFailed("pending_invitations", err)
		return []domain.Invitation{}
	}
	return invitations
}

// --- realtime ---

// JoinRoom checks read access, takes a subscription slot (evicting the least
// recently active room when all are used) and publishes the caller as
// present. Live inserts are merged into the cached page before the
// OnMessage callback fires.
func (s *ChatService) JoinRoom(ctx context.Context, room domain.RoomID, handlers Handlers) (*subscription.Handle, error) {
	userID, err := s.caller(ctx)
	if err != nil {
		return nil, s.fail("join_room", err)
	}
	if err := s.deps.Access.Authorize(ctx, room, userID); err != nil {
		return nil, s.fail("join_room", fmt.Errorf("join room %s: %w", room, err))
	}

	self := s.ownProfile(ctx, userID)
	handle, err := s.subscriptions.Subscribe(ctx, room, self, subscription.Handlers{
		OnMessage: func(message domain.Message) {
			message.Author = s.ResolveProfile(context.Background(), room, message.UserID)
			if page, ok := s.pages.Get(room); ok {
				s.pages.Put(room, page.Merge(message, s.opts.PageSize))
			}
			if handlers.OnMessage != nil {
				handlers.OnMessage(message)
			}
		},
		OnPresence: func(entries []domain.PresenceEntry) {
			s.presence.Sync(room, entries)
			if handlers.OnPresence != nil {
				handlers.OnPresence(s.presence.Snapshot(room))
			}
		},
		OnTyping: func(typingUserID string) {
			s.presence.SetTyping(room, typingUserID, true)
			if handlers.OnTyping != nil {
				handlers.OnTyping(typingUserID)
			}
		},
		OnError: func(err error) {
			s.log.Warn(fmt.Sprintf("Subscription to room %s degraded: %v", room, err))
			if handlers.OnError != nil {
				handlers.OnError(err)
			}
		},
	})
	if err != nil {
		return nil, s.fail("join_room", err)
	}
	s.log.Debug(fmt.Sprintf("%s joined room %s (%d/%d subscriptions)", userID, room, s.subscriptions.Len(), s.subscriptions.Max()))
	return handle, nil
}

// LeaveRoom tears down the subscription of room, if any.
func (s *ChatService) LeaveRoom(_ context.Context, room domain.RoomID) {
	if handle, ok := s.subscriptions.Get(room); ok {
		handle.Unsubscribe()
	}
}

// SendTyping tells the other participants of a joined room that the caller
// is typing. Delivery is best effort.
func (s *ChatService) SendTyping(ctx context.Context, room domain.RoomID) error {
	userID, err := s.caller(ctx)
	if err != nil {
		return s.fail("send_typing", err)
	}
	handle, ok := s.subscriptions.Get(room)
	if !ok {
		return s.fail("send_typing", errors.ErrNotSubscribed)
	}
	return handle.SendTyping(ctx, userID)
}

// ClearTyping resets a typing flag. The core never expires typing state on
// its own; callers decide when a signal is stale.
func (s *ChatService) ClearTyping(room domain.RoomID, userID string) {
	s.presence.ClearTyping(room, userID)
}

func (s *ChatService) Presence(room domain.RoomID) []domain.PresenceEntry {
	return s.presence.Snapshot(room)
}

func (s *ChatService) Typing(room domain.RoomID) []string {
	return s.presence.Typing(room)
}

// JoinedRooms lists the subscribed rooms, most recently active first.
func (s *ChatService) JoinedRooms() []domain.RoomID {
	return s.subscriptions.Active()
}

// ResolveProfile finds display metadata for a user seen in room: profile
// cache, then the room presence, then the profile store, then a
// placeholder. Only resolved profiles are written back to the cache, so a
// user seen before their presence or profile exists is looked up again.
func (s *ChatService) ResolveProfile(ctx context.Context, room domain.RoomID, userID string) domain.Profile {
	if profile, ok := s.profiles.Get(userID); ok {
		return profile
	}

	profile, ok := s.lookupProfile(ctx, room, userID)
	if !ok {
		return domain.PlaceholderProfile(userID)
	}
	s.profiles.Put(userID, profile)
	return profile
}

func (s *ChatService) lookupProfile(ctx context.Context, room domain.RoomID, userID string) (domain.Profile, bool) {
	if entry, ok := s.presence.Lookup(room, userID); ok {
		return entry.Profile, true
	}
	if s.deps.Profiles == nil {
		return domain.Profile{}, false
	}
	profile, err := s.deps.Profiles.GetProfile(ctx, userID)
	if err != nil {
		if !errors.Is(err, errors.ErrProfileNotFound) {
			s.log.Debug(fmt.Sprintf("Profile lookup for %s failed: %v", userID, err))
		}
		return domain.Profile{}, false
	}
	return profile, true
}

// UpdateProfile stores the caller's display metadata.
func (s *ChatService) UpdateProfile(ctx context.Context, profile domain.Profile) (domain.Profile, error) {
	userID, err := s.caller(ctx)
	if err != nil {
		return domain.Profile{}, s.fail("update_profile", err)
	}
	profile.ID = userID
	profile = domain.NormalizeProfile(profile)
	if err := s.deps.Profiles.SaveProfile(ctx, profile); err != nil {
		return domain.Profile{}, s.fail("update_profile", err)
	}
	s.profiles.Put(userID, profile)
	return profile, nil
}

func (s *ChatService) ownProfile(ctx context.Context, userID string) domain.Profile {
	if profile, ok := s.profiles.Get(userID); ok {
		return profile
	}
	if s.deps.Profiles != nil {
		if profile, err := s.deps.Profiles.GetProfile(ctx, userID); err == nil {
			s.profiles.Put(userID, profile)
			return profile
		}
	}
	return domain.PlaceholderProfile(userID)
}

// Close tears down every subscription and drops the instance state.
func (s *ChatService) Close() {
	s.subscriptions.Close()
	for _, room := range s.presence.Rooms() {
		s.presence.Clear(room)
	}
	s.pages.Purge()
	s.profiles.Purge()
}

func (s *ChatService) caller(ctx context.Context) (string, error) {
	userID, ok := auth.UserIDFromContext(ctx)
	if !ok {
		return "", errors.ErrNotAuthenticated
	}
	return userID, nil
}

func (s *ChatService) fail(op string, err error) error {
	s.deps.Metrics.IncMutationFailure(op)
	s.log.Warn(fmt.Sprintf("%s failed: %v", op, err))
	return err
}

func (s *ChatService) readFailed(op string, err error) {
	s.log.Warn(fmt.Sprintf("%s failed, returning an empty result: %v", op, err))
}
