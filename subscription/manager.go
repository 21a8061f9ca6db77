// Package subscription owns the live room subscriptions of one client.
//
// At most a fixed number of subscriptions are live at once. When a new room
// is subscribed at capacity, the least recently active subscription is torn
// down first. Activity is a subscribe, any delivered event, or an explicit
// Touch. This is an eviction policy, not an error.
package subscription

import (
	"chat-core/domain"
	"chat-core/domain/event"
	"chat-core/errors"
	"chat-core/observability"
	"chat-core/runtime"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const DefaultMaxSubscriptions = 5

// Handlers are the caller callbacks of one subscription. Any of them may be
// nil. They are invoked from the subscription's delivery goroutine, one at a
// time.
type Handlers struct {
	OnMessage  func(domain.Message)
	OnPresence func([]domain.PresenceEntry)
	OnTyping   func(userID string)
	OnError    func(error)
}

// Manager is safe for concurrent use.
type Manager struct {
	log     *slog.Logger
	hub     *runtime.Hub
	metrics *observability.Metrics
	max     int
	now     func() time.Time

	// mu serializes subscribe and unsubscribe so slot accounting stays exact.
	mu         sync.Mutex
	table      *lru.Cache[domain.RoomID, *Handle]
	onTeardown func(domain.RoomID)
	closed     bool
}

type Option func(*Manager)

func WithMaxSubscriptions(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.max = n
		}
	}
}

func WithMetrics(metrics *observability.Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// WithTeardownHook is called with the room of every subscription torn down,
// whether unsubscribed, replaced or evicted.
func WithTeardownHook(fn func(domain.RoomID)) Option {
	return func(m *Manager) { m.onTeardown = fn }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func NewManager(log *slog.Logger, hub *runtime.Hub, opts ...Option) (*Manager, error) {
	m := &Manager{
		log: log,
		hub: hub,
		max: DefaultMaxSubscriptions,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	// The table is one slot larger than the limit: eviction is driven
	// explicitly before a new channel is established, never by Add.
	table, err := lru.NewWithEvict[domain.RoomID, *Handle](m.max+1, func(_ domain.RoomID, h *Handle) {
		h.teardown()
	})
	if err != nil {
		return nil, err
	}
	m.table = table
	return m, nil
}

// Subscribe opens a channel on room, wires the three streams to handlers and
// publishes self as present. An existing subscription on the same room is
// torn down first; at capacity the least recently active one is evicted.
func (m *Manager) Subscribe(ctx context.Context, room domain.RoomID, self domain.Profile, handlers Handlers) (*Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, errors.ErrManagerClosed
	}

	if m.table.Contains(room) {
		m.log.Debug(fmt.Sprintf("Room %s already subscribed, replacing channel", room))
		m.table.Remove(room)
	}
	for m.table.Len() >= m.max {
		evictedRoom, _, ok := m.table.RemoveOldest()
		if !ok {
			break
		}
		m.metrics.IncEvictions()
		m.log.Info(fmt.Sprintf("Subscription limit of %d reached, evicted room %s", m.max, evictedRoom))
	}

	h := &Handle{Room: room, manager: m, handlers: handlers}
	h.channel = m.hub.Channel(room).
		OnInsert(h.onInsert).
		OnBroadcast(event.TypingBroadcast, h.onTyping).
		OnPresenceSync(h.onSync)

	if err := h.channel.Subscribe(ctx); err != nil {
		h.channel.Unsubscribe()
		return nil, fmt.Errorf("subscribe room %s: %w", room, err)
	}
	h.live.Store(true)
	m.table.Add(room, h)
	m.metrics.AddSubscriptions(1)

	self = domain.NormalizeProfile(self)
	payload := event.PresencePayload{
		UserID:      self.ID,
		DisplayName: self.DisplayName,
		AvatarURL:   self.AvatarURL,
		OnlineAt:    m.now().UTC(),
	}
	if err := h.channel.Track(ctx, payload); err != nil {
		// The channel still delivers; only our own presence is missing.
		h.fail(fmt.Errorf("track presence in room %s: %w", room, err))
	}
	return h, nil
}

// Unsubscribe tears a subscription down. Unknown, replaced or already
// evicted handles are a no-op.
func (m *Manager) Unsubscribe(h *Handle) {
	if h == nil {
		return
	}
	h.Unsubscribe()
}

// Touch marks the subscription of room as recently active.
func (m *Manager) Touch(room domain.RoomID) {
	m.table.Get(room)
}

// Get returns the live subscription of room, without touching it.
func (m *Manager) Get(room domain.RoomID) (*Handle, bool) {
	return m.table.Peek(room)
}

// Active lists subscribed rooms from most to least recently active.
func (m *Manager) Active() []domain.RoomID {
	keys := m.table.Keys()
	rooms := make([]domain.RoomID, 0, len(keys))
	for i := len(keys) - 1; i >= 0; i-- {
		rooms = append(rooms, keys[i])
	}
	return rooms
}

func (m *Manager) Len() int {
	return m.table.Len()
}

func (m *Manager) Max() int {
	return m.max
}

// Close tears every subscription down. Later subscribes fail.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.table.Purge()
}

// remove drops h from the table if it is still the live handle of its room.
func (m *Manager) remove(h *Handle) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.table.Peek(h.Room)
	if !ok || current != h {
		return false
	}
	return m.table.Remove(h.Room)
}

// Handle is one live room subscription.
type Handle struct {
	Room domain.RoomID

	manager  *Manager
	channel  *runtime.Channel
	handlers Handlers

	live         atomic.Bool
	teardownOnce sync.Once
	errMu        sync.Mutex
	err          error
}

// Unsubscribe releases the channel. Calling it twice, or after the handle
// was evicted, is a no-op.
func (h *Handle) Unsubscribe() {
	if !h.manager.remove(h) {
		h.teardown()
	}
}

// Live reports whether the subscription still delivers events.
func (h *Handle) Live() bool {
	return h.live.Load()
}

// Err returns the last channel error, if any.
func (h *Handle) Err() error {
	h.errMu.Lock()
	defer h.errMu.Unlock()
	return h.err
}

// SendTyping broadcasts that userID is typing to the other participants.
func (h *Handle) SendTyping(ctx context.Context, userID string) error {
	if !h.Live() {
		return errors.ErrNotSubscribed
	}
	h.touch()
	return h.channel.Send(ctx, event.NewTypingBroadcast(h.Room, userID))
}

// Presence returns the room participants as last known by the transport.
func (h *Handle) Presence() []domain.PresenceEntry {
	return toEntries(h.channel.PresenceState())
}

func (h *Handle) teardown() {
	h.teardownOnce.Do(func() {
		h.live.Store(false)
		h.channel.Unsubscribe()
		h.manager.metrics.AddSubscriptions(-1)
		if h.manager.onTeardown != nil {
			h.manager.onTeardown(h.Room)
		}
		h.manager.log.Debug(fmt.Sprintf("Subscription to room %s torn down", h.Room))
	})
}

func (h *Handle) touch() {
	if h.Live() {
		h.manager.Touch(h.Room)
	}
}

func (h *Handle) fail(err error) {
	h.errMu.Lock()
	h.err = err
	h.errMu.Unlock()
	h.manager.log.Warn("Subscription error", "room", h.Room, "error", err)
	if h.handlers.OnError != nil {
		h.handlers.OnError(err)
	}
}

func (h *Handle) onInsert(e event.MessageInserted) {
	if !h.Live() {
		return
	}
	h.touch()
	if h.handlers.OnMessage != nil {
		h.handlers.OnMessage(e.Message)
	}
}

func (h *Handle) onTyping(b event.Broadcast) {
	if !h.Live() {
		return
	}
	userID, ok := b.UserID()
	if !ok {
		h.manager.log.Debug("Typing broadcast without user id", "room", h.Room)
		return
	}
	h.touch()
	if h.handlers.OnTyping != nil {
		h.handlers.OnTyping(userID)
	}
}

// onSync does not count as activity: every Track, including the one made by
// Subscribe itself, triggers a sync delivered at an arbitrary later time.
func (h *Handle) onSync(s event.PresenceSynced) {
	if !h.Live() {
		return
	}
	if h.handlers.OnPresence != nil {
		h.handlers.OnPresence(toEntries(s.State))
	}
}

func toEntries(state []event.PresencePayload) []domain.PresenceEntry {
	entries := make([]domain.PresenceEntry, 0, len(state))
	for _, payload := range state {
		entries = append(entries, payload.ToEntry())
	}
	return entries
}
