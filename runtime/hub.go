package runtime

import (
	"chat-core/domain"
	"chat-core/domain/event"
	"chat-core/observability"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	defaultChannelBuffer   = 64
	defaultDeliveryTimeout = 2 * time.Second
)

// Hub is the in-process realtime transport. It fans committed row changes,
// broadcasts and presence syncs out to the channels joined to a room.
//
// Delivery is best effort: there is no durability and no retry. A channel
// that cannot keep up loses broadcasts immediately and other events after
// the delivery timeout.
//
// Hub is safe for concurrent use by multiple goroutines.
type Hub struct {
	log             *slog.Logger
	registry        *Registry
	metrics         *observability.Metrics
	bufferSize      int
	deliveryTimeout time.Duration

	// syncLocks orders the presence syncs of each room so a channel never sees
	// an older state last. Rooms do not wait on each other.
	locksMu   sync.Mutex
	syncLocks map[domain.RoomID]*roomLock
}

type roomLock struct {
	mu   sync.Mutex
	refs int
}

type HubOption func(*Hub)

func WithMetrics(m *observability.Metrics) HubOption {
	return func(h *Hub) { h.metrics = m }
}

func WithChannelBuffer(size int) HubOption {
	return func(h *Hub) {
		if size > 0 {
			h.bufferSize = size
		}
	}
}

func WithDeliveryTimeout(timeout time.Duration) HubOption {
	return func(h *Hub) {
		if timeout > 0 {
			h.deliveryTimeout = timeout
		}
	}
}

func NewHub(log *slog.Logger, opts ...HubOption) *Hub {
	h := &Hub{
		log:             log,
		registry:        NewRegistry(),
		bufferSize:      defaultChannelBuffer,
		deliveryTimeout: defaultDeliveryTimeout,
		syncLocks:       make(map[domain.RoomID]*roomLock),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Channel creates a channel bound to a room. It receives nothing until
// Subscribe is called.
func (h *Hub) Channel(room domain.RoomID) *Channel {
	return &Channel{
		ID:          uuid.New(),
		Room:        room,
		hub:         h,
		log:         h.log,
		onBroadcast: make(map[string]func(event.Broadcast)),
		queue:       make(chan event.Event, h.bufferSize),
		done:        make(chan struct{}),
	}
}

// Publish delivers a committed change to the channels of its room that
// listen to inserts. It implements contract.ChangePublisher.
func (h *Hub) Publish(ctx context.Context, e event.Event) {
	switch evt := e.(type) {
	case event.MessageInserted:
		for _, ch := range h.registry.ChannelsForRoom(evt.RoomID()) {
			if ch.listensToInserts() {
				ch.enqueue(ctx, evt)
			}
		}
	default:
		h.log.Debug(fmt.Sprintf("Not implemented event : %v", evt))
	}
}

// Presence returns the participants currently tracked in a room.
func (h *Hub) Presence(room domain.RoomID) []event.PresencePayload {
	return h.registry.PresenceState(room)
}

// Stats returns joined channel and active room counts.
func (h *Hub) Stats() (channels, rooms int) {
	return h.registry.Stats()
}

func (h *Hub) broadcast(ctx context.Context, from *Channel, b event.Broadcast) {
	for _, ch := range h.registry.ChannelsForRoom(b.Room) {
		if ch.ID == from.ID {
			continue
		}
		ch.enqueue(ctx, b)
	}
}

func (h *Hub) syncPresence(ctx context.Context, room domain.RoomID) {
	unlock := h.lockRoom(room)
	defer unlock()

	synced := event.PresenceSynced{Room: room, State: h.registry.PresenceState(room)}
	for _, ch := range h.registry.ChannelsForRoom(room) {
		ch.enqueue(ctx, synced)
	}
}

// lockRoom serializes syncs of one room. The lock is forgotten once no sync
// of the room holds or waits for it.
func (h *Hub) lockRoom(room domain.RoomID) func() {
	h.locksMu.Lock()
	lock, ok := h.syncLocks[room]
	if !ok {
		lock = &roomLock{}
		h.syncLocks[room] = lock
	}
	lock.refs++
	h.locksMu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		h.locksMu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(h.syncLocks, room)
		}
		h.locksMu.Unlock()
	}
}

func (h *Hub) dropped(kind string) {
	h.metrics.IncDropped(kind)
}
