package runtime

import (
	"chat-core/domain"
	"chat-core/domain/event"
	"chat-core/errors"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

type channelState int

const (
	stateIdle channelState = iota
	stateJoined
	stateClosed
)

// Channel is one live connection to a room. It delivers message inserts,
// broadcasts and presence syncs through a single goroutine, so a callback
// always runs to completion before the next event of the same channel.
type Channel struct {
	ID   uuid.UUID
	Room domain.RoomID

	hub *Hub
	log *slog.Logger

	mu          sync.Mutex
	state       channelState
	onInsert    func(event.MessageInserted)
	onBroadcast map[string]func(event.Broadcast)
	onSync      func(event.PresenceSynced)

	queue     chan event.Event
	done      chan struct{}
	closeOnce sync.Once
}

// OnInsert listens to message rows committed in this room.
func (c *Channel) OnInsert(fn func(event.MessageInserted)) *Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onInsert = fn
	return c
}

// OnBroadcast listens to ephemeral broadcasts with the given name.
func (c *Channel) OnBroadcast(name string, fn func(event.Broadcast)) *Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onBroadcast[name] = fn
	return c
}

// OnPresenceSync listens to full presence state updates.
func (c *Channel) OnPresenceSync(fn func(event.PresenceSynced)) *Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onSync = fn
	return c
}

// Subscribe joins the room and starts delivering events.
// Subscribing a joined channel is a no-op.
func (c *Channel) Subscribe(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	switch c.state {
	case stateClosed:
		c.mu.Unlock()
		return errors.ErrChannelClosed
	case stateJoined:
		c.mu.Unlock()
		return nil
	}
	c.state = stateJoined
	c.mu.Unlock()

	c.hub.registry.Join(c)
	c.hub.metrics.AddChannels(1)
	go c.run()

	c.log.Debug(fmt.Sprintf("Channel %s joined room %s", c.ID, c.Room))
	return nil
}

// Track publishes this channel's presence payload. Every channel of the
// room then receives a sync carrying the new full state.
func (c *Channel) Track(ctx context.Context, payload event.PresencePayload) error {
	if !c.joined() {
		return errors.ErrChannelClosed
	}
	if !c.hub.registry.Track(c, payload) {
		return errors.ErrChannelClosed
	}
	c.hub.syncPresence(ctx, c.Room)
	return nil
}

// Send broadcasts an ephemeral event to the other channels of the room.
func (c *Channel) Send(ctx context.Context, b event.Broadcast) error {
	if !c.joined() {
		return errors.ErrChannelClosed
	}
	b.Room = c.Room
	c.hub.broadcast(ctx, c, b)
	return nil
}

// PresenceState returns the current participants of the channel's room.
func (c *Channel) PresenceState() []event.PresencePayload {
	return c.hub.registry.PresenceState(c.Room)
}

// Unsubscribe leaves the room and drops pending deliveries.
// It is idempotent and safe to call from inside a callback.
func (c *Channel) Unsubscribe() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		wasJoined := c.state == stateJoined
		c.state = stateClosed
		c.mu.Unlock()

		close(c.done)
		if !wasJoined {
			return
		}

		c.hub.metrics.AddChannels(-1)
		if c.hub.registry.Leave(c) {
			// The remaining participants must observe the departure.
			ctx, cancel := context.WithTimeout(context.Background(), c.hub.deliveryTimeout)
			defer cancel()
			c.hub.syncPresence(ctx, c.Room)
		}
		c.log.Debug(fmt.Sprintf("Channel %s left room %s", c.ID, c.Room))
	})
}

// Done is closed once the channel is unsubscribed.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

func (c *Channel) joined() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateJoined
}

func (c *Channel) listensToInserts() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.onInsert != nil
}

// enqueue hands an event to the delivery goroutine. Broadcasts are dropped
// when the queue is full; other events wait up to the delivery timeout.
func (c *Channel) enqueue(ctx context.Context, evt event.Event) bool {
	if _, ok := evt.(event.Broadcast); ok {
		select {
		case <-c.done:
			return false
		case c.queue <- evt:
			return true
		default:
			c.hub.dropped("broadcast")
			return false
		}
	}

	timer := time.NewTimer(c.hub.deliveryTimeout)
	defer timer.Stop()
	select {
	case <-c.done:
		return false
	case c.queue <- evt:
		return true
	case <-ctx.Done():
		c.hub.dropped(kindOf(evt))
		return false
	case <-timer.C:
		c.log.Warn(fmt.Sprintf("Delivery timeout on channel %s, dropping %s", c.ID, kindOf(evt)))
		c.hub.dropped(kindOf(evt))
		return false
	}
}

func (c *Channel) run() {
	for {
		select {
		case <-c.done:
			return
		case evt := <-c.queue:
			// Unsubscribe wins over any event still queued.
			select {
			case <-c.done:
				return
			default:
			}
			c.dispatch(evt)
		}
	}
}

func (c *Channel) dispatch(evt event.Event) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error(fmt.Sprintf("Callback panic on channel %s: %v", c.ID, r))
		}
	}()

	c.mu.Lock()
	onInsert, onSync := c.onInsert, c.onSync
	var onBroadcast func(event.Broadcast)
	if b, ok := evt.(event.Broadcast); ok {
		onBroadcast = c.onBroadcast[b.Name]
	}
	c.mu.Unlock()

	switch e := evt.(type) {
	case event.MessageInserted:
		if onInsert != nil {
			onInsert(e)
		}
	case event.Broadcast:
		if onBroadcast != nil {
			onBroadcast(e)
		}
	case event.PresenceSynced:
		if onSync != nil {
			onSync(e)
		}
	default:
		c.log.Debug(fmt.Sprintf("Not implemented event : %v", e))
	}
}

func kindOf(evt event.Event) string {
	switch evt.(type) {
	case event.MessageInserted:
		return "insert"
	case event.Broadcast:
		return "broadcast"
	case event.PresenceSynced:
		return "sync"
	default:
		return "unknown"
	}
}
