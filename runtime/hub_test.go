package runtime

import (
	"chat-core/domain"
	"chat-core/domain/event"
	"chat-core/errors"
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type recorder struct {
	mu         sync.Mutex
	inserts    []event.MessageInserted
	broadcasts []event.Broadcast
	syncs      []event.PresenceSynced
}

func (r *recorder) attach(ch *Channel) *Channel {
	return ch.
		OnInsert(func(e event.MessageInserted) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.inserts = append(r.inserts, e)
		}).
		OnBroadcast(event.TypingBroadcast, func(b event.Broadcast) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.broadcasts = append(r.broadcasts, b)
		}).
		OnPresenceSync(func(s event.PresenceSynced) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.syncs = append(r.syncs, s)
		})
}

func (r *recorder) insertCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.inserts)
}

func (r *recorder) broadcastCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.broadcasts)
}

func (r *recorder) lastSync() (event.PresenceSynced, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.syncs) == 0 {
		return event.PresenceSynced{}, false
	}
	return r.syncs[len(r.syncs)-1], true
}

func newTestHub() *Hub {
	return NewHub(logs.GetLoggerFromLevel(slog.LevelDebug), WithDeliveryTimeout(200*time.Millisecond))
}

func TestHub_Publish_Insert_Only_To_Room_Channels(t *testing.T) {
	defer goleak.VerifyNone(t)
	req := require.New(t)
	ctx := context.Background()
	hub := newTestHub()

	// Given one channel in room r1 and one in room r2
	inRoom, elsewhere := &recorder{}, &recorder{}
	ch1 := inRoom.attach(hub.Channel("r1"))
	ch2 := elsewhere.attach(hub.Channel("r2"))
	req.NoError(ch1.Subscribe(ctx))
	req.NoError(ch2.Subscribe(ctx))
	defer ch1.Unsubscribe()
	defer ch2.Unsubscribe()

	// When a message is committed in r1
	hub.Publish(ctx, event.MessageInserted{Message: domain.Message{ID: uuid.New(), RoomID: "r1", Content: "Hello"}})

	// Then only the r1 channel receives it
	req.Eventually(func() bool { return inRoom.insertCount() == 1 }, time.Second, 5*time.Millisecond)
	req.Never(func() bool { return elsewhere.insertCount() > 0 }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestHub_Broadcast_Skips_Sender(t *testing.T) {
	defer goleak.VerifyNone(t)
	req := require.New(t)
	ctx := context.Background()
	hub := newTestHub()

	sender, receiver := &recorder{}, &recorder{}
	chA := sender.attach(hub.Channel("r1"))
	chB := receiver.attach(hub.Channel("r1"))
	req.NoError(chA.Subscribe(ctx))
	req.NoError(chB.Subscribe(ctx))
	defer chA.Unsubscribe()
	defer chB.Unsubscribe()

	// When A broadcasts typing
	req.NoError(chA.Send(ctx, event.NewTypingBroadcast("r1", "alice")))

	// Then B receives it and A does not
	req.Eventually(func() bool { return receiver.broadcastCount() == 1 }, time.Second, 5*time.Millisecond)
	req.Equal(0, sender.broadcastCount())
	userID, ok := receiver.broadcasts[0].UserID()
	req.True(ok)
	req.Equal("alice", userID)
}

func TestHub_Presence_Sync_On_Track_And_Leave(t *testing.T) {
	defer goleak.VerifyNone(t)
	req := require.New(t)
	ctx := context.Background()
	hub := newTestHub()
	now := time.Now().UTC()

	alice, bob := &recorder{}, &recorder{}
	chA := alice.attach(hub.Channel("r1"))
	chB := bob.attach(hub.Channel("r1"))
	req.NoError(chA.Subscribe(ctx))
	req.NoError(chB.Subscribe(ctx))
	defer chB.Unsubscribe()

	// When both track their presence
	req.NoError(chA.Track(ctx, event.PresencePayload{UserID: "alice", OnlineAt: now}))
	req.NoError(chB.Track(ctx, event.PresencePayload{UserID: "bob", OnlineAt: now.Add(time.Second)}))

	// Then each one observes the full set on its latest sync
	req.Eventually(func() bool {
		last, ok := alice.lastSync()
		return ok && len(last.State) == 2
	}, time.Second, 5*time.Millisecond)
	req.Len(chB.PresenceState(), 2)

	// When alice leaves
	chA.Unsubscribe()

	// Then bob's next sync no longer contains her
	req.Eventually(func() bool {
		last, ok := bob.lastSync()
		return ok && len(last.State) == 1 && last.State[0].UserID == "bob"
	}, time.Second, 5*time.Millisecond)
}

func TestHub_Slow_Room_Does_Not_Delay_Presence_Syncs_Of_Other_Rooms(t *testing.T) {
	defer goleak.VerifyNone(t)
	req := require.New(t)
	ctx := context.Background()
	hub := NewHub(logs.GetLoggerFromLevel(slog.LevelDebug), WithChannelBuffer(1), WithDeliveryTimeout(5*time.Second))
	now := time.Now().UTC()

	// Given a channel in r1 whose sync callback is stuck and whose queue is full
	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	slow := hub.Channel("r1").OnPresenceSync(func(event.PresenceSynced) {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-release
	})
	req.NoError(slow.Subscribe(ctx))
	req.NoError(slow.Track(ctx, event.PresencePayload{UserID: "alice", OnlineAt: now}))
	<-entered
	req.NoError(slow.Track(ctx, event.PresencePayload{UserID: "alice", OnlineAt: now}))

	// And a further r1 sync waiting on that queue
	blocked := make(chan struct{})
	go func() {
		defer close(blocked)
		_ = slow.Track(ctx, event.PresencePayload{UserID: "alice", OnlineAt: now})
	}()
	time.Sleep(50 * time.Millisecond)

	// When bob joins r2 and tracks his presence
	bob := &recorder{}
	other := bob.attach(hub.Channel("r2"))
	req.NoError(other.Subscribe(ctx))
	start := time.Now()
	req.NoError(other.Track(ctx, event.PresencePayload{UserID: "bob", OnlineAt: now}))

	// Then his sync arrives well before r1 is released
	req.Eventually(func() bool {
		last, ok := bob.lastSync()
		return ok && len(last.State) == 1
	}, time.Second, 5*time.Millisecond)
	req.Less(time.Since(start), time.Second)

	close(release)
	<-blocked
	slow.Unsubscribe()
	other.Unsubscribe()
}

func TestChannel_Unsubscribe_Is_Idempotent(t *testing.T) {
	defer goleak.VerifyNone(t)
	req := require.New(t)
	ctx := context.Background()
	hub := newTestHub()

	ch := hub.Channel("r1")
	req.NoError(ch.Subscribe(ctx))

	ch.Unsubscribe()
	ch.Unsubscribe()

	channels, rooms := hub.Stats()
	req.Zero(channels)
	req.Zero(rooms)
	req.ErrorIs(ch.Subscribe(ctx), errors.ErrChannelClosed)
	req.ErrorIs(ch.Track(ctx, event.PresencePayload{UserID: "alice"}), errors.ErrChannelClosed)

	// A channel that never joined can be closed too
	hub.Channel("r2").Unsubscribe()
}

func TestChannel_Drops_Broadcasts_When_Queue_Full(t *testing.T) {
	defer goleak.VerifyNone(t)
	req := require.New(t)
	ctx := context.Background()
	hub := NewHub(logs.GetLoggerFromLevel(slog.LevelDebug), WithChannelBuffer(1))

	release := make(chan struct{})
	var received int
	var mu sync.Mutex
	slow := hub.Channel("r1").OnBroadcast(event.TypingBroadcast, func(event.Broadcast) {
		<-release
		mu.Lock()
		received++
		mu.Unlock()
	})
	sender := hub.Channel("r1")
	req.NoError(slow.Subscribe(ctx))
	req.NoError(sender.Subscribe(ctx))

	// When more broadcasts are sent than the slow channel can hold
	for i := 0; i < 10; i++ {
		req.NoError(sender.Send(ctx, event.NewTypingBroadcast("r1", "alice")))
	}
	close(release)

	// Then some were dropped and sending never blocked
	req.Eventually(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return received >= 1
	}, time.Second, 5*time.Millisecond)
	mu.Lock()
	req.Less(received, 10)
	mu.Unlock()

	slow.Unsubscribe()
	sender.Unsubscribe()
}

func TestChannel_Unsubscribe_Cancels_Pending_Deliveries(t *testing.T) {
	defer goleak.VerifyNone(t)
	req := require.New(t)
	ctx := context.Background()
	hub := newTestHub()

	release := make(chan struct{})
	var delivered int
	var mu sync.Mutex
	ch := hub.Channel("r1").OnInsert(func(event.MessageInserted) {
		<-release
		mu.Lock()
		delivered++
		mu.Unlock()
	})
	req.NoError(ch.Subscribe(ctx))

	// Given the first insert blocks the callback and two more are queued
	for i := 0; i < 3; i++ {
		hub.Publish(ctx, event.MessageInserted{Message: domain.Message{ID: uuid.New(), RoomID: "r1"}})
	}

	// When the channel is unsubscribed before the callback returns
	ch.Unsubscribe()
	close(release)

	// Then the queued inserts are never delivered
	req.Never(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return delivered > 1
	}, 100*time.Millisecond, 5*time.Millisecond)
}
