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
	goruntime "runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func newTestManager(t *testing.T, hub *runtime.Hub, opts ...Option) *Manager {
	t.Helper()
	m, err := NewManager(logs.GetLoggerFromLevel(slog.LevelDebug), hub, opts...)
	require.NoError(t, err)
	return m
}

func newTestHub() *runtime.Hub {
	return runtime.NewHub(logs.GetLoggerFromLevel(slog.LevelDebug), runtime.WithDeliveryTimeout(200*time.Millisecond))
}

type inbox struct {
	mu       sync.Mutex
	messages []domain.Message
	presence [][]domain.PresenceEntry
	typing   []string
}

func (i *inbox) handlers() Handlers {
	return Handlers{
		OnMessage: func(m domain.Message) {
			i.mu.Lock()
			defer i.mu.Unlock()
			i.messages = append(i.messages, m)
		},
		OnPresence: func(entries []domain.PresenceEntry) {
			i.mu.Lock()
			defer i.mu.Unlock()
			i.presence = append(i.presence, entries)
		},
		OnTyping: func(userID string) {
			i.mu.Lock()
			defer i.mu.Unlock()
			i.typing = append(i.typing, userID)
		},
	}
}

func (i *inbox) messageCount() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.messages)
}

func (i *inbox) lastPresence() []domain.PresenceEntry {
	i.mu.Lock()
	defer i.mu.Unlock()
	if len(i.presence) == 0 {
		return nil
	}
	return i.presence[len(i.presence)-1]
}

func (i *inbox) typingUsers() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]string(nil), i.typing...)
}

func room(n int) domain.RoomID {
	return domain.RoomID(fmt.Sprintf("room-%d", n))
}

func TestManager_Sixth_Subscription_Evicts_Least_Recently_Active(t *testing.T) {
	defer goleak.VerifyNone(t)
	req := require.New(t)
	ctx := context.Background()
	hub := newTestHub()
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	var tornDown []domain.RoomID
	var mu sync.Mutex
	m := newTestManager(t, hub, WithMetrics(metrics), WithTeardownHook(func(r domain.RoomID) {
		mu.Lock()
		defer mu.Unlock()
		tornDown = append(tornDown, r)
	}))
	defer m.Close()
	self := domain.Profile{ID: "alice"}

	// Given five subscriptions opened in order
	handles := make([]*Handle, 0, 5)
	for i := 1; i <= 5; i++ {
		h, err := m.Subscribe(ctx, room(i), self, Handlers{})
		req.NoError(err)
		handles = append(handles, h)
	}
	req.Equal(5, m.Len())

	// When a sixth room is subscribed
	_, err := m.Subscribe(ctx, room(6), self, Handlers{})
	req.NoError(err)

	// Then the first one is gone and the count stays at the limit
	req.Equal(5, m.Len())
	req.False(handles[0].Live())
	_, ok := m.Get(room(1))
	req.False(ok)
	req.Equal([]domain.RoomID{room(6), room(5), room(4), room(3), room(2)}, m.Active())
	mu.Lock()
	req.Equal([]domain.RoomID{room(1)}, tornDown)
	mu.Unlock()
	req.Equal(float64(1), testutil.ToFloat64(metrics.SubscriptionEvictions))
	req.Equal(float64(5), testutil.ToFloat64(metrics.ActiveSubscriptions))

	channels, _ := hub.Stats()
	req.Equal(5, channels)
}

func TestManager_Presence_Syncs_Do_Not_Change_Eviction_Victim(t *testing.T) {
	defer goleak.VerifyNone(t)
	req := require.New(t)
	defer goruntime.GOMAXPROCS(goruntime.GOMAXPROCS(1))
	ctx := context.Background()
	self := domain.Profile{ID: "alice"}

	for run := 0; run < 50; run++ {
		m := newTestManager(t, newTestHub())

		// Given five rooms subscribed in order whose own presence syncs all
		// arrived afterwards
		var synced atomic.Int32
		for i := 1; i <= 5; i++ {
			_, err := m.Subscribe(ctx, room(i), self, Handlers{
				OnPresence: func([]domain.PresenceEntry) { synced.Add(1) },
			})
			req.NoError(err)
		}
		req.Eventually(func() bool { return synced.Load() >= 5 }, time.Second, time.Millisecond)

		// When a sixth room is subscribed
		_, err := m.Subscribe(ctx, room(6), self, Handlers{})
		req.NoError(err)

		// Then the first subscribed room is always the victim
		_, ok := m.Get(room(1))
		req.False(ok, "run %d kept room-1", run)
		req.Equal([]domain.RoomID{room(6), room(5), room(4), room(3), room(2)}, m.Active())
		m.Close()
	}
}

func TestManager_Touch_Changes_Eviction_Victim(t *testing.T) {
	defer goleak.VerifyNone(t)
	req := require.New(t)
	ctx := context.Background()
	m := newTestManager(t, newTestHub())
	defer m.Close()
	self := domain.Profile{ID: "alice"}

	for i := 1; i <= 5; i++ {
		_, err := m.Subscribe(ctx, room(i), self, Handlers{})
		req.NoError(err)
	}

	// Given room-1 was active after the others
	m.Touch(room(1))

	// When a sixth room is subscribed
	_, err := m.Subscribe(ctx, room(6), self, Handlers{})
	req.NoError(err)

	// Then room-2 is the victim
	_, ok := m.Get(room(1))
	req.True(ok)
	_, ok = m.Get(room(2))
	req.False(ok)
}

func TestManager_Resubscribe_Replaces_Channel(t *testing.T) {
	defer goleak.VerifyNone(t)
	req := require.New(t)
	ctx := context.Background()
	hub := newTestHub()
	m := newTestManager(t, hub)
	defer m.Close()
	self := domain.Profile{ID: "alice"}

	first, err := m.Subscribe(ctx, room(1), self, Handlers{})
	req.NoError(err)

	// When the same room is subscribed again
	second, err := m.Subscribe(ctx, room(1), self, Handlers{})
	req.NoError(err)

	// Then only one channel is live for that room
	req.False(first.Live())
	req.True(second.Live())
	req.Equal(1, m.Len())
	channels, rooms := hub.Stats()
	req.Equal(1, channels)
	req.Equal(1, rooms)

	// And the stale handle cannot tear down the new one
	first.Unsubscribe()
	req.True(second.Live())
	req.Equal(1, m.Len())
}

func TestManager_Unsubscribe_Is_Idempotent(t *testing.T) {
	defer goleak.VerifyNone(t)
	req := require.New(t)
	ctx := context.Background()
	hub := newTestHub()
	m := newTestManager(t, hub)
	defer m.Close()

	h, err := m.Subscribe(ctx, room(1), domain.Profile{ID: "alice"}, Handlers{})
	req.NoError(err)

	m.Unsubscribe(h)
	m.Unsubscribe(h)
	m.Unsubscribe(nil)

	req.Zero(m.Len())
	channels, _ := hub.Stats()
	req.Zero(channels)
	req.ErrorIs(h.SendTyping(ctx, "alice"), errors.ErrNotSubscribed)
}

func TestManager_Delivers_Messages_Typing_And_Presence(t *testing.T) {
	defer goleak.VerifyNone(t)
	req := require.New(t)
	ctx := context.Background()
	hub := newTestHub()
	alice := newTestManager(t, hub)
	bob := newTestManager(t, hub)
	defer alice.Close()
	defer bob.Close()

	aliceInbox, bobInbox := &inbox{}, &inbox{}
	hA, err := alice.Subscribe(ctx, room(1), domain.Profile{ID: "alice", DisplayName: "Alice"}, aliceInbox.handlers())
	req.NoError(err)
	_, err = bob.Subscribe(ctx, room(1), domain.Profile{ID: "bob"}, bobInbox.handlers())
	req.NoError(err)

	// Then both eventually see both participants, with bob's profile defaulted
	req.Eventually(func() bool { return len(aliceInbox.lastPresence()) == 2 }, time.Second, 5*time.Millisecond)
	entries := aliceInbox.lastPresence()
	req.Equal("alice", entries[0].UserID)
	req.Equal("Alice", entries[0].Profile.DisplayName)
	req.Equal("bob", entries[1].UserID)
	req.Equal(domain.PlaceholderDisplayName, entries[1].Profile.DisplayName)
	req.Equal(domain.DefaultAvatarURL("bob"), entries[1].Profile.AvatarURL)

	// When a message is committed and alice types
	hub.Publish(ctx, event.MessageInserted{Message: domain.Message{ID: uuid.New(), RoomID: room(1), Content: "Hello"}})
	req.NoError(hA.SendTyping(ctx, "alice"))

	// Then both receive the message exactly once and only bob sees typing
	req.Eventually(func() bool { return bobInbox.messageCount() == 1 && aliceInbox.messageCount() == 1 }, time.Second, 5*time.Millisecond)
	req.Eventually(func() bool { return len(bobInbox.typingUsers()) == 1 }, time.Second, 5*time.Millisecond)
	req.Equal([]string{"alice"}, bobInbox.typingUsers())
	req.Empty(aliceInbox.typingUsers())
	req.Never(func() bool { return bobInbox.messageCount() > 1 }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestManager_Evicted_Room_Presence_Disappears_For_Others(t *testing.T) {
	defer goleak.VerifyNone(t)
	req := require.New(t)
	ctx := context.Background()
	hub := newTestHub()
	alice := newTestManager(t, hub)
	bob := newTestManager(t, hub)
	defer alice.Close()
	defer bob.Close()

	bobInbox := &inbox{}
	_, err := bob.Subscribe(ctx, room(1), domain.Profile{ID: "bob"}, bobInbox.handlers())
	req.NoError(err)

	// Given alice is present in room-1 and four others
	for i := 1; i <= 5; i++ {
		_, err := alice.Subscribe(ctx, room(i), domain.Profile{ID: "alice"}, Handlers{})
		req.NoError(err)
	}
	req.Eventually(func() bool { return len(bobInbox.lastPresence()) == 2 }, time.Second, 5*time.Millisecond)

	// When alice subscribes a sixth room
	_, err = alice.Subscribe(ctx, room(6), domain.Profile{ID: "alice"}, Handlers{})
	req.NoError(err)

	// Then bob's room-1 presence drops alice
	req.Eventually(func() bool {
		entries := bobInbox.lastPresence()
		return len(entries) == 1 && entries[0].UserID == "bob"
	}, time.Second, 5*time.Millisecond)
}

func TestManager_Close_Rejects_Further_Subscribes(t *testing.T) {
	defer goleak.VerifyNone(t)
	req := require.New(t)
	ctx := context.Background()
	hub := newTestHub()
	m := newTestManager(t, hub, WithMaxSubscriptions(2))

	for i := 1; i <= 3; i++ {
		_, err := m.Subscribe(ctx, room(i), domain.Profile{ID: "alice"}, Handlers{})
		req.NoError(err)
	}
	req.Equal(2, m.Len())
	req.Equal(2, m.Max())

	m.Close()

	req.Zero(m.Len())
	channels, _ := hub.Stats()
	req.Zero(channels)
	_, err := m.Subscribe(ctx, room(9), domain.Profile{ID: "alice"}, Handlers{})
	req.ErrorIs(err, errors.ErrManagerClosed)
}
