package workers

import (
	"chat-core/domain"
	"chat-core/observability"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type fakePublisher struct {
	mu        sync.Mutex
	published []domain.Notification
	err       error
}

func (f *fakePublisher) PublishNotification(_ context.Context, n domain.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, n)
	return nil
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

func TestNotificationRelay_Publishes_Queued_Notifications(t *testing.T) {
	defer goleak.VerifyNone(t)
	req := require.New(t)
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	publisher := &fakePublisher{}
	relay := NewNotificationRelay(logs.GetLoggerFromLevel(slog.LevelDebug), publisher, metrics, 4, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- relay.Run(ctx) }()

	// When two notifications are handed to the relay
	relay.Notify(ctx, domain.Notification{ID: uuid.New(), UserID: "bob"})
	relay.Notify(ctx, domain.Notification{ID: uuid.New(), UserID: "bob"})

	// Then both reach the publisher
	req.Eventually(func() bool { return publisher.count() == 2 }, time.Second, 5*time.Millisecond)
	req.Equal(float64(2), testutil.ToFloat64(metrics.NotificationsRelayed.WithLabelValues(RelayPublished)))

	cancel()
	req.NoError(<-done)
}

func TestNotificationRelay_Drops_When_Queue_Full(t *testing.T) {
	req := require.New(t)
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	relay := NewNotificationRelay(logs.GetLoggerFromLevel(slog.LevelDebug), &fakePublisher{}, metrics, 1, time.Second)

	// Given no worker is draining the queue
	relay.Notify(context.Background(), domain.Notification{ID: uuid.New()})
	relay.Notify(context.Background(), domain.Notification{ID: uuid.New()})

	// Then the second one is dropped without blocking
	req.Equal(float64(1), testutil.ToFloat64(metrics.NotificationsRelayed.WithLabelValues(RelayDropped)))
}

func TestNotificationRelay_Counts_Failures(t *testing.T) {
	defer goleak.VerifyNone(t)
	req := require.New(t)
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	relay := NewNotificationRelay(logs.GetLoggerFromLevel(slog.LevelDebug), &fakePublisher{err: errors.New("broker down")}, metrics, 1, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- relay.Run(ctx) }()

	relay.Notify(ctx, domain.Notification{ID: uuid.New()})
	req.Eventually(func() bool {
		return testutil.ToFloat64(metrics.NotificationsRelayed.WithLabelValues(RelayFailed)) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	req.NoError(<-done)
}
