package workers

import (
	"chat-core/domain"
	"chat-core/observability"
	"context"
	"fmt"
	"log/slog"
	"time"
)

const (
	RelayPublished = "published"
	RelayFailed    = "failed"
	RelayDropped   = "dropped"
)

// NotificationPublisher hands a stored notification to something outside
// the process, typically a message broker.
type NotificationPublisher interface {
	PublishNotification(ctx context.Context, n domain.Notification) error
}

// NotificationRelay decouples notification creation from delivery. Notify
// never blocks the caller: when the queue is full the notification is
// dropped, it is still readable from the store.
type NotificationRelay struct {
	log       *slog.Logger
	queue     chan domain.Notification
	publisher NotificationPublisher
	metrics   *observability.Metrics
	timeout   time.Duration
}

func NewNotificationRelay(log *slog.Logger, publisher NotificationPublisher, metrics *observability.Metrics,
	bufferSize int, timeout time.Duration) *NotificationRelay {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	return &NotificationRelay{
		log:       log,
		queue:     make(chan domain.Notification, bufferSize),
		publisher: publisher,
		metrics:   metrics,
		timeout:   timeout,
	}
}

// Notify implements contract.NotificationSink.
func (r *NotificationRelay) Notify(_ context.Context, n domain.Notification) {
	select {
	case r.queue <- n:
	default:
		r.metrics.IncRelayed(RelayDropped)
		r.log.Warn(fmt.Sprintf("Notification queue full, dropping notification %s", n.ID))
	}
}

func (r *NotificationRelay) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			r.log.Debug("Context done, stopping notification relay")
			return nil
		case n := <-r.queue:
			r.publish(ctx, n)
		}
	}
}

func (r *NotificationRelay) publish(ctx context.Context, n domain.Notification) {
	publishCtx, cancel := ctx, context.CancelFunc(func() {})
	if r.timeout > 0 {
		publishCtx, cancel = context.WithTimeout(ctx, r.timeout)
	}
	defer cancel()

	if err := r.publisher.PublishNotification(publishCtx, n); err != nil {
		r.metrics.IncRelayed(RelayFailed)
		r.log.Warn("Notification not relayed", "id", n.ID, "user", n.UserID, "error", err)
		return
	}
	r.metrics.IncRelayed(RelayPublished)
}

// LogPublisher only logs notifications. It is used when no broker is
// configured.
type LogPublisher struct {
	Log *slog.Logger
}

func (p LogPublisher) PublishNotification(_ context.Context, n domain.Notification) error {
	p.Log.Debug(fmt.Sprintf("Notification %s for %s : %s", n.Type, n.UserID, n.Title))
	return nil
}
