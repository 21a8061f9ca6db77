// Package broker publishes notifications to RabbitMQ.
package broker

import (
	"chat-core/domain"
	"chat-core/errors"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// Publisher implements workers.NotificationPublisher on a topic exchange.
type Publisher struct {
	mu       sync.Mutex
	conn     *amqp091.Connection
	exchange string
	log      *slog.Logger
	now      func() time.Time
	closed   bool
}

func NewPublisher(url, exchange string, log *slog.Logger) (*Publisher, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	defer ch.Close()
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	return &Publisher{
		conn:     conn,
		exchange: exchange,
		log:      log,
		now:      time.Now,
	}, nil
}

func (p *Publisher) PublishNotification(ctx context.Context, n domain.Notification) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return errors.ErrPublisherClosed
	}

	envelope := NewNotificationEnvelope(n, p.now())
	body, err := json.Marshal(envelope)
	if err != nil {
		return err
	}

	ch, err := p.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	err = ch.PublishWithContext(ctx, p.exchange, RoutingKey(n), false, false,
		amqp091.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  amqp091.Persistent,
			MessageId:     envelope.Meta.ID,
			CorrelationId: *envelope.Meta.CorrelationID,
			Timestamp:     envelope.Meta.Time,
			Body:          body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish notification %s: %w", n.ID, err)
	}
	p.log.Debug("published", slog.String("key", RoutingKey(n)), slog.String("exchange", p.exchange))
	return nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.conn.Close()
}
