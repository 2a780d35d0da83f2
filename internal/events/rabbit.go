package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"licensehub/internal/config"
	"licensehub/internal/domain"
	"licensehub/internal/infrastructure"
)

// envelope is the wire form of an event on the broker.
type envelope struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	AggregateID  string         `json:"aggregate_id"`
	OccurredAt   time.Time      `json:"occurred_at"`
	BrandID      string         `json:"brand_id,omitempty"`
	LicenseID    string         `json:"license_id,omitempty"`
	LicenseKeyID string         `json:"license_key_id,omitempty"`
	Data         map[string]any `json:"data"`
}

func toEnvelope(e domain.Event) envelope {
	if e.Data == nil {
		e.Data = map[string]any{}
	}
	env := envelope{
		ID:          e.ID.String(),
		Type:        e.Type,
		AggregateID: e.AggregateID,
		OccurredAt:  e.OccurredAt,
		Data:        e.Data,
	}
	if e.BrandID != uuid.Nil {
		env.BrandID = e.BrandID.String()
	}
	if e.LicenseID != uuid.Nil {
		env.LicenseID = e.LicenseID.String()
	}
	if e.LicenseKeyID != uuid.Nil {
		env.LicenseKeyID = e.LicenseKeyID.String()
	}
	return env
}

// RabbitBus publishes events to a durable topic exchange. Routing keys
// follow "event.<lowercase type>" so consumers can bind selectively.
type RabbitBus struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	queue    string
}

// NewRabbitBus connects to the broker and declares the exchange.
func NewRabbitBus(cfg config.BrokerConfig) (*RabbitBus, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open broker channel: %w", err)
	}
	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &RabbitBus{conn: conn, ch: ch, exchange: cfg.Exchange, queue: cfg.Queue}, nil
}

// Publish sends each event as a persistent JSON message. Broker
// failures are logged, not propagated: external delivery is best
// effort and must not fail the originating request.
func (b *RabbitBus) Publish(ctx context.Context, events ...domain.Event) {
	for _, e := range events {
		body, err := json.Marshal(toEnvelope(e))
		if err != nil {
			infrastructure.LoggerWithContext(ctx).Error("marshal event for broker",
				"event_type", e.Type, "error", err)
			continue
		}
		err = b.ch.PublishWithContext(ctx, b.exchange, e.RoutingKey(), false, false, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    e.ID.String(),
			Timestamp:    e.OccurredAt,
			Type:         e.Type,
			Body:         body,
		})
		if err != nil {
			infrastructure.LoggerWithContext(ctx).Error("publish event to broker",
				"event_type", e.Type, "routing_key", e.RoutingKey(), "error", err)
		}
	}
}

// Consume binds a queue to every event routing key and feeds messages
// to fn until ctx is done. Messages are acked on success and requeued
// once on failure; redelivered failures are dropped to avoid poison
// loops.
func (b *RabbitBus) Consume(ctx context.Context, fn func(ctx context.Context, env []byte) error) error {
	q, err := b.ch.QueueDeclare(b.queue, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := b.ch.QueueBind(q.Name, "event.#", b.exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	deliveries, err := b.ch.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}

	logger := infrastructure.GetLogger()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("broker delivery channel closed")
			}
			if err := fn(ctx, d.Body); err != nil {
				logger.Error("broker message handling failed",
					"message_id", d.MessageId, "redelivered", d.Redelivered, "error", err)
				_ = d.Nack(false, !d.Redelivered)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// Close shuts down the channel and connection.
func (b *RabbitBus) Close() error {
	if err := b.ch.Close(); err != nil {
		b.conn.Close()
		return err
	}
	return b.conn.Close()
}
