// Package notify publishes domain events to the notification service. Publishing is
// fire-and-forget: callers log a returned error and carry on.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// EventKind names a published event.
type EventKind string

const (
	EventEvaluationSubmitted EventKind = "evaluation.submitted"
	EventFeedbackSubmitted   EventKind = "feedback.submitted"
)

// Event is the JSON envelope written to the queue.
type Event struct {
	Kind       EventKind `json:"kind"`
	OccurredAt time.Time `json:"occurredAt"`
	Record     any       `json:"record"`
}

// Notifier delivers events to the notification service.
type Notifier interface {
	Notify(ctx context.Context, kind EventKind, record any) error
}

// NopNotifier drops every event.
type NopNotifier struct{}

// Notify implements Notifier
func (NopNotifier) Notify(context.Context, EventKind, any) error { return nil }

// AMQPNotifier publishes events as persistent JSON messages to a durable RabbitMQ queue.
// The connection and channel are opened on first use and kept until one of them fails.
type AMQPNotifier struct {
	url     string
	queue   string
	timeout time.Duration
	logger  zerolog.Logger
	now     func() time.Time

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewAMQPNotifier creates a notifier for the broker at url
func NewAMQPNotifier(url, queue string, timeout time.Duration, logger zerolog.Logger) *AMQPNotifier {
	return &AMQPNotifier{
		url:     url,
		queue:   queue,
		timeout: timeout,
		logger:  logger.With().Str("component", "notify").Logger(),
		now:     time.Now,
	}
}

// channel returns the cached channel, dialing and declaring the queue when there is none.
// Callers hold n.mu.
func (n *AMQPNotifier) channel() (*amqp.Channel, error) {
	if n.ch != nil && !n.ch.IsClosed() && !n.conn.IsClosed() {
		return n.ch, nil
	}
	n.reset()

	conn, err := amqp.DialConfig(n.url, amqp.Config{Dial: amqp.DefaultDial(n.timeout)})
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial failed: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq channel open failed: %w", err)
	}

	if _, err := ch.QueueDeclare(
		n.queue, // name
		true,    // durable
		false,   // autoDelete
		false,   // exclusive
		false,   // noWait
		nil,     // args
	); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq queue declare failed: %w", err)
	}

	n.conn, n.ch = conn, ch
	n.logger.Info().Str("queue", n.queue).Msg("Connected to broker")
	return ch, nil
}

// reset drops the cached connection. Callers hold n.mu.
func (n *AMQPNotifier) reset() {
	if n.conn != nil {
		_ = n.conn.Close()
	}
	n.conn, n.ch = nil, nil
}

// connected reports whether a connection is cached.
func (n *AMQPNotifier) connected() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.conn != nil
}

// Notify publishes one message, reconnecting first when the previous connection failed.
func (n *AMQPNotifier) Notify(ctx context.Context, kind EventKind, record any) error {
	msg, err := newPublishing(kind, record, n.now())
	if err != nil {
		return err
	}

	if n.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.timeout)
		defer cancel()
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	ch, err := n.channel()
	if err != nil {
		return err
	}

	if err := ch.PublishWithContext(ctx,
		"",      // default exchange
		n.queue, // routing key = queue name
		false,   // mandatory
		false,   // immediate
		msg,
	); err != nil {
		n.reset()
		return fmt.Errorf("rabbitmq publish failed: %w", err)
	}

	n.logger.Debug().Str("kind", string(kind)).Str("queue", n.queue).Msg("Event published")
	return nil
}

// Close closes the broker connection. A later Notify reconnects.
func (n *AMQPNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.conn == nil {
		return nil
	}
	err := n.conn.Close()
	n.conn, n.ch = nil, nil
	return err
}

func newPublishing(kind EventKind, record any, now time.Time) (amqp.Publishing, error) {
	body, err := json.Marshal(Event{Kind: kind, OccurredAt: now.UTC(), Record: record})
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal event failed: %w", err)
	}

	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    now.UTC(),
		Type:         string(kind),
		Body:         body,
	}, nil
}

// New returns an AMQPNotifier, or a NopNotifier when url is empty.
func New(url, queue string, timeout time.Duration, logger zerolog.Logger) Notifier {
	if url == "" {
		return NopNotifier{}
	}
	return NewAMQPNotifier(url, queue, timeout, logger)
}
