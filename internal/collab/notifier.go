package collab

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Outcome is the metadata sent to the notifier after a terminal success.
type Outcome struct {
	JobID   string          `json:"job_id"`
	Type    string          `json:"type"`
	CaseID  string          `json:"case_id,omitempty"`
	Status  string          `json:"status"`
	Summary json.RawMessage `json:"summary,omitempty"`
}

// Notifier delivers outcome notifications fire-and-forget. Failures are
// logged by callers and never surfaced to the job's own status.
type Notifier interface {
	Notify(ctx context.Context, recipient string, outcome Outcome) error
}

// AMQPNotifier publishes notification messages to a RabbitMQ exchange for
// the mailer to pick up.
type AMQPNotifier struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	logger   *slog.Logger
}

var _ Notifier = (*AMQPNotifier)(nil)

// NewAMQPNotifier dials the broker and declares a durable topic exchange.
func NewAMQPNotifier(url, exchange string, logger *slog.Logger) (*AMQPNotifier, error) {
	conn, err := amqp.DialConfig(url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
	})
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	return &AMQPNotifier{
		conn:     conn,
		channel:  ch,
		exchange: exchange,
		logger:   logger,
	}, nil
}

// Notify publishes one outcome message keyed by job type.
func (n *AMQPNotifier) Notify(ctx context.Context, recipient string, outcome Outcome) error {
	body, err := json.Marshal(struct {
		Recipient string  `json:"recipient"`
		Outcome   Outcome `json:"outcome"`
	}{Recipient: recipient, Outcome: outcome})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	err = n.channel.PublishWithContext(ctx,
		n.exchange,
		"notify."+outcome.Type,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}

	n.logger.Debug("notification published",
		slog.String("job_id", outcome.JobID),
		slog.String("recipient", recipient),
	)
	return nil
}

func (n *AMQPNotifier) Close() error {
	if err := n.channel.Close(); err != nil {
		n.conn.Close()
		return err
	}
	return n.conn.Close()
}

// NopNotifier drops notifications. Used when AMQP_URL is unset.
type NopNotifier struct{}

var _ Notifier = (*NopNotifier)(nil)

func (NopNotifier) Notify(context.Context, string, Outcome) error { return nil }
