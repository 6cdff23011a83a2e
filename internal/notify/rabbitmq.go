package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointment-scheduling/internal/appointment"
)

var ErrPublish = errors.New("publish notification")

// Publisher is the part of *amqp091.Channel the notifier needs.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
}

// Message is the JSON body consumed by the messaging worker.
type Message struct {
	ID            string    `json:"id"`
	AppointmentID string    `json:"appointment_id"`
	To            string    `json:"to"`
	Language      string    `json:"language"`
	Status        string    `json:"status"`
	Body          string    `json:"body"`
	CreatedAt     time.Time `json:"created_at"`
}

// RabbitNotifier hands patient messages to a RabbitMQ queue. Delivery to the
// patient happens downstream; a successful publish is all it reports.
type RabbitNotifier struct {
	channel Publisher
	queue   string
	region  string
	log     *zap.Logger
}

func NewRabbitNotifier(channel Publisher, queue, region string, logger *zap.Logger) *RabbitNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RabbitNotifier{
		channel: channel,
		queue:   queue,
		region:  region,
		log:     logger,
	}
}

func (n *RabbitNotifier) Send(ctx context.Context, msg appointment.Notification) error {
	to, err := NormalizePhone(msg.Phone, n.region)
	if err != nil {
		return err
	}

	body, err := json.Marshal(Message{
		ID:            uuid.NewString(),
		AppointmentID: msg.AppointmentID.String(),
		To:            to,
		Language:      msg.Language,
		Status:        string(msg.Status),
		Body:          msg.Body,
		CreatedAt:     time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	publishing := amqp091.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp091.Persistent,
		Headers: amqp091.Table{
			"message_type":     "JSON",
			"requeue_strategy": "DROP",
		},
	}

	if err := n.channel.PublishWithContext(ctx, "", n.queue, false, false, publishing); err != nil {
		n.log.Error("notification publish failed",
			zap.String("queue", n.queue),
			zap.String("appointment_id", msg.AppointmentID.String()),
			zap.Error(err),
		)
		return fmt.Errorf("%w to %s: %w", ErrPublish, n.queue, err)
	}

	n.log.Debug("notification published",
		zap.String("queue", n.queue),
		zap.String("appointment_id", msg.AppointmentID.String()),
		zap.String("status", string(msg.Status)),
	)
	return nil
}

// Connect dials RabbitMQ and opens a channel with the notification queue
// declared durable.
func Connect(url, queue string) (*amqp091.Connection, *amqp091.Channel, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}
	return conn, ch, nil
}

// LogNotifier writes notifications to the log. It stands in for the queue
// when no broker is configured.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{log: logger}
}

func (n *LogNotifier) Send(_ context.Context, msg appointment.Notification) error {
	n.log.Info("notification (not delivered, no broker configured)",
		zap.String("appointment_id", msg.AppointmentID.String()),
		zap.String("status", string(msg.Status)),
		zap.String("language", msg.Language),
		zap.String("body", msg.Body),
	)
	return nil
}
