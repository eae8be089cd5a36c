package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"bronze-harvest/internal/catalog"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	SnapshotWritten  = "snapshot.written"
	HarvestCompleted = "harvest.completed"
)

type SnapshotWrittenMessage struct {
	Event     string        `json:"event"`
	Timestamp time.Time     `json:"timestamp"`
	Snapshot  catalog.Entry `json:"snapshot"`
}

type HarvestCompletedMessage struct {
	Event     string      `json:"event"`
	Timestamp time.Time   `json:"timestamp"`
	Run       catalog.Run `json:"run"`
}

type PublishingChannel interface {
	PublishWithContext(
		ctx context.Context,
		exchange, key string,
		mandatory, immediate bool,
		msg amqp.Publishing,
	) error
	Close() error
}

// RabbitPublisher publishes to a topic exchange. Routing keys are
// <keyPrefix>.<event>.
type RabbitPublisher struct {
	conn      *amqp.Connection
	ch        PublishingChannel
	exchange  string
	keyPrefix string
	logger    *log.Logger
}

func NewRabbitPublisher(uri, exchange, keyPrefix string, logger *log.Logger) (*RabbitPublisher, error) {
	if logger == nil {
		logger = log.Default()
	}

	conn, err := amqp.Dial(uri)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq connection failed: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq channel creation failed: %w", err)
	}

	if err := ch.ExchangeDeclare(
		exchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("exchange declare failed: %w", err)
	}

	return &RabbitPublisher{
		conn:      conn,
		ch:        ch,
		exchange:  exchange,
		keyPrefix: keyPrefix,
		logger:    logger,
	}, nil
}

func (p *RabbitPublisher) Close() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}

func (p *RabbitPublisher) PublishSnapshotWritten(ctx context.Context, e *catalog.Entry) error {
	return p.publish(ctx, SnapshotWritten, SnapshotWrittenMessage{
		Event:     SnapshotWritten,
		Timestamp: time.Now().UTC(),
		Snapshot:  *e,
	})
}

func (p *RabbitPublisher) PublishHarvestCompleted(ctx context.Context, r *catalog.Run) error {
	return p.publish(ctx, HarvestCompleted, HarvestCompletedMessage{
		Event:     HarvestCompleted,
		Timestamp: time.Now().UTC(),
		Run:       *r,
	})
}

func (p *RabbitPublisher) routingKey(event string) string {
	if p.keyPrefix == "" {
		return event
	}
	return p.keyPrefix + "." + event
}

func (p *RabbitPublisher) publish(ctx context.Context, event string, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := json.Marshal(v)
	if err != nil {
		return err
	}

	return p.ch.PublishWithContext(
		ctx,
		p.exchange,
		p.routingKey(event),
		false,
		false,
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Timestamp:    time.Now().UTC(),
			Type:         event,
			Body:         body,
		},
	)
}
