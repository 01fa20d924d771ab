package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/DBYGuy/truthforge/consensus"
)

// AMQPSink publishes ledger events to a RabbitMQ topic exchange so
// downstream indexers and notification services can follow pool activity
// without polling. Routing key is the event type.
type AMQPSink struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	log      *slog.Logger
}

// NewAMQPSink dials the broker and declares the exchange.
func NewAMQPSink(url, exchange string, log *slog.Logger) (*AMQPSink, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dialing broker: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening channel: %w", err)
	}

	if err := channel.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("declaring exchange: %w", err)
	}

	if log == nil {
		log = slog.Default()
	}

	return &AMQPSink{
		conn:     conn,
		channel:  channel,
		exchange: exchange,
		log:      log.With("component", "amqp-sink"),
	}, nil
}

// Emit publishes the event as JSON. Publishing is best-effort: a broker
// outage is logged and the ledger operation proceeds.
func (s *AMQPSink) Emit(ctx context.Context, event *consensus.Event) {
	body, err := json.Marshal(event)
	if err != nil {
		s.log.Error("event marshal failed", "event_id", event.ID, "err", err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = s.channel.PublishWithContext(ctx,
		s.exchange,
		string(event.Type),
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType: "application/json",
			MessageId:   event.ID,
			Timestamp:   event.At,
			Body:        body,
		},
	)
	if err != nil {
		s.log.Error("event publish failed", "event_id", event.ID, "err", err)
	}
}

// Close tears down the channel and connection.
func (s *AMQPSink) Close() error {
	if err := s.channel.Close(); err != nil {
		s.conn.Close()
		return err
	}
	return s.conn.Close()
}
