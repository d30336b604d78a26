package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// AMQPSink publishes audit events to a durable direct exchange so an
// out-of-process consumer can persist them.
type AMQPSink struct {
	conn         *amqp091.Connection
	channel      *amqp091.Channel
	exchangeName string
	queueName    string
}

func NewAMQPSink(url, exchangeName, queueName string) (*AMQPSink, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	sink := &AMQPSink{
		conn:         conn,
		channel:      channel,
		exchangeName: exchangeName,
		queueName:    queueName,
	}

	if err := sink.setup(); err != nil {
		sink.Close()
		return nil, fmt.Errorf("setup exchange and queue: %w", err)
	}

	return sink, nil
}

func (s *AMQPSink) setup() error {
	err := s.channel.ExchangeDeclare(
		s.exchangeName, // name
		"direct",       // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	_, err = s.channel.QueueDeclare(
		s.queueName, // name
		true,        // durable
		false,       // delete when unused
		false,       // exclusive
		false,       // no-wait
		nil,         // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	err = s.channel.QueueBind(
		s.queueName,    // queue name
		s.queueName,    // routing key (same as queue name for direct exchange)
		s.exchangeName, // exchange
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}

	return nil
}

// LogEvent publishes fire-and-forget. Failures are logged and dropped;
// the recorded operation has already committed and must stand.
func (s *AMQPSink) LogEvent(ctx context.Context, dormID, actorID int64, action, entityType string, entityID int64, metadata map[string]any) {
	ev := NewEvent(dormID, actorID, action, entityType, entityID, metadata)
	body, err := ev.ToJSON()
	if err != nil {
		slog.ErrorContext(ctx, "marshal audit event failed", "action", action, "error", err)
		return
	}

	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = s.channel.PublishWithContext(
		pubCtx,
		s.exchangeName, // exchange
		s.queueName,    // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		slog.ErrorContext(ctx, "publish audit event failed",
			"action", action, "entity_type", entityType, "entity_id", entityID, "error", err)
		return
	}

	slog.DebugContext(ctx, "published audit event",
		"action", action, "entity_type", entityType, "entity_id", entityID, "exchange", s.exchangeName)
}

// Consume delivers audit events to handler until ctx is cancelled.
// Messages are acked only after the handler succeeds.
func (s *AMQPSink) Consume(ctx context.Context, handler func(Event) error) error {
	msgs, err := s.channel.Consume(
		s.queueName, // queue
		"",          // consumer
		false,       // auto-ack
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return fmt.Errorf("message channel closed")
			}
			ev, err := EventFromJSON(delivery.Body)
			if err != nil {
				slog.ErrorContext(ctx, "malformed audit event", "error", err)
				delivery.Nack(false, false)
				continue
			}
			if err := handler(ev); err != nil {
				slog.ErrorContext(ctx, "audit event handler failed", "action", ev.Action, "error", err)
				delivery.Nack(false, true)
				continue
			}
			delivery.Ack(false)
		}
	}
}

func (s *AMQPSink) Close() error {
	var firstErr error
	if s.channel != nil {
		if err := s.channel.Close(); err != nil {
			firstErr = err
		}
	}
	if s.conn != nil {
		if err := s.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
