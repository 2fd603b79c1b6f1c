// Package queue hands campaign jobs from the API side to the worker over a
// durable AMQP queue. The payload is just the campaign id; everything else
// lives in the database.
package queue

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/streadway/amqp"
	"go.uber.org/zap"

	"github.com/outreachlabs/formpilot/internal/config"
)

// Queue wraps one AMQP connection and channel.
type Queue struct {
	cfg    config.QueueConfig
	conn   *amqp.Connection
	ch     *amqp.Channel
	logger *zap.Logger
}

// Connect dials the broker and declares the durable campaign queue.
func Connect(cfg config.QueueConfig, logger *zap.Logger) (*Queue, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if _, err := ch.QueueDeclare(cfg.QueueName, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue %q: %w", cfg.QueueName, err)
	}

	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("set prefetch: %w", err)
	}

	return &Queue{cfg: cfg, conn: conn, ch: ch, logger: logger.Named("queue")}, nil
}

// Close shuts the channel and connection down.
func (q *Queue) Close() {
	if q.ch != nil {
		q.ch.Close()
	}
	if q.conn != nil {
		q.conn.Close()
	}
}

// Publish enqueues a campaign for processing. The hand-off is fire and
// forget; the publisher gets no signal about the run's result and must read
// campaign state from the database instead.
func (q *Queue) Publish(campaignID uuid.UUID) error {
	err := q.ch.Publish("", q.cfg.QueueName, false, false, amqp.Publishing{
		ContentType:  "text/plain",
		DeliveryMode: amqp.Persistent,
		Body:         []byte(campaignID.String()),
	})
	if err != nil {
		return fmt.Errorf("publish campaign %s: %w", campaignID, err)
	}
	q.logger.Info("Campaign enqueued.", zap.String("campaign_id", campaignID.String()))
	return nil
}

// delivery is the slice of an AMQP delivery the consumer loop settles.
type delivery interface {
	Body() []byte
	Ack() error
	Nack(requeue bool) error
}

// amqpDelivery adapts amqp.Delivery to the delivery interface.
type amqpDelivery struct {
	d amqp.Delivery
}

func (a amqpDelivery) Body() []byte            { return a.d.Body }
func (a amqpDelivery) Ack() error              { return a.d.Ack(false) }
func (a amqpDelivery) Nack(requeue bool) error { return a.d.Nack(false, requeue) }

// Consume delivers campaign ids to the handler until ctx is canceled or the
// broker connection drops. Malformed payloads are dropped; handler errors are
// logged and acknowledged anyway, since a campaign run records its own
// failure state and must not loop through redelivery.
func (q *Queue) Consume(ctx context.Context, handler func(context.Context, uuid.UUID) error) error {
	deliveries, err := q.ch.Consume(q.cfg.QueueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("broker connection closed")
			}
			if err := q.settle(ctx, amqpDelivery{d}, handler); err != nil {
				return err
			}
		}
	}
}

// settle routes one delivery: malformed payloads are dropped without requeue,
// a run interrupted by shutdown is requeued for another worker, and every
// other result is acknowledged.
func (q *Queue) settle(ctx context.Context, d delivery, handler func(context.Context, uuid.UUID) error) error {
	campaignID, err := uuid.Parse(string(d.Body()))
	if err != nil {
		q.logger.Warn("Dropping malformed queue message.", zap.ByteString("body", d.Body()))
		d.Nack(false)
		return nil
	}
	if err := handler(ctx, campaignID); err != nil {
		if ctx.Err() != nil {
			d.Nack(true)
			return ctx.Err()
		}
		q.logger.Error("Campaign handler failed.",
			zap.String("campaign_id", campaignID.String()),
			zap.Error(err))
	}
	return d.Ack()
}
