package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/isdmx/runbox/config"
	"github.com/isdmx/runbox/sandbox"
)

const (
	reconnectMaxBackoff = 30 * time.Second
	consumeRetryDelay   = 5 * time.Second
)

// Queue connects the runner to its upstream scheduler over AMQP: batch jobs
// arrive on the task queue and ordered batch results are published to the
// result queue.
type Queue struct {
	logger *zap.Logger
	cfg    config.QueueConfig

	conn *amqp.Connection
	ch   *amqp.Channel
}

// New creates a Queue from the application configuration.
func New(logger *zap.Logger, cfg *config.Config) *Queue {
	return &Queue{
		logger: logger,
		cfg:    cfg.Queue,
	}
}

// Connect dials the broker and declares the exchange and both queues.
func (q *Queue) Connect() error {
	var err error
	q.conn, err = amqp.Dial(q.cfg.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	q.ch, err = q.conn.Channel()
	if err != nil {
		q.conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	if err = q.ch.Qos(q.cfg.Prefetch, 0, false); err != nil {
		q.close()
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	if err = q.ch.ExchangeDeclare(q.cfg.Exchange, "direct", true, false, false, false, nil); err != nil {
		q.close()
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	args := amqp.Table{
		"x-queue-type": "quorum",
	}
	for _, queueName := range []string{q.cfg.TaskQueue, q.cfg.ResultQueue} {
		if _, err = q.ch.QueueDeclare(queueName, true, false, false, false, args); err != nil {
			q.close()
			return fmt.Errorf("failed to declare queue %s: %w", queueName, err)
		}
		if err = q.ch.QueueBind(queueName, queueName, q.cfg.Exchange, false, nil); err != nil {
			q.close()
			return fmt.Errorf("failed to bind queue %s: %w", queueName, err)
		}
	}

	return nil
}

// Close shuts down the channel and connection.
func (q *Queue) Close() {
	q.close()
}

func (q *Queue) close() {
	if q.ch != nil {
		q.ch.Close()
	}
	if q.conn != nil {
		q.conn.Close()
	}
}

// reconnect re-establishes the connection with exponential backoff. It only
// returns once connected or the context is cancelled.
func (q *Queue) reconnect(ctx context.Context) error {
	q.logger.Warn("attempting to reconnect to RabbitMQ")
	q.close()

	backoff := time.Second
	for {
		err := q.Connect()
		if err == nil {
			q.logger.Info("reconnected to RabbitMQ")
			return nil
		}

		q.logger.Warn("reconnection failed", zap.Duration("retry_in", backoff), zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > reconnectMaxBackoff {
			backoff = reconnectMaxBackoff
		}
	}
}

// PublishResult sends a batch result to the result queue.
func (q *Queue) PublishResult(ctx context.Context, result sandbox.BatchResult) error {
	body, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal batch result: %w", err)
	}

	err = q.ch.PublishWithContext(ctx,
		q.cfg.Exchange,
		q.cfg.ResultQueue,
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish batch result: %w", err)
	}

	return nil
}

// StartConsume processes batch jobs from the task queue until ctx is
// cancelled. Each delivery is decoded into a Batch, run through the
// executor, and its result published before the delivery is acked.
func (q *Queue) StartConsume(ctx context.Context, executor *sandbox.Executor) error {
	for {
		select {
		case <-ctx.Done():
			q.logger.Info("context cancelled, stopping consumer")
			return nil
		default:
		}

		if q.ch == nil || q.ch.IsClosed() || q.conn == nil || q.conn.IsClosed() {
			if err := q.reconnect(ctx); err != nil {
				return err
			}
		}

		msgs, err := q.ch.Consume(q.cfg.TaskQueue, "", false, false, false, false, nil)
		if err != nil {
			q.logger.Warn("failed to start consuming, reconnecting", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(consumeRetryDelay):
			}
			continue
		}

		q.logger.Info("consuming batch jobs", zap.String("queue", q.cfg.TaskQueue))

		for d := range msgs {
			select {
			case <-ctx.Done():
				q.logger.Info("context cancelled, stopping consumer loop")
				return nil
			default:
			}

			go q.handleDelivery(ctx, executor, d)
		}

		// Delivery channel closed: connection or channel dropped, loop
		// around and reconnect.
	}
}

// handleDelivery runs one batch job. Malformed payloads and failed batches
// are rejected without requeue so a poison message cannot loop forever.
func (q *Queue) handleDelivery(ctx context.Context, executor *sandbox.Executor, d amqp.Delivery) {
	var batch sandbox.Batch
	if err := json.Unmarshal(d.Body, &batch); err != nil {
		q.logger.Error("invalid batch message", zap.Error(err), zap.ByteString("body", d.Body))
		q.nack(d, false)
		return
	}

	result, err := executor.RunBatch(ctx, batch)
	if err != nil {
		q.logger.Error("batch run failed",
			zap.String("submission_id", batch.SubmissionID),
			zap.Error(err))
		q.nack(d, false)
		return
	}

	if err := q.PublishResult(ctx, result); err != nil {
		q.logger.Error("failed to publish result, requeueing job",
			zap.String("submission_id", batch.SubmissionID),
			zap.Error(err))
		q.nack(d, true)
		return
	}

	if err := d.Ack(false); err != nil {
		q.logger.Error("failed to ack delivery", zap.Error(err))
	}
}

func (q *Queue) nack(d amqp.Delivery, requeue bool) {
	if err := d.Nack(false, requeue); err != nil {
		q.logger.Error("failed to nack delivery", zap.Error(err))
	}
}
