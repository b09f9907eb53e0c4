package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/Harsh-BH/vehicle-counter/internal/domain"
	"github.com/Harsh-BH/vehicle-counter/internal/queue"
)

const baseReconnectDelay = 1 * time.Second

var _ queue.Consumer = (*Consumer)(nil)

// Consumer listens to the task queue and dispatches TaskMessages to a channel.
// Deliveries are acked by the worker pool after processing, not on receipt.
type Consumer struct {
	url      string
	prefetch int
	logger   *zap.Logger
	tasks    chan<- *domain.TaskMessage

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
	closed  bool
	closeCh chan struct{}
}

// NewConsumer dials url and limits unacknowledged deliveries to prefetch.
func NewConsumer(url string, prefetch int, tasks chan<- *domain.TaskMessage, logger *zap.Logger) (*Consumer, error) {
	if prefetch <= 0 {
		prefetch = 1
	}
	c := &Consumer{
		url:      url,
		prefetch: prefetch,
		logger:   logger,
		tasks:    tasks,
		closeCh:  make(chan struct{}),
	}
	if err := c.connect(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Consumer) connect() error {
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("rabbitmq: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("rabbitmq: channel: %w", err)
	}
	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("rabbitmq: qos: %w", err)
	}
	if err := declareTopology(ch); err != nil {
		ch.Close()
		conn.Close()
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.channel = ch
	c.mu.Unlock()
	return nil
}

// Start consumes until ctx is cancelled or Close is called, reconnecting
// with exponential backoff when the connection drops.
func (c *Consumer) Start(ctx context.Context) error {
	for {
		err := c.consume(ctx)
		if err == nil {
			return nil
		}

		select {
		case <-c.closeCh:
			return nil
		case <-ctx.Done():
			return nil
		default:
		}

		c.logger.Warn("RabbitMQ consumer lost connection, reconnecting...", zap.Error(err))

		delay := baseReconnectDelay
		for attempt := 1; ; attempt++ {
			c.logger.Info("Reconnect attempt", zap.Int("attempt", attempt), zap.Duration("delay", delay))
			select {
			case <-c.closeCh:
				return nil
			case <-ctx.Done():
				return nil
			case <-time.After(delay):
			}

			if err := c.connect(); err != nil {
				c.logger.Error("Reconnect failed", zap.Error(err))
				delay = backoff(delay, maxReconnectDelay)
				continue
			}
			c.logger.Info("Reconnected to RabbitMQ")
			break
		}
	}
}

// consume runs one session until the delivery channel closes or ctx is cancelled.
func (c *Consumer) consume(ctx context.Context) error {
	c.mu.Lock()
	ch := c.channel
	c.mu.Unlock()
	if ch == nil {
		return errors.New("rabbitmq: channel is nil")
	}

	deliveries, err := ch.Consume(queueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("rabbitmq: consume: %w", err)
	}
	c.logger.Info("RabbitMQ consumer started", zap.String("queue", queueName))

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("RabbitMQ consumer stopping (context cancelled)")
			return nil
		case delivery, ok := <-deliveries:
			if !ok {
				return errors.New("rabbitmq: delivery channel closed")
			}

			msg, err := toTaskMessage(ch, delivery)
			if err != nil {
				c.logger.Error("Failed to decode task", zap.Error(err), zap.ByteString("body", delivery.Body))
				_ = delivery.Nack(false, false) // dead-letter
				continue
			}

			c.logger.Debug("Received task from queue", zap.String("job_id", msg.Task.JobID.String()))

			select {
			case c.tasks <- msg:
			case <-ctx.Done():
				_ = delivery.Nack(false, true)
				return nil
			}
		}
	}
}

func toTaskMessage(ch *amqp.Channel, delivery amqp.Delivery) (*domain.TaskMessage, error) {
	var task domain.Task
	if err := json.Unmarshal(delivery.Body, &task); err != nil {
		return nil, err
	}
	if task.UploadPath == "" || task.ResultPath == "" {
		return nil, fmt.Errorf("task %s is missing paths", task.JobID)
	}

	tag := delivery.DeliveryTag
	return &domain.TaskMessage{
		Task: &task,
		Ack:  func() error { return ch.Ack(tag, false) },
		Nack: func(requeue bool) error { return ch.Nack(tag, false, requeue) },
	}, nil
}

// Close shuts the consumer down. Unacked deliveries are returned to the queue by the broker.
func (c *Consumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.closeCh)

	var firstErr error
	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			firstErr = err
		}
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
