package messaging

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.uber.org/zap"
)

const (
	DefaultHandlerTimeout = 10 * time.Second
	DefaultMaxAttempts    = 5
)

// Handler processes a single event. Handlers are synchronous and easy to test.
type Handler[T any] func(ctx context.Context, event *T) error

// Consumer subscribes to a topic and processes messages with a typed handler.
//
// Analytics events are best effort: a payload that does not decode is dropped
// at once, and a message whose handler keeps failing is dropped after
// maxAttempts deliveries to this consumer.
type Consumer[T any] struct {
	subscriber     message.Subscriber
	topic          string
	handler        Handler[T]
	logger         *zap.Logger
	handlerTimeout time.Duration
	maxAttempts    int

	mu       sync.Mutex
	attempts map[string]int // message uuid -> failed deliveries

	cancel context.CancelFunc
	done   chan struct{}
}

// ConsumerOption configures a Consumer.
type ConsumerOption func(*consumerConfig)

type consumerConfig struct {
	handlerTimeout time.Duration
	maxAttempts    int
}

// WithHandlerTimeout bounds a single handler call.
func WithHandlerTimeout(d time.Duration) ConsumerOption {
	return func(c *consumerConfig) {
		if d > 0 {
			c.handlerTimeout = d
		}
	}
}

// WithMaxAttempts sets how many failed deliveries of a message are tolerated
// before it is dropped.
func WithMaxAttempts(n int) ConsumerOption {
	return func(c *consumerConfig) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// NewConsumer creates a new generic consumer for a specific event type.
func NewConsumer[T any](
	subscriber message.Subscriber,
	topic string,
	handler Handler[T],
	logger *zap.Logger,
	opts ...ConsumerOption,
) *Consumer[T] {
	cfg := consumerConfig{
		handlerTimeout: DefaultHandlerTimeout,
		maxAttempts:    DefaultMaxAttempts,
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	return &Consumer[T]{
		subscriber:     subscriber,
		topic:          topic,
		handler:        handler,
		logger:         logger.With(zap.String("topic", topic)),
		handlerTimeout: cfg.handlerTimeout,
		maxAttempts:    cfg.maxAttempts,
		attempts:       make(map[string]int),
		done:           make(chan struct{}),
	}
}

// Topic returns the topic this consumer subscribes to.
func (c *Consumer[T]) Topic() string {
	return c.topic
}

// Start begins consuming messages from the topic.
func (c *Consumer[T]) Start(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)

	msgs, err := c.subscriber.Subscribe(ctx, c.topic)
	if err != nil {
		c.cancel()
		close(c.done)

		return err
	}

	go c.consumeLoop(ctx, msgs)

	return nil
}

func (c *Consumer[T]) consumeLoop(ctx context.Context, msgs <-chan *message.Message) {
	defer close(c.done)

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}

			c.handleMessage(ctx, msg)
		}
	}
}

func (c *Consumer[T]) handleMessage(ctx context.Context, msg *message.Message) {
	var event T
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		c.logger.Error("dropping undecodable event",
			zap.String("message_uuid", msg.UUID),
			zap.Error(err),
		)
		msg.Ack()

		return
	}

	handlerCtx, cancel := context.WithTimeout(ctx, c.handlerTimeout)
	err := c.handler(handlerCtx, &event)

	cancel()

	if err == nil {
		c.forget(msg.UUID)
		msg.Ack()
		c.logger.Debug("processed event", zap.String("message_uuid", msg.UUID))

		return
	}

	attempt := c.recordFailure(msg.UUID)
	if attempt >= c.maxAttempts {
		c.forget(msg.UUID)
		c.logger.Error("dropping event after repeated failures",
			zap.String("message_uuid", msg.UUID),
			zap.Int("attempts", attempt),
			zap.Error(err),
		)
		msg.Ack()

		return
	}

	c.logger.Warn("failed to handle event, will retry",
		zap.String("message_uuid", msg.UUID),
		zap.Int("attempt", attempt),
		zap.Error(err),
	)
	msg.Nack()
}

func (c *Consumer[T]) recordFailure(uuid string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.attempts[uuid]++

	return c.attempts[uuid]
}

func (c *Consumer[T]) forget(uuid string) {
	c.mu.Lock()
	delete(c.attempts, uuid)
	c.mu.Unlock()
}

// Shutdown stops the consumer and waits for the in-flight message to complete.
func (c *Consumer[T]) Shutdown() error {
	if c.cancel == nil {
		return nil
	}

	c.cancel()
	<-c.done

	return nil
}
