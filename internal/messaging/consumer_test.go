package messaging_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/serroba/shortlink/internal/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testTopic = "link.clicked"

type clickEvent struct {
	Code   string `json:"code"`
	Clicks int64  `json:"clicks"`
}

type mockSubscriber struct {
	msgChan      chan *message.Message
	subscribeErr error
	mu           sync.Mutex
	closed       bool
}

func newMockSubscriber() *mockSubscriber {
	return &mockSubscriber{
		msgChan: make(chan *message.Message, 10),
	}
}

func (m *mockSubscriber) Subscribe(_ context.Context, _ string) (<-chan *message.Message, error) {
	if m.subscribeErr != nil {
		return nil, m.subscribeErr
	}

	return m.msgChan, nil
}

func (m *mockSubscriber) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.closed {
		m.closed = true
		close(m.msgChan)
	}

	return nil
}

func ignore(context.Context, *clickEvent) error { return nil }

// startConsumer starts a consumer on testTopic and stops it at test cleanup.
func startConsumer(
	t *testing.T,
	sub *mockSubscriber,
	handler messaging.Handler[clickEvent],
	opts ...messaging.ConsumerOption,
) *messaging.Consumer[clickEvent] {
	t.Helper()

	consumer := messaging.NewConsumer(sub, testTopic, handler, zap.NewNop(), opts...)
	require.NoError(t, consumer.Start(context.Background()))
	t.Cleanup(func() { _ = consumer.Shutdown() })

	return consumer
}

func clickMessage(t *testing.T, id string, event clickEvent) *message.Message {
	t.Helper()

	payload, err := json.Marshal(event)
	require.NoError(t, err)

	return message.NewMessage(id, payload)
}

// outcome waits until msg is acked or nacked.
func outcome(t *testing.T, msg *message.Message) string {
	t.Helper()

	select {
	case <-msg.Acked():
		return "ack"
	case <-msg.Nacked():
		return "nack"
	case <-time.After(time.Second):
		t.Fatal("message neither acked nor nacked")

		return ""
	}
}

func TestConsumer_Start(t *testing.T) {
	t.Run("subscribes to its topic", func(t *testing.T) {
		consumer := startConsumer(t, newMockSubscriber(), ignore)

		assert.Equal(t, testTopic, consumer.Topic())
	})

	t.Run("returns error when subscribe fails", func(t *testing.T) {
		sub := &mockSubscriber{subscribeErr: errors.New("stream missing")}
		consumer := messaging.NewConsumer(sub, testTopic, ignore, zap.NewNop())

		require.Error(t, consumer.Start(context.Background()))
		assert.NoError(t, consumer.Shutdown())
	})
}

func TestConsumer_HandleMessage(t *testing.T) {
	t.Run("acks after the handler succeeds", func(t *testing.T) {
		sub := newMockSubscriber()
		received := make(chan clickEvent, 1)

		startConsumer(t, sub, func(_ context.Context, event *clickEvent) error {
			received <- *event

			return nil
		})

		msg := clickMessage(t, uuid.NewString(), clickEvent{Code: "abc123", Clicks: 6})
		sub.msgChan <- msg

		require.Equal(t, "ack", outcome(t, msg))
		assert.Equal(t, clickEvent{Code: "abc123", Clicks: 6}, <-received)
	})

	t.Run("drops undecodable payload", func(t *testing.T) {
		sub := newMockSubscriber()
		calls := make(chan struct{}, 1)

		startConsumer(t, sub, func(context.Context, *clickEvent) error {
			calls <- struct{}{}

			return nil
		})

		msg := message.NewMessage(uuid.NewString(), []byte("{not json"))
		sub.msgChan <- msg

		assert.Equal(t, "ack", outcome(t, msg))
		assert.Empty(t, calls)
	})

	t.Run("nacks when the handler fails", func(t *testing.T) {
		sub := newMockSubscriber()

		startConsumer(t, sub, func(context.Context, *clickEvent) error {
			return errors.New("store down")
		})

		msg := clickMessage(t, uuid.NewString(), clickEvent{Code: "abc123"})
		sub.msgChan <- msg

		assert.Equal(t, "nack", outcome(t, msg))
	})
}

func TestConsumer_Retries(t *testing.T) {
	t.Run("drops after max attempts", func(t *testing.T) {
		sub := newMockSubscriber()

		startConsumer(t, sub, func(context.Context, *clickEvent) error {
			return errors.New("store down")
		}, messaging.WithMaxAttempts(2))

		id := uuid.NewString()

		first := clickMessage(t, id, clickEvent{Code: "abc123"})
		sub.msgChan <- first
		require.Equal(t, "nack", outcome(t, first))

		redelivered := clickMessage(t, id, clickEvent{Code: "abc123"})
		sub.msgChan <- redelivered
		assert.Equal(t, "ack", outcome(t, redelivered))
	})

	t.Run("a success resets the attempt count", func(t *testing.T) {
		sub := newMockSubscriber()
		fail := make(chan bool, 3)

		startConsumer(t, sub, func(context.Context, *clickEvent) error {
			if <-fail {
				return errors.New("store down")
			}

			return nil
		}, messaging.WithMaxAttempts(2))

		id := uuid.NewString()

		for _, step := range []struct {
			fail bool
			want string
		}{
			{true, "nack"},
			{false, "ack"},
			{true, "nack"},
		} {
			fail <- step.fail

			msg := clickMessage(t, id, clickEvent{Code: "abc123"})
			sub.msgChan <- msg
			require.Equal(t, step.want, outcome(t, msg))
		}
	})

	t.Run("handler runs with a deadline", func(t *testing.T) {
		sub := newMockSubscriber()
		deadlines := make(chan bool, 1)

		startConsumer(t, sub, func(ctx context.Context, _ *clickEvent) error {
			_, ok := ctx.Deadline()
			deadlines <- ok

			return nil
		}, messaging.WithHandlerTimeout(time.Minute))

		msg := clickMessage(t, uuid.NewString(), clickEvent{Code: "abc123"})
		sub.msgChan <- msg

		require.Equal(t, "ack", outcome(t, msg))
		assert.True(t, <-deadlines)
	})
}

func TestConsumer_Shutdown(t *testing.T) {
	t.Run("stops when the subscription closes", func(t *testing.T) {
		sub := newMockSubscriber()
		consumer := messaging.NewConsumer(sub, testTopic, ignore, zap.NewNop())
		require.NoError(t, consumer.Start(context.Background()))

		require.NoError(t, sub.Close())
		assert.NoError(t, consumer.Shutdown())
	})

	t.Run("is a no-op before start", func(t *testing.T) {
		consumer := messaging.NewConsumer(newMockSubscriber(), testTopic, ignore, zap.NewNop())

		assert.NoError(t, consumer.Shutdown())
	})
}
