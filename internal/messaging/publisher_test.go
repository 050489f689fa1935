package messaging_test

import (
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/serroba/shortlink/internal/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockPublisher struct {
	messages   []*message.Message
	topic      string
	publishErr error
	closeErr   error
}

func (m *mockPublisher) Publish(topic string, msgs ...*message.Message) error {
	if m.publishErr != nil {
		return m.publishErr
	}

	m.topic = topic
	m.messages = append(m.messages, msgs...)

	return nil
}

func (m *mockPublisher) Close() error {
	return m.closeErr
}

func TestNewPublishFunc(t *testing.T) {
	t.Run("publishes event successfully", func(t *testing.T) {
		mock := &mockPublisher{}
		publish := messaging.NewPublishFunc[clickEvent](mock, testTopic)

		event := &clickEvent{Code: "abc123", Clicks: 1}

		err := publish(event)

		require.NoError(t, err)
		assert.Equal(t, testTopic, mock.topic)
		assert.Len(t, mock.messages, 1)
		assert.Contains(t, string(mock.messages[0].Payload), `"code":"abc123"`)
		assert.Equal(t, testTopic, mock.messages[0].Metadata.Get(messaging.MetadataTopic))
	})

	t.Run("returns error when publish fails", func(t *testing.T) {
		errPublish := errors.New("publish error")
		mock := &mockPublisher{publishErr: errPublish}
		publish := messaging.NewPublishFunc[clickEvent](mock, testTopic)

		event := &clickEvent{Code: "abc123"}

		err := publish(event)

		require.ErrorIs(t, err, errPublish)
		assert.Contains(t, err.Error(), testTopic)
	})
}

func TestPublisherGroup(t *testing.T) {
	t.Run("returns underlying publisher", func(t *testing.T) {
		mock := &mockPublisher{}
		group := messaging.NewPublisherGroup(mock)

		assert.Equal(t, mock, group.Publisher())
	})

	t.Run("shuts down successfully", func(t *testing.T) {
		mock := &mockPublisher{}
		group := messaging.NewPublisherGroup(mock)

		err := group.Shutdown()

		require.NoError(t, err)
	})

	t.Run("returns error when close fails", func(t *testing.T) {
		mock := &mockPublisher{closeErr: errors.New("close error")}
		group := messaging.NewPublisherGroup(mock)

		err := group.Shutdown()

		assert.Error(t, err)
	})
}

func TestNoopPublish(t *testing.T) {
	var publish messaging.Publish[clickEvent] = messaging.NoopPublish[clickEvent]

	assert.NoError(t, publish(&clickEvent{Code: "abc123"}))
}
