package analytics

import (
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/serroba/shortlink/internal/messaging"
	"go.uber.org/zap"
)

// RegisterConsumers adds a consumer per analytics topic to group, each
// persisting events into store.
func RegisterConsumers(group *messaging.ConsumerGroup, subscriber message.Subscriber, store Store, logger *zap.Logger) {
	group.Add(messaging.NewConsumer(subscriber, TopicLinkCreated, store.SaveLinkCreated, logger))
	group.Add(messaging.NewConsumer(subscriber, TopicLinkClicked, store.SaveLinkClicked, logger))
}
