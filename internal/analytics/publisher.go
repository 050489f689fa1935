package analytics

import (
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/serroba/shortlink/internal/messaging"
)

// Publishers holds the typed publish functions for analytics events.
type Publishers struct {
	LinkCreated messaging.Publish[LinkCreatedEvent]
	LinkClicked messaging.Publish[LinkClickedEvent]
}

// NewPublishers creates publish functions for every analytics topic.
func NewPublishers(publisher message.Publisher) Publishers {
	return Publishers{
		LinkCreated: messaging.NewPublishFunc[LinkCreatedEvent](publisher, TopicLinkCreated),
		LinkClicked: messaging.NewPublishFunc[LinkClickedEvent](publisher, TopicLinkClicked),
	}
}

// NoopPublishers returns publishers that drop every event.
func NoopPublishers() Publishers {
	return Publishers{
		LinkCreated: messaging.NoopPublish[LinkCreatedEvent],
		LinkClicked: messaging.NoopPublish[LinkClickedEvent],
	}
}
