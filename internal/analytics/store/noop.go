package store

import (
	"context"

	"github.com/serroba/shortlink/internal/analytics"
	"go.uber.org/zap"
)

// Noop is a no-op implementation of analytics.Store that logs events.
type Noop struct {
	logger *zap.Logger
}

// NewNoop creates a new no-op analytics store.
func NewNoop(logger *zap.Logger) *Noop {
	return &Noop{logger: logger}
}

func (n *Noop) SaveLinkCreated(_ context.Context, event *analytics.LinkCreatedEvent) error {
	n.logger.Info("link created event received",
		zap.String("code", event.Code),
		zap.String("originalUrl", event.OriginalURL),
		zap.String("customAlias", event.CustomAlias),
		zap.Time("createdAt", event.CreatedAt),
	)

	return nil
}

func (n *Noop) SaveLinkClicked(_ context.Context, event *analytics.LinkClickedEvent) error {
	n.logger.Info("link clicked event received",
		zap.String("eventId", event.EventID),
		zap.String("code", event.Code),
		zap.Int64("clicks", event.Clicks),
		zap.Time("clickedAt", event.ClickedAt),
		zap.String("country", event.Country),
	)

	return nil
}

var _ analytics.Store = (*Noop)(nil)
