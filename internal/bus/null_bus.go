package bus

import (
	"context"
	"log"
)

// NullBus is a no-op implementation of the bus interface for when Redis is disabled.
type NullBus struct {
	logger *log.Logger
}

// NewNullBus creates a new null bus instance.
func NewNullBus(logger *log.Logger) *NullBus {
	if logger == nil {
		logger = log.New(log.Writer(), "[NullBus] ", log.LstdFlags)
	}

	return &NullBus{
		logger: logger,
	}
}

// Close is a no-op for null bus.
func (nb *NullBus) Close() error {
	return nil
}

// PublishEnrichment logs the summary but doesn't actually publish it.
func (nb *NullBus) PublishEnrichment(ctx context.Context, msg EnrichmentMessage) error {
	nb.logger.Printf("Would publish enrichment summary for %s %s (Redis disabled)",
		msg.ObservableType, msg.ObservableValue)
	return nil
}

// HealthCheck always returns nil for null bus.
func (nb *NullBus) HealthCheck(ctx context.Context) error {
	return nil
}
