package bus

import (
	"context"
	"io"
	"log"
)

// EnrichmentMessage summarizes one observable's enrichment for downstream
// consumers on the bus.
type EnrichmentMessage struct {
	ObservableType  string `json:"observable_type"`
	ObservableValue string `json:"observable_value"`
	Flow            string `json:"flow"`
	Sightings       int    `json:"sightings"`
	Judgements      int    `json:"judgements"`
	Verdicts        int    `json:"verdicts"`
	Warnings        int    `json:"warnings"`
	Fatals          int    `json:"fatals"`
	DurationMS      int64  `json:"duration_ms"`
	Timestamp       int64  `json:"timestamp"`
}

// Bus defines the interface for event bus implementations.
type Bus interface {
	// PublishEnrichment publishes an enrichment summary to the enrichments stream
	PublishEnrichment(ctx context.Context, msg EnrichmentMessage) error

	// HealthCheck performs a health check on the bus connection
	HealthCheck(ctx context.Context) error

	// Close closes the bus connection
	Close() error
}

// NewBus creates a new bus instance based on the Redis URL.
// If redisURL is empty or Redis is unreachable, returns a NullBus.
func NewBus(redisURL string, logger *log.Logger) Bus {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	if redisURL == "" {
		return NewNullBus(logger)
	}

	if redisBus, err := NewRedisBus(redisURL, logger); err == nil {
		return redisBus
	}

	// Fall back to null bus if Redis fails
	return NewNullBus(logger)
}
