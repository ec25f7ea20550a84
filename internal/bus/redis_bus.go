package bus

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
)

// enrichmentsStream is the Redis Stream enrichment summaries are appended to.
const enrichmentsStream = "enrichments"

// RedisBus provides Redis Streams-based publishing of enrichment summaries.
type RedisBus struct {
	client *redis.Client
	logger *log.Logger
}

// NewRedisBus creates a new Redis bus instance.
func NewRedisBus(redisURL string, logger *log.Logger) (*RedisBus, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if logger == nil {
		logger = log.New(log.Writer(), "[RedisBus] ", log.LstdFlags)
	}

	return &RedisBus{
		client: client,
		logger: logger,
	}, nil
}

// Close closes the Redis connection.
func (rb *RedisBus) Close() error {
	return rb.client.Close()
}

// PublishEnrichment publishes an enrichment summary to the enrichments stream.
func (rb *RedisBus) PublishEnrichment(ctx context.Context, msg EnrichmentMessage) error {
	fields := map[string]interface{}{
		"observable_type":  msg.ObservableType,
		"observable_value": msg.ObservableValue,
		"flow":             msg.Flow,
		"sightings":        msg.Sightings,
		"judgements":       msg.Judgements,
		"verdicts":         msg.Verdicts,
		"warnings":         msg.Warnings,
		"fatals":           msg.Fatals,
		"duration_ms":      msg.DurationMS,
		"timestamp":        msg.Timestamp,
	}

	result := rb.client.XAdd(ctx, &redis.XAddArgs{
		Stream: enrichmentsStream,
		Values: fields,
	})

	if err := result.Err(); err != nil {
		return fmt.Errorf("failed to publish enrichment summary: %w", err)
	}

	rb.logger.Printf("Published enrichment summary for %s %s",
		msg.ObservableType, msg.ObservableValue)
	return nil
}

// HealthCheck pings Redis.
func (rb *RedisBus) HealthCheck(ctx context.Context) error {
	if err := rb.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}
