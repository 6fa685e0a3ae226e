package dedup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pdh-travel/booking-saga/internal/nilcheck"
)

// RedisDeduplicator is the shared idempotency ledger backed by Redis. It is
// safe for concurrent use across service instances; processed markers use
// SET NX so concurrent markers never extend an existing TTL, and attempt
// counters use INCR for atomic check-and-set semantics.
type RedisDeduplicator struct {
	client redis.UniversalClient
	logger *zap.Logger
}

var _ Deduplicator = (*RedisDeduplicator)(nil)

// NewRedisDeduplicator creates a Redis-backed deduplicator.
func NewRedisDeduplicator(client redis.UniversalClient, logger *zap.Logger) (*RedisDeduplicator, error) {
	if err := nilcheck.Require(client, ErrClientRequired); err != nil {
		return nil, err
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &RedisDeduplicator{client: client, logger: logger}, nil
}

// IsProcessed implements Deduplicator.
func (d *RedisDeduplicator) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, ErrEventIDRequired
	}

	return d.exists(ctx, processedKey(eventID))
}

// MarkProcessed implements Deduplicator.
func (d *RedisDeduplicator) MarkProcessed(ctx context.Context, eventID string, ttl time.Duration) error {
	if eventID == "" {
		return ErrEventIDRequired
	}

	return d.setMarker(ctx, processedKey(eventID), ttl)
}

// IsSelfProcessed implements Deduplicator.
func (d *RedisDeduplicator) IsSelfProcessed(ctx context.Context, serviceName, eventID string) (bool, error) {
	if serviceName == "" {
		return false, ErrServiceNameRequired
	}

	if eventID == "" {
		return false, ErrEventIDRequired
	}

	return d.exists(ctx, selfProcessedKey(serviceName, eventID))
}

// MarkSelfProcessed implements Deduplicator.
func (d *RedisDeduplicator) MarkSelfProcessed(ctx context.Context, serviceName, eventID string, ttl time.Duration) error {
	if serviceName == "" {
		return ErrServiceNameRequired
	}

	if eventID == "" {
		return ErrEventIDRequired
	}

	return d.setMarker(ctx, selfProcessedKey(serviceName, eventID), ttl)
}

// ProcessingAttempts implements Deduplicator.
func (d *RedisDeduplicator) ProcessingAttempts(ctx context.Context, eventID string) (int, error) {
	if eventID == "" {
		return 0, ErrEventIDRequired
	}

	attempts, err := d.client.Get(ctx, attemptsKey(eventID)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}

	if err != nil {
		return 0, fmt.Errorf("get processing attempts: %w", err)
	}

	return attempts, nil
}

// IncrementAttempts implements Deduplicator.
func (d *RedisDeduplicator) IncrementAttempts(ctx context.Context, eventID string) (int, error) {
	if eventID == "" {
		return 0, ErrEventIDRequired
	}

	key := attemptsKey(eventID)

	pipe := d.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, DefaultTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("increment processing attempts: %w", err)
	}

	return int(incr.Val()), nil
}

// ShouldAttemptProcessing implements Deduplicator.
func (d *RedisDeduplicator) ShouldAttemptProcessing(ctx context.Context, eventID string, maxAttempts int) (bool, error) {
	attempts, err := d.ProcessingAttempts(ctx, eventID)
	if err != nil {
		return false, err
	}

	return attempts < maxAttempts, nil
}

// Remove implements Deduplicator.
func (d *RedisDeduplicator) Remove(ctx context.Context, eventID string) error {
	if eventID == "" {
		return ErrEventIDRequired
	}

	if err := d.client.Del(ctx, processedKey(eventID), attemptsKey(eventID)).Err(); err != nil {
		return fmt.Errorf("remove processed marker: %w", err)
	}

	return nil
}

// RemoveSelf implements Deduplicator.
func (d *RedisDeduplicator) RemoveSelf(ctx context.Context, serviceName, eventID string) error {
	if serviceName == "" {
		return ErrServiceNameRequired
	}

	if eventID == "" {
		return ErrEventIDRequired
	}

	if err := d.client.Del(ctx, selfProcessedKey(serviceName, eventID)).Err(); err != nil {
		return fmt.Errorf("remove self-event marker: %w", err)
	}

	return nil
}

func (d *RedisDeduplicator) exists(ctx context.Context, key string) (bool, error) {
	count, err := d.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("check processed marker: %w", err)
	}

	return count > 0, nil
}

func (d *RedisDeduplicator) setMarker(ctx context.Context, key string, ttl time.Duration) error {
	ok, err := d.client.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339Nano), normalizeTTL(ttl)).Result()
	if err != nil {
		return fmt.Errorf("set processed marker: %w", err)
	}

	if !ok {
		d.logger.Debug("processed marker already present", zap.String("key", key))
	}

	return nil
}
