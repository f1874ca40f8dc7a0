package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vtanathip/test-case-generator/internal/config"
	"github.com/vtanathip/test-case-generator/internal/errs"
)

const idempotencyKeyPrefix = "webhook:idempotency:"

// IdempotencyGuard deduplicates webhook deliveries. A key is reserved
// atomically on first sight and expires after the configured TTL, after
// which the same issue may be reprocessed.
type IdempotencyGuard interface {
	// Reserve attempts to claim the key. It returns false when the key was
	// already reserved within the TTL window.
	Reserve(ctx context.Context, key string) (bool, error)

	// Release frees a reserved key so the event can be retried. Used when
	// job registration fails after the reservation.
	Release(ctx context.Context, key string) error
}

// RedisIdempotencyGuard implements IdempotencyGuard on Redis using SET NX
// with expiry, which is atomic across replicas of this service.
type RedisIdempotencyGuard struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisIdempotencyGuard connects to Redis and verifies the connection.
func NewRedisIdempotencyGuard(cfg *config.RedisConfig) (*RedisIdempotencyGuard, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errs.Wrap(err, errs.CodeConnection, "failed to connect to redis")
	}

	ttl := cfg.IdempotencyTTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	return &RedisIdempotencyGuard{client: client, ttl: ttl}, nil
}

// Reserve claims the key, returning false on duplicates.
func (g *RedisIdempotencyGuard) Reserve(ctx context.Context, key string) (bool, error) {
	ok, err := g.client.SetNX(ctx, idempotencyKeyPrefix+key, 1, g.ttl).Result()
	if err != nil {
		return false, errs.Wrap(err, errs.CodeConnection, "failed to reserve idempotency key")
	}
	return ok, nil
}

// Release frees a reserved key.
func (g *RedisIdempotencyGuard) Release(ctx context.Context, key string) error {
	if err := g.client.Del(ctx, idempotencyKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to release idempotency key: %w", err)
	}
	return nil
}

// Close closes the underlying Redis connection.
func (g *RedisIdempotencyGuard) Close() error {
	return g.client.Close()
}
