package sybil

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/DBYGuy/truthforge/crypto"
)

const redisKeyPrefix = "truthforge:rate:"

// RedisLimiter is a sliding-window rate limiter backed by Redis sorted
// sets, for deployments where multiple service instances share the limit.
type RedisLimiter struct {
	client *redis.Client
	config WindowConfig
}

// NewRedisLimiter creates a Redis-backed sliding-window limiter.
func NewRedisLimiter(client *redis.Client, config WindowConfig) *RedisLimiter {
	return &RedisLimiter{client: client, config: config}
}

// Allow prunes entries older than the window, checks the remaining count
// and records the operation as a sorted-set member scored by timestamp.
func (l *RedisLimiter) Allow(ctx context.Context, voter crypto.VoterID, now time.Time) error {
	key := redisKeyPrefix + string(voter)
	cutoff := strconv.FormatInt(now.Add(-l.config.Window).UnixNano(), 10)

	pipe := l.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", cutoff)
	card := pipe.ZCard(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("rate limiter redis: %w", err)
	}

	if card.Val() >= int64(l.config.MaxOps) {
		return ErrRateLimited
	}

	pipe = l.client.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.UnixNano()),
		Member: uuid.NewString(),
	})
	pipe.Expire(ctx, key, l.config.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("rate limiter redis: %w", err)
	}
	return nil
}
