package notify

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const (
	replayInflight  = "inflight"
	replayDelivered = "delivered"
)

// ReplayProtector guards a delivery reference in two phases: a claim held
// while the request is in flight, then a confirmation kept for the full TTL.
type ReplayProtector interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Confirm(ctx context.Context, key string, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}

// RedisReplayProtector keeps claims as plain keys. ClaimTTL bounds how long a
// crashed worker can block a reference; it defaults to one minute.
type RedisReplayProtector struct {
	Client   *redis.Client
	Prefix   string
	ClaimTTL time.Duration
}

func (r RedisReplayProtector) key(k string) string {
	if r.Prefix == "" {
		return "replay:" + k
	}
	return r.Prefix + ":" + k
}

func (r RedisReplayProtector) claimTTL(ttl time.Duration) time.Duration {
	claim := r.ClaimTTL
	if claim <= 0 {
		claim = time.Minute
	}
	if ttl > 0 && ttl < claim {
		return ttl
	}
	return claim
}

func (r RedisReplayProtector) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if r.Client == nil {
		return true, nil
	}
	return r.Client.SetNX(ctx, r.key(key), replayInflight, r.claimTTL(ttl)).Result()
}

func (r RedisReplayProtector) Confirm(ctx context.Context, key string, ttl time.Duration) error {
	if r.Client == nil {
		return nil
	}
	return r.Client.Set(ctx, r.key(key), replayDelivered, ttl).Err()
}

func (r RedisReplayProtector) Release(ctx context.Context, key string) error {
	if r.Client == nil {
		return nil
	}
	return r.Client.Del(ctx, r.key(key)).Err()
}
