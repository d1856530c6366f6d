package limiter

import (
	"context"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "crawler:limit:"
	minDelay  = 100 * time.Millisecond
)

// RedisRateLimiter spaces requests to one domain across every worker and
// process sharing the redis instance.
type RedisRateLimiter struct {
	client *redis.Client
}

func NewRedisRateLimiter(rdb *redis.Client) *RedisRateLimiter {
	return &RedisRateLimiter{
		client: rdb,
	}
}

func (rl *RedisRateLimiter) Wait(ctx context.Context, domain string, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	if delay < minDelay {
		delay = minDelay
	}
	key := keyPrefix + domain

	for {
		success, err := rl.client.SetNX(ctx, key, 1, delay).Result()
		if err != nil {
			return err
		}
		if success {
			return nil
		}

		ttl, err := rl.client.PTTL(ctx, key).Result()
		if err != nil {
			return err
		}

		wait := minDelay
		if ttl > 0 {
			wait = ttl + time.Duration(rand.Int63n(int64(ttl/10)+1))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}
