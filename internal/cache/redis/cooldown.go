package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cooldown rate-gates actions to one occurrence per window, shared across
// bot instances. SET NX with a TTL makes check-and-arm atomic.
type Cooldown struct {
	rdb *redis.Client
}

// NewCooldown creates a Cooldown backed by the given Client.
func NewCooldown(c *Client) *Cooldown {
	return &Cooldown{rdb: c.Underlying()}
}

func cooldownKey(key string) string {
	return "cooldown:" + key
}

// Allow reports whether the action may run now. A true result arms the
// window; subsequent calls return false until it expires.
func (cd *Cooldown) Allow(ctx context.Context, key string, window time.Duration) (bool, error) {
	ok, err := cd.rdb.SetNX(ctx, cooldownKey(key), time.Now().UnixMicro(), window).Result()
	if err != nil {
		return false, fmt.Errorf("redis: cooldown %s: %w", key, err)
	}
	return ok, nil
}
