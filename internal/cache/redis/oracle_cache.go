package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quantfold/turbinebot/internal/domain"
)

// OracleCache publishes the latest oracle price per asset so monitor
// instances and dashboards can read it without hitting the oracle
// themselves. Each asset is a hash at "oracle:{asset}" with fields "ticks"
// and "ts".
type OracleCache struct {
	rdb *redis.Client
}

// NewOracleCache creates an OracleCache backed by the given Client.
func NewOracleCache(c *Client) *OracleCache {
	return &OracleCache{rdb: c.Underlying()}
}

func oracleKey(asset string) string {
	return "oracle:" + asset
}

// SetPrice stores the latest oracle price for an asset in 1e6 ticks.
func (oc *OracleCache) SetPrice(ctx context.Context, asset string, ticks int64, ts time.Time) error {
	fields := map[string]interface{}{
		"ticks": strconv.FormatInt(ticks, 10),
		"ts":    strconv.FormatInt(ts.UnixNano(), 10),
	}
	if err := oc.rdb.HSet(ctx, oracleKey(asset), fields).Err(); err != nil {
		return fmt.Errorf("redis: set oracle price %s: %w", asset, err)
	}
	return nil
}

// GetPrice retrieves the latest oracle price for an asset. It returns
// domain.ErrNotFound when nothing has been published.
func (oc *OracleCache) GetPrice(ctx context.Context, asset string) (int64, time.Time, error) {
	vals, err := oc.rdb.HGetAll(ctx, oracleKey(asset)).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: get oracle price %s: %w", asset, err)
	}
	if len(vals) == 0 {
		return 0, time.Time{}, domain.ErrNotFound
	}

	ticksStr, ok := vals["ticks"]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	ticks, err := strconv.ParseInt(ticksStr, 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse oracle ticks %s: %w", asset, err)
	}

	tsStr, ok := vals["ts"]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse oracle ts %s: %w", asset, err)
	}

	return ticks, time.Unix(0, tsNano).UTC(), nil
}
