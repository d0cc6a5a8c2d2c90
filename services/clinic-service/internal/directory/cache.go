package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cached memoises SearchNearby results in Redis. Cache errors are logged and
// bypassed; only successful upstream results are stored.
type Cached struct {
	inner  Client
	rdb    redis.Cmdable
	ttl    time.Duration
	prefix string
	logger *slog.Logger
}

func NewCached(inner Client, rdb redis.Cmdable, ttl time.Duration, logger *slog.Logger) *Cached {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cached{inner: inner, rdb: rdb, ttl: ttl, prefix: "clinicnear:directory", logger: logger}
}

func (c *Cached) Geocode(ctx context.Context, address string) (GeocodeResult, error) {
	return c.inner.Geocode(ctx, address)
}

func (c *Cached) ValidateAddress(ctx context.Context, address string) bool {
	return c.inner.ValidateAddress(ctx, address)
}

func (c *Cached) SearchNearby(ctx context.Context, lat, lng float64, radiusMeters int) ([]Place, error) {
	key := c.nearbyKey(lat, lng, radiusMeters)

	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var places []Place
		if jerr := json.Unmarshal(raw, &places); jerr == nil {
			return places, nil
		}
		c.logger.Warn("discarding corrupt directory cache entry", "key", key)
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("directory cache read failed", "err", err)
	}

	places, err := c.inner.SearchNearby(ctx, lat, lng, radiusMeters)
	if err != nil {
		return nil, err
	}
	if payload, jerr := json.Marshal(places); jerr == nil {
		if serr := c.rdb.Set(ctx, key, payload, c.ttl).Err(); serr != nil {
			c.logger.Warn("directory cache write failed", "err", serr)
		}
	}
	return places, nil
}

// nearbyKey buckets coordinates to roughly 100m so nearby searches share
// entries.
func (c *Cached) nearbyKey(lat, lng float64, radiusMeters int) string {
	return fmt.Sprintf("%s:nearby:%.3f:%.3f:%d", c.prefix, lat, lng, radiusMeters)
}
