package catalog

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/erazemk/makerledger/internal/bom"
)

// unmapped is cached for parts the catalog has no SKU for.
const unmapped = "\x00unmapped"

// CachedMapper caches SKU lookups in Redis. Cache failures are logged and
// the lookup falls through to the wrapped mapper.
type CachedMapper struct {
	next  bom.SKUMapper
	redis *redis.Client
	ttl   time.Duration
}

var _ bom.SKUMapper = (*CachedMapper)(nil)

// NewRedis connects to Redis and verifies the connection.
func NewRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, err
	}
	return rdb, nil
}

// NewCachedMapper wraps next with a Redis cache.
func NewCachedMapper(next bom.SKUMapper, rdb *redis.Client, ttl time.Duration) *CachedMapper {
	return &CachedMapper{next: next, redis: rdb, ttl: ttl}
}

// cacheKey query-encodes both parts so no code and name pair can produce
// the key of another.
func cacheKey(partCode, partName string) string {
	return "sku:" + url.Values{"code": {partCode}, "name": {partName}}.Encode()
}

// LookupSKU returns the cached SKU or asks the wrapped mapper and caches
// the answer, including the absence of a mapping.
func (m *CachedMapper) LookupSKU(ctx context.Context, partCode, partName string) (string, error) {
	key := cacheKey(partCode, partName)

	cached, err := m.redis.Get(ctx, key).Result()
	switch {
	case err == nil:
		if cached == unmapped {
			return "", nil
		}
		return cached, nil
	case !errors.Is(err, redis.Nil):
		slog.Warn("sku cache read failed", "key", key, "error", err)
	}

	sku, err := m.next.LookupSKU(ctx, partCode, partName)
	if err != nil {
		return "", err
	}

	value := sku
	if value == "" {
		value = unmapped
	}
	if err := m.redis.Set(ctx, key, value, m.ttl).Err(); err != nil {
		slog.Warn("sku cache write failed", "key", key, "error", err)
	}
	return sku, nil
}
