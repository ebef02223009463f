// Package cache provides a small optional Redis cache for backend lookup
// results that rarely change: the enabled gateway list and product image
// URLs. The storefront runs fine without Redis; a nil *Cache is valid and
// every method degrades to a miss.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"storefront/internal/model"
)

const (
	gatewaysKey = "storefront:gateways"
	imageKeyFmt = "storefront:product-image:"

	gatewaysTTL = 5 * time.Minute
	imageTTL    = time.Hour
)

// Cache wraps a Redis client. Zero value and nil are usable: all reads
// miss, all writes are dropped.
type Cache struct {
	rdb *redis.Client
	log *slog.Logger
}

// New connects to Redis at addr. An empty addr returns nil, which callers
// use as-is.
func New(addr string, log *slog.Logger) *Cache {
	if addr == "" {
		return nil
	}
	return &Cache{
		rdb: redis.NewClient(&redis.Options{Addr: addr}),
		log: log.With("component", "cache"),
	}
}

// Close releases the Redis connection.
func (c *Cache) Close() error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}

// Gateways returns the cached gateway list, ok=false on miss or error.
func (c *Cache) Gateways(ctx context.Context) ([]model.Gateway, bool) {
	if c == nil || c.rdb == nil {
		return nil, false
	}
	raw, err := c.rdb.Get(ctx, gatewaysKey).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.Debug("gateway cache read failed", "error", err)
		}
		return nil, false
	}
	var gateways []model.Gateway
	if err := json.Unmarshal(raw, &gateways); err != nil {
		return nil, false
	}
	return gateways, true
}

// SetGateways stores the gateway list. Failures are logged and dropped.
func (c *Cache) SetGateways(ctx context.Context, gateways []model.Gateway) {
	if c == nil || c.rdb == nil {
		return
	}
	raw, err := json.Marshal(gateways)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, gatewaysKey, raw, gatewaysTTL).Err(); err != nil {
		c.log.Debug("gateway cache write failed", "error", err)
	}
}

// ProductImage returns the cached image URL for a backend product,
// ok=false on miss.
func (c *Cache) ProductImage(ctx context.Context, productID int) (string, bool) {
	if c == nil || c.rdb == nil {
		return "", false
	}
	src, err := c.rdb.Get(ctx, imageKeyFmt+strconv.Itoa(productID)).Result()
	if err != nil {
		return "", false
	}
	return src, true
}

// SetProductImage stores a product image URL.
func (c *Cache) SetProductImage(ctx context.Context, productID int, src string) {
	if c == nil || c.rdb == nil || src == "" {
		return
	}
	key := imageKeyFmt + strconv.Itoa(productID)
	if err := c.rdb.Set(ctx, key, src, imageTTL).Err(); err != nil {
		c.log.Debug("image cache write failed", "error", err)
	}
}
