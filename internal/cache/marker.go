// Package cache holds the small Redis helpers shared by the server.
package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Marker records one-off actions as Redis keys.
type Marker struct {
	rdb    *redis.Client
	prefix string
}

func NewMarker(rdb *redis.Client, prefix string) *Marker {
	return &Marker{rdb: rdb, prefix: prefix}
}

// Mark sets key with ttl unless it exists and reports whether this call
// created it.
func (m *Marker) Mark(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if m.prefix != "" {
		key = m.prefix + ":" + key
	}
	return m.rdb.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), ttl).Result()
}
