package notification

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/patrickmn/go-cache"
)

// Deduper remembers delivered keys so at-least-once dispatch does not spam users.
type Deduper interface {
	// First reports whether key is seen for the first time, remembering it for ttl.
	First(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

const minDedupTTL = time.Minute

// MemoryDeduper keeps keys in process memory.
type MemoryDeduper struct {
	cache *cache.Cache
}

// NewMemoryDeduper creates a MemoryDeduper.
func NewMemoryDeduper() *MemoryDeduper {
	return &MemoryDeduper{cache: cache.New(time.Hour, 10*time.Minute)}
}

// First implements Deduper. go-cache's Add fails when the key is present.
func (d *MemoryDeduper) First(_ context.Context, key string, ttl time.Duration) (bool, error) {
	if ttl < minDedupTTL {
		ttl = minDedupTTL
	}
	return d.cache.Add(key, struct{}{}, ttl) == nil, nil
}

// RedisDeduper shares keys between engine instances.
type RedisDeduper struct {
	client *redis.Client
}

// NewRedisDeduper creates a RedisDeduper over client.
func NewRedisDeduper(client *redis.Client) *RedisDeduper {
	return &RedisDeduper{client: client}
}

// First implements Deduper with SETNX.
func (d *RedisDeduper) First(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if ttl < minDedupTTL {
		ttl = minDedupTTL
	}
	return d.client.SetNX(ctx, "booking-engine:"+key, 1, ttl).Result()
}
