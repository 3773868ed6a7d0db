package store

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DedupFingerprintTTL bounds how long a fingerprint is remembered; it
// mirrors the Queue Manager's 24h dedup window.
const DedupFingerprintTTL = 24 * time.Hour

// DedupCache accelerates duplicate-task detection. With a Redis address
// configured, fingerprints are stored centrally so dedup survives an
// orchestrator restart; with none, it degrades to an in-memory map that is
// merely a fast path in front of the Queue Manager's full Jaccard scan,
// never a correctness dependency — a cache miss just means the slow path
// runs.
type DedupCache struct {
	client *redis.Client
	mu     sync.Mutex
	local  map[string]time.Time
}

// NewDedupCache connects to addr if non-empty; an empty addr returns a
// cache backed purely by an in-process map.
func NewDedupCache(addr string) *DedupCache {
	c := &DedupCache{local: make(map[string]time.Time)}
	if addr == "" {
		return c
	}
	c.client = redis.NewClient(&redis.Options{Addr: addr})
	return c
}

// Seen records key as admitted, with DedupFingerprintTTL expiry.
func (c *DedupCache) Seen(ctx context.Context, key string) {
	if c.client != nil {
		if err := c.client.Set(ctx, "dedup:"+key, 1, DedupFingerprintTTL).Err(); err != nil {
			log.Printf("[dedupcache] redis set failed, falling back to memory: %v", err)
		} else {
			return
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.local[key] = time.Now().Add(DedupFingerprintTTL)
}

// Contains reports whether key was recorded within its TTL.
func (c *DedupCache) Contains(ctx context.Context, key string) bool {
	if c.client != nil {
		n, err := c.client.Exists(ctx, "dedup:"+key).Result()
		if err == nil {
			return n > 0
		}
		log.Printf("[dedupcache] redis exists failed, falling back to memory: %v", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	exp, ok := c.local[key]
	if !ok {
		return false
	}
	if time.Now().After(exp) {
		delete(c.local, key)
		return false
	}
	return true
}

// Close releases the Redis client, if any.
func (c *DedupCache) Close() {
	if c.client != nil {
		c.client.Close()
	}
}
