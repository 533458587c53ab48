package sweeper

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduper hands out one-shot claims on keys. Claim reports true only to
// the first caller for a key until ttl expires. It backs both the
// reminder de-duplication and the run lock shared by several server
// instances.
type Deduper interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// RedisDeduper claims keys with SET NX so every instance pointed at the
// same Redis shares them.
type RedisDeduper struct {
	RDB    *redis.Client
	Prefix string
}

func (d RedisDeduper) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return d.RDB.SetNX(ctx, d.Prefix+key, time.Now().UTC().Format(time.RFC3339), ttl).Result()
}

// MemoryDeduper is the single-process fallback used when Redis is not
// configured.
type MemoryDeduper struct {
	mu   sync.Mutex
	keys map[string]time.Time
	now  func() time.Time
}

func NewMemoryDeduper(now func() time.Time) *MemoryDeduper {
	if now == nil {
		now = time.Now
	}
	return &MemoryDeduper{keys: make(map[string]time.Time), now: now}
}

func (d *MemoryDeduper) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	for k, exp := range d.keys {
		if !now.Before(exp) {
			delete(d.keys, k)
		}
	}
	if _, held := d.keys[key]; held {
		return false, nil
	}
	d.keys[key] = now.Add(ttl)
	return true, nil
}
