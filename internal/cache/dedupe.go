// Package cache holds the view deduplication cache: a shared redis tier so
// dedup works across server processes, with an in-process TTL map used when
// redis is unreachable. The fallback is per-process, so a scaled deployment
// with redis down will undercount duplicate suppression; that degraded mode
// is accepted.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultWindow is how long a (article, visitor) pair suppresses repeat
// view counts.
const DefaultWindow = 5 * time.Minute

// ViewDeduper answers "has this visitor been counted for this article
// recently?" and marks them counted in the same call.
type ViewDeduper struct {
	client *redis.Client // nil when redis is not configured
	ttl    time.Duration
	logger *zap.Logger

	mu      sync.Mutex
	local   map[string]time.Time // key -> expiry
	markOps int
}

func NewViewDeduper(client *redis.Client, ttl time.Duration, logger *zap.Logger) *ViewDeduper {
	if ttl <= 0 {
		ttl = DefaultWindow
	}
	return &ViewDeduper{
		client: client,
		ttl:    ttl,
		logger: logger,
		local:  make(map[string]time.Time),
	}
}

// SeenRecently reports whether key was seen within the window and, if not,
// marks it seen. Redis is tried first on every call; any redis error falls
// back to the in-process map for this call only, so a recovered redis is
// picked up again on the next request.
func (d *ViewDeduper) SeenRecently(ctx context.Context, key string) bool {
	if d.client != nil {
		set, err := d.client.SetNX(ctx, key, "1", d.ttl).Result()
		if err == nil {
			return !set
		}
		d.logger.Warn("View dedup cache unavailable, using in-process fallback",
			zap.Error(err))
	}
	return d.seenLocal(key)
}

func (d *ViewDeduper) seenLocal(key string) bool {
	now := time.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	expiry, ok := d.local[key]
	if ok && now.Before(expiry) {
		return true
	}
	d.local[key] = now.Add(d.ttl)

	// Prune expired entries occasionally so the map does not grow without
	// bound while redis is down.
	d.markOps++
	if d.markOps%1024 == 0 {
		for k, exp := range d.local {
			if now.After(exp) {
				delete(d.local, k)
			}
		}
	}

	return false
}

// LocalSize returns the number of entries in the fallback map.
func (d *ViewDeduper) LocalSize() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.local)
}

// NewRedisClient builds the shared cache client. Callers should Ping it at
// startup and log, not fail, when it is down.
func NewRedisClient(addr string) *redis.Client {
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr: addr,
	})
}
