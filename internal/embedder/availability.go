package embedder

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultProbeTimeout bounds a single readiness check
const DefaultProbeTimeout = 5 * time.Second

// AvailabilityCache remembers the result of a readiness check for a bounded time.
// It is owned by a single provider instance and is safe for concurrent use.
type AvailabilityCache struct {
	mu        sync.Mutex
	group     singleflight.Group
	ttl       time.Duration
	timeout   time.Duration
	now       func() time.Time
	checkedAt time.Time
	available bool
	valid     bool
}

// NewAvailabilityCache creates a cache holding results for ttl.
// A non-positive ttl disables caching.
func NewAvailabilityCache(ttl time.Duration) *AvailabilityCache {
	return &AvailabilityCache{
		ttl:     ttl,
		timeout: DefaultProbeTimeout,
		now:     time.Now,
	}
}

// Check returns the cached result while it is fresh, otherwise runs check and
// stores its result. Concurrent callers share a single in-flight check.
//
// The check runs detached from the caller's cancellation under its own
// timeout, so an abandoned caller never stores a result. A caller whose ctx
// is done gets false without waiting for the check to finish.
func (c *AvailabilityCache) Check(ctx context.Context, check func(ctx context.Context) bool) bool {
	if ctx.Err() != nil {
		return false
	}

	if available, ok := c.cached(); ok {
		return available
	}

	result := c.group.DoChan("check", func() (interface{}, error) {
		// a check that finished between the lookup above and this flight
		if available, ok := c.cached(); ok {
			return available, nil
		}

		checkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()

		available := check(checkCtx)

		c.mu.Lock()
		c.available = available
		c.checkedAt = c.now()
		c.valid = true
		c.mu.Unlock()
		return available, nil
	})

	select {
	case <-ctx.Done():
		return false
	case res := <-result:
		available, _ := res.Val.(bool)
		return available
	}
}

func (c *AvailabilityCache) cached() (bool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.valid && c.ttl > 0 && c.now().Sub(c.checkedAt) < c.ttl {
		return c.available, true
	}
	return false, false
}

// Invalidate forces the next Check to run
func (c *AvailabilityCache) Invalidate() {
	c.mu.Lock()
	c.valid = false
	c.mu.Unlock()
}
