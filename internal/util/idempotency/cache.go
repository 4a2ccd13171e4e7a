// Package idempotency provides a TTL cache that makes externally
// non-idempotent operations safe to repeat.
//
// A key derives from the operation name and its normalized parameters. Within
// the TTL window the cached result is returned and the operation never
// re-executes, which keeps crash/resume from repeating side effects such as
// key minting or gateway config creation. The cache is process-local and
// resets on restart.
package idempotency

import (
	"sort"
	"strings"
	"sync"
	"time"
)

type entry struct {
	result    any
	err       error
	createdAt time.Time
	ready     chan struct{}
}

// Cache is a concurrent-safe idempotency cache. The zero value is ready to use.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry

	now func() time.Time
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// Key builds a cache key from an operation name and its parameters.
// Parameters are sorted so argument order does not change the key.
func Key(op string, params ...string) string {
	sorted := append([]string(nil), params...)
	sort.Strings(sorted)
	return op + "|" + strings.Join(sorted, "|")
}

// Do returns the cached result for key if it is younger than ttl, otherwise
// executes op, caches its outcome, and returns it. Concurrent calls for the
// same key execute op once; the rest wait for that execution.
func (c *Cache) Do(key string, ttl time.Duration, op func() (any, error)) (any, error) {
	c.mu.Lock()
	if c.entries == nil {
		c.entries = make(map[string]*entry)
	}
	if c.now == nil {
		c.now = time.Now
	}

	if e, ok := c.entries[key]; ok {
		select {
		case <-e.ready:
			if c.now().Sub(e.createdAt) < ttl {
				c.mu.Unlock()
				return e.result, e.err
			}
			// Expired; fall through and re-execute.
		default:
			// In flight: wait for the running execution.
			c.mu.Unlock()
			<-e.ready
			return e.result, e.err
		}
	}

	e := &entry{ready: make(chan struct{})}
	c.entries[key] = e
	c.mu.Unlock()

	e.result, e.err = op()
	e.createdAt = c.now()
	close(e.ready)

	return e.result, e.err
}

// Forget drops a key so the next Do re-executes.
func (c *Cache) Forget(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}
