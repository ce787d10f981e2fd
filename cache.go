package batchgate

import (
	"encoding/json"
	"sync"
	"time"
)

// dedupState classifies the outcome of registering a fingerprint.
type dedupState int

const (
	dedupNew      dedupState = iota // caller owns execution
	dedupInFlight                   // same fingerprint executing, wait on the entry
	dedupHit                        // completed result available on the entry
)

// cacheEntry is the rendezvous point for every submission sharing one
// fingerprint. The executing owner resolves it exactly once; duplicate
// submissions block on done. Waiters hold the pointer directly, so an
// entry stays settleable even after the cache has dropped it.
type cacheEntry struct {
	insertedAt   time.Time
	hitCount     int64
	payloadBytes int

	once sync.Once
	done chan struct{}
	res  Result
	err  error
}

// resolve publishes the outcome and wakes all waiters. Only the first
// outcome sticks.
func (e *cacheEntry) resolve(res Result, err error) {
	e.once.Do(func() {
		e.res = res
		e.err = err
		close(e.done)
	})
}

func (e *cacheEntry) resolved() bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}

// dedupCache deduplicates requests by fingerprint. Completed results are
// served until their TTL elapses; in-flight entries collapse concurrent
// duplicates onto a single execution and never expire while unresolved.
type dedupCache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
	ttl     time.Duration
	hits    int64
	misses  int64
	now     func() time.Time
}

// CacheStats is a point-in-time snapshot of deduplication state.
type CacheStats struct {
	Entries      int
	InFlight     int
	Hits         int64
	Misses       int64
	PayloadBytes int64 // total size of cached result payloads
}

func newDedupCache(ttl time.Duration) *dedupCache {
	return &dedupCache{
		entries: make(map[string]*cacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// register looks up the fingerprint and returns the entry the caller
// should use. dedupNew means the caller owns execution and must later
// settle the entry via storeSuccess or storeFailure. Expired completed
// entries are dropped lazily here, without waiting for a sweep.
func (c *dedupCache) register(fp string) (*cacheEntry, dedupState) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if e, ok := c.entries[fp]; ok {
		if !e.resolved() {
			e.hitCount++
			c.hits++
			return e, dedupInFlight
		}
		if now.Sub(e.insertedAt) < c.ttl {
			e.hitCount++
			c.hits++
			return e, dedupHit
		}
		delete(c.entries, fp)
	}

	e := &cacheEntry{
		insertedAt: now,
		done:       make(chan struct{}),
	}
	c.entries[fp] = e
	c.misses++
	return e, dedupNew
}

// result returns the cached result for a fingerprint if one is present,
// completed, and fresh.
func (c *dedupCache) result(fp string) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[fp]
	if !ok || !e.resolved() || e.err != nil {
		return nil, false
	}
	if c.now().Sub(e.insertedAt) >= c.ttl {
		delete(c.entries, fp)
		return nil, false
	}
	return e.res, true
}

// storeSuccess records a completed result on the entry and wakes waiters.
// The entry keeps serving hits until its TTL elapses. If the cache no
// longer maps the fingerprint to this entry the result is not re-cached,
// but waiters are still settled.
func (c *dedupCache) storeSuccess(fp string, e *cacheEntry, res Result) {
	size := payloadSize(res)

	c.mu.Lock()
	if c.entries[fp] == e {
		e.payloadBytes = size
	}
	c.mu.Unlock()

	e.resolve(res, nil)
}

// storeFailure settles the entry with an error and removes it from the
// cache, so the next identical request executes again rather than
// replaying the failure.
func (c *dedupCache) storeFailure(fp string, e *cacheEntry, err error) {
	c.mu.Lock()
	if c.entries[fp] == e {
		delete(c.entries, fp)
	}
	c.mu.Unlock()

	e.resolve(nil, err)
}

// sweep removes expired completed entries. In-flight entries are left
// alone. Returns how many entries were removed and how many remain.
func (c *dedupCache) sweep(now time.Time) (removed, remaining int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for fp, e := range c.entries {
		if e.resolved() && now.Sub(e.insertedAt) >= c.ttl {
			delete(c.entries, fp)
			removed++
		}
	}
	return removed, len(c.entries)
}

// failPending settles every unresolved entry with err and drops it.
// Completed entries are untouched.
func (c *dedupCache) failPending(err error) {
	c.mu.Lock()
	var pending []*cacheEntry
	for fp, e := range c.entries {
		if !e.resolved() {
			pending = append(pending, e)
			delete(c.entries, fp)
		}
	}
	c.mu.Unlock()

	for _, e := range pending {
		e.resolve(nil, err)
	}
}

func (c *dedupCache) stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := CacheStats{
		Entries: len(c.entries),
		Hits:    c.hits,
		Misses:  c.misses,
	}
	for _, e := range c.entries {
		if !e.resolved() {
			s.InFlight++
		}
		s.PayloadBytes += int64(e.payloadBytes)
	}
	return s
}

// payloadSize estimates the serialized size of a result. Best effort: a
// result that cannot be marshaled counts as zero.
func payloadSize(res Result) int {
	b, err := json.Marshal(res)
	if err != nil {
		return 0
	}
	return len(b)
}
