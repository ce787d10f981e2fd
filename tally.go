package batchgate

import (
	"maps"
	"sync"
	"time"
)

// usageTally tracks today's token consumption per task type with daily
// reset. Unlike the forecaster history it has no size cap, so per-type
// daily totals stay exact even when old records have been evicted.
type usageTally struct {
	mu      sync.Mutex
	byType  map[string]int64
	resetAt time.Time
}

func newUsageTally() *usageTally {
	return &usageTally{byType: make(map[string]int64)}
}

// record adds tokens to the task type's total for today.
func (t *usageTally) record(taskType string, tokens int64, now time.Time) {
	if tokens <= 0 {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.checkReset(now)
	t.byType[taskType] += tokens
}

// snapshot returns a copy of today's per-type totals.
func (t *usageTally) snapshot(now time.Time) map[string]int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.checkReset(now)
	return maps.Clone(t.byType)
}

// checkReset clears all totals once the day has rolled over. Must be called
// with the lock held.
func (t *usageTally) checkReset(now time.Time) {
	if t.resetAt.IsZero() {
		t.resetAt = nextMidnight(now)
		return
	}
	if !now.Before(t.resetAt) {
		t.byType = make(map[string]int64)
		t.resetAt = nextMidnight(now)
	}
}
