package batchgate

import (
	"sync"
	"time"
)

// QuotaGovernor enforces a daily token budget. The gate is binary: while
// usage is below the limit every request is admitted, and the request that
// crosses the limit is still charged in full. Usage resets at local
// midnight, checked lazily on each operation.
type QuotaGovernor struct {
	mu      sync.Mutex
	limit   int64
	used    int64
	resetAt time.Time
	now     func() time.Time
}

// QuotaStats is a point-in-time snapshot of quota state.
type QuotaStats struct {
	Used         int64
	Limit        int64
	Remaining    int64   // never negative, even after overshoot
	Percentage   float64 // used/limit*100; may exceed 100 on overshoot
	Exhausted    bool
	ResetAt      time.Time
	HoursToReset float64
}

// NewQuotaGovernor creates a governor with the given daily token limit.
// The reset boundary is established on first use.
func NewQuotaGovernor(dailyLimit int64) *QuotaGovernor {
	return &QuotaGovernor{
		limit: dailyLimit,
		now:   time.Now,
	}
}

// Admit returns nil while the daily budget has headroom, and
// ErrQuotaExceeded once it is exhausted.
func (g *QuotaGovernor) Admit() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.maybeReset()

	if g.used >= g.limit {
		return ErrQuotaExceeded
	}
	return nil
}

// Consume records actual usage. Consumption never fails: usage already
// happened, so the budget may overshoot and the gate closes afterwards.
func (g *QuotaGovernor) Consume(tokens int64) {
	if tokens <= 0 {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.maybeReset()
	g.used += tokens
}

// Reset clears usage immediately and schedules the next automatic reset
// from the current time.
func (g *QuotaGovernor) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.used = 0
	g.resetAt = nextMidnight(g.now())
}

// Stats returns a snapshot of the current quota state.
func (g *QuotaGovernor) Stats() QuotaStats {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.maybeReset()

	remaining := g.limit - g.used
	if remaining < 0 {
		remaining = 0
	}
	var pct float64
	if g.limit > 0 {
		pct = float64(g.used) / float64(g.limit) * 100
	}
	return QuotaStats{
		Used:         g.used,
		Limit:        g.limit,
		Remaining:    remaining,
		Percentage:   pct,
		Exhausted:    g.used >= g.limit,
		ResetAt:      g.resetAt,
		HoursToReset: g.resetAt.Sub(g.now()).Hours(),
	}
}

// maybeReset zeroes usage once the reset boundary has passed. Must be
// called with the lock held.
func (g *QuotaGovernor) maybeReset() {
	now := g.now()
	if !now.Before(g.resetAt) {
		g.used = 0
		g.resetAt = nextMidnight(now)
	}
}

// nextMidnight returns the first midnight after now in now's location.
func nextMidnight(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, now.Location())
}
