package batchgate_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	bg "github.com/ineyio/batchgate"
	"github.com/ineyio/batchgate/policy"
	"github.com/ineyio/batchgate/processor/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, cfg bg.Config, opts ...bg.Option) *bg.Coordinator {
	t.Helper()
	c, err := bg.New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(c.Shutdown)
	return c
}

// Test 1: immediate execution round trip with quota accounting
func TestImmediate_RoundTrip(t *testing.T) {
	backend := mock.New(mock.WithTokens(42))
	c := newTestEngine(t, bg.Config{DailyTokenLimit: 100_000},
		bg.WithEligibility(policy.BatchNone{}))

	res, err := c.Submit(context.Background(), bg.Request{
		"task_type": "analysis",
		"content":   "hello",
	}, backend.Process)

	require.NoError(t, err)
	assert.Equal(t, "ok", res["content"])
	assert.Equal(t, int64(1), backend.Calls())
	assert.Equal(t, int64(42), c.QuotaStats().Used)
}

// Test 2: duplicate submission served from cache without a backend call
func TestDuplicate_ServedFromCache(t *testing.T) {
	backend := mock.New()
	c := newTestEngine(t, bg.Config{DailyTokenLimit: 100_000},
		bg.WithEligibility(policy.BatchNone{}))

	req := bg.Request{"task_type": "analysis", "content": "same"}
	ctx := context.Background()

	first, err := c.Submit(ctx, req, backend.Process)
	require.NoError(t, err)

	second, err := c.Submit(ctx, req, backend.Process)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), backend.Calls())

	cs := c.CacheStats()
	assert.Equal(t, 1, cs.Entries)
	assert.Equal(t, int64(1), cs.Hits)
	assert.Equal(t, int64(1), cs.Misses)

	// Cached results are handed out as copies.
	second["content"] = "poisoned"
	third, err := c.Submit(ctx, req, backend.Process)
	require.NoError(t, err)
	assert.Equal(t, "ok", third["content"])
}

// Test 3: concurrent duplicates collapse onto one backend execution
func TestConcurrentDuplicates_ShareOneExecution(t *testing.T) {
	backend := mock.New(mock.WithLatency(100 * time.Millisecond))
	c := newTestEngine(t, bg.Config{DailyTokenLimit: 100_000},
		bg.WithEligibility(policy.BatchNone{}))

	req := bg.Request{"task_type": "analysis", "content": "dup"}

	var wg sync.WaitGroup
	errs := make([]error, 5)
	results := make([]bg.Result, 5)

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx], errs[idx] = c.Submit(context.Background(), req, backend.Process)
		}(i)
	}
	wg.Wait()

	for i := 0; i < 5; i++ {
		require.NoError(t, errs[i], "submission %d", i)
		assert.Equal(t, "ok", results[i]["content"], "submission %d", i)
	}
	assert.Equal(t, int64(1), backend.Calls())

	cs := c.CacheStats()
	assert.Equal(t, int64(4), cs.Hits)
	assert.Equal(t, int64(1), cs.Misses)
}

// Test 4: batch flushes at size with positional result mapping
func TestBatch_FlushesAtSize(t *testing.T) {
	backend := mock.New(mock.WithResponseFunc(func(req bg.Request) (bg.Result, error) {
		return bg.Result{"echo": req["id"], "tokens_used": 10}, nil
	}))
	c := newTestEngine(t, bg.Config{
		DailyTokenLimit: 100_000,
		BatchSize:       3,
		BatchTimeout:    bg.Duration(5 * time.Second),
	})

	ids := []string{"a", "b", "c"}
	var wg sync.WaitGroup
	errs := make([]error, len(ids))
	results := make([]bg.Result, len(ids))

	for i, id := range ids {
		wg.Add(1)
		go func(idx int, id string) {
			defer wg.Done()
			results[idx], errs[idx] = c.Submit(context.Background(), bg.Request{
				"task_type": "summarize",
				"id":        id,
			}, backend.Process)
		}(i, id)
	}
	wg.Wait()

	for i, id := range ids {
		require.NoError(t, errs[i])
		assert.Equal(t, id, results[i]["echo"], "result %d answers its own request", i)
	}

	assert.Equal(t, int64(1), backend.Calls())
	assert.Len(t, backend.LastBatch(), 3)

	bs := c.BatchStats()
	assert.Equal(t, int64(1), bs.SizeFlushes)
	assert.Equal(t, int64(3), bs.ItemsFlushed)
	assert.Zero(t, bs.Pending)
}

// Test 5: partial batch flushes when the window times out
func TestBatch_FlushesOnTimeout(t *testing.T) {
	backend := mock.New()
	c := newTestEngine(t, bg.Config{
		DailyTokenLimit: 100_000,
		BatchSize:       10,
		BatchTimeout:    bg.Duration(80 * time.Millisecond),
	})

	var wg sync.WaitGroup
	errs := make([]error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, errs[0] = c.Submit(context.Background(), bg.Request{"id": "first"}, backend.Process)
	}()

	require.Eventually(t, func() bool { return c.BatchStats().Pending == 1 },
		time.Second, time.Millisecond)

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, errs[1] = c.Submit(context.Background(), bg.Request{"id": "second"}, backend.Process)
	}()
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, int64(1), backend.Calls())
	assert.Len(t, backend.LastBatch(), 2)
	assert.Equal(t, int64(1), c.BatchStats().TimeoutFlushes)
}

// Test 6: wholesale batch failure fails every waiter with the same cause
func TestBatchFailure_FailsAllWaiters(t *testing.T) {
	backendErr := errors.New("backend exploded")
	backend := mock.New(mock.WithError(backendErr))
	c := newTestEngine(t, bg.Config{
		DailyTokenLimit: 100_000,
		BatchSize:       3,
		BatchTimeout:    bg.Duration(5 * time.Second),
	})

	var wg sync.WaitGroup
	errs := make([]error, 3)

	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_, errs[idx] = c.Submit(context.Background(), bg.Request{"id": idx}, backend.Process)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.Error(t, err, "submission %d", i)
		assert.ErrorIs(t, err, backendErr)
		assert.True(t, bg.IsExecutionError(err))

		var se *bg.SubmitError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, bg.ModeBatched, se.Mode)
		assert.NotEmpty(t, se.BatchID)
	}

	// Failures are never cached and never charged.
	assert.Zero(t, c.CacheStats().Entries)
	assert.Zero(t, c.QuotaStats().Used)
}

// Test 7: a nil result slot fails only that request
func TestBatch_NilSlotFailsOnlyThatRequest(t *testing.T) {
	backend := mock.New(mock.WithResponseFunc(func(req bg.Request) (bg.Result, error) {
		if req["poison"] == true {
			return nil, errors.New("bad request")
		}
		return bg.Result{"content": "ok", "tokens_used": 5}, nil
	}))
	c := newTestEngine(t, bg.Config{
		DailyTokenLimit: 100_000,
		BatchSize:       2,
		BatchTimeout:    bg.Duration(5 * time.Second),
	})

	var wg sync.WaitGroup
	var goodRes bg.Result
	var goodErr, badErr error

	wg.Add(2)
	go func() {
		defer wg.Done()
		goodRes, goodErr = c.Submit(context.Background(), bg.Request{"id": "good"}, backend.Process)
	}()
	go func() {
		defer wg.Done()
		_, badErr = c.Submit(context.Background(), bg.Request{"id": "bad", "poison": true}, backend.Process)
	}()
	wg.Wait()

	require.NoError(t, goodErr)
	assert.Equal(t, "ok", goodRes["content"])

	require.Error(t, badErr)
	assert.ErrorIs(t, badErr, bg.ErrNoResult)

	var se *bg.SubmitError
	require.ErrorAs(t, badErr, &se)
	assert.Equal(t, bg.ModeBatched, se.Mode)
}

// Test 8: the request crossing the quota limit completes, the next is refused
func TestQuota_CrossingRequestCharged(t *testing.T) {
	backend := mock.New(mock.WithTokens(60))
	c := newTestEngine(t, bg.Config{DailyTokenLimit: 100},
		bg.WithEligibility(policy.BatchNone{}))

	ctx := context.Background()

	_, err := c.Submit(ctx, bg.Request{"id": 1}, backend.Process)
	require.NoError(t, err)

	// 60 of 100 used: still admitted, charged past the limit.
	_, err = c.Submit(ctx, bg.Request{"id": 2}, backend.Process)
	require.NoError(t, err)

	_, err = c.Submit(ctx, bg.Request{"id": 3}, backend.Process)
	assert.ErrorIs(t, err, bg.ErrQuotaExceeded)
	assert.True(t, bg.IsAdmissionError(err))

	assert.Equal(t, int64(2), backend.Calls())

	qs := c.QuotaStats()
	assert.Equal(t, int64(120), qs.Used)
	assert.True(t, qs.Exhausted)
	assert.Zero(t, qs.Remaining)
	assert.InDelta(t, 120, qs.Percentage, 0.001)
}

// Test 9: exhausted quota refuses even requests that are already cached
func TestQuota_RejectsCachedDuplicateWhenExhausted(t *testing.T) {
	backend := mock.New(mock.WithTokens(60))
	c := newTestEngine(t, bg.Config{DailyTokenLimit: 50},
		bg.WithEligibility(policy.BatchNone{}))

	req := bg.Request{"content": "once"}
	ctx := context.Background()

	_, err := c.Submit(ctx, req, backend.Process)
	require.NoError(t, err)
	require.True(t, c.QuotaStats().Exhausted)

	_, err = c.Submit(ctx, req, backend.Process)
	assert.ErrorIs(t, err, bg.ErrQuotaExceeded,
		"admission control runs before the cache")
	assert.Equal(t, int64(1), backend.Calls())
}

// Test 10: rate gate refuses submissions over the burst
func TestRateLimit_RejectsBurstOverflow(t *testing.T) {
	backend := mock.New()
	c := newTestEngine(t, bg.Config{
		DailyTokenLimit:      100_000,
		MaxRequestsPerSecond: 1,
		RateBurst:            1,
	}, bg.WithEligibility(policy.BatchNone{}))

	ctx := context.Background()

	_, err := c.Submit(ctx, bg.Request{"id": 1}, backend.Process)
	require.NoError(t, err)

	_, err = c.Submit(ctx, bg.Request{"id": 2}, backend.Process)
	assert.ErrorIs(t, err, bg.ErrRateLimited)
	assert.True(t, bg.IsAdmissionError(err))
	assert.Equal(t, int64(1), backend.Calls())
}

// Test 11: oversized payloads skip batching
func TestLargePayload_SkipsBatching(t *testing.T) {
	backend := mock.New()
	c := newTestEngine(t, bg.Config{
		DailyTokenLimit: 100_000,
		BatchSize:       5,
		BatchTimeout:    bg.Duration(5 * time.Second),
		Batching:        bg.BatchingConfig{MaxPayloadBytes: 64},
	})

	// Returns without waiting on any batch window.
	_, err := c.Submit(context.Background(), bg.Request{
		"content": strings.Repeat("x", 200),
	}, backend.Process)

	require.NoError(t, err)
	assert.Equal(t, int64(1), backend.Calls())
	assert.Len(t, backend.LastBatch(), 1)
	assert.Zero(t, c.BatchStats().Flushes)
}

// Test 12: critical task types skip batching
func TestCriticalTaskType_SkipsBatching(t *testing.T) {
	backend := mock.New()
	c := newTestEngine(t, bg.Config{
		DailyTokenLimit: 100_000,
		BatchSize:       5,
		BatchTimeout:    bg.Duration(5 * time.Second),
		Batching:        bg.BatchingConfig{CriticalTaskTypes: []string{"billing"}},
	})

	_, err := c.Submit(context.Background(), bg.Request{
		"task_type": "billing",
		"content":   "charge",
	}, backend.Process)

	require.NoError(t, err)
	assert.Equal(t, int64(1), backend.Calls())
	assert.Zero(t, c.BatchStats().Flushes)
}

// Test 13: urgent priority skips batching
func TestUrgentPriority_SkipsBatching(t *testing.T) {
	backend := mock.New()
	c := newTestEngine(t, bg.Config{
		DailyTokenLimit: 100_000,
		BatchSize:       5,
		BatchTimeout:    bg.Duration(5 * time.Second),
	})

	_, err := c.Submit(context.Background(), bg.Request{
		"content":  "now",
		"priority": 9,
	}, backend.Process)

	require.NoError(t, err)
	assert.Equal(t, int64(1), backend.Calls())
	assert.Zero(t, c.BatchStats().Flushes)
}

// Test 14: unserializable payloads are refused before reaching the backend
func TestUnserializablePayload_Rejected(t *testing.T) {
	backend := mock.New()
	c := newTestEngine(t, bg.Config{DailyTokenLimit: 100_000})

	_, err := c.Submit(context.Background(), bg.Request{
		"ch": make(chan int),
	}, backend.Process)

	require.Error(t, err)

	var fe *bg.FingerprintError
	assert.ErrorAs(t, err, &fe)
	assert.Zero(t, backend.Calls())
}

// Test 15: nil processor
func TestNilProcessor_Rejected(t *testing.T) {
	c := newTestEngine(t, bg.Config{DailyTokenLimit: 100_000})

	_, err := c.Submit(context.Background(), bg.Request{"id": 1}, nil)
	assert.ErrorIs(t, err, bg.ErrNilProcessor)
}

// Test 16: results without usage fields are charged at the estimate
func TestTokenFallback_UsesEstimate(t *testing.T) {
	backend := mock.New(mock.WithResponseFunc(func(req bg.Request) (bg.Result, error) {
		return bg.Result{"content": "ok"}, nil
	}))
	c := newTestEngine(t, bg.Config{
		DailyTokenLimit:      100_000,
		DefaultTokenEstimate: 123,
	}, bg.WithEligibility(policy.BatchNone{}))

	_, err := c.Submit(context.Background(), bg.Request{"id": 1}, backend.Process)

	require.NoError(t, err)
	assert.Equal(t, int64(123), c.QuotaStats().Used,
		"no usage in the result, charge the forecast")
}

// Test 17: custom token extractor
func TestCustomTokenExtractor(t *testing.T) {
	backend := mock.New(mock.WithResponseFunc(func(req bg.Request) (bg.Result, error) {
		return bg.Result{"cost": int64(7)}, nil
	}))
	c := newTestEngine(t, bg.Config{DailyTokenLimit: 100_000},
		bg.WithEligibility(policy.BatchNone{}),
		bg.WithTokenExtractor(func(res bg.Result) (int64, bool) {
			v, ok := res["cost"].(int64)
			return v, ok
		}),
	)

	_, err := c.Submit(context.Background(), bg.Request{"id": 1}, backend.Process)

	require.NoError(t, err)
	assert.Equal(t, int64(7), c.QuotaStats().Used)
}

// Test 18: nested usage shape is understood by the default extractor
func TestNestedUsage_Extracted(t *testing.T) {
	backend := mock.New(mock.WithResponseFunc(func(req bg.Request) (bg.Result, error) {
		return bg.Result{"usage": map[string]any{"total_tokens": 88}}, nil
	}))
	c := newTestEngine(t, bg.Config{DailyTokenLimit: 100_000},
		bg.WithEligibility(policy.BatchNone{}))

	_, err := c.Submit(context.Background(), bg.Request{"id": 1}, backend.Process)

	require.NoError(t, err)
	assert.Equal(t, int64(88), c.QuotaStats().Used)
}

// Test 19: failures are not charged and do not poison retries
func TestFailure_NotChargedAndRetryable(t *testing.T) {
	var calls atomic.Int64
	backend := mock.New(mock.WithResponseFunc(func(req bg.Request) (bg.Result, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("transient")
		}
		return bg.Result{"content": "ok", "tokens_used": 10}, nil
	}))
	c := newTestEngine(t, bg.Config{DailyTokenLimit: 100_000},
		bg.WithEligibility(policy.BatchNone{}))

	req := bg.Request{"content": "retry me"}
	ctx := context.Background()

	_, err := c.Submit(ctx, req, backend.Process)
	require.Error(t, err)
	assert.ErrorIs(t, err, bg.ErrNoResult)
	assert.Zero(t, c.QuotaStats().Used)

	// The failure was evicted, so the retry executes fresh.
	res, err := c.Submit(ctx, req, backend.Process)
	require.NoError(t, err)
	assert.Equal(t, "ok", res["content"])
	assert.Equal(t, int64(2), backend.Calls())
	assert.Equal(t, int64(10), c.QuotaStats().Used)
}

// Test 20: processor panics surface as errors, not crashes
func TestProcessorPanic_SurfacesAsError(t *testing.T) {
	c := newTestEngine(t, bg.Config{DailyTokenLimit: 100_000},
		bg.WithEligibility(policy.BatchNone{}))

	_, err := c.Submit(context.Background(), bg.Request{"id": 1},
		func(ctx context.Context, reqs []bg.Request) ([]bg.Result, error) {
			panic("processor bug")
		})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "processor panic")
	assert.True(t, bg.IsExecutionError(err))
}

// Test 21: shutdown refuses new submissions
func TestShutdown_RefusesNewSubmissions(t *testing.T) {
	backend := mock.New()
	c := newTestEngine(t, bg.Config{DailyTokenLimit: 100_000})

	c.Shutdown()
	c.Shutdown() // idempotent

	_, err := c.Submit(context.Background(), bg.Request{"id": 1}, backend.Process)
	assert.ErrorIs(t, err, bg.ErrShutdown)
	assert.True(t, bg.IsAdmissionError(err))
	assert.Zero(t, backend.Calls())
}

// Test 22: shutdown drains the pending batch window
func TestShutdown_DrainsPendingWindow(t *testing.T) {
	backend := mock.New()
	c := newTestEngine(t, bg.Config{
		DailyTokenLimit: 100_000,
		BatchSize:       10,
		BatchTimeout:    bg.Duration(10 * time.Second),
	})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	results := make([]bg.Result, 2)

	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx], errs[idx] = c.Submit(context.Background(),
				bg.Request{"id": idx}, backend.Process)
		}(i)
	}

	require.Eventually(t, func() bool { return c.BatchStats().Pending == 2 },
		time.Second, time.Millisecond)

	c.Shutdown()
	wg.Wait()

	for i := 0; i < 2; i++ {
		require.NoError(t, errs[i], "submission %d must be drained, not dropped", i)
		assert.Equal(t, "ok", results[i]["content"])
	}
	assert.Equal(t, int64(1), backend.Calls())
	assert.Equal(t, int64(1), c.BatchStats().ForcedFlushes)
}

// Test 23: shutdown fails joiners that have no execution to wait for
func TestShutdown_FailsUnresolvedJoiners(t *testing.T) {
	backend := mock.New(mock.WithLatency(200 * time.Millisecond))
	c := newTestEngine(t, bg.Config{DailyTokenLimit: 100_000},
		bg.WithEligibility(policy.BatchNone{}))

	req := bg.Request{"content": "slow"}

	var ownerRes bg.Result
	var ownerErr, joinerErr error
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		ownerRes, ownerErr = c.Submit(context.Background(), req, backend.Process)
	}()
	time.Sleep(50 * time.Millisecond)

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, joinerErr = c.Submit(context.Background(), req, backend.Process)
	}()
	time.Sleep(50 * time.Millisecond)

	c.Shutdown()
	wg.Wait()

	// The owner's execution was already in flight and completes.
	require.NoError(t, ownerErr)
	assert.Equal(t, "ok", ownerRes["content"])

	assert.ErrorIs(t, joinerErr, bg.ErrShutdown)
}

// Test 24: a waiter giving up does not disturb the shared execution
func TestCanceledWaiter_LeavesExecutionAlone(t *testing.T) {
	backend := mock.New(mock.WithLatency(150 * time.Millisecond))
	c := newTestEngine(t, bg.Config{DailyTokenLimit: 100_000},
		bg.WithEligibility(policy.BatchNone{}))

	req := bg.Request{"content": "patient"}

	var ownerErr error
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, ownerErr = c.Submit(context.Background(), req, backend.Process)
	}()
	time.Sleep(30 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := c.Submit(ctx, req, backend.Process)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	wg.Wait()
	require.NoError(t, ownerErr)

	// The settled result is still served to later duplicates.
	res, err := c.Submit(context.Background(), req, backend.Process)
	require.NoError(t, err)
	assert.Equal(t, "ok", res["content"])
	assert.Equal(t, int64(1), backend.Calls())
}

// Test 25: ForceFlushPending flushes a partial window on demand
func TestForceFlushPending(t *testing.T) {
	backend := mock.New()
	c := newTestEngine(t, bg.Config{
		DailyTokenLimit: 100_000,
		BatchSize:       10,
		BatchTimeout:    bg.Duration(10 * time.Second),
	})

	// Flushing with no window is a no-op.
	c.ForceFlushPending()

	var res bg.Result
	var err error
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		res, err = c.Submit(context.Background(), bg.Request{"id": 1}, backend.Process)
	}()

	require.Eventually(t, func() bool { return c.BatchStats().Pending == 1 },
		time.Second, time.Millisecond)

	c.ForceFlushPending()
	wg.Wait()

	require.NoError(t, err)
	assert.Equal(t, "ok", res["content"])
	assert.Equal(t, int64(1), c.BatchStats().ForcedFlushes)
}

// Test 26: the janitor sweeps expired cache entries
func TestJanitor_SweepsExpiredEntries(t *testing.T) {
	backend := mock.New()
	c := newTestEngine(t, bg.Config{
		DailyTokenLimit: 100_000,
		CacheTTL:        bg.Duration(50 * time.Millisecond),
		CleanupInterval: bg.Duration(time.Second),
	}, bg.WithEligibility(policy.BatchNone{}))

	_, err := c.Submit(context.Background(), bg.Request{"id": 1}, backend.Process)
	require.NoError(t, err)
	require.Equal(t, 1, c.CacheStats().Entries)

	assert.Eventually(t, func() bool { return c.CacheStats().Entries == 0 },
		3*time.Second, 50*time.Millisecond)
}

// Test 27: usage history feeds the stats snapshot
func TestUsageStats_Accumulate(t *testing.T) {
	backend := mock.New(mock.WithTokens(40))
	c := newTestEngine(t, bg.Config{DailyTokenLimit: 100_000},
		bg.WithEligibility(policy.BatchNone{}))

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := c.Submit(ctx, bg.Request{"task_type": "analysis", "id": i}, backend.Process)
		require.NoError(t, err)
	}

	us := c.UsageStats()
	assert.Equal(t, 3, us.Records)
	assert.Equal(t, 3, us.Successes)
	assert.Zero(t, us.Failures)
	assert.InDelta(t, 1.0, us.SuccessRate, 0.001)
	assert.InDelta(t, 40, us.AvgTokens, 0.001)
	assert.Equal(t, int64(120), us.TodayByTaskType["analysis"])
	assert.Greater(t, us.PredictedDailyTokens, 0.0)
}

// Test: New rejects invalid configuration
func TestNew_RejectsInvalidConfig(t *testing.T) {
	_, err := bg.New(bg.Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "daily_token_limit")

	_, err = bg.New(bg.Config{DailyTokenLimit: 10, CleanupSchedule: "junk"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cleanup_schedule")
}

// Test: error helpers
func TestErrorHelpers(t *testing.T) {
	assert.True(t, bg.IsAdmissionError(bg.ErrQuotaExceeded))
	assert.True(t, bg.IsAdmissionError(bg.ErrRateLimited))
	assert.True(t, bg.IsAdmissionError(bg.ErrShutdown))
	assert.False(t, bg.IsAdmissionError(&bg.SubmitError{Err: errors.New("boom")}))

	se := &bg.SubmitError{Err: bg.ErrNoResult, TaskType: "analysis", Mode: bg.ModeBatched}
	assert.True(t, bg.IsExecutionError(se))
	assert.True(t, bg.IsExecutionError(fmt.Errorf("wrapped: %w", se)))
	assert.False(t, bg.IsExecutionError(bg.ErrQuotaExceeded))

	assert.ErrorIs(t, se, bg.ErrNoResult, "SubmitError unwraps to its cause")
}

// Test: request accessors
func TestRequestAccessors(t *testing.T) {
	assert.Equal(t, "analysis", bg.Request{"task_type": "analysis"}.TaskType())
	assert.Equal(t, "summary", bg.Request{"type": "summary"}.TaskType())
	assert.Equal(t, bg.DefaultTaskType, bg.Request{}.TaskType())
	assert.Equal(t, bg.DefaultTaskType, bg.Request{"task_type": 7}.TaskType())

	assert.Equal(t, 5, bg.Request{"priority": 5}.Priority())
	assert.Equal(t, 5, bg.Request{"priority": 5.0}.Priority())
	assert.Zero(t, bg.Request{}.Priority())
	assert.Zero(t, bg.Request{"priority": "high"}.Priority())
}

// Test: Mode and FlushTrigger labels
func TestLabelStrings(t *testing.T) {
	assert.Equal(t, "immediate", bg.ModeImmediate.String())
	assert.Equal(t, "batched", bg.ModeBatched.String())
	assert.Equal(t, "size", bg.TriggerSize.String())
	assert.Equal(t, "timeout", bg.TriggerTimeout.String())
	assert.Equal(t, "forced", bg.TriggerForced.String())
}
