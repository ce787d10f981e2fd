package batchgate

import (
	"context"
	"fmt"
	"maps"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Coordinator is the single entry point of the engine. It owns the
// fingerprint cache, the batch accumulator, the usage forecaster, and the
// quota governor; nothing outside the coordinator mutates them.
type Coordinator struct {
	cfg     Config
	meter   Meter
	policy  EligibilityPolicy
	extract TokenExtractor
	now     func() time.Time

	quota      *QuotaGovernor
	forecaster *Forecaster
	cache      *dedupCache
	batcher    *batcher
	limiter    *rate.Limiter
	janitor    *janitor

	closed atomic.Bool
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithMeter sets the meter.
func WithMeter(m Meter) Option {
	return func(c *Coordinator) { c.meter = m }
}

// WithEligibility sets the batch eligibility policy.
func WithEligibility(p EligibilityPolicy) Option {
	return func(c *Coordinator) { c.policy = p }
}

// WithTokenExtractor sets how actual token usage is read from results.
func WithTokenExtractor(fn TokenExtractor) Option {
	return func(c *Coordinator) { c.extract = fn }
}

// WithClock replaces the time source used for quota resets, cache expiry,
// and usage history timestamps. Batch window timers always run on wall
// time.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// New creates a Coordinator with the given config. Default components
// (threshold eligibility from cfg.Batching, DefaultTokenExtractor, noop
// meter) are used unless overridden via options. The cleanup scheduler
// starts immediately.
func New(cfg Config, opts ...Option) (*Coordinator, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Coordinator{
		cfg: cfg,
		now: time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	// Apply defaults after options.
	if c.meter == nil {
		c.meter = &noopMeter{}
	}
	if c.policy == nil {
		c.policy = newThresholdEligibility(cfg.Batching)
	}
	if c.extract == nil {
		c.extract = DefaultTokenExtractor
	}

	c.quota = NewQuotaGovernor(cfg.DailyTokenLimit)
	c.quota.now = c.now
	c.forecaster = NewForecaster(cfg.HistoryLimit, cfg.DefaultTokenEstimate)
	c.forecaster.now = c.now
	c.cache = newDedupCache(time.Duration(cfg.CacheTTL))
	c.cache.now = c.now
	c.batcher = newBatcher(cfg.BatchSize, time.Duration(cfg.BatchTimeout), c.runBatch)

	if cfg.MaxRequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.MaxRequestsPerSecond), cfg.RateBurst)
	}

	spec := cfg.CleanupSchedule
	if spec == "" {
		spec = fmt.Sprintf("@every %s", cfg.CleanupInterval)
	}
	j, err := newJanitor(spec, c.sweepCache)
	if err != nil {
		return nil, err
	}
	c.janitor = j
	c.janitor.start()

	return c, nil
}

// Submit runs one request through the admission pipeline and blocks until
// a result is available or the request fails. Duplicate submissions share
// one backend execution: concurrent duplicates join the in-flight call,
// and later duplicates are served from the cache until the TTL elapses.
// The returned map is the caller's own copy when served from the cache.
func (c *Coordinator) Submit(ctx context.Context, req Request, proc Processor) (Result, error) {
	if proc == nil {
		return nil, ErrNilProcessor
	}

	subID := uuid.New().String()
	taskType := req.TaskType()

	if c.closed.Load() {
		c.meter.OnAdmit(AdmitEvent{SubmissionID: subID, TaskType: taskType, Outcome: AdmitShutdown, Err: ErrShutdown})
		return nil, ErrShutdown
	}

	if err := c.quota.Admit(); err != nil {
		c.meter.OnAdmit(AdmitEvent{SubmissionID: subID, TaskType: taskType, Outcome: AdmitRejectedQuota, Err: err})
		return nil, err
	}

	if c.limiter != nil && !c.limiter.Allow() {
		c.meter.OnAdmit(AdmitEvent{SubmissionID: subID, TaskType: taskType, Outcome: AdmitRejectedRate, Err: ErrRateLimited})
		return nil, ErrRateLimited
	}

	payload, err := canonicalBytes(req)
	if err != nil {
		c.meter.OnAdmit(AdmitEvent{SubmissionID: subID, TaskType: taskType, Outcome: AdmitInvalid, Err: err})
		return nil, err
	}
	fp := hashPayload(payload)

	entry, state := c.cache.register(fp)
	switch state {
	case dedupHit:
		c.meter.OnAdmit(AdmitEvent{SubmissionID: subID, TaskType: taskType, Outcome: AdmitCacheHit})
		return maps.Clone(entry.res), nil
	case dedupInFlight:
		c.meter.OnAdmit(AdmitEvent{SubmissionID: subID, TaskType: taskType, Outcome: AdmitJoined})
		return c.await(ctx, entry)
	}

	item := batchItem{
		subID:    subID,
		fp:       fp,
		taskType: taskType,
		req:      req,
		entry:    entry,
		est:      c.forecaster.PredictTokens(taskType),
		proc:     proc,
	}

	if c.policy.Eligible(req, len(payload)) {
		if !c.batcher.add(item) {
			c.cache.storeFailure(fp, entry, ErrShutdown)
			c.meter.OnAdmit(AdmitEvent{SubmissionID: subID, TaskType: taskType, Outcome: AdmitShutdown, Err: ErrShutdown})
			return nil, ErrShutdown
		}
		c.meter.OnAdmit(AdmitEvent{SubmissionID: subID, TaskType: taskType, Outcome: AdmitBatched})
		return c.await(ctx, entry)
	}

	c.meter.OnAdmit(AdmitEvent{SubmissionID: subID, TaskType: taskType, Outcome: AdmitImmediate})
	return c.execute(ctx, item)
}

// ForceFlushPending flushes the current batch window immediately,
// regardless of size. A missing or empty window is a no-op.
func (c *Coordinator) ForceFlushPending() {
	c.batcher.forceFlush()
}

// Shutdown stops the engine: new submissions are refused, the pending
// batch window is drained, in-flight flushes are waited for, and waiters
// still unresolved afterwards fail with ErrShutdown. Idempotent.
func (c *Coordinator) Shutdown() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}

	c.janitor.stop()
	c.batcher.close()
	c.cache.failPending(ErrShutdown)
}

// QuotaStats returns a snapshot of the daily quota.
func (c *Coordinator) QuotaStats() QuotaStats { return c.quota.Stats() }

// UsageStats returns a snapshot of recorded usage and forecasts.
func (c *Coordinator) UsageStats() UsageStats { return c.forecaster.Stats() }

// CacheStats returns a snapshot of deduplication state.
func (c *Coordinator) CacheStats() CacheStats { return c.cache.stats() }

// BatchStats returns a snapshot of batching activity.
func (c *Coordinator) BatchStats() BatchStats { return c.batcher.stats() }

// await blocks until the entry settles or the caller's context ends.
// Waiters that give up leave the entry untouched; it still settles for
// everyone else.
func (c *Coordinator) await(ctx context.Context, e *cacheEntry) (Result, error) {
	select {
	case <-e.done:
		if e.err != nil {
			return nil, e.err
		}
		return maps.Clone(e.res), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// execute runs a single request immediately on the caller's goroutine,
// with the caller's context.
func (c *Coordinator) execute(ctx context.Context, it batchItem) (Result, error) {
	start := time.Now()
	results, err := runProcessor(ctx, it.proc, []Request{it.req})
	elapsed := time.Since(start)

	if err == nil && len(results) != 1 {
		err = ErrResultCount
	}
	if err == nil && results[0] == nil {
		err = ErrNoResult
	}
	if err != nil {
		return nil, c.settleFailure(it, err, elapsed, ModeImmediate, "")
	}

	c.settleSuccess(it, results[0], elapsed, ModeImmediate, "")
	return results[0], nil
}

// runBatch executes a flushed window. Runs on whichever goroutine
// triggered the flush, detached from any submitter's context.
func (c *Coordinator) runBatch(w *batchWindow, trigger FlushTrigger) {
	c.meter.OnFlush(FlushEvent{BatchID: w.id, Size: len(w.items), Trigger: trigger})

	reqs := make([]Request, len(w.items))
	for i, it := range w.items {
		reqs[i] = it.req
	}

	start := time.Now()
	results, err := runProcessor(context.Background(), w.proc, reqs)
	elapsed := time.Since(start)

	if err == nil && len(results) != len(reqs) {
		err = ErrResultCount
	}
	if err != nil {
		// Wholesale failure: every slot gets the same underlying error.
		for _, it := range w.items {
			c.settleFailure(it, err, elapsed, ModeBatched, w.id)
		}
		return
	}

	for i, it := range w.items {
		if results[i] == nil {
			c.settleFailure(it, ErrNoResult, elapsed, ModeBatched, w.id)
			continue
		}
		c.settleSuccess(it, results[i], elapsed, ModeBatched, w.id)
	}
}

// settleSuccess records usage, charges quota, caches the result, and wakes
// waiters, in that order.
func (c *Coordinator) settleSuccess(it batchItem, res Result, d time.Duration, mode Mode, batchID string) {
	tokens, ok := c.extract(res)
	if !ok || tokens <= 0 {
		tokens = it.est
	}

	c.forecaster.Record(it.taskType, tokens, d, true)
	c.quota.Consume(tokens)
	c.meter.OnQuota(QuotaEvent{Stats: c.quota.Stats()})
	c.cache.storeSuccess(it.fp, it.entry, res)
	c.meter.OnResult(ResultEvent{
		SubmissionID: it.subID,
		Fingerprint:  it.fp,
		TaskType:     it.taskType,
		Mode:         mode,
		BatchID:      batchID,
		Success:      true,
		Tokens:       tokens,
		Duration:     d,
	})
}

// settleFailure records the failure, wakes waiters with the wrapped error,
// and evicts the entry so a retry executes fresh. No quota is charged.
func (c *Coordinator) settleFailure(it batchItem, cause error, d time.Duration, mode Mode, batchID string) error {
	err := &SubmitError{
		Err:         cause,
		Fingerprint: it.fp,
		TaskType:    it.taskType,
		Mode:        mode,
		BatchID:     batchID,
	}

	c.forecaster.Record(it.taskType, 0, d, false)
	c.cache.storeFailure(it.fp, it.entry, err)
	c.meter.OnResult(ResultEvent{
		SubmissionID: it.subID,
		Fingerprint:  it.fp,
		TaskType:     it.taskType,
		Mode:         mode,
		BatchID:      batchID,
		Success:      false,
		Duration:     d,
		Err:          err,
	})
	return err
}

// sweepCache is the janitor job.
func (c *Coordinator) sweepCache() {
	removed, remaining := c.cache.sweep(c.now())
	if removed > 0 {
		c.meter.OnSweep(SweepEvent{Removed: removed, Remaining: remaining})
	}
}

// runProcessor shields the engine from processor panics so a bad callback
// cannot strand waiters or kill a flush goroutine.
func runProcessor(ctx context.Context, proc Processor, reqs []Request) (results []Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			results = nil
			err = fmt.Errorf("batchgate: processor panic: %v", r)
		}
	}()
	return proc(ctx, reqs)
}

// thresholdEligibility is the inline default policy to avoid import cycles.
type thresholdEligibility struct {
	maxPayload int
	critical   map[string]struct{}
	urgent     int
}

func newThresholdEligibility(cfg BatchingConfig) *thresholdEligibility {
	critical := make(map[string]struct{}, len(cfg.CriticalTaskTypes))
	for _, t := range cfg.CriticalTaskTypes {
		critical[t] = struct{}{}
	}
	return &thresholdEligibility{
		maxPayload: cfg.MaxPayloadBytes,
		critical:   critical,
		urgent:     cfg.UrgentPriority,
	}
}

func (p *thresholdEligibility) Eligible(req Request, payloadBytes int) bool {
	if payloadBytes > p.maxPayload {
		return false
	}
	if _, ok := p.critical[req.TaskType()]; ok {
		return false
	}
	return req.Priority() < p.urgent
}

// noopMeter is a meter that does nothing.
type noopMeter struct{}

func (m *noopMeter) OnAdmit(AdmitEvent)   {}
func (m *noopMeter) OnFlush(FlushEvent)   {}
func (m *noopMeter) OnResult(ResultEvent) {}
func (m *noopMeter) OnQuota(QuotaEvent)   {}
func (m *noopMeter) OnSweep(SweepEvent)   {}
