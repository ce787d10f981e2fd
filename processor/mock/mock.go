package mock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ineyio/batchgate"
)

// ErrUnavailable is returned once a Backend configured with WithFailAfter
// runs out of successful calls.
var ErrUnavailable = errors.New("mock: backend unavailable")

// Backend is a mock processor for testing. Its Process method satisfies
// batchgate.Processor and records every batch it receives.
type Backend struct {
	latency   time.Duration
	tokens    int64
	staticErr error
	failAfter int
	respond   func(req batchgate.Request) (batchgate.Result, error)

	callCount atomic.Int64
	mu        sync.Mutex
	batches   [][]batchgate.Request
}

// Option configures a mock Backend.
type Option func(*Backend)

// New creates a mock backend with the given options.
func New(opts ...Option) *Backend {
	b := &Backend{tokens: 30}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// WithLatency adds simulated latency to each call.
func WithLatency(d time.Duration) Option {
	return func(b *Backend) { b.latency = d }
}

// WithTokens sets the tokens_used reported in default results.
func WithTokens(n int64) Option {
	return func(b *Backend) { b.tokens = n }
}

// WithError makes every call return this error.
func WithError(err error) Option {
	return func(b *Backend) { b.staticErr = err }
}

// WithFailAfter makes the backend fail with ErrUnavailable after n
// successful calls.
func WithFailAfter(n int) Option {
	return func(b *Backend) { b.failAfter = n }
}

// WithResponseFunc sets a per-request response function. Returning an
// error leaves that request's result slot nil, which the engine treats as
// a per-request failure.
func WithResponseFunc(fn func(req batchgate.Request) (batchgate.Result, error)) Option {
	return func(b *Backend) { b.respond = fn }
}

// Process executes a batch of requests.
func (b *Backend) Process(ctx context.Context, reqs []batchgate.Request) ([]batchgate.Result, error) {
	if b.latency > 0 {
		select {
		case <-time.After(b.latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	count := b.callCount.Add(1)

	snapshot := make([]batchgate.Request, len(reqs))
	copy(snapshot, reqs)
	b.mu.Lock()
	b.batches = append(b.batches, snapshot)
	b.mu.Unlock()

	if b.staticErr != nil {
		return nil, b.staticErr
	}
	if b.failAfter > 0 && int(count) > b.failAfter {
		return nil, ErrUnavailable
	}

	results := make([]batchgate.Result, len(reqs))
	for i, req := range reqs {
		if b.respond != nil {
			res, err := b.respond(req)
			if err != nil {
				continue
			}
			results[i] = res
			continue
		}
		results[i] = batchgate.Result{
			"content":     "ok",
			"tokens_used": b.tokens,
		}
	}
	return results, nil
}

// Calls returns the number of Process invocations so far.
func (b *Backend) Calls() int64 { return b.callCount.Load() }

// Batches returns a copy of every batch received, in arrival order.
func (b *Backend) Batches() [][]batchgate.Request {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([][]batchgate.Request, len(b.batches))
	copy(out, b.batches)
	return out
}

// LastBatch returns the most recently received batch, or nil.
func (b *Backend) LastBatch() []batchgate.Request {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.batches) == 0 {
		return nil
	}
	return b.batches[len(b.batches)-1]
}
