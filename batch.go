package batchgate

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// FlushTrigger records why a batch window was flushed.
type FlushTrigger int

const (
	TriggerSize FlushTrigger = iota
	TriggerTimeout
	TriggerForced
)

func (t FlushTrigger) String() string {
	switch t {
	case TriggerSize:
		return "size"
	case TriggerTimeout:
		return "timeout"
	case TriggerForced:
		return "forced"
	default:
		return "unknown"
	}
}

// batchItem is one admitted request waiting in a batch window. idx is the
// item's position in the window and therefore in the processor's request
// and result slices.
type batchItem struct {
	idx      int
	subID    string
	fp       string
	taskType string
	req      Request
	entry    *cacheEntry
	est      int64 // pre-call token estimate
	proc     Processor
}

// batchWindow is a single accumulation of items headed for one processor
// call. Items are never reordered, so idx stays stable for result mapping.
// The processor is captured from the window's first item.
type batchWindow struct {
	id    string
	items []batchItem
	timer *time.Timer
	proc  Processor
}

// batcher accumulates eligible requests and flushes them when the window
// reaches size, its timeout fires, or a flush is forced. A window is
// detached from the batcher before its processor runs, so new submissions
// accumulate in a fresh window during processing.
type batcher struct {
	mu      sync.Mutex
	size    int
	timeout time.Duration
	run     func(w *batchWindow, trigger FlushTrigger)
	cur     *batchWindow
	closed  bool
	wg      sync.WaitGroup

	flushes        int64
	sizeFlushes    int64
	timeoutFlushes int64
	forcedFlushes  int64
	itemsFlushed   int64
	lastFlush      time.Time
}

// BatchStats is a point-in-time snapshot of batching activity.
type BatchStats struct {
	Pending        int // items waiting in the current window
	Flushes        int64
	SizeFlushes    int64
	TimeoutFlushes int64
	ForcedFlushes  int64
	ItemsFlushed   int64
	LastFlush      time.Time
}

func newBatcher(size int, timeout time.Duration, run func(*batchWindow, FlushTrigger)) *batcher {
	return &batcher{
		size:    size,
		timeout: timeout,
		run:     run,
	}
}

// add appends an item to the current window, opening one if needed, and
// flushes when the window reaches capacity. Returns false if the batcher
// is closed; the item was not accepted and its entry is untouched.
func (b *batcher) add(item batchItem) bool {
	b.mu.Lock()

	if b.closed {
		b.mu.Unlock()
		return false
	}

	if b.cur == nil {
		w := &batchWindow{id: uuid.New().String(), proc: item.proc}
		w.timer = time.AfterFunc(b.timeout, func() { b.flushExpired(w) })
		b.cur = w
	}

	w := b.cur
	item.idx = len(w.items)
	w.items = append(w.items, item)

	if len(w.items) < b.size {
		b.mu.Unlock()
		return true
	}

	// Window full: detach it and run the flush on this goroutine.
	b.cur = nil
	w.timer.Stop()
	b.wg.Add(1)
	b.mu.Unlock()

	b.dispatch(w, TriggerSize)
	return true
}

// flushExpired is the timer callback. If the window was already detached
// by a size or forced flush, the timer lost the race and does nothing.
func (b *batcher) flushExpired(w *batchWindow) {
	b.mu.Lock()
	if b.cur != w {
		b.mu.Unlock()
		return
	}
	b.cur = nil
	b.wg.Add(1)
	b.mu.Unlock()

	b.dispatch(w, TriggerTimeout)
}

// forceFlush flushes the current window regardless of size. A missing or
// empty window is a no-op.
func (b *batcher) forceFlush() {
	b.mu.Lock()
	w := b.cur
	if w == nil {
		b.mu.Unlock()
		return
	}
	b.cur = nil
	w.timer.Stop()
	b.wg.Add(1)
	b.mu.Unlock()

	b.dispatch(w, TriggerForced)
}

// close stops accepting items, drains the pending window synchronously,
// and waits for any in-flight flushes to finish.
func (b *batcher) close() {
	b.mu.Lock()
	b.closed = true
	w := b.cur
	b.cur = nil
	if w != nil {
		w.timer.Stop()
		b.wg.Add(1)
	}
	b.mu.Unlock()

	if w != nil {
		b.dispatch(w, TriggerForced)
	}
	b.wg.Wait()
}

// dispatch records flush accounting and hands the window to the runner.
// Callers must hold a wg slot taken while the window was detached.
func (b *batcher) dispatch(w *batchWindow, trigger FlushTrigger) {
	defer b.wg.Done()

	b.mu.Lock()
	b.flushes++
	switch trigger {
	case TriggerSize:
		b.sizeFlushes++
	case TriggerTimeout:
		b.timeoutFlushes++
	case TriggerForced:
		b.forcedFlushes++
	}
	b.itemsFlushed += int64(len(w.items))
	b.lastFlush = time.Now()
	b.mu.Unlock()

	b.run(w, trigger)
}

func (b *batcher) stats() BatchStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := BatchStats{
		Flushes:        b.flushes,
		SizeFlushes:    b.sizeFlushes,
		TimeoutFlushes: b.timeoutFlushes,
		ForcedFlushes:  b.forcedFlushes,
		ItemsFlushed:   b.itemsFlushed,
		LastFlush:      b.lastFlush,
	}
	if b.cur != nil {
		s.Pending = len(b.cur.items)
	}
	return s
}
