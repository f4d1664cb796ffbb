// Package batchwriter debounces writes to a kvtable.BatchHandle, grounded
// on original_source's TimedBatchTable: each PutItem cancels any pending
// flush and reschedules one MT_WRITE_DELAY out, so a hot key flushes once
// per quiet period instead of once per write.
package batchwriter

import (
	"context"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/amondawa/amondawa/internal/amdwerr"
	"github.com/amondawa/amondawa/internal/kvtable"
	"github.com/amondawa/amondawa/internal/metrics"
	"github.com/amondawa/amondawa/internal/scheduledpool"
)

// Writer batches PutItem calls against a single table's BatchHandle and
// flushes them on a debounce timer.
type Writer struct {
	mu     sync.Mutex
	handle kvtable.BatchHandle
	pool   *scheduledpool.Pool
	delay  time.Duration
	logger log.Logger

	event   *scheduledpool.Event
	pending int
}

// New wraps handle with debounced flushing on pool, delaying each flush by
// delay after the last PutItem.
func New(handle kvtable.BatchHandle, pool *scheduledpool.Pool, delay time.Duration, logger log.Logger) *Writer {
	return &Writer{
		handle: handle,
		pool:   pool,
		delay:  delay,
		logger: logger,
	}
}

// PutItem buffers item and (re)schedules a flush delay out.
func (w *Writer) PutItem(ctx context.Context, item kvtable.Item) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.event != nil {
		w.event.Cancel()
	}
	if err := w.handle.Put(item); err != nil {
		return amdwerr.New(amdwerr.BackendTransport, "batchwriter.PutItem", err)
	}
	w.pending++
	// The debounced flush fires seconds after this call returns, so it must
	// not inherit a request-scoped ctx that may already be canceled by
	// then; it runs with its own background context, matching the
	// original's thread-based ScheduledIOPool, which carries no per-call
	// cancellation.
	w.event = w.pool.Schedule(w.delay, func() { w.timerFlush(context.Background()) })
	return nil
}

func (w *Writer) timerFlush(ctx context.Context) {
	w.mu.Lock()
	w.event = nil
	w.mu.Unlock()

	if err := w.Flush(ctx); err != nil {
		level.Error(w.logger).Log("msg", "batch flush failed", "err", err)
	}
}

// Flush forces an immediate flush, canceling any pending debounce timer.
// Callers use this for shutdown and for tests that need synchronous
// durability.
func (w *Writer) Flush(ctx context.Context) error {
	w.mu.Lock()
	if w.event != nil {
		w.event.Cancel()
		w.event = nil
	}
	items := w.pending
	w.pending = 0
	w.mu.Unlock()

	start := time.Now()
	err := w.handle.Flush(ctx)
	metrics.BatchFlushDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.DatapointsDropped.WithLabelValues("flush_error").Add(float64(items))
		return amdwerr.New(amdwerr.BackendTransport, "batchwriter.Flush", err)
	}
	metrics.BatchFlushItems.Add(float64(items))
	metrics.DatapointsWritten.Add(float64(items))
	return nil
}
