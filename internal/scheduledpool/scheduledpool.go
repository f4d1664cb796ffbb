// Package scheduledpool implements a fixed-size worker pool that runs jobs
// submitted immediately or after a delay, grounded on original_source's
// ScheduledIOPool (a sched.scheduler feeding a ThreadPoolExecutor) and
// friggdb/pool's promauto-instrumented worker pool.
package scheduledpool

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var queueLength = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "amondawa",
	Name:      "scheduledpool_queue_length",
	Help:      "Pending jobs waiting for a free worker.",
})

// Job is a unit of deferred work, e.g. flushing one table's batch handle.
type Job func()

// Pool runs Jobs on a bounded set of worker goroutines. Callers use Submit
// for immediate work and Schedule for delay-fired work (the batch writer's
// debounce-then-flush behavior).
type Pool struct {
	workQueue chan Job
	stopCh    chan struct{}
	stopOnce  sync.Once
}

// New starts a Pool with the given number of workers and a bounded job
// queue depth.
func New(workers, queueDepth int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueDepth <= 0 {
		queueDepth = 1
	}
	p := &Pool{
		workQueue: make(chan Job, queueDepth),
		stopCh:    make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	for job := range p.workQueue {
		queueLength.Set(float64(len(p.workQueue)))
		job()
	}
}

// Submit enqueues fn to run as soon as a worker is free.
func (p *Pool) Submit(fn Job) {
	select {
	case p.workQueue <- fn:
		queueLength.Set(float64(len(p.workQueue)))
	case <-p.stopCh:
	}
}

// Event is a handle to a scheduled job; Cancel prevents it from firing if
// it hasn't already.
type Event struct {
	timer *time.Timer
}

// Cancel stops the event from firing. It returns false if the job has
// already fired or been canceled.
func (e *Event) Cancel() bool {
	if e == nil || e.timer == nil {
		return false
	}
	return e.timer.Stop()
}

// Schedule submits fn to the pool after delay elapses. The returned Event
// can be canceled before it fires, matching TimedBatchTable's
// cancel-then-reschedule put_item pattern.
func (p *Pool) Schedule(delay time.Duration, fn Job) *Event {
	timer := time.AfterFunc(delay, func() {
		p.Submit(fn)
	})
	return &Event{timer: timer}
}

// Shutdown stops accepting new jobs and drains the worker goroutines.
// Jobs already queued are allowed to finish.
func (p *Pool) Shutdown() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
		close(p.workQueue)
	})
}
