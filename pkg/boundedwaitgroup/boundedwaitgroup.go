// Package boundedwaitgroup bounds concurrent goroutines the way a normal
// sync.WaitGroup doesn't. The query planner uses it to cap per-IndexKey
// fan-out tasks at MT_READERS instead of spawning one goroutine per
// matching index key (spec §4.10, §9 "Fan-out query tasks").
package boundedwaitgroup

import "sync"

// BoundedWaitGroup behaves like sync.WaitGroup except it limits the number
// of concurrently active members to a fixed capacity.
type BoundedWaitGroup struct {
	wg sync.WaitGroup
	ch chan struct{} // buffer size bounds concurrency
}

// New creates a BoundedWaitGroup with the given concurrency. It panics if
// cap is zero.
func New(cap uint) BoundedWaitGroup {
	if cap == 0 {
		panic("boundedwaitgroup: capacity must be greater than zero")
	}
	return BoundedWaitGroup{ch: make(chan struct{}, cap)}
}

// Add blocks until there is capacity, then adds delta to the group.
func (bwg *BoundedWaitGroup) Add(delta int) {
	for i := 0; i > delta; i-- {
		<-bwg.ch
	}
	for i := 0; i < delta; i++ {
		bwg.ch <- struct{}{}
	}
	bwg.wg.Add(delta)
}

// Done removes one member from the group.
func (bwg *BoundedWaitGroup) Done() {
	bwg.Add(-1)
}

// Wait blocks until every member has called Done.
func (bwg *BoundedWaitGroup) Wait() {
	bwg.wg.Wait()
}
