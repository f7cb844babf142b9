package search

import (
	"sync"
	"time"
)

// DefaultQuietPeriod is how long input must stay unchanged before a
// debounced query runs.
const DefaultQuietPeriod = 300 * time.Millisecond

// Debouncer delivers the latest value to fn once no new value has arrived
// for the quiet period. Earlier values are dropped. Calls to fn never
// overlap, and fn must not call Stop or Flush.
type Debouncer[T any] struct {
	quiet time.Duration
	fn    func(T)

	// deliverMu is held for the whole of each fn call.
	deliverMu sync.Mutex

	mu      sync.Mutex
	timer   *time.Timer
	pending T
	seq     uint64
	stopped bool
}

func NewDebouncer[T any](quiet time.Duration, fn func(T)) *Debouncer[T] {
	if quiet <= 0 {
		quiet = DefaultQuietPeriod
	}
	return &Debouncer[T]{quiet: quiet, fn: fn}
}

// Update replaces the pending value and restarts the quiet period.
func (d *Debouncer[T]) Update(v T) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.pending = v
	d.seq++
	if d.timer != nil {
		d.timer.Stop()
	}
	seq := d.seq
	d.timer = time.AfterFunc(d.quiet, func() { d.fire(seq) })
}

func (d *Debouncer[T]) fire(seq uint64) {
	d.deliverMu.Lock()
	defer d.deliverMu.Unlock()

	d.mu.Lock()
	// A timer that fired while Update was replacing it is stale.
	if d.stopped || d.timer == nil || seq != d.seq {
		d.mu.Unlock()
		return
	}
	v := d.pending
	d.timer = nil
	d.mu.Unlock()
	d.fn(v)
}

// Flush delivers a pending value now, if there is one. It waits for a
// delivery already in progress.
func (d *Debouncer[T]) Flush() {
	d.deliverMu.Lock()
	defer d.deliverMu.Unlock()

	d.mu.Lock()
	if d.timer == nil || d.stopped {
		d.mu.Unlock()
		return
	}
	d.timer.Stop()
	d.timer = nil
	v := d.pending
	d.mu.Unlock()
	d.fn(v)
}

// Stop drops any pending value and waits for a delivery in progress to
// finish. Later updates are ignored.
func (d *Debouncer[T]) Stop() {
	d.mu.Lock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.mu.Unlock()

	d.deliverMu.Lock()
	d.deliverMu.Unlock()
}
