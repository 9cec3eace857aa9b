// Package debounce runs a function once a burst of triggers has settled.
package debounce

import (
	"sync"
	"time"
)

// DefaultWait is the default settle window for form edits
const DefaultWait = 300 * time.Millisecond

// Debouncer calls fn once no Trigger has happened for the wait window.
// While suspended, triggers are ignored.
type Debouncer struct {
	wait time.Duration
	fn   func()

	mu        sync.Mutex
	timer     *time.Timer
	gen       uint64
	pending   bool
	suspended int
	stopped   bool
}

// New creates a debouncer. A non-positive wait uses DefaultWait.
func New(wait time.Duration, fn func()) *Debouncer {
	if wait <= 0 {
		wait = DefaultWait
	}
	return &Debouncer{wait: wait, fn: fn}
}

// Wait returns the settle window
func (d *Debouncer) Wait() time.Duration {
	return d.wait
}

// Trigger (re)starts the settle window
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || d.suspended > 0 {
		return
	}

	d.pending = true
	d.gen++
	gen := d.gen
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.wait, func() {
		d.fire(gen)
	})
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen || !d.pending || d.stopped {
		d.mu.Unlock()
		return
	}
	d.pending = false
	d.mu.Unlock()

	d.fn()
}

// Flush runs pending work now, on the calling goroutine. It is a no-op when nothing is pending.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	if !d.pending || d.stopped {
		d.mu.Unlock()
		return
	}
	d.pending = false
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
	}
	d.mu.Unlock()

	d.fn()
}

// Cancel discards pending work
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = false
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
	}
}

// Pending reports whether work is waiting for the window to settle
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

// Suspend ignores triggers until the matching Resume. Calls nest.
func (d *Debouncer) Suspend() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.suspended++
}

// Resume undoes one Suspend
func (d *Debouncer) Resume() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.suspended > 0 {
		d.suspended--
	}
}

// Stop discards pending work and ignores every later call
func (d *Debouncer) Stop() {
	d.Cancel()
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
}
