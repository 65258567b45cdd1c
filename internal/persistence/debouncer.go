package persistence

import (
	"sync"
	"time"
)

// Debouncer collapses calls scheduled within the delay window into a single call of the most recently scheduled
// function.
type Debouncer struct {
	delay time.Duration

	mu         sync.Mutex
	timer      *time.Timer
	pending    func()
	generation uint64
}

func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{
		delay:      delay,
		mu:         sync.Mutex{},
		timer:      nil,
		pending:    nil,
		generation: 0,
	}
}

// Schedule replaces any pending function with fn and restarts the delay window.
func (d *Debouncer) Schedule(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
	d.generation++
	generation := d.generation
	d.pending = fn
	d.timer = time.AfterFunc(d.delay, func() { d.fire(generation) })
}

func (d *Debouncer) fire(generation uint64) {
	d.mu.Lock()
	if generation != d.generation || d.pending == nil {
		d.mu.Unlock()
		return
	}
	fn := d.pending
	d.pending = nil
	d.timer = nil
	d.mu.Unlock()
	fn()
}

// CancelPending drops the pending function. It reports whether there was one.
func (d *Debouncer) CancelPending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	had := d.pending != nil
	d.stopLocked()
	d.generation++
	d.pending = nil
	return had
}

// Flush runs the pending function immediately, if any.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	fn := d.pending
	d.stopLocked()
	d.generation++
	d.pending = nil
	d.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Pending reports whether a function is waiting to run.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending != nil
}

func (d *Debouncer) stopLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
