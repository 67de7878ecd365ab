package catalog

import (
	"sync"
	"time"
)

// DefaultQuietPeriod is how long input must settle before a search fires.
const DefaultQuietPeriod = 400 * time.Millisecond

// Timer is the part of *time.Timer the debouncer uses.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d.
type AfterFunc func(d time.Duration, f func()) Timer

// SystemAfterFunc runs f on the wall clock.
func SystemAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Debouncer coalesces bursts of values: each Trigger restarts the quiet
// period and only the last value is delivered.
type Debouncer[T any] struct {
	wait  time.Duration
	after AfterFunc
	fn    func(T)

	mu    sync.Mutex
	timer Timer
	gen   uint64
}

func NewDebouncer[T any](wait time.Duration, after AfterFunc, fn func(T)) *Debouncer[T] {
	if wait <= 0 {
		wait = DefaultQuietPeriod
	}
	if after == nil {
		after = SystemAfterFunc
	}
	return &Debouncer[T]{wait: wait, after: after, fn: fn}
}

func (d *Debouncer[T]) Trigger(v T) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = d.after(d.wait, func() {
		d.mu.Lock()
		if gen != d.gen {
			d.mu.Unlock()
			return
		}
		d.timer = nil
		d.mu.Unlock()
		d.fn(v)
	})
}

// Stop drops any pending value.
func (d *Debouncer[T]) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
}
