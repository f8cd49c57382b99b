package persist

import (
	"context"
	"sync"
	"time"
)

// Debouncer collapses bursts of Trigger calls into one call of fn with the
// most recent value, delay after the last Trigger. A superseded timer never
// fires. Flush runs a pending call synchronously.
type Debouncer[T any] struct {
	delay time.Duration
	fn    func(context.Context, T) error

	mu      sync.Mutex
	idle    *sync.Cond
	timer   *time.Timer
	gen     uint64
	value   T
	pending bool
	running int
}

// NewDebouncer returns a debouncer calling fn.
func NewDebouncer[T any](delay time.Duration, fn func(context.Context, T) error) *Debouncer[T] {
	d := &Debouncer[T]{delay: delay, fn: fn}
	d.idle = sync.NewCond(&d.mu)
	return d
}

// Trigger records v as the pending value and restarts the delay.
func (d *Debouncer[T]) Trigger(v T) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.value = v
	d.pending = true
	d.gen++
	gen := d.gen
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, func() { d.fire(gen) })
}

func (d *Debouncer[T]) fire(gen uint64) {
	v, ok := d.take(gen, true)
	if !ok {
		return
	}
	defer d.done()
	_ = d.fn(context.Background(), v)
}

// take claims the pending value. A non-zero gen only matches the timer that
// was armed for it. When run is set the claim counts as in flight until the
// caller calls done.
func (d *Debouncer[T]) take(gen uint64, run bool) (T, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var zero T
	if !d.pending || (gen != 0 && gen != d.gen) {
		return zero, false
	}
	v := d.value
	d.value = zero
	d.pending = false
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	if run {
		d.running++
	}
	return v, true
}

// Flush runs the pending call, if any, on the calling goroutine and returns
// its error.
func (d *Debouncer[T]) Flush(ctx context.Context) error {
	v, ok := d.take(0, true)
	if !ok {
		return nil
	}
	defer d.done()
	return d.fn(ctx, v)
}

// Cancel drops the pending call. It reports whether one was pending.
func (d *Debouncer[T]) Cancel() bool {
	_, ok := d.take(0, false)
	return ok
}

// Pending reports whether a call is waiting for its delay to elapse.
func (d *Debouncer[T]) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

// Wait blocks until calls already claimed by a timer or Flush return.
func (d *Debouncer[T]) Wait() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for d.running > 0 {
		d.idle.Wait()
	}
}

func (d *Debouncer[T]) done() {
	d.mu.Lock()
	d.running--
	if d.running == 0 {
		d.idle.Broadcast()
	}
	d.mu.Unlock()
}
