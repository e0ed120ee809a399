// Package debounce coalesces bursts of triggers into single callbacks.
package debounce

import (
	"sync"
	"time"
)

// Debouncer delays execution until a quiet period has passed. Repeated
// triggers within the delay window reset the timer, so a burst runs the
// function once.
type Debouncer struct {
	delay   time.Duration
	mu      sync.Mutex
	timer   *time.Timer
	pending func()
}

// New creates a Debouncer with the given quiet delay.
func New(delay time.Duration) *Debouncer {
	return &Debouncer{delay: delay}
}

// Trigger schedules or resets the debounced function.
func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.pending = fn

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		fn := d.pending
		d.pending = nil
		d.timer = nil
		d.mu.Unlock()

		if fn != nil {
			fn()
		}
	})
}

// Cancel drops any pending execution.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pending = nil
}

// Flush runs any pending function immediately.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	fn := d.pending
	d.pending = nil
	d.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// Batcher collects keys and emits them as one deduplicated batch after a
// quiet period. Used to coalesce change notifications.
type Batcher struct {
	delay time.Duration
	emit  func([]string)

	mu    sync.Mutex
	timer *time.Timer
	keys  map[string]struct{}
}

// NewBatcher creates a Batcher that calls emit with the collected keys.
func NewBatcher(delay time.Duration, emit func([]string)) *Batcher {
	return &Batcher{
		delay: delay,
		emit:  emit,
		keys:  make(map[string]struct{}),
	}
}

// Add records a key and resets the emission timer.
func (b *Batcher) Add(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.keys[key] = struct{}{}

	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = time.AfterFunc(b.delay, b.flush)
}

func (b *Batcher) flush() {
	b.mu.Lock()
	keys := make([]string, 0, len(b.keys))
	for k := range b.keys {
		keys = append(keys, k)
	}
	b.keys = make(map[string]struct{})
	b.timer = nil
	b.mu.Unlock()

	if len(keys) > 0 && b.emit != nil {
		b.emit(keys)
	}
}

// Cancel drops any pending keys without emitting.
func (b *Batcher) Cancel() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.keys = make(map[string]struct{})
}

// Flush emits any pending keys immediately.
func (b *Batcher) Flush() {
	b.mu.Lock()
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.mu.Unlock()

	b.flush()
}
