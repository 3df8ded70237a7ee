// throttle.go bounds the rate of render rewrites during snapshot bursts.
package render

import (
	"sync"
	"time"
)

// Throttle invokes fn at most once per interval. The first trigger in a quiet
// window fires immediately; further triggers inside the window coalesce into
// one trailing invocation. This is a throttle, not a debounce: a steady burst
// still renders once per window rather than waiting for silence.
type Throttle struct {
	mu       sync.Mutex
	interval time.Duration
	fn       func()
	last     time.Time
	timer    *time.Timer
	pending  bool
	stopped  bool
}

// NewThrottle returns a throttle around fn. A non-positive interval makes
// every trigger fire immediately.
func NewThrottle(interval time.Duration, fn func()) *Throttle {
	return &Throttle{interval: interval, fn: fn}
}

// Trigger requests an invocation of fn under the rate bound.
func (t *Throttle) Trigger() {
	t.mu.Lock()
	if t.stopped || t.fn == nil {
		t.mu.Unlock()
		return
	}
	now := time.Now()
	if t.interval <= 0 || (!t.pending && now.Sub(t.last) >= t.interval) {
		t.last = now
		t.mu.Unlock()
		t.fn()
		return
	}
	if !t.pending {
		t.pending = true
		wait := t.interval - now.Sub(t.last)
		t.timer = time.AfterFunc(wait, t.fire)
	}
	t.mu.Unlock()
}

func (t *Throttle) fire() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.pending = false
	t.timer = nil
	t.last = time.Now()
	t.mu.Unlock()
	t.fn()
}

// Stop cancels any trailing invocation. Stopped throttles stay stopped.
func (t *Throttle) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	t.pending = false
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
