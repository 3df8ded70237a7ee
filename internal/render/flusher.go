// flusher.go drains buffer mutations to a writer at a bounded rate.
package render

import (
	"fmt"
	"io"
	"sync"
	"time"
)

const clearSequence = "\x1b[2J\x1b[H"

// FlusherOption configures a Flusher.
type FlusherOption func(*Flusher)

// WithClearScreen makes replace rewrites clear the terminal first. Only makes
// sense when the writer is an interactive terminal.
func WithClearScreen() FlusherOption {
	return func(f *Flusher) { f.clearScreen = true }
}

// Flusher subscribes to a Buffer and writes its changes to out, coalescing
// bursts into at most one physical write per interval. Appends stream through
// incrementally; a replace rewrites the full content.
type Flusher struct {
	mu          sync.Mutex
	out         io.Writer
	throttle    *Throttle
	pending     []string
	replacement []string
	rewrite     bool
	clearScreen bool
}

// NewFlusher returns a flusher writing to out at most once per interval.
// Attach it with render.WithChangeListener(f.Apply).
func NewFlusher(out io.Writer, interval time.Duration, opts ...FlusherOption) *Flusher {
	f := &Flusher{out: out}
	for _, opt := range opts {
		opt(f)
	}
	f.throttle = NewThrottle(interval, f.flush)
	return f
}

// Apply is the Buffer change listener.
func (f *Flusher) Apply(op Op, lines []string) {
	f.mu.Lock()
	switch op {
	case OpAppend:
		f.pending = append(f.pending, lines...)
	case OpReplace:
		f.rewrite = true
		f.replacement = lines
		f.pending = nil
	case OpReset:
		f.rewrite = true
		f.replacement = nil
		f.pending = nil
	}
	f.mu.Unlock()
	f.throttle.Trigger()
}

func (f *Flusher) flush() {
	f.mu.Lock()
	rewrite := f.rewrite
	replacement := f.replacement
	pending := f.pending
	f.rewrite = false
	f.replacement = nil
	f.pending = nil
	f.mu.Unlock()

	if !rewrite && len(pending) == 0 {
		return
	}
	if rewrite {
		if f.clearScreen {
			fmt.Fprint(f.out, clearSequence)
		}
		for _, line := range replacement {
			fmt.Fprintln(f.out, line)
		}
	}
	for _, line := range pending {
		fmt.Fprintln(f.out, line)
	}
}

// Close stops the throttle and performs one final synchronous flush so no
// buffered line is lost on teardown.
func (f *Flusher) Close() {
	f.throttle.Stop()
	f.flush()
}
