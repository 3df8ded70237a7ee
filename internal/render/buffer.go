// Package render implements the terminal-buffer sink shared by the streaming
// clients: ordered lines mutated only by append or replace, a scroll position
// that stays pinned to the bottom until the user scrolls away, and a
// bounded-rate flush toward the real terminal.
package render

import (
	"sync"

	"github.com/mattn/go-runewidth"
)

// Op describes how the buffer content changed.
type Op int

const (
	OpAppend Op = iota
	OpReplace
	OpReset
)

// ChangeListener observes buffer mutations. For OpAppend lines holds only the
// newly appended lines; for OpReplace the full new content; for OpReset nil.
type ChangeListener func(op Op, lines []string)

const defaultMaxLines = 10000

// BufferOption configures a Buffer.
type BufferOption func(*Buffer)

// WithMaxLines caps retained history; oldest lines are evicted first.
func WithMaxLines(n int) BufferOption {
	return func(b *Buffer) {
		if n > 0 {
			b.max = n
		}
	}
}

// WithViewport sets the number of visible rows. Zero means "show everything".
func WithViewport(rows int) BufferOption {
	return func(b *Buffer) { b.rows = rows }
}

// WithWidth truncates visible lines to the given display width.
func WithWidth(w int) BufferOption {
	return func(b *Buffer) { b.width = w }
}

// WithChangeListener registers the mutation observer (normally a Flusher).
func WithChangeListener(fn ChangeListener) BufferOption {
	return func(b *Buffer) { b.onChange = fn }
}

// Buffer is the render sink. It starts in the loading state; the first append
// or replace clears it. Scroll state is sticky: once the user scrolls away
// from the bottom no mutation forces the view back down.
type Buffer struct {
	mu       sync.Mutex
	lines    []string
	max      int
	rows     int
	width    int
	pinned   bool
	offset   int
	loading  bool
	onChange ChangeListener
}

// NewBuffer returns an empty, pinned, loading buffer.
func NewBuffer(opts ...BufferOption) *Buffer {
	b := &Buffer{max: defaultMaxLines, pinned: true, loading: true}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Append adds lines to the end of the buffer.
func (b *Buffer) Append(lines ...string) {
	if len(lines) == 0 {
		return
	}
	b.mu.Lock()
	b.loading = false
	b.lines = append(b.lines, lines...)
	b.evictLocked()
	listener := b.onChange
	b.mu.Unlock()
	if listener != nil {
		listener(OpAppend, lines)
	}
}

// Replace discards all content and writes the given lines.
func (b *Buffer) Replace(lines []string) {
	b.mu.Lock()
	b.loading = false
	b.lines = append(b.lines[:0:0], lines...)
	b.evictLocked()
	b.clampOffsetLocked()
	listener := b.onChange
	snapshot := append([]string(nil), b.lines...)
	b.mu.Unlock()
	if listener != nil {
		listener(OpReplace, snapshot)
	}
}

// Reset clears the buffer and re-enters the loading state. The scroll pin is
// untouched: it belongs to the user, not to the data.
func (b *Buffer) Reset() {
	b.mu.Lock()
	b.lines = nil
	b.offset = 0
	b.loading = true
	listener := b.onChange
	b.mu.Unlock()
	if listener != nil {
		listener(OpReset, nil)
	}
}

func (b *Buffer) evictLocked() {
	if b.max <= 0 || len(b.lines) <= b.max {
		return
	}
	evicted := len(b.lines) - b.max
	b.lines = append(b.lines[:0:0], b.lines[evicted:]...)
	if !b.pinned {
		b.offset -= evicted
		if b.offset < 0 {
			b.offset = 0
		}
	}
}

func (b *Buffer) clampOffsetLocked() {
	if b.offset > len(b.lines) {
		b.offset = len(b.lines)
	}
}

// Loading reports whether the buffer still shows its loading placeholder.
func (b *Buffer) Loading() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loading
}

// Len returns the number of retained lines.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.lines)
}

// Snapshot returns a copy of the full retained content.
func (b *Buffer) Snapshot() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.lines...)
}

// PinnedToBottom reports whether new content auto-scrolls into view.
func (b *Buffer) PinnedToBottom() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pinned
}

// ScrollUp moves the view up by n rows and unpins it.
func (b *Buffer) ScrollUp(n int) {
	if n <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	top := b.offset
	if b.pinned {
		top = len(b.lines) - b.visibleRowsLocked()
		if top < 0 {
			top = 0
		}
	}
	b.pinned = false
	b.offset = top - n
	if b.offset < 0 {
		b.offset = 0
	}
}

// ScrollDown moves the view down by n rows, re-pinning when it reaches the end.
func (b *Buffer) ScrollDown(n int) {
	if n <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pinned {
		return
	}
	b.offset += n
	if b.offset >= len(b.lines)-b.visibleRowsLocked() {
		b.pinned = true
	}
}

// ScrollTo positions the view so the line at index is visible, unpinning
// unless the index already sits inside the bottom window.
func (b *Buffer) ScrollTo(index int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if index < 0 || index >= len(b.lines) {
		return
	}
	rows := b.visibleRowsLocked()
	bottomStart := len(b.lines) - rows
	if bottomStart < 0 {
		bottomStart = 0
	}
	if index >= bottomStart {
		b.pinned = true
		return
	}
	b.pinned = false
	b.offset = index
}

// ScrollToBottom re-pins the view.
func (b *Buffer) ScrollToBottom() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pinned = true
}

func (b *Buffer) visibleRowsLocked() int {
	if b.rows <= 0 {
		return len(b.lines)
	}
	return b.rows
}

// VisibleLines returns the window the terminal should show, honoring the
// scroll pin and truncating to the configured width.
func (b *Buffer) VisibleLines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	rows := b.visibleRowsLocked()
	start := b.offset
	if b.pinned {
		start = len(b.lines) - rows
		if start < 0 {
			start = 0
		}
	}
	end := start + rows
	if end > len(b.lines) {
		end = len(b.lines)
	}
	if start > end {
		start = end
	}
	out := make([]string, 0, end-start)
	for _, line := range b.lines[start:end] {
		if b.width > 0 {
			line = runewidth.Truncate(line, b.width, "")
		}
		out = append(out, line)
	}
	return out
}
