// viewer.go glues the render buffer, the bounded-rate flusher, and the find
// overlay into the terminal view shared by the logs, events, and replay
// commands. In non-interactive runs (piped output) it degrades to plain line
// streaming with no key handling.
package main

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/term"

	"github.com/example/dtail/internal/render"
	"github.com/example/dtail/internal/search"
)

const flushInterval = 100 * time.Millisecond

type viewer struct {
	out         *os.File
	in          *os.File
	buf         *render.Buffer
	flusher     *render.Flusher
	searcher    *search.Searcher
	interactive bool
	pageSize    int

	// mu guards the prompt state: the key loop and the debounced search
	// callback both touch it.
	mu          sync.Mutex
	searching   bool
	searchInput []rune
	status      string
}

func newViewer(in, out *os.File, maxLines int, regexFind, matchCase bool) *viewer {
	v := &viewer{out: out, in: in, pageSize: 10}
	v.interactive = term.IsTerminal(int(in.Fd())) && term.IsTerminal(int(out.Fd()))

	bufOpts := []render.BufferOption{render.WithMaxLines(maxLines)}
	flushOpts := []render.FlusherOption{}
	if v.interactive {
		if cols, rows, err := term.GetSize(int(out.Fd())); err == nil {
			// Reserve the last row for the search prompt.
			bufOpts = append(bufOpts, render.WithViewport(rows-1), render.WithWidth(cols))
		}
		flushOpts = append(flushOpts, render.WithClearScreen())
	}
	v.flusher = render.NewFlusher(out, flushInterval, flushOpts...)
	bufOpts = append(bufOpts, render.WithChangeListener(v.apply))
	v.buf = render.NewBuffer(bufOpts...)
	v.searcher = search.New(v.buf.Snapshot, v.onSearchResult,
		search.WithRegex(regexFind), search.WithMatchCase(matchCase))
	return v
}

func (v *viewer) Buffer() *render.Buffer { return v.buf }

// apply forwards buffer changes to the flusher. Interactive views always
// rewrite the visible window so scroll position and width clipping hold.
func (v *viewer) apply(op render.Op, lines []string) {
	if v.interactive {
		v.flusher.Apply(render.OpReplace, v.buf.VisibleLines())
		return
	}
	v.flusher.Apply(op, lines)
}

func (v *viewer) redraw() {
	v.flusher.Apply(render.OpReplace, v.buf.VisibleLines())
}

// Run blocks until the context is cancelled, done closes, or the user quits.
func (v *viewer) Run(ctx context.Context, done <-chan struct{}) error {
	defer v.Close()
	if !v.interactive {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-done:
			return nil
		}
	}

	oldState, err := term.MakeRaw(int(v.in.Fd()))
	if err != nil {
		return fmt.Errorf("enter raw mode: %w", err)
	}
	defer term.Restore(int(v.in.Fd()), oldState)

	keys := make(chan byte, 64)
	go func() {
		defer close(keys)
		buf := make([]byte, 1)
		for {
			n, err := v.in.Read(buf)
			if err != nil {
				return
			}
			if n > 0 {
				keys <- buf[0]
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-done:
			return nil
		case key, ok := <-keys:
			if !ok {
				return nil
			}
			if quit := v.handleKey(key, keys); quit {
				return nil
			}
		}
	}
}

func (v *viewer) handleKey(key byte, keys <-chan byte) bool {
	v.mu.Lock()
	searching := v.searching
	v.mu.Unlock()
	if searching {
		v.handleSearchKey(key)
		return false
	}
	switch key {
	case 'q', 0x03: // Ctrl-C
		return true
	case '/':
		v.mu.Lock()
		v.searching = true
		v.searchInput = v.searchInput[:0]
		v.mu.Unlock()
		v.drawPrompt()
	case 'n':
		v.searcher.Enter()
	case 'N':
		v.searcher.EnterBackward()
	case 'k':
		v.buf.ScrollUp(1)
		v.redraw()
	case 'j':
		v.buf.ScrollDown(1)
		v.redraw()
	case 0x15: // Ctrl-U
		v.buf.ScrollUp(v.pageSize)
		v.redraw()
	case 0x04: // Ctrl-D
		v.buf.ScrollDown(v.pageSize)
		v.redraw()
	case 'G':
		v.buf.ScrollToBottom()
		v.redraw()
	case 0x1b: // arrow keys arrive as ESC [ A / ESC [ B
		if b, ok := readTimeout(keys); ok && b == '[' {
			switch b, _ := readTimeout(keys); b {
			case 'A':
				v.buf.ScrollUp(1)
				v.redraw()
			case 'B':
				v.buf.ScrollDown(1)
				v.redraw()
			}
		}
	}
	return false
}

func (v *viewer) handleSearchKey(key byte) {
	switch key {
	case 0x1b: // Esc cancels the overlay
		v.mu.Lock()
		v.searching = false
		v.status = ""
		v.mu.Unlock()
		v.searcher.Reset()
		v.redraw()
	case '\r', '\n':
		v.mu.Lock()
		v.searching = false
		v.mu.Unlock()
		v.searcher.Enter()
	case 0x7f, 0x08: // backspace
		v.mu.Lock()
		if len(v.searchInput) > 0 {
			v.searchInput = v.searchInput[:len(v.searchInput)-1]
		}
		query := string(v.searchInput)
		v.mu.Unlock()
		v.searcher.Type(query)
		v.drawPrompt()
	default:
		if key >= 0x20 {
			v.mu.Lock()
			v.searchInput = append(v.searchInput, rune(key))
			query := string(v.searchInput)
			v.mu.Unlock()
			v.searcher.Type(query)
			v.drawPrompt()
		}
	}
}

func (v *viewer) onSearchResult(res search.Result) {
	v.mu.Lock()
	switch {
	case res.Err != nil:
		v.status = fmt.Sprintf("invalid pattern: %v", res.Err)
	case res.Query == "":
		v.status = ""
	case !res.Found:
		v.status = fmt.Sprintf("no match for %q", res.Query)
	default:
		v.status = fmt.Sprintf("%q (%d/%d)", res.Query, res.Index+1, res.Total)
	}
	v.mu.Unlock()
	if res.Found {
		v.buf.ScrollTo(res.Line)
	}
	v.redraw()
	v.drawPrompt()
}

func (v *viewer) drawPrompt() {
	if !v.interactive {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.searching {
		fmt.Fprintf(v.out, "\r\x1b[K/%s", string(v.searchInput))
		return
	}
	if v.status != "" {
		fmt.Fprintf(v.out, "\r\x1b[K%s", v.status)
	}
}

func (v *viewer) Close() {
	v.searcher.Close()
	v.flusher.Close()
}

func readTimeout(keys <-chan byte) (byte, bool) {
	select {
	case b, ok := <-keys:
		return b, ok
	case <-time.After(50 * time.Millisecond):
		return 0, false
	}
}
