// Package notice delivers the transient, user-visible notifications raised by
// the streaming clients: server-reported errors, transfer failures, and
// informational control messages. Notices never block and never alter stream
// or render state.
package notice

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"
)

// Notifier receives transient user-facing messages.
type Notifier interface {
	Info(message string)
	Error(message string)
}

// Writer prints notices to a writer (normally stderr) with color when enabled.
type Writer struct {
	mu   sync.Mutex
	out  io.Writer
	info *color.Color
	warn *color.Color
}

// NewWriter returns a Notifier printing to out.
func NewWriter(out io.Writer) *Writer {
	return &Writer{
		out:  out,
		info: color.New(color.FgCyan),
		warn: color.New(color.FgRed, color.Bold),
	}
}

func (w *Writer) Info(message string) {
	if w == nil || message == "" {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	fmt.Fprintln(w.out, w.info.Sprint(message))
}

func (w *Writer) Error(message string) {
	if w == nil || message == "" {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	fmt.Fprintln(w.out, w.warn.Sprintf("error: %s", message))
}

// Discard drops every notice. Useful default for library callers and tests.
type Discard struct{}

func (Discard) Info(string)  {}
func (Discard) Error(string) {}
