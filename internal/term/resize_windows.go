//go:build windows

// resize_windows.go: no SIGWINCH on Windows; geometry is sent once at open.
package term

import (
	"golang.org/x/term"
	"k8s.io/client-go/tools/remotecommand"
)

// CurrentSize reads the terminal geometry for the given descriptor.
func CurrentSize(fd int) (remotecommand.TerminalSize, error) {
	cols, rows, err := term.GetSize(fd)
	if err != nil {
		return remotecommand.TerminalSize{}, err
	}
	return remotecommand.TerminalSize{Width: uint16(cols), Height: uint16(rows)}, nil
}

// WatchResize returns a queue that never reports a change.
func WatchResize(fd int) (remotecommand.TerminalSizeQueue, func()) {
	q := &staticQueue{stop: make(chan struct{})}
	return q, func() { close(q.stop) }
}

type staticQueue struct {
	stop chan struct{}
}

func (q *staticQueue) Next() *remotecommand.TerminalSize {
	<-q.stop
	return nil
}
