//go:build !windows

// resize_unix.go watches SIGWINCH and feeds geometry changes to the session.
package term

import (
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/term"
	"k8s.io/client-go/tools/remotecommand"
)

type resizeQueue struct {
	ch   chan remotecommand.TerminalSize
	stop chan struct{}
}

// Next blocks until the next geometry change; nil means the watcher stopped.
func (q *resizeQueue) Next() *remotecommand.TerminalSize {
	select {
	case size := <-q.ch:
		return &size
	case <-q.stop:
		return nil
	}
}

// CurrentSize reads the terminal geometry for the given descriptor.
func CurrentSize(fd int) (remotecommand.TerminalSize, error) {
	cols, rows, err := term.GetSize(fd)
	if err != nil {
		return remotecommand.TerminalSize{}, err
	}
	return remotecommand.TerminalSize{Width: uint16(cols), Height: uint16(rows)}, nil
}

// WatchResize emits the terminal's size on every SIGWINCH until the returned
// stop function runs. Coalesces bursts: only the latest pending size is kept.
func WatchResize(fd int) (remotecommand.TerminalSizeQueue, func()) {
	q := &resizeQueue{
		ch:   make(chan remotecommand.TerminalSize, 1),
		stop: make(chan struct{}),
	}
	winch := make(chan os.Signal, 1)
	signal.Notify(winch, syscall.SIGWINCH)
	go func() {
		defer signal.Stop(winch)
		for {
			select {
			case <-q.stop:
				return
			case <-winch:
				size, err := CurrentSize(fd)
				if err != nil {
					continue
				}
				select {
				case q.ch <- size:
				default:
					// Drop the stale pending size and keep the newest.
					select {
					case <-q.ch:
					default:
					}
					q.ch <- size
				}
			}
		}
	}()
	return q, func() { close(q.stop) }
}
