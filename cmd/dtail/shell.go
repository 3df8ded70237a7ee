// shell.go implements "dtail shell": an interactive duplex terminal into a
// pod container. Shell sessions are never auto-reconnected; when the server
// side ends, the command exits.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	xterm "golang.org/x/term"

	"github.com/example/dtail/internal/config"
	"github.com/example/dtail/internal/logging"
	"github.com/example/dtail/internal/notice"
	dterm "github.com/example/dtail/internal/term"
	"github.com/example/dtail/internal/wsstream"
)

func newShellCommand(opts *config.Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shell POD",
		Short: "Open an interactive shell inside a pod container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Pod = args[0]
			if err := opts.Validate(); err != nil {
				return err
			}
			return runShell(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVarP(&opts.Container, "container", "c", opts.Container, "Container name (defaults to the pod's main container)")
	cmd.Flags().BoolVar(&opts.Debug, "debug", false, "Attach a debug container instead of the main one")
	cmd.Flags().BoolVar(&opts.Fork, "fork", false, "Run the shell in a forked copy of the pod")
	return cmd
}

func runShell(ctx context.Context, opts *config.Options) error {
	log, err := logging.New(opts.LogLevel)
	if err != nil {
		return err
	}
	notifier := notice.NewWriter(os.Stderr)

	stdinFd := int(os.Stdin.Fd())
	if !xterm.IsTerminal(stdinFd) {
		return errors.New("shell requires an interactive terminal")
	}
	size, err := dterm.CurrentSize(stdinFd)
	if err != nil {
		return fmt.Errorf("read terminal size: %w", err)
	}
	queue, stopWatch := dterm.WatchResize(stdinFd)
	defer stopWatch()

	oldState, err := xterm.MakeRaw(stdinFd)
	if err != nil {
		return fmt.Errorf("enter raw mode: %w", err)
	}
	defer xterm.Restore(stdinFd, oldState)

	sessionOpts := []dterm.Option{
		dterm.WithSizeQueue(queue),
		dterm.WithConnOptions(wsstream.WithHeader(authHeader(opts))),
	}
	if opts.Debug {
		sessionOpts = append(sessionOpts, dterm.WithDebug())
	}
	if opts.Fork {
		sessionOpts = append(sessionOpts, dterm.WithFork())
		sessionOpts = append(sessionOpts, dterm.WithOnGeneratedPod(func(pod dterm.GeneratedPod) {
			log.V(1).Info("forked pod assigned", "pod", pod.Name, "namespace", pod.Namespace, "status", pod.Status)
		}))
	}
	sessionOpts = append(sessionOpts, dterm.WithOnContainer(func(name string) {
		log.V(1).Info("server selected container", "container", name)
	}))

	session, err := dterm.Open(opts.Endpoint, targetFromOptions(opts), size,
		os.Stdout, notifier, log, sessionOpts...)
	if err != nil {
		return err
	}

	// The pump's error cancels the group context, which ends the session wait
	// below. The pump itself is abandoned on exit: a blocked stdin read cannot
	// be interrupted portably, and the process is about to terminate anyway.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		buf := make([]byte, 4096)
		for {
			n, err := os.Stdin.Read(buf)
			if n > 0 {
				if sendErr := session.SendInput(buf[:n]); sendErr != nil {
					return sendErr
				}
			}
			if err != nil {
				return err
			}
		}
	})

	select {
	case <-session.Done():
	case <-gctx.Done():
	}
	session.Close()
	return nil
}
