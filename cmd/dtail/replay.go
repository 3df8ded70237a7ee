// replay.go implements "dtail replay": it feeds a SQLite capture file back
// through the same render pipeline the live tail uses.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/dtail/internal/capture"
	"github.com/example/dtail/internal/config"
)

func newReplayCommand(opts *config.Options) *cobra.Command {
	var delay time.Duration
	var regexFind bool
	var matchCase bool
	cmd := &cobra.Command{
		Use:   "replay CAPTURE_FILE",
		Short: "Replay a captured log session offline",
		Long:  "Replay a capture file produced by 'dtail logs --capture-output' through the interactive log view, without contacting the platform.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if _, err := os.Stat(path); err != nil {
				return fmt.Errorf("open capture %s: %w", path, err)
			}
			viewer := newViewer(os.Stdin, os.Stdout, opts.MaxBufferLines, regexFind, matchCase)

			done := make(chan struct{})
			errCh := make(chan error, 1)
			go func() {
				defer close(done)
				errCh <- capture.Replay(cmd.Context(), path, func(entry capture.Entry) error {
					viewer.Buffer().Append(entry.Line)
					if delay > 0 {
						select {
						case <-cmd.Context().Done():
							return cmd.Context().Err()
						case <-time.After(delay):
						}
					}
					return nil
				})
			}()

			var waitOn <-chan struct{}
			if viewer.interactive {
				// Keep the view open after the replay finishes so the user can
				// scroll and search; q exits.
				waitOn = nil
			} else {
				waitOn = done
			}
			runErr := viewer.Run(cmd.Context(), waitOn)
			// A user quit may leave a paced replay mid-file; the process is
			// exiting, so only report an error that already happened.
			select {
			case err := <-errCh:
				if err != nil {
					return err
				}
			default:
			}
			return runErr
		},
	}
	cmd.Flags().DurationVar(&delay, "delay", 0, "Pause between replayed lines (e.g. 50ms) to simulate live pacing")
	cmd.Flags().IntVar(&opts.MaxBufferLines, "max-buffer-lines", opts.MaxBufferLines, "Retained line cap for the render buffer")
	cmd.Flags().BoolVar(&regexFind, "regex-find", false, "Treat / search queries as regular expressions")
	cmd.Flags().BoolVar(&matchCase, "match-case", false, "Make / search queries case-sensitive")
	return cmd
}
