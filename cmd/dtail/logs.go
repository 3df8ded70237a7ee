// logs.go implements "dtail logs": the pod log tail with historic backfill,
// follow mode, and optional offline capture.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/dtail/internal/capture"
	"github.com/example/dtail/internal/config"
	"github.com/example/dtail/internal/logging"
	"github.com/example/dtail/internal/notice"
	"github.com/example/dtail/internal/tail"
	"github.com/example/dtail/internal/wsstream"
)

func newLogsCommand(opts *config.Options) *cobra.Command {
	var regexFind bool
	var matchCase bool
	cmd := &cobra.Command{
		Use:   "logs POD",
		Short: "Tail a pod's container logs",
		Long: `Tail a pod's container logs through the platform's streaming API.

While the view is open: / searches, n/N jump between matches, arrow keys and
j/k scroll (scrolling away from the bottom pauses auto-follow), G re-pins to
the bottom, q quits.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Pod = args[0]
			if err := opts.Validate(); err != nil {
				return err
			}
			log, err := logging.New(opts.LogLevel)
			if err != nil {
				return err
			}
			notifier := notice.NewWriter(os.Stderr)
			viewer := newViewer(os.Stdin, os.Stdout, opts.MaxBufferLines, regexFind, matchCase)

			clientOpts := []tail.Option{
				tail.WithConnOptions(wsstream.WithHeader(authHeader(opts))),
			}
			if opts.CaptureOutput != "" {
				writer, err := capture.NewWriter(opts.CaptureOutput)
				if err != nil {
					return err
				}
				defer writer.Close()
				clientOpts = append(clientOpts, tail.WithLineObserver(func(line string) {
					entry := capture.Entry{
						CollectedAt: time.Now(),
						Cluster:     opts.Cluster,
						Namespace:   opts.Namespace,
						Pod:         opts.Pod,
						Container:   opts.Container,
						Line:        line,
					}
					if err := writer.Write(cmd.Context(), entry); err != nil {
						log.V(1).Info("capture write failed", "error", err.Error())
					}
				}))
				notifier.Info(fmt.Sprintf("capturing lines to %s", opts.CaptureOutput))
			}

			params := tail.Params{
				TailLines: opts.TailLines,
				Container: opts.Container,
				Follow:    opts.Follow,
			}
			client, err := tail.Open(opts.Endpoint, targetFromOptions(opts), params,
				viewer.Buffer(), notifier, log, clientOpts...)
			if err != nil {
				return err
			}
			defer client.Close()
			return viewer.Run(cmd.Context(), nil)
		},
	}
	opts.AddFlags(cmd)
	cmd.Flags().StringVar(&opts.CaptureOutput, "capture-output", opts.CaptureOutput, "Write streamed lines to a SQLite capture file for offline replay")
	cmd.Flags().BoolVar(&regexFind, "regex-find", false, "Treat / search queries as regular expressions")
	cmd.Flags().BoolVar(&matchCase, "match-case", false, "Make / search queries case-sensitive")
	return cmd
}
