// events.go implements "dtail events": a live, self-rewriting view of the
// Kubernetes events for a namespace or a single pod.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/example/dtail/internal/config"
	"github.com/example/dtail/internal/events"
	"github.com/example/dtail/internal/logging"
	"github.com/example/dtail/internal/notice"
	"github.com/example/dtail/internal/wsstream"
)

func newEventsCommand(opts *config.Options) *cobra.Command {
	var regexFind bool
	var matchCase bool
	cmd := &cobra.Command{
		Use:   "events [POD]",
		Short: "Watch Kubernetes events for a namespace or pod",
		Long: `Watch the event stream for a namespace, or for a single pod when one is
named. The server pushes full snapshots; the view rewrites in place, at most
once every few seconds during event storms.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.Pod = args[0]
			}
			if err := opts.Validate(); err != nil {
				return err
			}
			log, err := logging.New(opts.LogLevel)
			if err != nil {
				return err
			}
			notifier := notice.NewWriter(os.Stderr)
			viewer := newViewer(os.Stdin, os.Stdout, opts.MaxBufferLines, regexFind, matchCase)

			client, err := events.Open(opts.Endpoint, targetFromOptions(opts),
				viewer.Buffer(), notifier, log,
				events.WithConnOptions(wsstream.WithHeader(authHeader(opts))))
			if err != nil {
				return err
			}
			defer client.Close()
			return viewer.Run(cmd.Context(), nil)
		},
	}
	cmd.Flags().IntVar(&opts.MaxBufferLines, "max-buffer-lines", opts.MaxBufferLines, "Retained line cap for the render buffer")
	cmd.Flags().BoolVar(&regexFind, "regex-find", false, "Treat / search queries as regular expressions")
	cmd.Flags().BoolVar(&matchCase, "match-case", false, "Make / search queries case-sensitive")
	return cmd
}
