// transfer.go implements "dtail upload" and "dtail download": the HTTP file
// transfer side-channel into pod containers.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/dtail/internal/config"
	"github.com/example/dtail/internal/logging"
	"github.com/example/dtail/internal/notice"
	"github.com/example/dtail/internal/transfer"
)

func newUploadCommand(opts *config.Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload POD LOCAL_FILE",
		Short: "Upload a local file into a pod container",
		Long:  "Upload a local file into a pod container. Files over 10 GiB are rejected before any data is sent.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Pod = args[0]
			localPath := args[1]
			if err := opts.Validate(); err != nil {
				return err
			}
			log, err := logging.New(opts.LogLevel)
			if err != nil {
				return err
			}
			notifier := notice.NewWriter(os.Stderr)
			client := transfer.New(opts.Endpoint, opts.Token, log)
			var lastPct int64 = -1
			err = client.Upload(cmd.Context(), targetFromOptions(opts), localPath, func(p transfer.Progress) {
				if p.Total <= 0 {
					return
				}
				pct := p.Sent * 100 / p.Total
				if pct != lastPct {
					lastPct = pct
					fmt.Fprintf(os.Stderr, "\r%s: %d%%", p.Filename, pct)
				}
				if p.Done {
					fmt.Fprintln(os.Stderr)
				}
			})
			if err != nil {
				return err
			}
			notifier.Info(fmt.Sprintf("uploaded %s", localPath))
			return nil
		},
	}
	cmd.Flags().StringVarP(&opts.Container, "container", "c", opts.Container, "Container receiving the file")
	return cmd
}

func newDownloadCommand(opts *config.Options) *cobra.Command {
	var outputPath string
	cmd := &cobra.Command{
		Use:   "download POD REMOTE_PATH",
		Short: "Download a file from a pod container",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Pod = args[0]
			remotePath := args[1]
			if err := opts.Validate(); err != nil {
				return err
			}
			log, err := logging.New(opts.LogLevel)
			if err != nil {
				return err
			}
			notifier := notice.NewWriter(os.Stderr)
			client := transfer.New(opts.Endpoint, opts.Token, log)

			out := os.Stdout
			if outputPath != "" && outputPath != "-" {
				f, err := os.Create(outputPath)
				if err != nil {
					return fmt.Errorf("create %s: %w", outputPath, err)
				}
				defer f.Close()
				out = f
			}
			n, err := client.Download(cmd.Context(), targetFromOptions(opts), remotePath, out)
			if err != nil {
				return err
			}
			if outputPath != "" && outputPath != "-" {
				notifier.Info(fmt.Sprintf("downloaded %d bytes to %s", n, outputPath))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&opts.Container, "container", "c", opts.Container, "Container holding the file")
	cmd.Flags().StringVarP(&outputPath, "output", "O", "", "Local destination path (defaults to stdout)")
	return cmd
}
