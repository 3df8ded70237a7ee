// main.go bootstraps dtail: it builds the root Cobra command, binds
// environment and config-file overrides, and executes with a signal-aware
// context.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/example/dtail/internal/config"
	"github.com/example/dtail/internal/wsstream"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rootCmd := newRootCommand()
	err := rootCmd.ExecuteContext(ctx)
	handleError(err)
	if err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := config.NewOptions()
	cmd := &cobra.Command{
		Use:           "dtail",
		Short:         "Stream logs, events, and shells from serving-platform pods",
		Long:          "dtail attaches to the serving platform's streaming API to tail pod logs, watch Kubernetes events, open interactive shells, and move files in and out of containers.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.Endpoint, "endpoint", opts.Endpoint, "Base URL of the serving platform API")
	cmd.PersistentFlags().StringVar(&opts.Token, "token", opts.Token, "Bearer token for the platform API")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", opts.LogLevel, "Log level for dtail output (debug, info, warn, error)")
	cmd.PersistentFlags().StringVarP(&opts.Organization, "organization", "o", opts.Organization, "Organization the target belongs to")
	cmd.PersistentFlags().StringVar(&opts.Cluster, "cluster", opts.Cluster, "Cluster hosting the target")
	cmd.PersistentFlags().StringVarP(&opts.Namespace, "namespace", "n", opts.Namespace, "Kubernetes namespace of the target")

	logsCmd := newLogsCommand(opts)
	eventsCmd := newEventsCommand(opts)
	shellCmd := newShellCommand(opts)
	uploadCmd := newUploadCommand(opts)
	downloadCmd := newDownloadCommand(opts)
	replayCmd := newReplayCommand(opts)
	cmd.AddCommand(logsCmd, eventsCmd, shellCmd, uploadCmd, downloadCmd, replayCmd)
	cmd.Example = `  # Tail a pod's logs, following new lines
  dtail logs checkout-7d9f --cluster prod --namespace payments

  # Watch namespace events refresh in place
  dtail events --cluster prod --namespace payments

  # Open a shell inside a pod container
  dtail shell checkout-7d9f --cluster prod --namespace payments -c app`
	bindViper(cmd, logsCmd, eventsCmd, shellCmd, uploadCmd, downloadCmd, replayCmd)
	return cmd
}

func bindViper(commands ...*cobra.Command) {
	if len(commands) == 0 {
		return
	}
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.SetEnvPrefix("DTAIL")
	v.AutomaticEnv()
	configFile := os.Getenv("DTAIL_CONFIG")
	configureConfigFile(v, configFile)

	cobra.OnInitialize(func() {
		for _, cmd := range commands {
			if err := v.BindPFlags(cmd.Flags()); err != nil {
				cobra.CheckErr(err)
			}
			if err := v.BindPFlags(cmd.PersistentFlags()); err != nil {
				cobra.CheckErr(err)
			}
		}
		if err := readConfigFile(v, configFile != ""); err != nil {
			cobra.CheckErr(err)
		}
		for _, cmd := range commands {
			flagSets := []*pflag.FlagSet{cmd.Flags(), cmd.PersistentFlags()}
			for _, fs := range flagSets {
				fs.VisitAll(func(f *pflag.Flag) {
					if f.Changed {
						return
					}
					if !v.IsSet(f.Name) {
						return
					}
					val := fmt.Sprintf("%v", v.Get(f.Name))
					if val != "" {
						_ = f.Value.Set(val)
					}
				})
			}
		}
	})
}

func handleError(err error) {
	if err == nil || errors.Is(err, pflag.ErrHelp) {
		return
	}
	message := err.Error()
	switch {
	case errors.Is(err, context.Canceled):
		return
	case errors.Is(err, context.DeadlineExceeded):
		message = fmt.Sprintf("%s\nHint: verify network connectivity to the platform endpoint.", err)
	}
	fmt.Fprintf(os.Stderr, "Error: %s\n", message)
}

func configureConfigFile(v *viper.Viper, explicitPath string) {
	if explicitPath != "" {
		v.SetConfigFile(explicitPath)
		return
	}
	v.SetConfigName("config")
	for _, dir := range configSearchDirs() {
		v.AddConfigPath(dir)
	}
}

func readConfigFile(v *viper.Viper, strict bool) error {
	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if errors.As(err, &cfgErr) && !strict {
			return nil
		}
		return err
	}
	return nil
}

func configSearchDirs() []string {
	added := make(map[string]struct{})
	var dirs []string
	add := func(path string) {
		if path == "" {
			return
		}
		if _, ok := added[path]; ok {
			return
		}
		added[path] = struct{}{}
		dirs = append(dirs, path)
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		add(filepath.Join(xdg, "dtail"))
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		add(filepath.Join(home, ".config", "dtail"))
		add(filepath.Join(home, ".dtail"))
	}
	return dirs
}

// authHeader carries the bearer token on websocket dials, mirroring the HTTP
// side-channel. Nil when no token is configured.
func authHeader(opts *config.Options) http.Header {
	if opts.Token == "" {
		return nil
	}
	h := http.Header{}
	h.Set("Authorization", "Bearer "+opts.Token)
	return h
}

func targetFromOptions(opts *config.Options) wsstream.Target {
	return wsstream.Target{
		Organization: opts.Organization,
		Cluster:      opts.Cluster,
		Namespace:    opts.Namespace,
		Deployment:   opts.Deployment,
		Pod:          opts.Pod,
		Container:    opts.Container,
	}
}
