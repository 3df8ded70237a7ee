// Package config defines the flag plumbing and runtime options shared by
// dtail's streaming commands, translating Cobra/Viper flag values into a
// strongly typed struct the stream clients consume.
package config

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Options holds all CLI configuration used by the streaming commands.
type Options struct {
	Endpoint     string
	Token        string
	Organization string
	Cluster      string
	Namespace    string
	Deployment   string
	Pod          string
	Container    string

	TailLines int64
	Follow    bool
	NoFollow  bool

	Debug bool
	Fork  bool

	ColorMode     string
	LogLevel      string
	MaxBufferLines int
	CaptureOutput string
}

// NewOptions returns Options with defaults applied.
func NewOptions() *Options {
	return &Options{
		Namespace:      "default",
		TailLines:      50,
		Follow:         true,
		ColorMode:      "auto",
		LogLevel:       "info",
		MaxBufferLines: 10000,
	}
}

// AddFlags binds configuration flags to the provided Cobra command.
func (o *Options) AddFlags(cmd *cobra.Command) {
	o.BindFlags(cmd.Flags())
}

// BindFlags attaches the per-command stream flags to an arbitrary FlagSet and
// returns the flag names for further customization. Connection identity flags
// (endpoint, token, organization, cluster, namespace) live on the root
// command as persistent flags.
func (o *Options) BindFlags(fs *pflag.FlagSet) []string {
	var names []string
	fs.StringVarP(&o.Deployment, "deployment", "d", o.Deployment, "Deployment the pod belongs to (optional)")
	names = append(names, "deployment")
	fs.StringVarP(&o.Container, "container", "c", o.Container, "Container name (defaults to the pod's main container)")
	names = append(names, "container")
	fs.Int64VarP(&o.TailLines, "tail", "t", o.TailLines, "Number of historic log lines to request")
	names = append(names, "tail")
	fs.BoolVarP(&o.Follow, "follow", "f", o.Follow, "Follow log output")
	names = append(names, "follow")
	fs.BoolVar(&o.NoFollow, "no-follow", false, "Alias for --follow=false")
	names = append(names, "no-follow")
	fs.StringVar(&o.ColorMode, "color", o.ColorMode, "Color mode: auto, always, or never")
	names = append(names, "color")
	fs.IntVar(&o.MaxBufferLines, "max-buffer-lines", o.MaxBufferLines, "Retained line cap for the render buffer")
	names = append(names, "max-buffer-lines")
	return names
}

// Validate normalizes derived values and rejects inconsistent input.
func (o *Options) Validate() error {
	if strings.TrimSpace(o.Endpoint) == "" {
		return fmt.Errorf("--endpoint must be specified (or DTAIL_ENDPOINT set)")
	}
	if strings.TrimSpace(o.Cluster) == "" {
		return fmt.Errorf("--cluster must be specified")
	}
	if o.NoFollow {
		o.Follow = false
	}
	if o.TailLines < 0 {
		return fmt.Errorf("--tail must be >= 0, got %d", o.TailLines)
	}
	switch o.ColorMode {
	case "auto":
	case "always":
		color.NoColor = false
	case "never":
		color.NoColor = true
	default:
		return fmt.Errorf("unknown color mode %q (expected auto, always, or never)", o.ColorMode)
	}
	return nil
}
