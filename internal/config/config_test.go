// config_test.go covers option validation and flag normalization.
package config

import (
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/spf13/pflag"
)

func validOptions() *Options {
	o := NewOptions()
	o.Endpoint = "https://api.example.com"
	o.Cluster = "prod"
	return o
}

func TestValidateRequiresEndpointAndCluster(t *testing.T) {
	o := NewOptions()
	if err := o.Validate(); err == nil || !strings.Contains(err.Error(), "endpoint") {
		t.Fatalf("expected endpoint error, got %v", err)
	}
	o.Endpoint = "https://api.example.com"
	if err := o.Validate(); err == nil || !strings.Contains(err.Error(), "cluster") {
		t.Fatalf("expected cluster error, got %v", err)
	}
	o.Cluster = "prod"
	if err := o.Validate(); err != nil {
		t.Fatalf("valid options rejected: %v", err)
	}
}

func TestValidateNoFollowOverridesFollow(t *testing.T) {
	o := validOptions()
	o.Follow = true
	o.NoFollow = true
	if err := o.Validate(); err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if o.Follow {
		t.Fatalf("--no-follow should force follow off")
	}
}

func TestValidateRejectsNegativeTailLines(t *testing.T) {
	o := validOptions()
	o.TailLines = -1
	if err := o.Validate(); err == nil {
		t.Fatalf("expected error for negative tail lines")
	}
}

func TestValidateColorModes(t *testing.T) {
	prev := color.NoColor
	t.Cleanup(func() { color.NoColor = prev })

	o := validOptions()
	o.ColorMode = "never"
	if err := o.Validate(); err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if !color.NoColor {
		t.Fatalf("never mode should disable color output")
	}

	o.ColorMode = "always"
	if err := o.Validate(); err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if color.NoColor {
		t.Fatalf("always mode should enable color output")
	}

	o.ColorMode = "sometimes"
	if err := o.Validate(); err == nil {
		t.Fatalf("expected error for unknown color mode")
	}
}

func TestBindFlagsParsesStreamFlags(t *testing.T) {
	o := NewOptions()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	o.BindFlags(fs)
	err := fs.Parse([]string{
		"--container", "app",
		"--tail", "200",
		"--follow=false",
		"--deployment", "web",
	})
	if err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	if o.Container != "app" || o.TailLines != 200 || o.Follow || o.Deployment != "web" {
		t.Fatalf("flags not applied: %+v", o)
	}
}

func TestNewOptionsDefaults(t *testing.T) {
	o := NewOptions()
	if !o.Follow {
		t.Fatalf("follow should default on")
	}
	if o.Namespace != "default" {
		t.Fatalf("unexpected default namespace %q", o.Namespace)
	}
	if o.MaxBufferLines <= 0 {
		t.Fatalf("buffer cap should have a positive default")
	}
}
