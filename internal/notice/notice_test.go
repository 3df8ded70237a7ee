// notice_test.go covers the out-of-band status channel.
package notice

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"
)

func TestWriterEmitsInfoAndError(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })

	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.Info("connected")
	w.Error("stream dropped")

	out := buf.String()
	if !strings.Contains(out, "connected") {
		t.Fatalf("info message missing from %q", out)
	}
	if !strings.Contains(out, "stream dropped") {
		t.Fatalf("error message missing from %q", out)
	}
}

func TestDiscardIsSilent(t *testing.T) {
	var n Notifier = Discard{}
	n.Info("ignored")
	n.Error("ignored")
}
