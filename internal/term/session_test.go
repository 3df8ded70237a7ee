// session_test.go covers inbound frame classification and the terminal's
// no-reconnect close semantics.
package term

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/gorilla/websocket"
	"k8s.io/client-go/tools/remotecommand"

	"github.com/example/dtail/internal/wsstream"
)

func remotecommandSize(cols, rows uint16) remotecommand.TerminalSize {
	return remotecommand.TerminalSize{Width: cols, Height: rows}
}

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

func newTermServer(t *testing.T, handler func(ws *websocket.Conn)) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		handler(ws)
	}))
	t.Cleanup(srv.Close)
	return "http" + strings.TrimPrefix(srv.URL, "http")
}

// syncWriter collects session output safely across goroutines.
type syncWriter struct {
	mu  sync.Mutex
	buf strings.Builder
}

func (w *syncWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}

func (w *syncWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}

type channelNotifier struct {
	infos  chan string
	errors chan string
}

func newChannelNotifier() *channelNotifier {
	return &channelNotifier{infos: make(chan string, 4), errors: make(chan string, 4)}
}

func (n *channelNotifier) Info(msg string)  { n.infos <- msg }
func (n *channelNotifier) Error(msg string) { n.errors <- msg }

func newTestSession(out *syncWriter, notifier *channelNotifier) *Session {
	s := &Session{
		log:      logr.Discard(),
		out:      out,
		notifier: notifier,
		done:     make(chan struct{}),
	}
	return s
}

func TestHandleMessageDecodesBase64Output(t *testing.T) {
	out := &syncWriter{}
	s := newTestSession(out, newChannelNotifier())
	encoded := base64.StdEncoding.EncodeToString([]byte("shell output\r\n"))
	s.handleMessage([]byte(encoded))
	if got := out.String(); got != "shell output\r\n" {
		t.Fatalf("unexpected output %q", got)
	}
}

func TestHandleMessageFallsBackToRawBytes(t *testing.T) {
	out := &syncWriter{}
	s := newTestSession(out, newChannelNotifier())
	s.handleMessage([]byte("not*base64*at*all"))
	if got := out.String(); got != "not*base64*at*all" {
		t.Fatalf("undecodable frame should pass through verbatim, got %q", got)
	}
}

func TestHandleMessageRoutesControlNotices(t *testing.T) {
	out := &syncWriter{}
	notifier := newChannelNotifier()
	s := newTestSession(out, notifier)

	s.handleMessage([]byte(`{"type":"error","message":"container restarting"}`))
	select {
	case msg := <-notifier.errors:
		if msg != "container restarting" {
			t.Fatalf("unexpected error notice %q", msg)
		}
	default:
		t.Fatalf("error control frame never reached the notifier")
	}

	s.handleMessage([]byte(`{"message":"attached"}`))
	select {
	case msg := <-notifier.infos:
		if msg != "attached" {
			t.Fatalf("unexpected info notice %q", msg)
		}
	default:
		t.Fatalf("info control frame never reached the notifier")
	}
	if out.String() != "" {
		t.Fatalf("control frames must not reach terminal output, got %q", out.String())
	}
}

func TestHandleMessageReportsSelectedContainer(t *testing.T) {
	out := &syncWriter{}
	s := newTestSession(out, newChannelNotifier())
	var selected string
	s.onContainer = func(name string) { selected = name }
	s.handleMessage([]byte(`{"payload":{"containerName":"sidecar"}}`))
	if selected != "sidecar" {
		t.Fatalf("container callback saw %q", selected)
	}
}

func TestHandleMessageReportsGeneratedPod(t *testing.T) {
	out := &syncWriter{}
	s := newTestSession(out, newChannelNotifier())
	var pod GeneratedPod
	s.onPod = func(p GeneratedPod) { pod = p }
	s.handleMessage([]byte(`{"name":"debug-xyz","namespace":"payments","status":"Running"}`))
	if pod.Name != "debug-xyz" || pod.Namespace != "payments" {
		t.Fatalf("unexpected generated pod %+v", pod)
	}
	if out.String() != "" {
		t.Fatalf("pod descriptor must not reach terminal output, got %q", out.String())
	}
}

func TestServerCloseWritesMarkerAndNeverReconnects(t *testing.T) {
	var dials int64
	endpoint := newTermServer(t, func(ws *websocket.Conn) {
		atomic.AddInt64(&dials, 1)
		// Read the initial resize, emit one output frame, then hang up.
		if _, _, err := ws.ReadMessage(); err != nil {
			ws.Close()
			return
		}
		encoded := base64.StdEncoding.EncodeToString([]byte("$ "))
		_ = ws.WriteMessage(websocket.TextMessage, []byte(encoded))
		ws.Close()
	})

	out := &syncWriter{}
	session, err := Open(endpoint, wsstream.Target{Cluster: "c", Namespace: "n", Pod: "p"},
		remotecommandSize(80, 24), out, newChannelNotifier(), logr.Discard())
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	defer session.Close()

	select {
	case <-session.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("session never observed the server close")
	}
	if !strings.Contains(out.String(), closedMarker) {
		t.Fatalf("closed marker missing from output %q", out.String())
	}
	time.Sleep(150 * time.Millisecond)
	if got := atomic.LoadInt64(&dials); got != 1 {
		t.Fatalf("terminal session must never reconnect, saw %d dials", got)
	}
}

func TestOpenSendsInitialResize(t *testing.T) {
	frames := make(chan []byte, 4)
	endpoint := newTermServer(t, func(ws *websocket.Conn) {
		defer ws.Close()
		for {
			_, raw, err := ws.ReadMessage()
			if err != nil {
				return
			}
			frames <- raw
		}
	})

	out := &syncWriter{}
	session, err := Open(endpoint, wsstream.Target{Cluster: "c", Namespace: "n", Pod: "p"},
		remotecommandSize(120, 40), out, newChannelNotifier(), logr.Discard())
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	defer session.Close()

	select {
	case raw := <-frames:
		var frame resizeFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			t.Fatalf("decode resize frame %q: %v", raw, err)
		}
		if frame.Type != "resize" || frame.Cols != 120 || frame.Rows != 40 {
			t.Fatalf("unexpected initial resize %+v", frame)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("initial resize never arrived")
	}

	if err := session.SendInput([]byte("ls\n")); err != nil {
		t.Fatalf("SendInput returned error: %v", err)
	}
	select {
	case raw := <-frames:
		var frame inputFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			t.Fatalf("decode input frame %q: %v", raw, err)
		}
		if frame.Type != "input" || frame.Input != "ls\n" {
			t.Fatalf("unexpected input frame %+v", frame)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("input frame never arrived")
	}
}
