// Package term runs the interactive shell session against a pod container:
// keystrokes and resize frames go out, raw terminal bytes and out-of-band
// control messages come back multiplexed on one websocket. Terminal sessions
// never reconnect: a fresh socket would attach to a fresh shell process, so a
// transparent reconnect would silently present a dead session as live.
package term

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"sync"

	"github.com/go-logr/logr"
	"k8s.io/client-go/tools/remotecommand"

	"github.com/example/dtail/internal/notice"
	"github.com/example/dtail/internal/wsstream"
)

const closedMarker = "\r\n[connection closed]\r\n"

// GeneratedPod describes the ephemeral pod a debug or fork session attached
// to, reported back over the stream because the caller cannot know it ahead
// of time.
type GeneratedPod struct {
	Name      string `json:"name"`
	Namespace string `json:"namespace"`
	Status    string `json:"status,omitempty"`
}

type inputFrame struct {
	Type  string `json:"type"`
	Input string `json:"input"`
}

type resizeFrame struct {
	Type string `json:"type"`
	Rows uint16 `json:"rows"`
	Cols uint16 `json:"cols"`
}

// controlEnvelope is the out-of-band JSON shape the server multiplexes onto
// the byte stream: notices plus the container the session actually attached to.
type controlEnvelope struct {
	Type    string `json:"type,omitempty"`
	Message string `json:"message,omitempty"`
	Payload *struct {
		ContainerName string `json:"containerName,omitempty"`
	} `json:"payload,omitempty"`
}

// Option configures a Session.
type Option func(*Session)

// WithDebug attaches a debug container instead of the main one.
func WithDebug() Option {
	return func(s *Session) { s.debug = true }
}

// WithFork targets an ephemeral copy of the pod.
func WithFork() Option {
	return func(s *Session) { s.fork = true }
}

// WithOnContainer is called when the server reports which container the
// session attached to (debug/fork flows auto-select it server-side).
func WithOnContainer(fn func(container string)) Option {
	return func(s *Session) { s.onContainer = fn }
}

// WithOnGeneratedPod is called once when a debug/fork flow reports the
// ephemeral pod it created.
func WithOnGeneratedPod(fn func(pod GeneratedPod)) Option {
	return func(s *Session) { s.onPod = fn }
}

// WithSizeQueue streams subsequent terminal geometry changes to the server.
func WithSizeQueue(q remotecommand.TerminalSizeQueue) Option {
	return func(s *Session) { s.sizeQueue = q }
}

// WithConnOptions forwards options to the underlying connection supervisor.
func WithConnOptions(opts ...wsstream.Option) Option {
	return func(s *Session) { s.connOpts = append(s.connOpts, opts...) }
}

// Session is one interactive shell attachment.
type Session struct {
	log      logr.Logger
	out      io.Writer
	notifier notice.Notifier
	conn     *wsstream.Conn

	debug       bool
	fork        bool
	onContainer func(string)
	onPod       func(GeneratedPod)
	sizeQueue   remotecommand.TerminalSizeQueue
	connOpts    []wsstream.Option

	initial  remotecommand.TerminalSize
	done     chan struct{}
	doneOnce sync.Once

	mu sync.Mutex
	wr io.Writer
}

// Open dials the terminal stream and sends the initial geometry as soon as
// the connection is up; the remote shell has no size until told.
func Open(endpoint string, target wsstream.Target, size remotecommand.TerminalSize,
	out io.Writer, notifier notice.Notifier, log logr.Logger, opts ...Option) (*Session, error) {

	if notifier == nil {
		notifier = notice.Discard{}
	}
	s := &Session{
		log:      log.WithName("term"),
		out:      out,
		notifier: notifier,
		initial:  size,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	url, err := wsstream.TerminalURL(endpoint, target, s.debug, s.fork)
	if err != nil {
		return nil, err
	}
	connOpts := append([]wsstream.Option{
		wsstream.WithReconnectDelay(0), // interactive sessions are not resumable
	}, s.connOpts...)
	s.conn = wsstream.Open(url, wsstream.Handlers{
		OnOpen:    s.handleOpen,
		OnMessage: s.handleMessage,
		OnClose:   s.handleClose,
		OnError: func(err error) {
			s.log.V(1).Info("terminal transport error", "error", err.Error())
		},
	}, log, connOpts...)
	return s, nil
}

// Done is closed once the session ends, by either side.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Close ends the session from our side.
func (s *Session) Close() error {
	err := s.conn.Close()
	s.finish()
	return err
}

// SendInput forwards keystrokes verbatim.
func (s *Session) SendInput(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	return s.conn.SendJSON(inputFrame{Type: "input", Input: string(data)})
}

// SendResize reports new terminal geometry.
func (s *Session) SendResize(size remotecommand.TerminalSize) error {
	return s.conn.SendJSON(resizeFrame{Type: "resize", Rows: size.Height, Cols: size.Width})
}

func (s *Session) handleOpen() {
	if err := s.SendResize(s.initial); err != nil {
		s.log.V(1).Info("send initial resize", "error", err.Error())
	}
	if s.sizeQueue != nil {
		go s.pumpResizes()
	}
}

func (s *Session) pumpResizes() {
	for {
		size := s.sizeQueue.Next()
		if size == nil {
			return
		}
		if err := s.SendResize(*size); err != nil {
			return
		}
	}
}

// handleMessage classifies an inbound frame. The wire format cannot
// distinguish control frames from terminal bytes except by JSON parse
// success, so try-parse-then-fallback is the contract, not a heuristic:
// a frame that parses as a control envelope or a generated-pod descriptor is
// handled out of band, anything else is base64 terminal output.
func (s *Session) handleMessage(raw []byte) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err == nil && probe != nil {
		if _, ok := probe["message"]; ok {
			s.handleControl(raw)
			return
		}
		if _, ok := probe["payload"]; ok {
			s.handleControl(raw)
			return
		}
		_, hasName := probe["name"]
		_, hasNamespace := probe["namespace"]
		if hasName && hasNamespace {
			var pod GeneratedPod
			if err := json.Unmarshal(raw, &pod); err == nil {
				if s.onPod != nil {
					s.onPod(pod)
				}
				return
			}
		}
	}

	decoded, err := base64.StdEncoding.DecodeString(string(raw))
	if err != nil {
		// Not base64 either; show it as-is rather than dropping output.
		decoded = raw
	}
	s.write(decoded)
}

func (s *Session) handleControl(raw []byte) {
	var ctl controlEnvelope
	if err := json.Unmarshal(raw, &ctl); err != nil {
		s.log.V(1).Info("drop malformed control frame", "error", err.Error())
		return
	}
	if ctl.Payload != nil && ctl.Payload.ContainerName != "" && s.onContainer != nil {
		s.onContainer(ctl.Payload.ContainerName)
	}
	if ctl.Message != "" {
		if ctl.Type == "error" {
			s.notifier.Error(ctl.Message)
		} else {
			s.notifier.Info(ctl.Message)
		}
	}
}

func (s *Session) handleClose(err error) {
	s.write([]byte(closedMarker))
	s.log.V(1).Info("terminal session ended", "error", errString(err))
	s.finish()
}

func (s *Session) write(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.out.Write(data); err != nil {
		s.log.V(1).Info("terminal write failed", "error", err.Error())
	}
}

func (s *Session) finish() {
	s.doneOnce.Do(func() { close(s.done) })
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
