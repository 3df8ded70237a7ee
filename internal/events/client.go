// Package events streams Kubernetes events for a namespace or a single pod.
// Unlike the log tail this is a snapshot stream: every inbound payload is the
// complete current event set, and the render buffer is rewritten wholesale at
// a bounded rate rather than appended to.
package events

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/go-logr/logr"
	corev1 "k8s.io/api/core/v1"

	"github.com/example/dtail/internal/notice"
	"github.com/example/dtail/internal/render"
	"github.com/example/dtail/internal/wsstream"
)

// DefaultRewriteInterval bounds how often snapshot bursts rewrite the buffer.
const DefaultRewriteInterval = 3 * time.Second

const (
	noEventsLine  = "no events"
	timePlacehold = "-"
	timeLayout    = "2006-01-02 15:04:05"
)

// Option configures a Client.
type Option func(*Client)

// WithRewriteInterval overrides the snapshot rewrite throttle window.
func WithRewriteInterval(d time.Duration) Option {
	return func(c *Client) { c.rewriteEvery = d }
}

// WithConnOptions forwards options to the underlying connection supervisor.
func WithConnOptions(opts ...wsstream.Option) Option {
	return func(c *Client) { c.connOpts = append(c.connOpts, opts...) }
}

// Client is one open event view.
type Client struct {
	log      logr.Logger
	sink     *render.Buffer
	notifier notice.Notifier
	conn     *wsstream.Conn
	throttle *render.Throttle

	podScoped    bool
	rewriteEvery time.Duration
	connOpts     []wsstream.Option
	flagged      *color.Color

	mu     sync.Mutex
	latest []corev1.Event
	seen   bool
}

// Open dials the event stream. A non-empty target pod scopes the stream (and
// the line format) to that pod; otherwise it covers the namespace.
func Open(endpoint string, target wsstream.Target, sink *render.Buffer,
	notifier notice.Notifier, log logr.Logger, opts ...Option) (*Client, error) {

	url, err := wsstream.EventsURL(endpoint, target)
	if err != nil {
		return nil, err
	}
	if notifier == nil {
		notifier = notice.Discard{}
	}
	c := &Client{
		log:          log.WithName("events"),
		sink:         sink,
		notifier:     notifier,
		podScoped:    target.Pod != "",
		rewriteEvery: DefaultRewriteInterval,
		flagged:      color.New(color.FgRed),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.throttle = render.NewThrottle(c.rewriteEvery, c.renderLatest)
	connOpts := append([]wsstream.Option{
		wsstream.WithHeartbeat(wsstream.DefaultHeartbeatInterval),
	}, c.connOpts...)
	c.conn = wsstream.Open(url, wsstream.Handlers{
		OnMessage: c.handleMessage,
		OnClose: func(err error) {
			c.log.V(1).Info("event stream dropped", "error", errString(err))
		},
		OnError: func(err error) {
			c.log.V(1).Info("event transport error", "error", errString(err))
		},
	}, log, connOpts...)
	return c, nil
}

// Close tears the view down and cancels any pending rewrite.
func (c *Client) Close() error {
	err := c.conn.Close()
	c.throttle.Stop()
	return err
}

// State exposes the underlying connection state.
func (c *Client) State() wsstream.State {
	return c.conn.State()
}

func (c *Client) handleMessage(raw []byte) {
	env, err := wsstream.ParseEnvelope(raw)
	if err != nil {
		c.log.V(1).Info("drop undecodable event frame", "error", err.Error())
		return
	}
	if env.IsError() {
		c.notifier.Error(env.Message)
		return
	}
	if len(env.Payload) == 0 {
		return
	}
	var events []corev1.Event
	if err := json.Unmarshal(env.Payload, &events); err != nil {
		c.log.V(1).Info("drop malformed event payload", "error", err.Error())
		return
	}
	c.mu.Lock()
	c.latest = events
	c.seen = true
	c.mu.Unlock()
	c.throttle.Trigger()
}

// renderLatest rewrites the buffer from the newest snapshot. Coalesced bursts
// render only the final state; the scroll pin is left to the sink.
func (c *Client) renderLatest() {
	c.mu.Lock()
	events := c.latest
	seen := c.seen
	c.mu.Unlock()
	if !seen {
		return
	}
	if len(events) == 0 {
		c.sink.Replace([]string{noEventsLine})
		return
	}
	lines := make([]string, 0, len(events))
	for i := range events {
		lines = append(lines, c.formatLine(&events[i]))
	}
	c.sink.Replace(lines)
}

// formatLine renders one event: "[time] [reason] message" when pod-scoped,
// "[time] [kind] [name] [reason] message" otherwise. Lines mentioning errors
// or failures are styled distinctly.
func (c *Client) formatLine(ev *corev1.Event) string {
	ts := timePlacehold
	if t := eventTime(ev); !t.IsZero() {
		ts = t.Local().Format(timeLayout)
	}
	var line string
	if c.podScoped {
		line = fmt.Sprintf("[%s] [%s] %s", ts, ev.Reason, ev.Message)
	} else {
		line = fmt.Sprintf("[%s] [%s] [%s] [%s] %s",
			ts, ev.InvolvedObject.Kind, ev.InvolvedObject.Name, ev.Reason, ev.Message)
	}
	if flagged(line) {
		return c.flagged.Sprint(line)
	}
	return line
}

// eventTime picks the event's best-effort timestamp: the explicit event time,
// else the last observed time, else the first observed time.
func eventTime(ev *corev1.Event) time.Time {
	switch {
	case !ev.EventTime.IsZero():
		return ev.EventTime.Time
	case ev.Series != nil && !ev.Series.LastObservedTime.IsZero():
		return ev.Series.LastObservedTime.Time
	case !ev.LastTimestamp.IsZero():
		return ev.LastTimestamp.Time
	case !ev.FirstTimestamp.IsZero():
		return ev.FirstTimestamp.Time
	default:
		return time.Time{}
	}
}

func flagged(line string) bool {
	lower := strings.ToLower(line)
	return strings.Contains(lower, "error") || strings.Contains(lower, "fail")
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
