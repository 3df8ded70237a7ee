// Package tail streams container stdout/stderr for one pod over a supervised
// websocket. Parameter changes (tail length, container, follow) are sent as
// correlated requests on the live connection; responses to superseded requests
// are discarded by id so a slow server can never corrupt the view.
package tail

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/example/dtail/internal/notice"
	"github.com/example/dtail/internal/render"
	"github.com/example/dtail/internal/wsstream"
)

const (
	payloadAppend  = "append"
	payloadReplace = "replace"
)

// Params are the server-side tail parameters the caller may change at any
// time without reopening the connection.
type Params struct {
	TailLines int64
	Container string
	Follow    bool
}

// request is the client→server control message carrying a fresh correlation id.
type request struct {
	ID            string `json:"id"`
	TailLines     int64  `json:"tail_lines"`
	ContainerName string `json:"container_name,omitempty"`
	Follow        bool   `json:"follow"`
}

// payload is the tail stream's success payload.
type payload struct {
	ReqID string   `json:"req_id"`
	Type  string   `json:"type"`
	Items []string `json:"items"`
}

// Option configures a Client.
type Option func(*Client)

// WithLineObserver registers a hook that sees every rendered line (capture).
func WithLineObserver(fn func(line string)) Option {
	return func(c *Client) {
		if fn != nil {
			c.observers = append(c.observers, fn)
		}
	}
}

// WithConnOptions forwards options to the underlying connection supervisor.
func WithConnOptions(opts ...wsstream.Option) Option {
	return func(c *Client) { c.connOpts = append(c.connOpts, opts...) }
}

// Client is one open tail view: a supervised connection, the render sink it
// feeds, and the correlation state for in-flight parameter changes.
type Client struct {
	log      logr.Logger
	sink     *render.Buffer
	notifier notice.Notifier
	conn     *wsstream.Conn

	observers []func(string)
	connOpts  []wsstream.Option

	mu     sync.Mutex
	params Params
	reqID  string
	first  bool
}

// Open dials the tail stream for the target and starts feeding the sink.
// The connection reconnects on drops and heartbeats while open.
func Open(endpoint string, target wsstream.Target, params Params, sink *render.Buffer,
	notifier notice.Notifier, log logr.Logger, opts ...Option) (*Client, error) {

	url, err := wsstream.TailURL(endpoint, target, params.TailLines, params.Follow)
	if err != nil {
		return nil, err
	}
	if notifier == nil {
		notifier = notice.Discard{}
	}
	c := &Client{
		log:      log.WithName("tail"),
		sink:     sink,
		notifier: notifier,
		params:   params,
	}
	for _, opt := range opts {
		opt(c)
	}
	connOpts := append([]wsstream.Option{
		wsstream.WithHeartbeat(wsstream.DefaultHeartbeatInterval),
	}, c.connOpts...)
	c.conn = wsstream.Open(url, wsstream.Handlers{
		OnOpen:    c.handleOpen,
		OnMessage: c.handleMessage,
		OnClose: func(err error) {
			c.log.V(1).Info("tail stream dropped", "error", errString(err))
		},
		OnError: func(err error) {
			c.log.V(1).Info("tail transport error", "error", errString(err))
		},
	}, log, connOpts...)
	return c, nil
}

// Close tears the view down; no reconnect follows.
func (c *Client) Close() error {
	return c.conn.Close()
}

// State exposes the underlying connection state.
func (c *Client) State() wsstream.State {
	return c.conn.State()
}

// SetTailLines changes the historic line count and resends the tail request.
func (c *Client) SetTailLines(n int64) {
	c.mu.Lock()
	if c.params.TailLines == n {
		c.mu.Unlock()
		return
	}
	c.params.TailLines = n
	c.mu.Unlock()
	c.sendRequest()
}

// SetContainer switches the tailed container and resends the tail request.
func (c *Client) SetContainer(name string) {
	c.mu.Lock()
	if c.params.Container == name {
		c.mu.Unlock()
		return
	}
	c.params.Container = name
	c.mu.Unlock()
	c.sendRequest()
}

// SetFollow toggles follow mode and resends the tail request.
func (c *Client) SetFollow(follow bool) {
	c.mu.Lock()
	if c.params.Follow == follow {
		c.mu.Unlock()
		return
	}
	c.params.Follow = follow
	c.mu.Unlock()
	c.sendRequest()
}

func (c *Client) handleOpen() {
	c.mu.Lock()
	// The next payload on a fresh connection always resets the buffer, so the
	// loading placeholder is erased exactly once regardless of payload type.
	c.first = true
	c.mu.Unlock()
	c.sendRequest()
}

// sendRequest mints a fresh correlation id and transmits the current
// parameters. A no-op while the connection is not open; the request is
// re-sent from handleOpen once it is.
func (c *Client) sendRequest() {
	if c.conn.State() != wsstream.StateOpen {
		return
	}
	c.mu.Lock()
	id := uuid.NewString()
	c.reqID = id
	req := request{
		ID:            id,
		TailLines:     c.params.TailLines,
		ContainerName: c.params.Container,
		Follow:        c.params.Follow,
	}
	c.mu.Unlock()
	if err := c.conn.SendJSON(req); err != nil && !errors.Is(err, wsstream.ErrNotOpen) {
		c.log.Error(err, "send tail request")
	}
}

func (c *Client) handleMessage(raw []byte) {
	env, err := wsstream.ParseEnvelope(raw)
	if err != nil {
		c.log.V(1).Info("drop undecodable tail frame", "error", err.Error())
		return
	}
	if env.IsError() {
		c.notifier.Error(env.Message)
		return
	}
	if len(env.Payload) == 0 {
		return
	}
	var p payload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		c.log.V(1).Info("drop malformed tail payload", "error", err.Error())
		return
	}

	c.mu.Lock()
	if p.ReqID != c.reqID {
		c.mu.Unlock()
		c.log.V(1).Info("discard stale tail response", "reqID", p.ReqID)
		return
	}
	forceReset := c.first
	c.first = false
	c.mu.Unlock()

	// Trust the server's append/replace tag, except that the first payload
	// after (re)connect always rewrites the buffer to clear the placeholder.
	if forceReset || p.Type == payloadReplace {
		c.sink.Replace(p.Items)
	} else {
		c.sink.Append(p.Items...)
	}
	for _, observe := range c.observers {
		for _, line := range p.Items {
			observe(line)
		}
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
