// Package wsstream maintains the persistent duplex connections behind dtail's
// streaming views: one websocket per open session, supervised through an
// explicit Connecting/Open/Closed state machine with fixed-delay reconnection
// and an optional keepalive heartbeat.
package wsstream

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/gorilla/websocket"
)

// State is the lifecycle position of a supervised connection.
type State int

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

const (
	// DefaultReconnectDelay is the fixed backoff between reconnect attempts.
	DefaultReconnectDelay = 3 * time.Second
	// DefaultHeartbeatInterval paces the keepalive frames on tail/event streams.
	DefaultHeartbeatInterval = 20 * time.Second

	defaultWriteTimeout = 10 * time.Second
	closeGracePeriod    = time.Second
)

// ErrNotOpen is returned by Send when the connection is not currently open.
// Callers treat it as "try again after the next open", not as a failure.
var ErrNotOpen = errors.New("stream connection is not open")

// Handlers receive connection lifecycle and message callbacks. OnClose fires
// only for peer-initiated drops; an owner-initiated Close is silent. OnError
// observes transport errors without driving the state machine.
type Handlers struct {
	OnOpen    func()
	OnMessage func(raw []byte)
	OnClose   func(err error)
	OnError   func(err error)
}

// Option configures a Conn.
type Option func(*Conn)

// WithReconnectDelay overrides the fixed reconnect backoff. A non-positive
// delay disables reconnection entirely (the interactive terminal stream).
func WithReconnectDelay(d time.Duration) Option {
	return func(c *Conn) { c.reconnectDelay = d }
}

// WithHeartbeat enables keepalive frames at the given interval while open.
func WithHeartbeat(interval time.Duration) Option {
	return func(c *Conn) { c.heartbeatEvery = interval }
}

// WithDialer overrides the websocket dialer (tests, proxies).
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Conn) {
		if d != nil {
			c.dialer = d
		}
	}
}

// WithHeader attaches extra request headers to every dial (auth tokens).
func WithHeader(h http.Header) Option {
	return func(c *Conn) { c.header = h }
}

// Conn supervises exactly one logical stream: it owns the physical websocket,
// redials on peer-initiated drops after a fixed delay, and guarantees that no
// reconnect or heartbeat survives an owner-initiated Close. All correlation
// state lives on the Conn so two sessions in one process cannot interfere.
type Conn struct {
	url      string
	log      logr.Logger
	handlers Handlers
	dialer   *websocket.Dialer
	header   http.Header

	reconnectDelay time.Duration
	heartbeatEvery time.Duration
	writeTimeout   time.Duration

	mu             sync.Mutex
	state          State
	selfClosed     bool
	ws             *websocket.Conn
	gen            uint64
	reconnectTimer *time.Timer
	heartbeatTimer *time.Timer
}

// Open creates the supervisor and dials asynchronously. The returned Conn is
// live immediately; handlers fire as the connection progresses.
func Open(url string, handlers Handlers, log logr.Logger, opts ...Option) *Conn {
	c := &Conn{
		url:            url,
		log:            log.WithName("wsstream"),
		handlers:       handlers,
		dialer:         websocket.DefaultDialer,
		reconnectDelay: DefaultReconnectDelay,
		writeTimeout:   defaultWriteTimeout,
		state:          StateConnecting,
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.dial()
	return c
}

// State returns the current lifecycle state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Send transmits a text frame if the connection is open.
func (c *Conn) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sendLocked(payload)
}

// SendJSON marshals v and transmits it as a text frame.
func (c *Conn) SendJSON(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Send(payload)
}

func (c *Conn) sendLocked(payload []byte) error {
	if c.state != StateOpen || c.ws == nil {
		return ErrNotOpen
	}
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, payload)
}

// Close is the owner-initiated teardown. Ordering matters: the self-closed
// flag is set before the transport closes, so the read loop's error cannot
// race a spurious reconnect. Close is idempotent.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.selfClosed {
		c.mu.Unlock()
		return nil
	}
	c.selfClosed = true
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	c.stopHeartbeatLocked()
	ws := c.ws
	c.ws = nil
	c.state = StateClosed
	c.mu.Unlock()

	c.log.V(1).Info("stream closed by owner", "url", c.url)
	if ws == nil {
		return nil
	}
	deadline := time.Now().Add(closeGracePeriod)
	_ = ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return ws.Close()
}

func (c *Conn) dial() {
	c.mu.Lock()
	if c.selfClosed {
		c.mu.Unlock()
		return
	}
	c.state = StateConnecting
	c.mu.Unlock()

	ws, resp, err := c.dialer.Dial(c.url, c.header)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}

	c.mu.Lock()
	if c.selfClosed {
		c.mu.Unlock()
		if ws != nil {
			_ = ws.Close()
		}
		return
	}
	if err != nil {
		c.mu.Unlock()
		c.log.V(1).Info("stream dial failed", "url", c.url, "error", err.Error())
		if c.handlers.OnError != nil {
			c.handlers.OnError(err)
		}
		c.connectionLost(err)
		return
	}
	c.ws = ws
	c.gen++
	gen := c.gen
	c.state = StateOpen
	c.scheduleHeartbeatLocked()
	c.mu.Unlock()

	c.log.V(1).Info("stream open", "url", c.url)
	if c.handlers.OnOpen != nil {
		c.handlers.OnOpen()
	}
	go c.readLoop(ws, gen)
}

func (c *Conn) readLoop(ws *websocket.Conn, gen uint64) {
	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			c.mu.Lock()
			stale := gen != c.gen || c.selfClosed
			c.mu.Unlock()
			if stale {
				return
			}
			c.connectionLost(err)
			return
		}
		if c.handlers.OnMessage != nil {
			c.handlers.OnMessage(raw)
		}
	}
}

// connectionLost handles a peer-initiated drop or a failed dial: it cancels
// the heartbeat, schedules exactly one reconnect after the fixed delay (when
// reconnection is enabled), and then informs the caller.
func (c *Conn) connectionLost(err error) {
	c.mu.Lock()
	c.stopHeartbeatLocked()
	if c.ws != nil {
		_ = c.ws.Close()
		c.ws = nil
	}
	if c.selfClosed {
		c.state = StateClosed
		c.mu.Unlock()
		return
	}
	if c.reconnectDelay <= 0 {
		c.state = StateClosed
		c.mu.Unlock()
		c.log.V(1).Info("stream closed by peer, reconnect disabled", "url", c.url)
		if c.handlers.OnClose != nil {
			c.handlers.OnClose(err)
		}
		return
	}
	c.state = StateConnecting
	c.reconnectTimer = time.AfterFunc(c.reconnectDelay, c.dial)
	c.mu.Unlock()

	c.log.V(1).Info("stream dropped, reconnect scheduled",
		"url", c.url, "delay", c.reconnectDelay.String())
	if c.handlers.OnClose != nil {
		c.handlers.OnClose(err)
	}
}

func (c *Conn) scheduleHeartbeatLocked() {
	if c.heartbeatEvery <= 0 || c.selfClosed || c.state != StateOpen {
		return
	}
	c.heartbeatTimer = time.AfterFunc(c.heartbeatEvery, c.sendHeartbeat)
}

func (c *Conn) stopHeartbeatLocked() {
	if c.heartbeatTimer != nil {
		c.heartbeatTimer.Stop()
		c.heartbeatTimer = nil
	}
}

// sendHeartbeat emits an empty keepalive frame and reschedules itself. The
// open/self-closed checks run under the same lock as close, so no heartbeat
// can be written after the connection is torn down.
func (c *Conn) sendHeartbeat() {
	c.mu.Lock()
	if c.selfClosed || c.state != StateOpen || c.ws == nil {
		c.mu.Unlock()
		return
	}
	err := c.sendLocked([]byte{})
	c.scheduleHeartbeatLocked()
	c.mu.Unlock()
	if err != nil {
		c.log.V(1).Info("heartbeat write failed", "url", c.url, "error", err.Error())
	}
}
