// Package wsclient is a Go client for the realtime gateway. It keeps one
// socket open per user and re-dials after the transport closes, pacing
// attempts with a reconnect.Policy.
package wsclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chatlink/internal/logger"
	"github.com/chatlink/internal/protocol"
	"github.com/chatlink/internal/reconnect"
)

// State is the connection state reported to OnState.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
)

const writeWait = 10 * time.Second

var (
	ErrNotConnected = errors.New("wsclient: not connected")
	ErrClosed       = errors.New("wsclient: closed")
)

type Config struct {
	// URL of the gateway endpoint, e.g. ws://localhost:8080/ws.
	URL    string
	UserID int64
	Policy reconnect.Policy
	Dialer *websocket.Dialer
	Header http.Header
}

func (c *Config) defaults() {
	if c.Dialer == nil {
		c.Dialer = websocket.DefaultDialer
	}
	if c.Policy.BaseDelay == 0 {
		c.Policy = reconnect.Default()
	}
}

type Client struct {
	cfg Config

	mu      sync.Mutex
	conn    *websocket.Conn
	state   State
	closed  bool
	onFrame func(protocol.Frame)
	onState func(State)

	writeMu sync.Mutex
}

func New(cfg Config) *Client {
	cfg.defaults()
	return &Client{cfg: cfg, state: StateDisconnected}
}

// OnFrame sets the callback for every decoded server frame. Call before Run.
func (c *Client) OnFrame(fn func(protocol.Frame)) {
	c.mu.Lock()
	c.onFrame = fn
	c.mu.Unlock()
}

// OnState sets the callback for state transitions. Call before Run.
func (c *Client) OnState(fn func(State)) {
	c.mu.Lock()
	c.onState = fn
	c.mu.Unlock()
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	fn := c.onState
	c.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

func (c *Client) endpoint() (string, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("parse gateway url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	if c.cfg.UserID > 0 {
		q := u.Query()
		q.Set("userId", strconv.FormatInt(c.cfg.UserID, 10))
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Dial opens a single connection without starting the read loop.
func (c *Client) Dial(ctx context.Context) (*websocket.Conn, error) {
	target, err := c.endpoint()
	if err != nil {
		return nil, err
	}
	conn, resp, err := c.cfg.Dialer.DialContext(ctx, target, c.cfg.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	return conn, nil
}

// Run connects and reads frames until ctx is done or Close is called.
// A failed first dial is returned as is; after a connection has been
// established, a closed transport triggers re-dialing under the policy.
// Run returns the last error once the policy gives up.
func (c *Client) Run(ctx context.Context) error {
	c.setState(StateConnecting)
	conn, err := c.Dial(ctx)
	if err != nil {
		c.setState(StateDisconnected)
		return err
	}

	b := c.cfg.Policy.Backoff()
	for {
		if conn != nil {
			b.Connected()
			err = c.serve(ctx, conn)
		}
		if c.isClosed() {
			c.setState(StateDisconnected)
			return nil
		}
		if ctx.Err() != nil {
			c.setState(StateDisconnected)
			return ctx.Err()
		}

		c.setState(StateReconnecting)
		logger.Infof("wsclient: user %d: transport closed: %v (attempt %d)", c.cfg.UserID, err, b.Attempt()+1)
		if !b.Wait(ctx) {
			c.setState(StateDisconnected)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("reconnect attempts exhausted: %w", err)
		}
		conn, err = c.Dial(ctx)
	}
}

// serve installs conn as the live connection and blocks in the read loop.
func (c *Client) serve(ctx context.Context, conn *websocket.Conn) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return ErrClosed
	}
	c.conn = conn
	c.mu.Unlock()
	c.setState(StateConnected)

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	defer func() {
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		f, err := protocol.DecodeFrame(data)
		if err != nil {
			logger.Debugf("wsclient: user %d: skip frame: %v", c.cfg.UserID, err)
			continue
		}
		c.mu.Lock()
		fn := c.onFrame
		c.mu.Unlock()
		if fn != nil {
			fn(f)
		}
	}
}

// Send writes one inbound frame on the live connection.
func (c *Client) Send(ctx context.Context, in protocol.Inbound) error {
	data, err := protocol.EncodeInbound(in)
	if err != nil {
		return err
	}
	c.mu.Lock()
	conn := c.conn
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if conn == nil {
		return ErrNotConnected
	}

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(deadline)
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close stops Run without reconnecting.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	c.writeMu.Lock()
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client disconnect"),
		time.Now().Add(writeWait))
	c.writeMu.Unlock()
	return conn.Close()
}
