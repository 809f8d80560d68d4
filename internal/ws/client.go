package ws

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/ratelimit"

	"github.com/chatlink/internal/logger"
	"github.com/chatlink/internal/protocol"
	"github.com/chatlink/internal/registry"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	touchTimeout   = 2 * time.Second
)

// bufPool pools bytes.Buffer for JSON encoding in the hot-path (writePump).
var bufPool = sync.Pool{
	New: func() any { return new(bytes.Buffer) },
}

// Client represents a single WebSocket connection.
// Lifecycle: NewClient -> Gateway.Register -> Start(ctx, cancel) -> [readPump, writePump] -> Close -> Wait.
type Client struct {
	gw      *Gateway
	conn    *websocket.Conn
	send    chan protocol.Frame
	userID  int64
	limiter ratelimit.Limiter

	// done is used as a non-blocking guard in Send.
	done chan struct{}
	// cancel cancels the context passed to Start, triggering pump shutdown.
	cancel context.CancelFunc
	once   sync.Once
	wg     sync.WaitGroup
}

var _ registry.Conn = (*Client)(nil)

func NewClient(gw *Gateway, conn *websocket.Conn, userID int64) *Client {
	limiter := ratelimit.NewUnlimited()
	if gw.opts.FramesPerSecond > 0 {
		limiter = ratelimit.New(gw.opts.FramesPerSecond, ratelimit.WithSlack(gw.opts.FramesPerSecond))
	}
	return &Client{
		gw:      gw,
		conn:    conn,
		send:    make(chan protocol.Frame, gw.opts.SendBufferSize),
		userID:  userID,
		limiter: limiter,
		done:    make(chan struct{}),
	}
}

func (c *Client) UserID() int64 { return c.userID }

// Send enqueues f without blocking. A full buffer means the client cannot keep
// up; it is closed and its pumps unregister it.
func (c *Client) Send(f protocol.Frame) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- f:
		return true
	case <-c.done:
		return false
	default:
		logger.Errorf("ws send buffer full, closing slow client user=%d", c.userID)
		c.Close()
		return false
	}
}

// Start launches readPump and writePump goroutines with controlled lifecycle.
func (c *Client) Start(ctx context.Context, cancel context.CancelFunc) {
	c.cancel = cancel
	c.wg.Add(2)
	go c.writePump(ctx)
	go c.readPump(ctx)
}

// Wait blocks until both pump goroutines have exited.
func (c *Client) Wait() {
	c.wg.Wait()
}

// Close signals the client to stop. Safe to call multiple times from any goroutine.
func (c *Client) Close() {
	c.once.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		close(c.done)
		c.conn.Close()
	})
}

// readPump handles frames strictly in arrival order: the next frame is not read
// until the previous handler returns.
func (c *Client) readPump(ctx context.Context) {
	defer c.wg.Done()
	defer func() {
		c.gw.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logger.Errorf("ws set read deadline user=%d: %v", c.userID, err)
		return
	}
	c.conn.SetPongHandler(func(string) error {
		tctx, cancel := context.WithTimeout(ctx, touchTimeout)
		c.gw.presence.Touch(tctx, c.userID)
		cancel()
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Errorf("ws read error user=%d: %v", c.userID, err)
			}
			return
		}
		c.limiter.Take()

		in, err := protocol.Decode(raw)
		if err != nil {
			c.gw.sendError(c, c.userID, err)
			continue
		}
		c.gw.HandleFrame(ctx, c, in)
	}
}

// writePump writes frames to the WebSocket connection.
// Exits on ctx cancellation, write error, or connection close.
func (c *Client) writePump(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case f := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logger.Errorf("ws set write deadline user=%d: %v", c.userID, err)
				return
			}
			buf := bufPool.Get().(*bytes.Buffer)
			buf.Reset()
			if err := protocol.EncodeTo(buf, f); err != nil {
				bufPool.Put(buf)
				logger.Errorf("ws encode %T user=%d: %v", f, c.userID, err)
				continue
			}
			writeErr := c.conn.WriteMessage(websocket.TextMessage, buf.Bytes())
			bufPool.Put(buf)
			if writeErr != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logger.Errorf("ws set write deadline user=%d: %v", c.userID, err)
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
