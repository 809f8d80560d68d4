// Package ws is the realtime gateway: it owns websocket clients, registers them
// in the connection registry and dispatches their frames.
package ws

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chatlink/internal/apperr"
	"github.com/chatlink/internal/logger"
	"github.com/chatlink/internal/model"
	"github.com/chatlink/internal/protocol"
	"github.com/chatlink/internal/registry"
)

const (
	handlerTimeout   = 5 * time.Second
	lifecycleTimeout = 5 * time.Second
)

type Presence interface {
	Connected(ctx context.Context, userID int64)
	Disconnected(ctx context.Context, userID int64)
	Touch(ctx context.Context, userID int64)
}

type Router interface {
	SendDirect(ctx context.Context, senderID, receiverID int64, content string, att *model.Attachment) (*model.Message, error)
	SendGroup(ctx context.Context, senderID, groupID int64, content string, att *model.Attachment) (*model.Message, error)
}

type Receipts interface {
	MarkFromFrame(ctx context.Context, receiverID int64, senderID *int64, messageIDs []int64) (int64, error)
}

type Options struct {
	MaxConns        int
	SendBufferSize  int
	FramesPerSecond int
}

type lifecycle struct {
	client *Client
	join   bool
}

type Gateway struct {
	reg      registry.Registry
	presence Presence
	router   Router
	receipts Receipts
	opts     Options

	mu      sync.Mutex
	clients map[*Client]struct{}

	// joins and leaves share one channel so a leave can never overtake its join.
	events chan lifecycle
	done   chan struct{}
}

func NewGateway(reg registry.Registry, presence Presence, router Router, receipts Receipts, opts Options) *Gateway {
	if opts.MaxConns <= 0 {
		opts.MaxConns = 10000
	}
	if opts.SendBufferSize <= 0 {
		opts.SendBufferSize = 256
	}
	return &Gateway{
		reg:      reg,
		presence: presence,
		router:   router,
		receipts: receipts,
		opts:     opts,
		clients:  make(map[*Client]struct{}),
		events:   make(chan lifecycle, 128),
		done:     make(chan struct{}),
	}
}

func (g *Gateway) Run(ctx context.Context) {
	defer close(g.done)
	for {
		select {
		case <-ctx.Done():
			g.shutdown()
			return
		case ev := <-g.events:
			if ev.join {
				g.addClient(ev.client)
			} else {
				g.removeClient(ev.client)
			}
		}
	}
}

func (g *Gateway) shutdown() {
	// Collect all clients under the lock, do NOT perform I/O under mutex.
	g.mu.Lock()
	all := make([]*Client, 0, len(g.clients))
	for c := range g.clients {
		all = append(all, c)
	}
	g.clients = make(map[*Client]struct{})
	g.mu.Unlock()

	for _, c := range all {
		c.Close()
	}
	for _, c := range all {
		c.Wait()
	}
}

func (g *Gateway) addClient(c *Client) {
	g.mu.Lock()
	if len(g.clients) >= g.opts.MaxConns {
		g.mu.Unlock()
		logger.Errorf("ws connection limit reached (%d), rejecting user=%d", g.opts.MaxConns, c.userID)
		c.Close()
		return
	}
	g.clients[c] = struct{}{}
	g.mu.Unlock()

	if prev := g.reg.Register(c.userID, c); prev != nil {
		logger.Debugf("ws user=%d reconnected, previous handle replaced", c.userID)
	}
	ctx, cancel := context.WithTimeout(context.Background(), lifecycleTimeout)
	defer cancel()
	g.presence.Connected(ctx, c.userID)
}

func (g *Gateway) removeClient(c *Client) {
	g.mu.Lock()
	if _, ok := g.clients[c]; !ok {
		g.mu.Unlock()
		return
	}
	delete(g.clients, c)
	g.mu.Unlock()

	// Network I/O outside the lock.
	c.Close()

	// A replaced handle closing must not mark the user offline.
	if !g.reg.Unregister(c.userID, c) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), lifecycleTimeout)
	defer cancel()
	g.presence.Disconnected(ctx, c.userID)
}

func (g *Gateway) Register(c *Client) {
	select {
	case g.events <- lifecycle{client: c, join: true}:
	case <-g.done:
		c.Close()
	}
}

func (g *Gateway) Unregister(c *Client) {
	select {
	case g.events <- lifecycle{client: c}:
	case <-g.done:
	}
}

// Accept takes ownership of an upgraded connection. The client is queued for
// registration before its pumps start, so its close is always seen after its join.
func (g *Gateway) Accept(conn *websocket.Conn, userID int64) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	c := NewClient(g, conn, userID)
	g.Register(c)
	c.Start(ctx, cancel)
	return c
}

// Len is the number of open sockets, replaced handles included.
func (g *Gateway) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.clients)
}

// HandleFrame processes one inbound frame. Failures become an error frame on the
// same connection; the connection stays open.
func (g *Gateway) HandleFrame(ctx context.Context, c *Client, in protocol.Inbound) {
	defer logger.DeferLogDuration("ws.HandleFrame", time.Now())()
	ctx, cancel := context.WithTimeout(ctx, handlerTimeout)
	defer cancel()
	if err := g.dispatch(ctx, c.userID, in); err != nil {
		g.sendError(c, c.userID, err)
	}
}

func (g *Gateway) dispatch(ctx context.Context, userID int64, in protocol.Inbound) error {
	switch f := in.(type) {
	case protocol.MessageFrame:
		return g.handleMessage(ctx, userID, f.Message)
	case protocol.ReadReceiptFrame:
		_, err := g.receipts.MarkFromFrame(ctx, userID, f.SenderID, f.MessageIDs)
		return err
	default:
		return apperr.Validationf("unsupported frame type %q", in.Kind())
	}
}

func (g *Gateway) handleMessage(ctx context.Context, userID int64, d protocol.MessageDraft) error {
	if d.SenderID != nil && *d.SenderID != userID {
		return apperr.Forbiddenf("senderId does not match the connection")
	}
	if d.GroupID != nil {
		_, err := g.router.SendGroup(ctx, userID, *d.GroupID, d.Content, d.Attachment())
		return err
	}
	if d.ReceiverID == nil {
		return apperr.Validationf("message requires receiverId or groupId")
	}
	_, err := g.router.SendDirect(ctx, userID, *d.ReceiverID, d.Content, d.Attachment())
	return err
}

func (g *Gateway) sendError(c registry.Conn, userID int64, err error) {
	if apperr.KindOf(err) == apperr.KindTransient {
		logger.Errorf("ws frame user=%d: %v", userID, err)
	}
	c.Send(protocol.Error{Message: apperr.Message(err)})
}
