package wsclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatlink/internal/protocol"
	"github.com/chatlink/internal/reconnect"
)

type recorder struct {
	mu     sync.Mutex
	states []State
	frames []protocol.Frame
}

func (r *recorder) state(s State) {
	r.mu.Lock()
	r.states = append(r.states, s)
	r.mu.Unlock()
}

func (r *recorder) frame(f protocol.Frame) {
	r.mu.Lock()
	r.frames = append(r.frames, f)
	r.mu.Unlock()
}

func (r *recorder) snapshot() ([]State, []protocol.Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...), append([]protocol.Frame(nil), r.frames...)
}

var upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

// newServer starts a gateway stand-in; handle gets the 1-based connection number.
func newServer(t *testing.T, handle func(n int, r *http.Request, conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	var count atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handle(int(count.Add(1)), r, conn)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeFrame(t *testing.T, conn *websocket.Conn, f protocol.Frame) {
	data, err := protocol.Encode(f)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

func TestRun_ReconnectsAfterTransportClose(t *testing.T) {
	received := make(chan protocol.Inbound, 1)
	srv := newServer(t, func(n int, r *http.Request, conn *websocket.Conn) {
		assert.Equal(t, "7", r.URL.Query().Get("userId"))
		writeFrame(t, conn, protocol.Status{UserID: int64(n), IsOnline: true})
		if n == 1 {
			return
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		in, err := protocol.Decode(data)
		if assert.NoError(t, err) {
			received <- in
		}
		conn.ReadMessage()
	})

	c := New(Config{URL: srv.URL, UserID: 7, Policy: reconnect.Fixed(10*time.Millisecond, 5)})
	rec := &recorder{}
	c.OnState(rec.state)
	c.OnFrame(rec.frame)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, frames := rec.snapshot()
		return len(frames) == 2
	}, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return c.State() == StateConnected }, time.Second, 5*time.Millisecond)

	require.NoError(t, c.Send(ctx, protocol.ReadReceiptFrame{SenderID: ptr(int64(3))}))
	select {
	case in := <-received:
		rr, ok := in.(protocol.ReadReceiptFrame)
		require.True(t, ok)
		assert.Equal(t, int64(3), *rr.SenderID)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not receive frame")
	}

	require.NoError(t, c.Close())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Close")
	}

	states, frames := rec.snapshot()
	assert.Equal(t, []State{StateConnecting, StateConnected, StateReconnecting, StateConnected, StateDisconnected}, states)
	assert.Equal(t, protocol.Status{UserID: 1, IsOnline: true}, frames[0])
	assert.Equal(t, protocol.Status{UserID: 2, IsOnline: true}, frames[1])
}

func TestRun_GivesUpWhenAttemptsExhausted(t *testing.T) {
	var conns atomic.Int32
	srv := newServer(t, func(int, *http.Request, *websocket.Conn) { conns.Add(1) })

	c := New(Config{URL: srv.URL, Policy: reconnect.Fixed(5*time.Millisecond, 2)})
	err := c.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reconnect attempts exhausted")
	assert.Equal(t, int32(3), conns.Load())
	assert.Equal(t, StateDisconnected, c.State())
}

func TestRun_FirstDialFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	c := New(Config{URL: srv.URL, Policy: reconnect.Fixed(time.Millisecond, 0)})
	err := c.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
	assert.Equal(t, StateDisconnected, c.State())
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	srv := newServer(t, func(_ int, _ *http.Request, conn *websocket.Conn) { conn.ReadMessage() })

	c := New(Config{URL: srv.URL, Policy: reconnect.Fixed(time.Millisecond, 0)})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool { return c.State() == StateConnected }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestSend_NotConnected(t *testing.T) {
	c := New(Config{URL: "ws://127.0.0.1:1/ws"})
	err := c.Send(context.Background(), protocol.ReadReceiptFrame{SenderID: ptr(int64(1))})
	assert.ErrorIs(t, err, ErrNotConnected)

	require.NoError(t, c.Close())
	err = c.Send(context.Background(), protocol.ReadReceiptFrame{SenderID: ptr(int64(1))})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestEndpoint(t *testing.T) {
	c := New(Config{URL: "https://chat.example.com/ws?v=1", UserID: 42})
	got, err := c.endpoint()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got, "wss://chat.example.com/ws?"))
	assert.Contains(t, got, "userId=42")
	assert.Contains(t, got, "v=1")
}

func ptr[T any](v T) *T { return &v }
