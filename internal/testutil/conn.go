// Package testutil holds fakes and fixtures shared by package tests.
package testutil

import (
	"sync"

	"github.com/chatlink/internal/protocol"
)

// Conn records every frame it accepts. It implements registry.Conn.
type Conn struct {
	mu     sync.Mutex
	frames []protocol.Frame
	closed bool
	full   bool
}

func NewConn() *Conn { return &Conn{} }

func (c *Conn) Send(f protocol.Frame) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.full {
		return false
	}
	c.frames = append(c.frames, f)
	return true
}

func (c *Conn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// SetFull makes Send fail as if the outbound buffer were saturated.
func (c *Conn) SetFull(full bool) {
	c.mu.Lock()
	c.full = full
	c.mu.Unlock()
}

func (c *Conn) Frames() []protocol.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]protocol.Frame(nil), c.frames...)
}

func (c *Conn) Reset() {
	c.mu.Lock()
	c.frames = nil
	c.mu.Unlock()
}

// FramesOf returns the recorded frames of type T in arrival order.
func FramesOf[T protocol.Frame](c *Conn) []T {
	var out []T
	for _, f := range c.Frames() {
		if v, ok := f.(T); ok {
			out = append(out, v)
		}
	}
	return out
}
