// Package registry tracks the live connection of each online user.
package registry

import (
	"sync"
	"sync/atomic"

	"github.com/chatlink/internal/protocol"
)

// Conn is a live client connection. Send must not block.
type Conn interface {
	Send(f protocol.Frame) bool
	Close()
}

type Entry struct {
	UserID int64
	Conn   Conn
}

// Registry maps a user to at most one connection.
type Registry interface {
	// Register tracks c for userID and returns the handle it replaced, if any.
	// The replaced handle is not closed.
	Register(userID int64, c Conn) (replaced Conn)
	// Unregister removes c only if it is still the tracked handle for userID.
	Unregister(userID int64, c Conn) bool
	Lookup(userID int64) (Conn, bool)
	All() []Entry
	Send(userID int64, f protocol.Frame) bool
	Multicast(userIDs []int64, f protocol.Frame) int
	Broadcast(f protocol.Frame) int
	Len() int
}

const (
	defaultFanoutThreshold = 64
	defaultFanoutWorkers   = 8
)

// Memory is the single-process Registry.
type Memory struct {
	mu    sync.RWMutex
	conns map[int64]Conn

	fanoutThreshold int
	fanoutWorkers   int
}

var _ Registry = (*Memory)(nil)

func New() *Memory {
	return &Memory{
		conns:           make(map[int64]Conn),
		fanoutThreshold: defaultFanoutThreshold,
		fanoutWorkers:   defaultFanoutWorkers,
	}
}

// WithFanout sets when Multicast switches to parallel sends and how many goroutines it uses.
func (r *Memory) WithFanout(threshold, workers int) *Memory {
	if threshold > 0 {
		r.fanoutThreshold = threshold
	}
	if workers > 0 {
		r.fanoutWorkers = workers
	}
	return r
}

func (r *Memory) Register(userID int64, c Conn) Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.conns[userID]
	r.conns[userID] = c
	if prev == c {
		return nil
	}
	return prev
}

func (r *Memory) Unregister(userID int64, c Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.conns[userID]
	if !ok || cur != c {
		return false
	}
	delete(r.conns, userID)
	return true
}

func (r *Memory) Lookup(userID int64) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[userID]
	return c, ok
}

func (r *Memory) All() []Entry {
	r.mu.RLock()
	out := make([]Entry, 0, len(r.conns))
	for id, c := range r.conns {
		out = append(out, Entry{UserID: id, Conn: c})
	}
	r.mu.RUnlock()
	return out
}

func (r *Memory) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

func (r *Memory) Send(userID int64, f protocol.Frame) bool {
	c, ok := r.Lookup(userID)
	if !ok {
		return false
	}
	return c.Send(f)
}

// Multicast sends f to every listed user that is online and returns the number of
// successful enqueues. Duplicated ids receive one copy.
func (r *Memory) Multicast(userIDs []int64, f protocol.Frame) int {
	r.mu.RLock()
	targets := make([]Conn, 0, len(userIDs))
	seen := make(map[int64]struct{}, len(userIDs))
	for _, id := range userIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if c, ok := r.conns[id]; ok {
			targets = append(targets, c)
		}
	}
	r.mu.RUnlock()
	return r.fanout(targets, f)
}

func (r *Memory) Broadcast(f protocol.Frame) int {
	r.mu.RLock()
	targets := make([]Conn, 0, len(r.conns))
	for _, c := range r.conns {
		targets = append(targets, c)
	}
	r.mu.RUnlock()
	return r.fanout(targets, f)
}

// fanout never holds the lock: Conn.Send may close a slow client, which unregisters it.
func (r *Memory) fanout(targets []Conn, f protocol.Frame) int {
	if len(targets) < r.fanoutThreshold {
		n := 0
		for _, c := range targets {
			if c.Send(f) {
				n++
			}
		}
		return n
	}

	workers := r.fanoutWorkers
	chunk := (len(targets) + workers - 1) / workers
	var sent atomic.Int64
	var wg sync.WaitGroup
	for start := 0; start < len(targets); start += chunk {
		end := min(start+chunk, len(targets))
		wg.Add(1)
		go func(part []Conn) {
			defer wg.Done()
			for _, c := range part {
				if c.Send(f) {
					sent.Add(1)
				}
			}
		}(targets[start:end])
	}
	wg.Wait()
	return int(sent.Load())
}
