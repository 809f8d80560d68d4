// Package presence keeps users' online state in the store and the cache,
// and announces changes to every connected client.
package presence

import (
	"context"
	"time"

	"github.com/chatlink/internal/apperr"
	"github.com/chatlink/internal/logger"
	"github.com/chatlink/internal/protocol"
	"github.com/chatlink/internal/registry"
	"github.com/chatlink/internal/storage"
)

const DefaultTTL = 2 * time.Minute

type Tracker struct {
	users storage.Users
	reg   registry.Registry
	cache storage.PresenceCache
	ttl   time.Duration
	now   func() time.Time
}

func NewTracker(users storage.Users, reg registry.Registry, cache storage.PresenceCache, ttl time.Duration) *Tracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Tracker{users: users, reg: reg, cache: cache, ttl: ttl, now: time.Now}
}

// Connected runs after the user's connection is registered.
// Persistence failures are logged; the broadcast always happens.
func (t *Tracker) Connected(ctx context.Context, userID int64) {
	defer logger.DeferLogDuration("presence.Connected", time.Now())()
	if err := t.users.SetOnline(ctx, userID, true, t.now()); err != nil {
		logger.Errorf("presence set online user=%d: %v", userID, err)
	}
	if err := t.cache.MarkOnline(ctx, userID, t.ttl); err != nil {
		logger.Errorf("presence cache online user=%d: %v", userID, err)
	}
	t.reg.Broadcast(protocol.Status{UserID: userID, IsOnline: true})
}

// Disconnected runs only when the closing connection was still the registered one.
func (t *Tracker) Disconnected(ctx context.Context, userID int64) {
	defer logger.DeferLogDuration("presence.Disconnected", time.Now())()
	if err := t.users.SetOnline(ctx, userID, false, t.now()); err != nil {
		logger.Errorf("presence set offline user=%d: %v", userID, err)
	}
	if err := t.cache.MarkOffline(ctx, userID); err != nil {
		logger.Errorf("presence cache offline user=%d: %v", userID, err)
	}
	t.reg.Broadcast(protocol.Status{UserID: userID, IsOnline: false})
}

// Touch renews the cache entry; called on every pong.
func (t *Tracker) Touch(ctx context.Context, userID int64) {
	if err := t.cache.MarkOnline(ctx, userID, t.ttl); err != nil {
		logger.Errorf("presence touch user=%d: %v", userID, err)
	}
}

// Online reports which of ids are online. A user with a live handle in this process
// is online even if the cache lost the entry.
func (t *Tracker) Online(ctx context.Context, ids []int64) (map[int64]bool, error) {
	out, err := t.cache.OnlineSet(ctx, ids)
	if err != nil {
		return nil, apperr.Transient(err, "presence lookup")
	}
	if out == nil {
		out = make(map[int64]bool, len(ids))
	}
	for _, id := range ids {
		if _, ok := t.reg.Lookup(id); ok {
			out[id] = true
		} else if _, ok := out[id]; !ok {
			out[id] = false
		}
	}
	return out, nil
}
