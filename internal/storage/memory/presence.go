package memory

import (
	"context"
	"sync"
	"time"
)

type item struct {
	exp time.Time
}

// PresenceCache: кеш присутствия в памяти процесса (для -dev и запуска без Redis).
type PresenceCache struct {
	mu     sync.RWMutex
	online map[int64]item
	now    func() time.Time
}

func NewPresenceCache() *PresenceCache {
	return &PresenceCache{online: make(map[int64]item), now: time.Now}
}

func (c *PresenceCache) Close() error { return nil }

func (c *PresenceCache) MarkOnline(ctx context.Context, userID int64, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.online[userID] = item{exp: c.now().Add(ttl)}
	return nil
}

func (c *PresenceCache) MarkOffline(ctx context.Context, userID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.online, userID)
	return nil
}

func (c *PresenceCache) OnlineSet(ctx context.Context, userIDs []int64) (map[int64]bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	now := c.now()
	out := make(map[int64]bool, len(userIDs))
	for _, id := range userIDs {
		v, ok := c.online[id]
		out[id] = ok && now.Before(v.exp)
	}
	return out, nil
}
