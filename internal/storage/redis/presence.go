package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "chatlink:presence:"

// PresenceCache хранит присутствие в ключах chatlink:presence:{userID} с TTL.
// Значение: nodeID процесса, державшего соединение.
type PresenceCache struct {
	cli    *redis.Client
	nodeID string
}

func New(ctx context.Context, url string) (*PresenceCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewWithClient(cli), nil
}

// NewWithClient оборачивает готовый клиент (тесты, общий пул).
func NewWithClient(cli *redis.Client) *PresenceCache {
	return &PresenceCache{cli: cli, nodeID: uuid.NewString()}
}

func (c *PresenceCache) Close() error {
	return c.cli.Close()
}

func key(userID int64) string { return keyPrefix + strconv.FormatInt(userID, 10) }

func (c *PresenceCache) NodeID() string { return c.nodeID }

// MarkOnline ставит ключ и продлевает TTL.
func (c *PresenceCache) MarkOnline(ctx context.Context, userID int64, ttl time.Duration) error {
	return c.cli.Set(ctx, key(userID), c.nodeID, ttl).Err()
}

// MarkOffline удаляет ключ только если его держит этот узел.
func (c *PresenceCache) MarkOffline(ctx context.Context, userID int64) error {
	val, err := c.cli.Get(ctx, key(userID)).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return err
	}
	if val != c.nodeID {
		return nil
	}
	return c.cli.Del(ctx, key(userID)).Err()
}

func (c *PresenceCache) OnlineSet(ctx context.Context, userIDs []int64) (map[int64]bool, error) {
	out := make(map[int64]bool, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = key(id)
	}
	vals, err := c.cli.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget presence: %w", err)
	}
	for i, id := range userIDs {
		out[id] = vals[i] != nil
	}
	return out, nil
}

// Flush удаляет все ключи присутствия (при старте сервиса: соединений ещё нет).
func (c *PresenceCache) Flush(ctx context.Context) error {
	iter := c.cli.Scan(ctx, 0, keyPrefix+"*", 200).Iterator()
	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) >= 200 {
			if err := c.cli.Del(ctx, batch...).Err(); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(batch) > 0 {
		return c.cli.Del(ctx, batch...).Err()
	}
	return nil
}
