package startup

import (
	"context"
	"os"
	"time"

	"github.com/chatlink/internal/logger"
	"github.com/chatlink/internal/reconnect"
	redisstorage "github.com/chatlink/internal/storage/redis"
)

// ConnectRedisWithRetry подключается к Redis с повторами.
// Используется, когда задан REDIS_URL: без Redis кеш присутствия живёт в памяти.
func ConnectRedisWithRetry(redisURL string, maxWait time.Duration, logPrefix string) *redisstorage.PresenceCache {
	ctx, cancel := context.WithTimeout(context.Background(), maxWait)
	defer cancel()

	var cache *redisstorage.PresenceCache
	err := reconnect.Retry(ctx, dialPolicy, func(ctx context.Context) error {
		dialCtx, dialCancel := context.WithTimeout(ctx, 5*time.Second)
		defer dialCancel()
		c, err := redisstorage.New(dialCtx, redisURL)
		if err != nil {
			return err
		}
		cache = c
		return nil
	}, func(err error, next time.Duration) {
		logger.Errorf("%sredis connect failed, retry in %v: %v", logPrefix, next, err)
	})
	if err != nil {
		logger.Errorf("%sredis (gave up after %v): %v", logPrefix, maxWait, err)
		logger.Sync()
		os.Exit(1)
	}
	return cache
}
