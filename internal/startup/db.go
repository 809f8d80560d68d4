package startup

import (
	"context"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chatlink/internal/logger"
	"github.com/chatlink/internal/reconnect"
)

// dialPolicy: 2s, 4s, 8s ... не больше 30s между попытками.
var dialPolicy = reconnect.Policy{BaseDelay: 2 * time.Second, MaxDelay: 30 * time.Second, Multiplier: 2}

// ConnectDBWithRetry подключается к Postgres с повторами; при недоступности БД не роняет процесс сразу.
// logPrefix добавляется к сообщениям лога (например "push: ").
func ConnectDBWithRetry(poolCfg *pgxpool.Config, maxWait time.Duration, logPrefix string) *pgxpool.Pool {
	ctx, cancel := context.WithTimeout(context.Background(), maxWait)
	defer cancel()

	var pool *pgxpool.Pool
	err := reconnect.Retry(ctx, dialPolicy, func(ctx context.Context) error {
		p, err := openPool(ctx, poolCfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}, func(err error, next time.Duration) {
		logger.Errorf("%sdb connect failed, retry in %v: %v", logPrefix, next, err)
	})
	if err != nil {
		logger.Errorf("%sconnect to db (gave up after %v): %v", logPrefix, maxWait, err)
		logger.Sync()
		os.Exit(1)
	}
	return pool
}

func openPool(ctx context.Context, poolCfg *pgxpool.Config) (*pgxpool.Pool, error) {
	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(connCtx, poolCfg)
	if err != nil {
		return nil, err
	}
	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}
