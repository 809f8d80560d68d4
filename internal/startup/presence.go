package startup

import (
	"context"
	"time"

	"github.com/chatlink/internal/logger"
	"github.com/chatlink/internal/storage"
)

// ResetPresence сбрасывает is_online у всех пользователей при старте:
// соединений, открытых до рестарта, больше нет. Ошибка только логируется.
func ResetPresence(users storage.Users, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := users.ResetOnline(ctx); err != nil {
		logger.Errorf("reset online status: %v", err)
		return
	}
	logger.Info("online status reset")
}
