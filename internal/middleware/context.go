package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"
)

type contextKey string

const UserIDKey contextKey = "user_id"

// UserIDHeader: заголовок, который выставляет внешний auth-прокси.
const UserIDHeader = "X-User-Id"

// GetUserID возвращает user_id из контекста (устанавливается Identity). 0 означает анонимный запрос.
func GetUserID(ctx context.Context) int64 {
	v, _ := ctx.Value(UserIDKey).(int64)
	return v
}

// WithUserID кладёт user_id в контекст (используется Identity и тестами).
func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// requestUserID читает X-User-Id, а для WebSocket, query-параметр userId
// (браузер не умеет выставлять заголовки при upgrade).
func requestUserID(r *http.Request) int64 {
	raw := strings.TrimSpace(r.Header.Get(UserIDHeader))
	if raw == "" {
		raw = r.URL.Query().Get("userId")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0
	}
	return id
}

// Identity доверяет идентификатору пользователя от внешней авторизации.
// Невалидный или отсутствующий id не отклоняет запрос: это решают хендлеры.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := requestUserID(r); id > 0 {
			r = r.WithContext(WithUserID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}
