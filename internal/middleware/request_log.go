package middleware

import (
	"net/http"
	"time"

	"github.com/chatlink/internal/logger"
)

// RequestLog логирует каждый HTTP-запрос: method, path и время выполнения.
// Медленные запросы пишутся всегда, остальные только при LOG_LEVEL=debug.
func RequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer logger.DeferLogDuration("http "+r.Method+" "+r.URL.Path, time.Now())()
		next.ServeHTTP(w, r)
	})
}
