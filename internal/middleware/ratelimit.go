package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

const (
	rateLimitWindow  = time.Minute
	rateLimitMaxIP   = 200
	rateLimitMaxUser = 100
)

// slidingWindow: скользящее окно по ключу (IP или user).
type slidingWindow struct {
	mu     sync.Mutex
	times  map[string][]time.Time
	max    int
	window time.Duration
	now    func() time.Time
}

func newSlidingWindow(max int, window time.Duration) *slidingWindow {
	return &slidingWindow{times: make(map[string][]time.Time), max: max, window: window, now: time.Now}
}

func (s *slidingWindow) allow(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	cutoff := now.Add(-s.window)
	slice := s.times[key]
	i := 0
	for _, t := range slice {
		if t.After(cutoff) {
			slice[i] = t
			i++
		}
	}
	slice = slice[:i]
	if len(slice) >= s.max {
		s.times[key] = slice
		return false
	}
	s.times[key] = append(slice, now)
	return true
}

// sweep удаляет ключи без запросов в текущем окне, чтобы карта не росла бесконечно.
func (s *slidingWindow) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-s.window)
	for k, slice := range s.times {
		if len(slice) == 0 || !slice[len(slice)-1].After(cutoff) {
			delete(s.times, k)
		}
	}
}

// RateLimiter ограничивает запросы к /api/* по IP и по user_id. 429 при превышении.
type RateLimiter struct {
	byIP   *slidingWindow
	byUser *slidingWindow
	calls  int
	mu     sync.Mutex
}

// NewRateLimiter: perIP/perUser задают число запросов в минуту; <= 0 означает значения по умолчанию.
func NewRateLimiter(perIP, perUser int) *RateLimiter {
	if perIP <= 0 {
		perIP = rateLimitMaxIP
	}
	if perUser <= 0 {
		perUser = rateLimitMaxUser
	}
	return &RateLimiter{
		byIP:   newSlidingWindow(perIP, rateLimitWindow),
		byUser: newSlidingWindow(perUser, rateLimitWindow),
	}
}

func (l *RateLimiter) maybeSweep() {
	l.mu.Lock()
	l.calls++
	due := l.calls%1000 == 0
	l.mu.Unlock()
	if due {
		l.byIP.sweep()
		l.byUser.sweep()
	}
}

// Handler работает до Identity, поэтому user_id берёт прямо из запроса.
func (l *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		l.maybeSweep()
		if !l.byIP.allow(clientIP(r)) {
			writeTooMany(w)
			return
		}
		if userID := requestUserID(r); userID > 0 {
			if !l.byUser.allow("u:" + strconv.FormatInt(userID, 10)) {
				writeTooMany(w)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func writeTooMany(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Retry-After", strconv.Itoa(int(rateLimitWindow/time.Second)))
	w.WriteHeader(http.StatusTooManyRequests)
	w.Write([]byte(`{"error":"too many requests"}` + "\n"))
}

var defaultRateLimiter = NewRateLimiter(0, 0)

// RateLimitAPI: RateLimiter с лимитами по умолчанию.
func RateLimitAPI(next http.Handler) http.Handler {
	return defaultRateLimiter.Handler(next)
}
