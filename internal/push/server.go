package push

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/chatlink/internal/logger"
	"github.com/chatlink/internal/middleware"
)

// Server: HTTP-часть микросервиса пуш-уведомлений. Его вызывает только api
// (через Client), поэтому /api/* закрыт InternalOnly.
type Server struct {
	subs           *SubscriptionStore
	sender         *Sender
	publicKey      string
	internalSecret string
}

func NewServer(subs *SubscriptionStore, sender *Sender, keys *VAPIDKeys, internalSecret string) *Server {
	s := &Server{subs: subs, sender: sender, internalSecret: internalSecret}
	if keys != nil {
		s.publicKey = keys.PublicKey
	}
	return s
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.RecoverJSON)
	r.Use(middleware.RequestLog)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Get("/api/vapid-public", s.handleVAPIDPublic)
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.InternalOnly(s.internalSecret))
		r.Post("/subscribe", s.handleSubscribe)
		r.Delete("/subscribe", s.handleUnsubscribe)
		r.Post("/notify", s.handleNotify)
	})
	return r
}

func writePushError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (s *Server) handleVAPIDPublic(w http.ResponseWriter, r *http.Request) {
	if s.publicKey == "" || !s.sender.Enabled() {
		writePushError(w, http.StatusServiceUnavailable, "push not configured")
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte(s.publicKey))
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var req SubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writePushError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if req.UserID <= 0 || !req.Subscription.Valid() {
		writePushError(w, http.StatusBadRequest, "user_id and subscription (endpoint, keys.p256dh, keys.auth) required")
		return
	}
	if err := s.subs.Add(r.Context(), req.UserID, req.Subscription); err != nil {
		logger.Errorf("push subscribe user=%d: %v", req.UserID, err)
		writePushError(w, http.StatusInternalServerError, "failed to save subscription")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	var req UnsubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writePushError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if req.UserID <= 0 || req.Endpoint == "" {
		writePushError(w, http.StatusBadRequest, "user_id and endpoint required")
		return
	}
	if err := s.subs.Remove(r.Context(), req.UserID, req.Endpoint); err != nil {
		logger.Errorf("push unsubscribe user=%d: %v", req.UserID, err)
		writePushError(w, http.StatusInternalServerError, "failed to remove subscription")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleNotify отвечает 204 и без подписок, и при выключенном VAPID: для api это не ошибка.
func (s *Server) handleNotify(w http.ResponseWriter, r *http.Request) {
	var req NotifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writePushError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if req.UserID <= 0 {
		writePushError(w, http.StatusBadRequest, "user_id required")
		return
	}
	n, err := s.sender.Send(r.Context(), req)
	if err != nil {
		logger.Errorf("push notify user=%d: %v", req.UserID, err)
		writePushError(w, http.StatusInternalServerError, "failed to send")
		return
	}
	logger.Debugf("push notify user=%d: delivered to %d subscription(s)", req.UserID, n)
	w.WriteHeader(http.StatusNoContent)
}
