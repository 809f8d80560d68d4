package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/chatlink/internal/middleware"
)

// Handlers: все HTTP-обработчики API.
type Handlers struct {
	Users    *UserHandler
	Friends  *FriendHandler
	Messages *MessageHandler
	Groups   *GroupHandler
	Files    *FileHandler
	WS       *WSHandler
	Config   *ConfigHandler
	Push     *PushHandler
}

// RouterOptions: параметры цепочки middleware.
type RouterOptions struct {
	CORSAllowedOrigins string
	// При RateLimiter == nil используются лимиты по умолчанию.
	RateLimiter *middleware.RateLimiter
}

// NewRouter собирает chi-роутер: RealIP, RecoverJSON, Compress (кроме WebSocket),
// RequestLog, лимит запросов, CORS и Identity.
func NewRouter(h Handlers, opts RouterOptions) chi.Router {
	limiter := opts.RateLimiter
	if limiter == nil {
		limiter = middleware.NewRateLimiter(0, 0)
	}

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.RecoverJSON)
	r.Use(compressExceptWS(5))
	r.Use(middleware.RequestLog)
	r.Use(limiter.Handler)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(opts.CORSAllowedOrigins),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", middleware.UserIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.Identity)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Get("/api/config/push", h.Config.GetPushConfig)
	r.Get("/api/files/{filename}", h.Files.Serve)

	r.Get("/api/users/search", h.Users.Search)
	r.Get("/api/users/presence", h.Users.Presence)
	r.Get("/api/contacts", h.Friends.ListContacts)

	r.Post("/api/friend-requests", h.Friends.Create)
	r.Get("/api/friend-requests/pending", h.Friends.ListPending)
	r.Put("/api/friend-requests/{id}", h.Friends.Respond)

	r.Post("/api/messages/read", h.Messages.MarkRead)
	r.Get("/api/messages/{contactId}", h.Messages.History)
	r.Post("/api/messages/{contactId}", h.Messages.Send)

	r.Route("/api/groups", func(r chi.Router) {
		r.Get("/", h.Groups.List)
		r.Post("/", h.Groups.Create)
		r.Route("/{groupId}", func(r chi.Router) {
			r.Get("/", h.Groups.Get)
			r.Put("/", h.Groups.Update)
			r.Delete("/", h.Groups.Delete)
			r.Get("/members", h.Groups.Members)
			r.Post("/members", h.Groups.AddMember)
			r.Delete("/members/{memberId}", h.Groups.RemoveMember)
			r.Put("/members/{memberId}/role", h.Groups.UpdateMemberRole)
			r.Get("/messages", h.Messages.GroupHistory)
			r.Post("/messages", h.Messages.SendGroup)
			r.Post("/invites", h.Groups.Invite)
		})
	})
	r.Get("/api/group-invites", h.Groups.ListInvites)
	r.Put("/api/group-invites/{id}", h.Groups.RespondInvite)

	r.Post("/api/upload", h.Files.Upload)
	r.Post("/api/push/subscribe", h.Push.Subscribe)
	r.Delete("/api/push/subscribe", h.Push.Unsubscribe)
	r.Get("/ws", h.WS.ServeWS)

	return r
}

// Не сжимать WebSocket, иначе ResponseWriter не реализует http.Hijacker и upgrade даёт 500.
func compressExceptWS(level int) func(http.Handler) http.Handler {
	compress := chimw.Compress(level)
	return func(next http.Handler) http.Handler {
		compressed := compress(next)
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if strings.EqualFold(req.Header.Get("Upgrade"), "websocket") {
				next.ServeHTTP(w, req)
				return
			}
			compressed.ServeHTTP(w, req)
		})
	}
}

func allowedOrigins(raw string) []string {
	var out []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}
