package handler

import (
	"net/http"

	"github.com/chatlink/internal/friends"
	"github.com/chatlink/internal/presence"
)

// maxPresenceIDs: сколько пользователей можно запросить за раз.
const maxPresenceIDs = 200

type UserHandler struct {
	friends  *friends.Service
	presence *presence.Tracker
}

func NewUserHandler(svc *friends.Service, tracker *presence.Tracker) *UserHandler {
	return &UserHandler{friends: svc, presence: tracker}
}

// Search ищет пользователей по username/displayName: ?q=.
func (h *UserHandler) Search(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	results, err := h.friends.Search(r.Context(), userID, r.URL.Query().Get("q"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// Presence отдаёт онлайн-статус: ?ids=1,2,3 -> {"1":true,"2":false,...}.
func (h *UserHandler) Presence(w http.ResponseWriter, r *http.Request) {
	if _, ok := currentUser(w, r); !ok {
		return
	}
	ids, ok := queryIDs(r, "ids")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid ids")
		return
	}
	if len(ids) > maxPresenceIDs {
		writeError(w, http.StatusBadRequest, "too many ids")
		return
	}
	online, err := h.presence.Online(r.Context(), ids)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, online)
}
