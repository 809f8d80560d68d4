package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/chatlink/internal/logger"
	"github.com/chatlink/internal/storage"
	"github.com/chatlink/internal/ws"
)

type WSHandler struct {
	gw             *ws.Gateway
	users          storage.Users
	allowedOrigins string
	upgrader       websocket.Upgrader
}

// NewWSHandler создаёт обработчик WebSocket. allowedOrigins задаётся как в CORS (через запятую или "*").
func NewWSHandler(gw *ws.Gateway, users storage.Users, allowedOrigins string) *WSHandler {
	h := &WSHandler{gw: gw, users: users, allowedOrigins: strings.TrimSpace(allowedOrigins)}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *WSHandler) checkOrigin(r *http.Request) bool {
	if h.allowedOrigins == "*" || h.allowedOrigins == "" {
		return true
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	for _, o := range strings.Split(h.allowedOrigins, ",") {
		if strings.TrimSpace(o) == origin {
			return true
		}
	}
	return false
}

// ServeWS поднимает соединение; регистрация и запуск насосов происходят в Gateway.Accept.
// Неизвестный пользователь получает 401 до upgrade и в реестр не попадает.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	if !h.checkOrigin(r) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	if _, err := h.users.GetUser(r.Context(), userID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "unknown user")
			return
		}
		logger.Errorf("ws user lookup user=%d: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Errorf("ws upgrade user=%d: %v", userID, err)
		return
	}
	h.gw.Accept(conn, userID)
}
