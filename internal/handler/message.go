package handler

import (
	"net/http"

	"github.com/chatlink/internal/messaging"
	"github.com/chatlink/internal/protocol"
	"github.com/chatlink/internal/receipts"
)

type MessageHandler struct {
	router   *messaging.Router
	receipts *receipts.Tracker
}

func NewMessageHandler(router *messaging.Router, tracker *receipts.Tracker) *MessageHandler {
	return &MessageHandler{router: router, receipts: tracker}
}

// SendMessageRequest: то же тело, что и в WebSocket-кадре message, без адресата:
// адресат берётся из пути.
type SendMessageRequest = protocol.MessageDraft

type MarkReadRequest struct {
	SenderID int64 `json:"senderId"`
}

type MarkReadResponse struct {
	Updated int64 `json:"updated"`
}

// History отдаёт переписку с контактом и помечает входящие прочитанными.
func (h *MessageHandler) History(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	contactID, ok := pathID(w, r, "contactId")
	if !ok {
		return
	}
	msgs, err := h.router.History(r.Context(), userID, contactID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	contactID, ok := pathID(w, r, "contactId")
	if !ok {
		return
	}
	var req SendMessageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	msg, err := h.router.SendDirect(r.Context(), userID, contactID, req.Content, req.Attachment())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (h *MessageHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req MarkReadRequest
	if !decodeBody(w, r, &req) {
		return
	}
	n, err := h.receipts.MarkRead(r.Context(), userID, req.SenderID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MarkReadResponse{Updated: n})
}

func (h *MessageHandler) GroupHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	groupID, ok := pathID(w, r, "groupId")
	if !ok {
		return
	}
	msgs, err := h.router.GroupHistory(r.Context(), groupID, userID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (h *MessageHandler) SendGroup(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	groupID, ok := pathID(w, r, "groupId")
	if !ok {
		return
	}
	var req SendMessageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	msg, err := h.router.SendGroup(r.Context(), userID, groupID, req.Content, req.Attachment())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}
