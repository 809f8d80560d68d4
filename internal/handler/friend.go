package handler

import (
	"net/http"

	"github.com/chatlink/internal/friends"
	"github.com/chatlink/internal/model"
)

type FriendHandler struct {
	friends *friends.Service
}

func NewFriendHandler(svc *friends.Service) *FriendHandler {
	return &FriendHandler{friends: svc}
}

type CreateFriendRequestRequest struct {
	ReceiverID int64 `json:"receiverId"`
}

type RespondFriendRequestRequest struct {
	Status model.FriendRequestStatus `json:"status"`
}

func (h *FriendHandler) ListContacts(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	contacts, err := h.friends.ListContacts(r.Context(), userID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, contacts)
}

func (h *FriendHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req CreateFriendRequestRequest
	if !decodeBody(w, r, &req) {
		return
	}
	fr, err := h.friends.Create(r.Context(), userID, req.ReceiverID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, fr)
}

func (h *FriendHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	list, err := h.friends.ListPending(r.Context(), userID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *FriendHandler) Respond(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	requestID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req RespondFriendRequestRequest
	if !decodeBody(w, r, &req) {
		return
	}
	fr, err := h.friends.Respond(r.Context(), requestID, userID, req.Status)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fr)
}
