package handler

import (
	"net/http"

	"github.com/chatlink/internal/groups"
	"github.com/chatlink/internal/model"
)

type GroupHandler struct {
	groups *groups.Manager
}

func NewGroupHandler(mgr *groups.Manager) *GroupHandler {
	return &GroupHandler{groups: mgr}
}

type AddMemberRequest struct {
	UserID int64 `json:"userId"`
}

type UpdateRoleRequest struct {
	Role model.GroupRole `json:"role"`
}

type InviteRequest struct {
	InviteeID int64 `json:"inviteeId"`
}

type RespondInviteRequest struct {
	Status model.InviteStatus `json:"status"`
}

func (h *GroupHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	list, err := h.groups.ListForUser(r.Context(), userID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *GroupHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req groups.CreateGroupInput
	if !decodeBody(w, r, &req) {
		return
	}
	g, err := h.groups.Create(r.Context(), userID, req)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

func (h *GroupHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	groupID, ok := pathID(w, r, "groupId")
	if !ok {
		return
	}
	g, err := h.groups.Get(r.Context(), groupID, userID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (h *GroupHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	groupID, ok := pathID(w, r, "groupId")
	if !ok {
		return
	}
	var req groups.UpdateGroupInput
	if !decodeBody(w, r, &req) {
		return
	}
	g, err := h.groups.Update(r.Context(), groupID, userID, req)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (h *GroupHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	groupID, ok := pathID(w, r, "groupId")
	if !ok {
		return
	}
	if err := h.groups.Delete(r.Context(), groupID, userID); err != nil {
		writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *GroupHandler) Members(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	groupID, ok := pathID(w, r, "groupId")
	if !ok {
		return
	}
	members, err := h.groups.Members(r.Context(), groupID, userID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, members)
}

func (h *GroupHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	groupID, ok := pathID(w, r, "groupId")
	if !ok {
		return
	}
	var req AddMemberRequest
	if !decodeBody(w, r, &req) {
		return
	}
	m, err := h.groups.AddMember(r.Context(), groupID, userID, req.UserID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (h *GroupHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	groupID, ok := pathID(w, r, "groupId")
	if !ok {
		return
	}
	memberID, ok := pathID(w, r, "memberId")
	if !ok {
		return
	}
	if err := h.groups.RemoveMember(r.Context(), groupID, userID, memberID); err != nil {
		writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *GroupHandler) UpdateMemberRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	groupID, ok := pathID(w, r, "groupId")
	if !ok {
		return
	}
	memberID, ok := pathID(w, r, "memberId")
	if !ok {
		return
	}
	var req UpdateRoleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.groups.UpdateMemberRole(r.Context(), groupID, userID, memberID, req.Role); err != nil {
		writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *GroupHandler) Invite(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	groupID, ok := pathID(w, r, "groupId")
	if !ok {
		return
	}
	var req InviteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	inv, err := h.groups.Invite(r.Context(), groupID, userID, req.InviteeID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, inv)
}

func (h *GroupHandler) ListInvites(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	list, err := h.groups.ListInvites(r.Context(), userID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *GroupHandler) RespondInvite(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	inviteID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req RespondInviteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	inv, err := h.groups.RespondInvite(r.Context(), inviteID, userID, req.Status)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}
