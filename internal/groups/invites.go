package groups

import (
	"context"
	"errors"
	"time"

	"github.com/chatlink/internal/apperr"
	"github.com/chatlink/internal/logger"
	"github.com/chatlink/internal/model"
	"github.com/chatlink/internal/protocol"
	"github.com/chatlink/internal/storage"
)

// Invite asks inviteeID to join. Same rules as AddMember, plus at most one pending invite.
func (m *Manager) Invite(ctx context.Context, groupID, inviterID, inviteeID int64) (*model.GroupInvite, error) {
	defer logger.DeferLogDuration("groups.Invite", time.Now())()
	g, err := m.requireGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if err := m.canAdd(ctx, groupID, inviterID, inviteeID); err != nil {
		return nil, err
	}
	if _, err := m.store.FindPendingGroupInvite(ctx, groupID, inviteeID); err == nil {
		return nil, apperr.Conflictf("user already has a pending invite to this group")
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.Transient(err, "find invite")
	}

	now := m.now()
	inv := &model.GroupInvite{
		GroupID:   groupID,
		InviterID: inviterID,
		InviteeID: inviteeID,
		Status:    model.InvitePending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.store.CreateGroupInvite(ctx, inv); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return nil, apperr.Conflictf("user already has a pending invite to this group")
		}
		return nil, apperr.Transient(err, "create invite")
	}
	inv.Group = g
	if u, err := m.store.GetUser(ctx, inviterID); err == nil {
		pub := u.ToPublic()
		inv.Inviter = &pub
	}
	m.reg.Send(inviteeID, protocol.GroupInvite{Invite: inv})
	return inv, nil
}

func (m *Manager) ListInvites(ctx context.Context, userID int64) ([]model.GroupInvite, error) {
	list, err := m.store.ListPendingGroupInvites(ctx, userID)
	if err != nil {
		return nil, apperr.Transient(err, "list invites")
	}
	return list, nil
}

// RespondInvite lets the invitee accept or reject once. Accepting joins the group.
func (m *Manager) RespondInvite(ctx context.Context, inviteID, responderID int64, status model.InviteStatus) (*model.GroupInvite, error) {
	defer logger.DeferLogDuration("groups.RespondInvite", time.Now())()
	inv, err := m.store.GetGroupInvite(ctx, inviteID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperr.NotFoundf("invite %d not found", inviteID)
		}
		return nil, apperr.Transient(err, "load invite")
	}
	if inv.InviteeID != responderID {
		return nil, apperr.Forbiddenf("you can only respond to your own invites")
	}
	if inv.Status != model.InvitePending {
		return nil, apperr.Conflictf("invite is already %s", inv.Status)
	}
	if status != model.InviteAccepted && status != model.InviteRejected {
		return nil, apperr.Validationf("status must be accepted or rejected")
	}

	now := m.now()
	if err := m.store.ResolveGroupInvite(ctx, inviteID, status, now); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil, apperr.Conflictf("invite was already answered")
		}
		return nil, apperr.Transient(err, "resolve invite")
	}
	inv.Status = status
	inv.UpdatedAt = now

	if status == model.InviteAccepted {
		if _, err := m.join(ctx, inv.GroupID, inv.InviterID, responderID); err != nil && !apperr.Is(err, apperr.KindConflict) {
			return nil, err
		}
	}
	return inv, nil
}
