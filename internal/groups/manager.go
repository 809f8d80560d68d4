// Package groups manages group chats, their membership and roles.
package groups

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/chatlink/internal/apperr"
	"github.com/chatlink/internal/logger"
	"github.com/chatlink/internal/model"
	"github.com/chatlink/internal/protocol"
	"github.com/chatlink/internal/registry"
	"github.com/chatlink/internal/storage"
)

type Store interface {
	storage.Users
	storage.Contacts
	storage.Groups
	storage.GroupInvites
}

type Manager struct {
	store Store
	reg   registry.Registry
	now   func() time.Time
}

func NewManager(store Store, reg registry.Registry) *Manager {
	return &Manager{store: store, reg: reg, now: time.Now}
}

type CreateGroupInput struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
	Avatar      *string `json:"avatar"`
	MemberIDs   []int64 `json:"memberIds"`
}

type UpdateGroupInput struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
	Avatar      *string `json:"avatar"`
}

// Create makes creatorID the owner. Initial members who are not the creator's
// contacts are skipped without error.
func (m *Manager) Create(ctx context.Context, creatorID int64, in CreateGroupInput) (*model.Group, error) {
	defer logger.DeferLogDuration("groups.Create", time.Now())()
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperr.Validationf("group name is required")
	}
	now := m.now()
	g := &model.Group{
		Name:        name,
		Description: in.Description,
		Avatar:      in.Avatar,
		CreatorID:   creatorID,
		CreatedAt:   now,
	}
	owner := &model.GroupMember{UserID: creatorID, Role: model.RoleOwner, JoinedAt: now}
	if err := m.store.CreateGroup(ctx, g, owner); err != nil {
		return nil, apperr.Transient(err, "create group")
	}

	seen := map[int64]struct{}{creatorID: {}}
	for _, uid := range in.MemberIDs {
		if _, dup := seen[uid]; dup {
			continue
		}
		seen[uid] = struct{}{}
		ok, err := m.store.IsContact(ctx, creatorID, uid)
		if err != nil {
			return nil, apperr.Transient(err, "check contact")
		}
		if !ok {
			logger.Debugf("groups create %d: skip non-contact %d", g.ID, uid)
			continue
		}
		err = m.store.AddGroupMember(ctx, &model.GroupMember{GroupID: g.ID, UserID: uid, Role: model.RoleMember, JoinedAt: now})
		if err != nil && !errors.Is(err, storage.ErrDuplicate) {
			return nil, apperr.Transient(err, "add initial member")
		}
		m.reg.Send(uid, protocol.GroupMembershipChange{
			GroupID: g.ID, UserID: uid, Action: protocol.ActionAdded, ByUserID: creatorID,
		})
	}
	return g, nil
}

func (m *Manager) member(ctx context.Context, groupID, userID int64) (*model.GroupMember, error) {
	gm, err := m.store.GetGroupMember(ctx, groupID, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Transient(err, "load membership")
	}
	return gm, nil
}

func (m *Manager) IsMember(ctx context.Context, groupID, userID int64) (bool, error) {
	gm, err := m.member(ctx, groupID, userID)
	return gm != nil, err
}

// IsAdmin is true for admins and the owner.
func (m *Manager) IsAdmin(ctx context.Context, groupID, userID int64) (bool, error) {
	gm, err := m.member(ctx, groupID, userID)
	return gm != nil && gm.Role.Elevated(), err
}

func (m *Manager) requireGroup(ctx context.Context, groupID int64) (*model.Group, error) {
	g, err := m.store.GetGroup(ctx, groupID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.NotFoundf("group %d not found", groupID)
	}
	if err != nil {
		return nil, apperr.Transient(err, "load group")
	}
	return g, nil
}

func (m *Manager) requireMember(ctx context.Context, groupID, userID int64) (*model.GroupMember, error) {
	gm, err := m.member(ctx, groupID, userID)
	if err != nil {
		return nil, err
	}
	if gm == nil {
		return nil, apperr.Forbiddenf("you are not a member of this group")
	}
	return gm, nil
}

func (m *Manager) requireAdmin(ctx context.Context, groupID, userID int64) (*model.GroupMember, error) {
	gm, err := m.requireMember(ctx, groupID, userID)
	if err != nil {
		return nil, err
	}
	if !gm.Role.Elevated() {
		return nil, apperr.Forbiddenf("only group admins can do this")
	}
	return gm, nil
}

func (m *Manager) Get(ctx context.Context, groupID, userID int64) (*model.Group, error) {
	g, err := m.requireGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if _, err := m.requireMember(ctx, groupID, userID); err != nil {
		return nil, err
	}
	return g, nil
}

func (m *Manager) ListForUser(ctx context.Context, userID int64) ([]model.Group, error) {
	defer logger.DeferLogDuration("groups.ListForUser", time.Now())()
	list, err := m.store.ListUserGroups(ctx, userID)
	if err != nil {
		return nil, apperr.Transient(err, "list groups")
	}
	return list, nil
}

// Members returns the member list with public profiles. Caller must be a member.
func (m *Manager) Members(ctx context.Context, groupID, userID int64) ([]model.GroupMember, error) {
	if _, err := m.requireGroup(ctx, groupID); err != nil {
		return nil, err
	}
	if _, err := m.requireMember(ctx, groupID, userID); err != nil {
		return nil, err
	}
	list, err := m.store.ListGroupMembers(ctx, groupID)
	if err != nil {
		return nil, apperr.Transient(err, "list members")
	}
	return list, nil
}

// MemberIDs is used by the message router for fan-out.
func (m *Manager) MemberIDs(ctx context.Context, groupID int64) ([]int64, error) {
	ids, err := m.store.ListGroupMemberIDs(ctx, groupID)
	if err != nil {
		return nil, apperr.Transient(err, "list member ids")
	}
	return ids, nil
}

func (m *Manager) broadcast(ctx context.Context, groupID int64, f protocol.Frame) []int64 {
	ids, err := m.store.ListGroupMemberIDs(ctx, groupID)
	if err != nil {
		logger.Errorf("groups broadcast group=%d: %v", groupID, err)
		return nil
	}
	m.reg.Multicast(ids, f)
	return ids
}

// canAdd checks that actor may bring target into the group: members may add
// their own contacts, admins may add anyone.
func (m *Manager) canAdd(ctx context.Context, groupID, actorID, targetID int64) error {
	actor, err := m.requireMember(ctx, groupID, actorID)
	if err != nil {
		return err
	}
	if _, err := m.store.GetUser(ctx, targetID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperr.Validationf("user %d does not exist", targetID)
		}
		return apperr.Transient(err, "load user")
	}
	existing, err := m.member(ctx, groupID, targetID)
	if err != nil {
		return err
	}
	if existing != nil {
		return apperr.Conflictf("user is already a member of this group")
	}
	if actor.Role.Elevated() {
		return nil
	}
	ok, err := m.store.IsContact(ctx, actorID, targetID)
	if err != nil {
		return apperr.Transient(err, "check contact")
	}
	if !ok {
		return apperr.Forbiddenf("you can only add your contacts to this group")
	}
	return nil
}

func (m *Manager) AddMember(ctx context.Context, groupID, actorID, targetID int64) (*model.GroupMember, error) {
	defer logger.DeferLogDuration("groups.AddMember", time.Now())()
	if _, err := m.requireGroup(ctx, groupID); err != nil {
		return nil, err
	}
	if err := m.canAdd(ctx, groupID, actorID, targetID); err != nil {
		return nil, err
	}
	return m.join(ctx, groupID, actorID, targetID)
}

func (m *Manager) join(ctx context.Context, groupID, byID, userID int64) (*model.GroupMember, error) {
	gm := &model.GroupMember{GroupID: groupID, UserID: userID, Role: model.RoleMember, JoinedAt: m.now()}
	if err := m.store.AddGroupMember(ctx, gm); err != nil {
		switch {
		case errors.Is(err, storage.ErrDuplicate):
			return nil, apperr.Conflictf("user is already a member of this group")
		case errors.Is(err, storage.ErrNotFound):
			return nil, apperr.NotFoundf("group %d not found", groupID)
		}
		return nil, apperr.Transient(err, "add member")
	}
	if u, err := m.store.GetUser(ctx, userID); err == nil {
		pub := u.ToPublic()
		gm.User = &pub
	}
	ev := protocol.GroupMembershipChange{GroupID: groupID, UserID: userID, Action: protocol.ActionAdded, ByUserID: byID}
	ids := m.broadcast(ctx, groupID, ev)
	if !contains(ids, userID) {
		m.reg.Send(userID, ev)
	}
	return gm, nil
}

// RemoveMember: anyone may leave; removing someone else needs an elevated role,
// and an admin or the owner can only leave by themselves. When the owner leaves,
// ownership passes to the longest-standing admin, or failing that the
// longest-standing member.
func (m *Manager) RemoveMember(ctx context.Context, groupID, actorID, targetID int64) error {
	defer logger.DeferLogDuration("groups.RemoveMember", time.Now())()
	if _, err := m.requireGroup(ctx, groupID); err != nil {
		return err
	}
	if actorID != targetID {
		if _, err := m.requireAdmin(ctx, groupID, actorID); err != nil {
			return err
		}
	}
	target, err := m.member(ctx, groupID, targetID)
	if err != nil {
		return err
	}
	if target == nil {
		if actorID == targetID {
			return apperr.Forbiddenf("you are not a member of this group")
		}
		return apperr.NotFoundf("user is not a member of this group")
	}
	if target.Role.Elevated() && actorID != targetID {
		if target.Role == model.RoleOwner {
			return apperr.Forbiddenf("the group owner cannot be removed")
		}
		return apperr.Forbiddenf("an admin can only leave the group by themselves")
	}

	if err := m.store.RemoveGroupMember(ctx, groupID, targetID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperr.NotFoundf("user is not a member of this group")
		}
		return apperr.Transient(err, "remove member")
	}
	ev := protocol.GroupMembershipChange{GroupID: groupID, UserID: targetID, Action: protocol.ActionRemoved, ByUserID: actorID}
	m.broadcast(ctx, groupID, ev)
	m.reg.Send(targetID, ev)
	if target.Role == model.RoleOwner {
		m.handOver(ctx, groupID, targetID)
	}
	return nil
}

// handOver promotes a successor after the owner left. Members come back in join order.
func (m *Manager) handOver(ctx context.Context, groupID, formerOwnerID int64) {
	members, err := m.store.ListGroupMembers(ctx, groupID)
	if err != nil {
		logger.Errorf("groups.handOver group=%d: %v", groupID, err)
		return
	}
	if len(members) == 0 {
		return
	}
	next := members[0]
	for _, gm := range members {
		if gm.Role == model.RoleAdmin {
			next = gm
			break
		}
	}
	if err := m.store.UpdateGroupMemberRole(ctx, groupID, next.UserID, model.RoleOwner); err != nil {
		logger.Errorf("groups.handOver group=%d user=%d: %v", groupID, next.UserID, err)
		return
	}
	m.broadcast(ctx, groupID, protocol.GroupMembershipChange{
		GroupID: groupID, UserID: next.UserID, Action: protocol.ActionRoleChanged, ByUserID: formerOwnerID, NewRole: model.RoleOwner,
	})
}

func (m *Manager) Update(ctx context.Context, groupID, actorID int64, in UpdateGroupInput) (*model.Group, error) {
	defer logger.DeferLogDuration("groups.Update", time.Now())()
	g, err := m.requireGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if _, err := m.requireAdmin(ctx, groupID, actorID); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperr.Validationf("group name is required")
	}
	g.Name = name
	g.Description = in.Description
	g.Avatar = in.Avatar
	if err := m.store.UpdateGroup(ctx, g); err != nil {
		return nil, apperr.Transient(err, "update group")
	}
	m.broadcast(ctx, groupID, protocol.GroupUpdated{Group: g})
	return g, nil
}

// Delete captures the member set before the cascade so everyone who was in the
// group learns about the deletion.
func (m *Manager) Delete(ctx context.Context, groupID, actorID int64) error {
	defer logger.DeferLogDuration("groups.Delete", time.Now())()
	if _, err := m.requireGroup(ctx, groupID); err != nil {
		return err
	}
	if _, err := m.requireAdmin(ctx, groupID, actorID); err != nil {
		return err
	}
	ids, err := m.store.ListGroupMemberIDs(ctx, groupID)
	if err != nil {
		return apperr.Transient(err, "list member ids")
	}
	if err := m.store.DeleteGroup(ctx, groupID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperr.NotFoundf("group %d not found", groupID)
		}
		return apperr.Transient(err, "delete group")
	}
	m.reg.Multicast(ids, protocol.GroupDeleted{GroupID: groupID})
	return nil
}

func (m *Manager) UpdateMemberRole(ctx context.Context, groupID, actorID, targetID int64, role model.GroupRole) error {
	defer logger.DeferLogDuration("groups.UpdateMemberRole", time.Now())()
	if _, err := m.requireGroup(ctx, groupID); err != nil {
		return err
	}
	if _, err := m.requireAdmin(ctx, groupID, actorID); err != nil {
		return err
	}
	if !role.Assignable() {
		return apperr.Validationf("role must be admin or member")
	}
	target, err := m.member(ctx, groupID, targetID)
	if err != nil {
		return err
	}
	if target == nil {
		return apperr.NotFoundf("user is not a member of this group")
	}
	if target.Role == model.RoleOwner {
		return apperr.Forbiddenf("the owner's role cannot be changed")
	}
	if err := m.store.UpdateGroupMemberRole(ctx, groupID, targetID, role); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperr.NotFoundf("user is not a member of this group")
		}
		return apperr.Transient(err, "update role")
	}
	m.broadcast(ctx, groupID, protocol.GroupMembershipChange{
		GroupID: groupID, UserID: targetID, Action: protocol.ActionRoleChanged, ByUserID: actorID, NewRole: role,
	})
	return nil
}

func contains(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
