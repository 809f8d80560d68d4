package groups

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatlink/internal/apperr"
	"github.com/chatlink/internal/model"
	"github.com/chatlink/internal/protocol"
	"github.com/chatlink/internal/registry"
	"github.com/chatlink/internal/storage/memory"
	"github.com/chatlink/internal/testutil"
)

type fixture struct {
	mgr   *Manager
	store *memory.Gateway
	reg   *registry.Memory
	conns map[int64]*testutil.Conn
	// alice owns the group; bob is her contact and a member; carol is a stranger.
	alice, bob, carol *model.User
	group             *model.Group
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewGateway()
	reg := registry.New()
	f := &fixture{
		mgr:   NewManager(store, reg),
		store: store,
		reg:   reg,
		conns: make(map[int64]*testutil.Conn),
		alice: testutil.NewUser(t, store, "alice"),
		bob:   testutil.NewUser(t, store, "bob"),
		carol: testutil.NewUser(t, store, "carol"),
	}
	for _, u := range []*model.User{f.alice, f.bob, f.carol} {
		f.conns[u.ID] = testutil.NewConn()
		reg.Register(u.ID, f.conns[u.ID])
	}
	testutil.Befriend(t, store, f.alice.ID, f.bob.ID)

	g, err := f.mgr.Create(context.Background(), f.alice.ID, CreateGroupInput{
		Name:      " team ",
		MemberIDs: []int64{f.bob.ID, f.carol.ID, f.alice.ID},
	})
	require.NoError(t, err)
	f.group = g
	for _, c := range f.conns {
		c.Reset()
	}
	return f
}

func (f *fixture) changes(id int64) []protocol.GroupMembershipChange {
	return testutil.FramesOf[protocol.GroupMembershipChange](f.conns[id])
}

func TestCreateAddsOnlyContacts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	assert.Equal(t, "team", f.group.Name)

	isAdmin, err := f.mgr.IsAdmin(ctx, f.group.ID, f.alice.ID)
	require.NoError(t, err)
	assert.True(t, isAdmin)

	owner, err := f.store.GetGroupMember(ctx, f.group.ID, f.alice.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RoleOwner, owner.Role)

	ok, err := f.mgr.IsMember(ctx, f.group.ID, f.bob.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = f.mgr.IsMember(ctx, f.group.ID, f.carol.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = f.mgr.Create(ctx, f.alice.ID, CreateGroupInput{Name: "   "})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestCreateNotifiesInitialMembers(t *testing.T) {
	store := memory.NewGateway()
	reg := registry.New()
	mgr := NewManager(store, reg)
	alice := testutil.NewUser(t, store, "alice")
	bob := testutil.NewUser(t, store, "bob")
	testutil.Befriend(t, store, alice.ID, bob.ID)
	bobConn := testutil.NewConn()
	reg.Register(bob.ID, bobConn)

	g, err := mgr.Create(context.Background(), alice.ID, CreateGroupInput{Name: "g", MemberIDs: []int64{bob.ID}})
	require.NoError(t, err)

	got := testutil.FramesOf[protocol.GroupMembershipChange](bobConn)
	require.Len(t, got, 1)
	assert.Equal(t, protocol.GroupMembershipChange{GroupID: g.ID, UserID: bob.ID, Action: protocol.ActionAdded, ByUserID: alice.ID}, got[0])
}

func TestAddMemberRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dave := testutil.NewUser(t, f.store, "dave")

	_, err := f.mgr.AddMember(ctx, f.group.ID, f.carol.ID, dave.ID)
	assert.Equal(t, apperr.KindAuthorization, apperr.KindOf(err), "non-member actor")

	_, err = f.mgr.AddMember(ctx, f.group.ID, f.bob.ID, dave.ID)
	assert.Equal(t, apperr.KindAuthorization, apperr.KindOf(err), "member adding a non-contact")

	_, err = f.mgr.AddMember(ctx, f.group.ID, f.alice.ID, 9999)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = f.mgr.AddMember(ctx, f.group.ID, f.alice.ID, f.bob.ID)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	_, err = f.mgr.AddMember(ctx, 9999, f.alice.ID, f.bob.ID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestAdminAddsStrangerAndEveryoneHears(t *testing.T) {
	f := newFixture(t)
	gm, err := f.mgr.AddMember(context.Background(), f.group.ID, f.alice.ID, f.carol.ID)
	require.NoError(t, err)
	require.NotNil(t, gm.User)
	assert.Equal(t, "carol", gm.User.Username)

	for _, id := range []int64{f.alice.ID, f.bob.ID, f.carol.ID} {
		got := f.changes(id)
		require.Len(t, got, 1, "user %d", id)
		assert.Equal(t, protocol.ActionAdded, got[0].Action)
		assert.Equal(t, f.carol.ID, got[0].UserID)
	}
}

func TestMemberAddsOwnContact(t *testing.T) {
	f := newFixture(t)
	dave := testutil.NewUser(t, f.store, "dave")
	testutil.Befriend(t, f.store, f.bob.ID, dave.ID)

	_, err := f.mgr.AddMember(context.Background(), f.group.ID, f.bob.ID, dave.ID)
	require.NoError(t, err)
}

func TestRemoveMember(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.mgr.RemoveMember(ctx, f.group.ID, f.bob.ID, f.alice.ID)
	assert.Equal(t, apperr.KindAuthorization, apperr.KindOf(err), "member removing the owner")

	err = f.mgr.RemoveMember(ctx, f.group.ID, f.alice.ID, f.carol.ID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	require.NoError(t, f.mgr.RemoveMember(ctx, f.group.ID, f.alice.ID, f.bob.ID))
	removed := f.changes(f.bob.ID)
	require.Len(t, removed, 1)
	assert.Equal(t, protocol.GroupMembershipChange{GroupID: f.group.ID, UserID: f.bob.ID, Action: protocol.ActionRemoved, ByUserID: f.alice.ID}, removed[0])
	assert.Len(t, f.changes(f.alice.ID), 1)

	ok, err := f.mgr.IsMember(ctx, f.group.ID, f.bob.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOwnerProtection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.mgr.UpdateMemberRole(ctx, f.group.ID, f.alice.ID, f.bob.ID, model.RoleAdmin))

	err := f.mgr.RemoveMember(ctx, f.group.ID, f.bob.ID, f.alice.ID)
	assert.Equal(t, apperr.KindAuthorization, apperr.KindOf(err), "admin removing the owner")

	err = f.mgr.UpdateMemberRole(ctx, f.group.ID, f.bob.ID, f.alice.ID, model.RoleMember)
	assert.Equal(t, apperr.KindAuthorization, apperr.KindOf(err))

	require.NoError(t, f.mgr.RemoveMember(ctx, f.group.ID, f.alice.ID, f.alice.ID), "owner may leave")
}

func TestAdminCannotRemoveAnotherAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.mgr.AddMember(ctx, f.group.ID, f.alice.ID, f.carol.ID)
	require.NoError(t, err)
	require.NoError(t, f.mgr.UpdateMemberRole(ctx, f.group.ID, f.alice.ID, f.bob.ID, model.RoleAdmin))
	require.NoError(t, f.mgr.UpdateMemberRole(ctx, f.group.ID, f.alice.ID, f.carol.ID, model.RoleAdmin))

	err = f.mgr.RemoveMember(ctx, f.group.ID, f.bob.ID, f.carol.ID)
	assert.Equal(t, apperr.KindAuthorization, apperr.KindOf(err))
	err = f.mgr.RemoveMember(ctx, f.group.ID, f.alice.ID, f.carol.ID)
	assert.Equal(t, apperr.KindAuthorization, apperr.KindOf(err), "even the owner")

	isMember, err := f.mgr.IsMember(ctx, f.group.ID, f.carol.ID)
	require.NoError(t, err)
	assert.True(t, isMember)

	require.NoError(t, f.mgr.RemoveMember(ctx, f.group.ID, f.carol.ID, f.carol.ID), "admin may leave")
}

func TestOwnerLeavingHandsOverOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.mgr.AddMember(ctx, f.group.ID, f.alice.ID, f.carol.ID)
	require.NoError(t, err)
	require.NoError(t, f.mgr.UpdateMemberRole(ctx, f.group.ID, f.alice.ID, f.carol.ID, model.RoleAdmin))
	for _, c := range f.conns {
		c.Reset()
	}

	require.NoError(t, f.mgr.RemoveMember(ctx, f.group.ID, f.alice.ID, f.alice.ID))

	carol, err := f.store.GetGroupMember(ctx, f.group.ID, f.carol.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RoleOwner, carol.Role, "admin is preferred over an older member")
	bob, err := f.store.GetGroupMember(ctx, f.group.ID, f.bob.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RoleMember, bob.Role)

	got := f.changes(f.bob.ID)
	require.Len(t, got, 2)
	assert.Equal(t, protocol.ActionRemoved, got[0].Action)
	assert.Equal(t, protocol.ActionRoleChanged, got[1].Action)
	assert.Equal(t, f.carol.ID, got[1].UserID)
	assert.Equal(t, model.RoleOwner, got[1].NewRole)

	_, err = f.mgr.Update(ctx, f.group.ID, f.carol.ID, UpdateGroupInput{Name: "still managed"})
	require.NoError(t, err)
}

func TestOwnerLeavingPromotesOldestMember(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.mgr.AddMember(ctx, f.group.ID, f.alice.ID, f.carol.ID)
	require.NoError(t, err)

	require.NoError(t, f.mgr.RemoveMember(ctx, f.group.ID, f.alice.ID, f.alice.ID))

	isAdmin, err := f.mgr.IsAdmin(ctx, f.group.ID, f.bob.ID)
	require.NoError(t, err)
	assert.True(t, isAdmin)
	carol, err := f.store.GetGroupMember(ctx, f.group.ID, f.carol.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RoleMember, carol.Role)
}

func TestLeaveAlwaysAllowed(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.mgr.RemoveMember(context.Background(), f.group.ID, f.bob.ID, f.bob.ID))
	assert.Len(t, f.changes(f.alice.ID), 1)

	err := f.mgr.RemoveMember(context.Background(), f.group.ID, f.bob.ID, f.bob.ID)
	assert.Equal(t, apperr.KindAuthorization, apperr.KindOf(err))
}

func TestUpdateMemberRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.mgr.UpdateMemberRole(ctx, f.group.ID, f.bob.ID, f.bob.ID, model.RoleAdmin)
	assert.Equal(t, apperr.KindAuthorization, apperr.KindOf(err))

	err = f.mgr.UpdateMemberRole(ctx, f.group.ID, f.alice.ID, f.bob.ID, model.RoleOwner)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	require.NoError(t, f.mgr.UpdateMemberRole(ctx, f.group.ID, f.alice.ID, f.bob.ID, model.RoleAdmin))
	got := f.changes(f.bob.ID)
	require.Len(t, got, 1)
	assert.Equal(t, protocol.ActionRoleChanged, got[0].Action)
	assert.Equal(t, model.RoleAdmin, got[0].NewRole)

	isAdmin, err := f.mgr.IsAdmin(ctx, f.group.ID, f.bob.ID)
	require.NoError(t, err)
	assert.True(t, isAdmin)
}

func TestUpdateAndDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	desc := "weekly sync"

	_, err := f.mgr.Update(ctx, f.group.ID, f.bob.ID, UpdateGroupInput{Name: "x"})
	assert.Equal(t, apperr.KindAuthorization, apperr.KindOf(err))
	_, err = f.mgr.Update(ctx, f.group.ID, f.alice.ID, UpdateGroupInput{Name: ""})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	g, err := f.mgr.Update(ctx, f.group.ID, f.alice.ID, UpdateGroupInput{Name: "renamed", Description: &desc})
	require.NoError(t, err)
	assert.Equal(t, "renamed", g.Name)
	upd := testutil.FramesOf[protocol.GroupUpdated](f.conns[f.bob.ID])
	require.Len(t, upd, 1)
	assert.Equal(t, "renamed", upd[0].Group.Name)

	assert.Equal(t, apperr.KindAuthorization, apperr.KindOf(f.mgr.Delete(ctx, f.group.ID, f.bob.ID)))
	require.NoError(t, f.mgr.Delete(ctx, f.group.ID, f.alice.ID))

	for _, id := range []int64{f.alice.ID, f.bob.ID} {
		del := testutil.FramesOf[protocol.GroupDeleted](f.conns[id])
		require.Len(t, del, 1)
		assert.Equal(t, f.group.ID, del[0].GroupID)
	}
	assert.Empty(t, testutil.FramesOf[protocol.GroupDeleted](f.conns[f.carol.ID]))

	_, err = f.mgr.Get(ctx, f.group.ID, f.alice.ID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestGetAndMembersRequireMembership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.mgr.Get(ctx, f.group.ID, f.carol.ID)
	assert.Equal(t, apperr.KindAuthorization, apperr.KindOf(err))

	members, err := f.mgr.Members(ctx, f.group.ID, f.bob.ID)
	require.NoError(t, err)
	require.Len(t, members, 2)
	for _, m := range members {
		require.NotNil(t, m.User)
	}

	groups, err := f.mgr.ListForUser(ctx, f.bob.ID)
	require.NoError(t, err)
	require.Len(t, groups, 1)
}

func TestInviteFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.mgr.Invite(ctx, f.group.ID, f.bob.ID, f.carol.ID)
	assert.Equal(t, apperr.KindAuthorization, apperr.KindOf(err), "bob is not carol's contact")

	inv, err := f.mgr.Invite(ctx, f.group.ID, f.alice.ID, f.carol.ID)
	require.NoError(t, err)
	pushed := testutil.FramesOf[protocol.GroupInvite](f.conns[f.carol.ID])
	require.Len(t, pushed, 1)
	assert.Equal(t, "team", pushed[0].Invite.Group.Name)

	_, err = f.mgr.Invite(ctx, f.group.ID, f.alice.ID, f.carol.ID)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	list, err := f.mgr.ListInvites(ctx, f.carol.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)

	_, err = f.mgr.RespondInvite(ctx, inv.ID, f.bob.ID, model.InviteAccepted)
	assert.Equal(t, apperr.KindAuthorization, apperr.KindOf(err))

	_, err = f.mgr.RespondInvite(ctx, inv.ID, f.carol.ID, model.InviteAccepted)
	require.NoError(t, err)
	ok, err := f.mgr.IsMember(ctx, f.group.ID, f.carol.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = f.mgr.RespondInvite(ctx, inv.ID, f.carol.ID, model.InviteRejected)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}
