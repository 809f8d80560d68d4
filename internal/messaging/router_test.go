package messaging

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatlink/internal/apperr"
	"github.com/chatlink/internal/groups"
	"github.com/chatlink/internal/model"
	"github.com/chatlink/internal/protocol"
	"github.com/chatlink/internal/registry"
	"github.com/chatlink/internal/storage/memory"
	"github.com/chatlink/internal/testutil"
)

type fixture struct {
	router   *Router
	groups   *groups.Manager
	store    *memory.Gateway
	reg      *registry.Memory
	notifier *testutil.Notifier
	alice    *model.User
	bob      *model.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewGateway()
	reg := registry.New()
	mgr := groups.NewManager(store, reg)
	n := &testutil.Notifier{}
	return &fixture{
		router:   NewRouter(store, mgr, reg, n),
		groups:   mgr,
		store:    store,
		reg:      reg,
		notifier: n,
		alice:    testutil.NewUser(t, store, "alice"),
		bob:      testutil.NewUser(t, store, "bob"),
	}
}

func (f *fixture) connect(id int64) *testutil.Conn {
	c := testutil.NewConn()
	f.reg.Register(id, c)
	return c
}

func TestSendDirectDeliversAndEchoes(t *testing.T) {
	f := newFixture(t)
	aliceConn, bobConn := f.connect(f.alice.ID), f.connect(f.bob.ID)

	m, err := f.router.SendDirect(context.Background(), f.alice.ID, f.bob.ID, "hello", nil)
	require.NoError(t, err)
	assert.NotZero(t, m.ID)
	assert.Equal(t, model.MessageTypeDirect, m.MessageType)
	assert.False(t, m.Read)

	for _, c := range []*testutil.Conn{aliceConn, bobConn} {
		got := testutil.FramesOf[protocol.Message](c)
		require.Len(t, got, 1)
		assert.Equal(t, m.ID, got[0].Message.ID)
	}
	assert.Empty(t, f.notifier.Sent())
}

func TestSendDirectToOfflineUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	aliceConn := f.connect(f.alice.ID)

	m, err := f.router.SendDirect(ctx, f.alice.ID, f.bob.ID, "are you there?", nil)
	require.NoError(t, err)
	assert.Len(t, testutil.FramesOf[protocol.Message](aliceConn), 1, "sender still gets the echo")

	assert.Eventually(t, func() bool { return len(f.notifier.Sent()) == 1 }, time.Second, 10*time.Millisecond)
	sent := f.notifier.Sent()[0]
	assert.Equal(t, f.bob.ID, sent.UserID)
	assert.Equal(t, "alice", sent.Title)

	history, err := f.router.History(ctx, f.bob.ID, f.alice.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, m.ID, history[0].ID)
	assert.False(t, history[0].Read, "rows are returned as they were before marking")

	stored, err := f.store.GetMessage(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, stored.Read)
	assert.Len(t, testutil.FramesOf[protocol.Message](aliceConn), 1, "no read notification to the sender")
}

func TestSendDirectValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.router.SendDirect(ctx, f.alice.ID, f.bob.ID, "   ", nil)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = f.router.SendDirect(ctx, f.alice.ID, 4242, "hi", nil)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = f.router.SendDirect(ctx, f.alice.ID, 0, "hi", nil)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestSendDirectFile(t *testing.T) {
	f := newFixture(t)
	att := &model.Attachment{URL: "/api/files/abc.pdf", MimeType: "application/pdf", Name: "report.pdf"}

	m, err := f.router.SendDirect(context.Background(), f.alice.ID, f.bob.ID, "", att)
	require.NoError(t, err)
	assert.Equal(t, model.MessageTypeFile, m.MessageType)
	require.NotNil(t, m.FileURL)
	assert.Equal(t, "/api/files/abc.pdf", *m.FileURL)
	assert.Equal(t, "report.pdf", *m.FileName)
}

func TestHistoryOrderAndDirection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f.router.now = func() time.Time { return base }

	first, err := f.router.SendDirect(ctx, f.alice.ID, f.bob.ID, "1", nil)
	require.NoError(t, err)
	second, err := f.router.SendDirect(ctx, f.bob.ID, f.alice.ID, "2", nil)
	require.NoError(t, err)
	f.router.now = func() time.Time { return base.Add(-time.Minute) }
	earlier, err := f.router.SendDirect(ctx, f.alice.ID, f.bob.ID, "0", nil)
	require.NoError(t, err)

	list, err := f.router.History(ctx, f.alice.ID, f.bob.ID)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []int64{earlier.ID, first.ID, second.ID}, []int64{list[0].ID, list[1].ID, list[2].ID})

	n, err := f.store.CountUnread(ctx, f.bob.ID, f.alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "alice reading does not mark her own messages")
}

func TestGroupMessaging(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	carol := testutil.NewUser(t, f.store, "carol")
	testutil.Befriend(t, f.store, f.alice.ID, f.bob.ID)
	g, err := f.groups.Create(ctx, f.alice.ID, groups.CreateGroupInput{Name: "g", MemberIDs: []int64{f.bob.ID}})
	require.NoError(t, err)

	aliceConn, bobConn, carolConn := f.connect(f.alice.ID), f.connect(f.bob.ID), f.connect(carol.ID)

	_, err = f.router.SendGroup(ctx, carol.ID, g.ID, "let me in", nil)
	assert.Equal(t, apperr.KindAuthorization, apperr.KindOf(err))
	list, err := f.store.ListGroupMessages(ctx, g.ID)
	require.NoError(t, err)
	assert.Empty(t, list, "no row for a rejected send")

	m, err := f.router.SendGroup(ctx, f.bob.ID, g.ID, "hi all", nil)
	require.NoError(t, err)
	assert.Nil(t, m.ReceiverID)
	assert.Equal(t, model.MessageTypeGroup, m.MessageType)
	assert.Len(t, testutil.FramesOf[protocol.Message](aliceConn), 1)
	assert.Len(t, testutil.FramesOf[protocol.Message](bobConn), 1)
	assert.Empty(t, testutil.FramesOf[protocol.Message](carolConn))

	_, err = f.router.SendGroup(ctx, f.alice.ID, g.ID, "", &model.Attachment{URL: "/api/files/x.png", MimeType: "image/png", Name: "x.png"})
	require.NoError(t, err)

	history, err := f.router.GroupHistory(ctx, g.ID, f.bob.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, model.MessageTypeFile, history[1].MessageType)

	_, err = f.router.GroupHistory(ctx, g.ID, carol.ID)
	assert.Equal(t, apperr.KindAuthorization, apperr.KindOf(err))
}

func TestRemovedMemberCannotSend(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	testutil.Befriend(t, f.store, f.alice.ID, f.bob.ID)
	g, err := f.groups.Create(ctx, f.alice.ID, groups.CreateGroupInput{Name: "g", MemberIDs: []int64{f.bob.ID}})
	require.NoError(t, err)
	bobConn := f.connect(f.bob.ID)

	require.NoError(t, f.groups.RemoveMember(ctx, g.ID, f.alice.ID, f.bob.ID))
	changes := testutil.FramesOf[protocol.GroupMembershipChange](bobConn)
	require.Len(t, changes, 1)
	assert.Equal(t, protocol.ActionRemoved, changes[0].Action)
	assert.Equal(t, f.bob.ID, changes[0].UserID)

	_, err = f.router.SendGroup(ctx, f.bob.ID, g.ID, "still here?", nil)
	assert.Equal(t, apperr.KindAuthorization, apperr.KindOf(err))
}

func TestGroupPushGoesToOfflineMembersOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	carol := testutil.NewUser(t, f.store, "carol")
	testutil.Befriend(t, f.store, f.alice.ID, f.bob.ID)
	testutil.Befriend(t, f.store, f.alice.ID, carol.ID)
	g, err := f.groups.Create(ctx, f.alice.ID, groups.CreateGroupInput{Name: "g", MemberIDs: []int64{f.bob.ID, carol.ID}})
	require.NoError(t, err)
	f.connect(f.alice.ID)
	f.connect(f.bob.ID)

	_, err = f.router.SendGroup(ctx, f.alice.ID, g.ID, "ping", nil)
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return len(f.notifier.Sent()) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, carol.ID, f.notifier.Sent()[0].UserID)
}

func TestPushBodyCutsOnRuneBoundary(t *testing.T) {
	f := newFixture(t)
	content := strings.Repeat("привет ", 40)

	_, err := f.router.SendDirect(context.Background(), f.alice.ID, f.bob.ID, content, nil)
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return len(f.notifier.Sent()) == 1 }, time.Second, 10*time.Millisecond)
	body := f.notifier.Sent()[0].Body
	assert.True(t, utf8.ValidString(body))
	assert.Equal(t, pushBodyLen, utf8.RuneCountInString(body))
	assert.True(t, strings.HasSuffix(body, "..."))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "日本語", truncate("日本語", 3))
	assert.Equal(t, "日本...", truncate("日本語テキスト", 5))
}
