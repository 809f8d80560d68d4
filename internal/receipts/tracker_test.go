package receipts

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatlink/internal/apperr"
	"github.com/chatlink/internal/model"
	"github.com/chatlink/internal/storage/memory"
)

func direct(t *testing.T, store *memory.Gateway, from, to int64) int64 {
	t.Helper()
	m := &model.Message{SenderID: from, ReceiverID: &to, Content: "x", MessageType: model.MessageTypeDirect, CreatedAt: time.Now()}
	require.NoError(t, store.CreateMessage(context.Background(), m))
	return m.ID
}

func TestMarkReadIsIdempotent(t *testing.T) {
	store := memory.NewGateway()
	tr := NewTracker(store)
	ctx := context.Background()
	direct(t, store, 2, 1)
	direct(t, store, 2, 1)
	direct(t, store, 3, 1)

	n, err := tr.MarkRead(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = tr.MarkRead(ctx, 1, 2)
	require.NoError(t, err)
	assert.Zero(t, n)

	unread, err := store.CountUnread(ctx, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, unread)
}

func TestMarkFromFrameUsesSenderID(t *testing.T) {
	store := memory.NewGateway()
	tr := NewTracker(store)
	direct(t, store, 2, 1)
	sender := int64(2)

	n, err := tr.MarkFromFrame(context.Background(), 1, &sender, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestMarkFromFrameResolvesSendersFromIDs(t *testing.T) {
	store := memory.NewGateway()
	tr := NewTracker(store)
	ctx := context.Background()
	first := direct(t, store, 2, 1)
	direct(t, store, 2, 1)
	direct(t, store, 3, 1)
	foreign := direct(t, store, 1, 2)

	n, err := tr.MarkFromFrame(ctx, 1, nil, []int64{first, foreign})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n, "all unread from sender 2, not just the listed id")

	unread, err := store.CountUnread(ctx, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, unread)
	unread, err = store.CountUnread(ctx, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, unread, "messages addressed to someone else are untouched")
}

func TestMarkFromFrameNothingResolves(t *testing.T) {
	store := memory.NewGateway()
	tr := NewTracker(store)
	foreign := direct(t, store, 1, 2)

	_, err := tr.MarkFromFrame(context.Background(), 1, nil, []int64{foreign, 777})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = tr.MarkRead(context.Background(), 1, 0)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}
