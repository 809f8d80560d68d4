// Package receipts flips the read flag on direct messages.
package receipts

import (
	"context"
	"sort"
	"time"

	"github.com/chatlink/internal/apperr"
	"github.com/chatlink/internal/logger"
	"github.com/chatlink/internal/model"
)

type Store interface {
	ListMessagesByIDs(ctx context.Context, ids []int64) ([]model.Message, error)
	MarkMessagesRead(ctx context.Context, receiverID, senderID int64) (int64, error)
}

type Tracker struct {
	store Store
}

func NewTracker(store Store) *Tracker {
	return &Tracker{store: store}
}

// MarkRead marks every unread message from senderID to receiverID. Repeating it is a no-op.
func (t *Tracker) MarkRead(ctx context.Context, receiverID, senderID int64) (int64, error) {
	defer logger.DeferLogDuration("receipts.MarkRead", time.Now())()
	if senderID <= 0 {
		return 0, apperr.Validationf("senderId is required")
	}
	n, err := t.store.MarkMessagesRead(ctx, receiverID, senderID)
	if err != nil {
		return 0, apperr.Transient(err, "mark read")
	}
	return n, nil
}

// MarkFromFrame handles a read_receipt frame. The message ids only identify whose
// messages were seen; everything unread from those senders is marked.
func (t *Tracker) MarkFromFrame(ctx context.Context, receiverID int64, senderID *int64, messageIDs []int64) (int64, error) {
	senders, err := t.resolveSenders(ctx, receiverID, senderID, messageIDs)
	if err != nil {
		return 0, err
	}
	if len(senders) == 0 {
		return 0, apperr.Validationf("read receipt does not reference any of your messages")
	}
	var total int64
	for _, s := range senders {
		n, err := t.MarkRead(ctx, receiverID, s)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func (t *Tracker) resolveSenders(ctx context.Context, receiverID int64, senderID *int64, ids []int64) ([]int64, error) {
	if senderID != nil {
		return []int64{*senderID}, nil
	}
	if len(ids) == 0 {
		return nil, nil
	}
	msgs, err := t.store.ListMessagesByIDs(ctx, ids)
	if err != nil {
		return nil, apperr.Transient(err, "load messages")
	}
	set := make(map[int64]struct{}, 2)
	for i := range msgs {
		m := &msgs[i]
		if m.ReceiverID != nil && *m.ReceiverID == receiverID {
			set[m.SenderID] = struct{}{}
		}
	}
	out := make([]int64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}
