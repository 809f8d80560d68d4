// Package messaging stores direct and group messages and delivers them to
// connected recipients.
package messaging

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/chatlink/internal/apperr"
	"github.com/chatlink/internal/logger"
	"github.com/chatlink/internal/model"
	"github.com/chatlink/internal/protocol"
	"github.com/chatlink/internal/push"
	"github.com/chatlink/internal/registry"
	"github.com/chatlink/internal/storage"
)

const (
	maxContentLen   = 10000
	pushBodyLen     = 120
	pushSendTimeout = 10 * time.Second
)

type Store interface {
	storage.Users
	storage.Messages
}

// Membership answers group guards; *groups.Manager implements it.
type Membership interface {
	IsMember(ctx context.Context, groupID, userID int64) (bool, error)
	MemberIDs(ctx context.Context, groupID int64) ([]int64, error)
}

type Router struct {
	store  Store
	groups Membership
	reg    registry.Registry
	push   push.Notifier
	now    func() time.Time
}

// NewRouter: notifier may be nil, then offline recipients get nothing until they fetch history.
func NewRouter(store Store, groups Membership, reg registry.Registry, notifier push.Notifier) *Router {
	return &Router{store: store, groups: groups, reg: reg, push: notifier, now: time.Now}
}

func validateContent(content string, att *model.Attachment) error {
	if strings.TrimSpace(content) == "" && (att == nil || att.URL == "") {
		return apperr.Validationf("message content or attachment is required")
	}
	if len(content) > maxContentLen {
		return apperr.Validationf("message is too long")
	}
	return nil
}

// SendDirect stores the message, delivers it to the receiver if online and
// always echoes the stored copy back to the sender.
func (r *Router) SendDirect(ctx context.Context, senderID, receiverID int64, content string, att *model.Attachment) (*model.Message, error) {
	defer logger.DeferLogDuration("messaging.SendDirect", time.Now())()
	if receiverID <= 0 {
		return nil, apperr.Validationf("receiverId is required")
	}
	if err := validateContent(content, att); err != nil {
		return nil, err
	}
	if _, err := r.store.GetUser(ctx, receiverID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperr.Validationf("user %d does not exist", receiverID)
		}
		return nil, apperr.Transient(err, "load receiver")
	}

	rid := receiverID
	m := &model.Message{
		SenderID:    senderID,
		ReceiverID:  &rid,
		Content:     content,
		CreatedAt:   r.now(),
		MessageType: model.MessageTypeDirect,
	}
	att.Apply(m)
	if err := r.store.CreateMessage(ctx, m); err != nil {
		return nil, apperr.Transient(err, "save message")
	}

	frame := protocol.Message{Message: m}
	if !r.reg.Send(receiverID, frame) {
		r.notify(senderID, []int64{receiverID}, m)
	}
	if senderID != receiverID {
		r.reg.Send(senderID, frame)
	}
	return m, nil
}

// SendGroup stores the message and multicasts it to every member, the sender included.
func (r *Router) SendGroup(ctx context.Context, senderID, groupID int64, content string, att *model.Attachment) (*model.Message, error) {
	defer logger.DeferLogDuration("messaging.SendGroup", time.Now())()
	if err := validateContent(content, att); err != nil {
		return nil, err
	}
	ok, err := r.groups.IsMember(ctx, groupID, senderID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.Forbiddenf("you are not a member of this group")
	}

	gid := groupID
	m := &model.Message{
		SenderID:    senderID,
		GroupID:     &gid,
		Content:     content,
		CreatedAt:   r.now(),
		MessageType: model.MessageTypeGroup,
	}
	att.Apply(m)
	if err := r.store.CreateMessage(ctx, m); err != nil {
		return nil, apperr.Transient(err, "save message")
	}

	ids, err := r.groups.MemberIDs(ctx, groupID)
	if err != nil {
		logger.Errorf("messaging group=%d member ids: %v", groupID, err)
		return m, nil
	}
	r.reg.Multicast(ids, protocol.Message{Message: m})

	offline := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id == senderID {
			continue
		}
		if _, online := r.reg.Lookup(id); !online {
			offline = append(offline, id)
		}
	}
	r.notify(senderID, offline, m)
	return m, nil
}

// History returns the conversation in ascending order, then marks what contactID
// sent to userID as read. Returned rows keep their pre-mark state.
func (r *Router) History(ctx context.Context, userID, contactID int64) ([]model.Message, error) {
	defer logger.DeferLogDuration("messaging.History", time.Now())()
	list, err := r.store.ListDirectMessages(ctx, userID, contactID)
	if err != nil {
		return nil, apperr.Transient(err, "list messages")
	}
	if _, err := r.store.MarkMessagesRead(ctx, userID, contactID); err != nil {
		logger.Errorf("messaging mark read %d<-%d: %v", userID, contactID, err)
	}
	return list, nil
}

func (r *Router) GroupHistory(ctx context.Context, groupID, userID int64) ([]model.Message, error) {
	defer logger.DeferLogDuration("messaging.GroupHistory", time.Now())()
	ok, err := r.groups.IsMember(ctx, groupID, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.Forbiddenf("you are not a member of this group")
	}
	list, err := r.store.ListGroupMessages(ctx, groupID)
	if err != nil {
		return nil, apperr.Transient(err, "list group messages")
	}
	return list, nil
}

// notify pushes a Web Push notification to offline recipients in the background.
func (r *Router) notify(senderID int64, recipients []int64, m *model.Message) {
	if r.push == nil || len(recipients) == 0 {
		return
	}
	title := "New message"
	if u, err := r.store.GetUser(context.Background(), senderID); err == nil {
		title = u.DisplayName
		if title == "" {
			title = u.Username
		}
	}
	body := m.Content
	if m.MessageType == model.MessageTypeFile || strings.TrimSpace(body) == "" {
		body = "Attachment"
	}
	body = truncate(body, pushBodyLen)
	data := map[string]string{
		"messageId": strconv.FormatInt(m.ID, 10),
		"senderId":  strconv.FormatInt(senderID, 10),
	}
	if m.GroupID != nil {
		data["groupId"] = strconv.FormatInt(*m.GroupID, 10)
	}
	for _, uid := range recipients {
		go func(uid int64) {
			ctx, cancel := context.WithTimeout(context.Background(), pushSendTimeout)
			defer cancel()
			r.push.Notify(ctx, uid, title, body, data)
		}(uid)
	}
}

// truncate cuts s to at most n runes, marking the cut with "...".
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n-3]) + "..."
}
