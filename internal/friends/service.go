// Package friends implements friend requests and the contact list built from them.
package friends

import (
	"context"
	"errors"
	"time"

	"github.com/chatlink/internal/apperr"
	"github.com/chatlink/internal/logger"
	"github.com/chatlink/internal/model"
	"github.com/chatlink/internal/protocol"
	"github.com/chatlink/internal/registry"
	"github.com/chatlink/internal/storage"
)

const searchLimit = 50

// Store is the part of storage.Gateway the friend flow reads and writes.
type Store interface {
	storage.Users
	storage.Contacts
	storage.FriendRequests
	CountUnread(ctx context.Context, receiverID, senderID int64) (int, error)
}

type Service struct {
	store Store
	reg   registry.Registry
	now   func() time.Time
}

func NewService(store Store, reg registry.Registry) *Service {
	return &Service{store: store, reg: reg, now: time.Now}
}

// Create opens a pending request from sender to receiver.
//
// The duplicate and contact checks run before the insert without a lock, so two
// concurrent calls for the same pair can both succeed. That race is accepted.
func (s *Service) Create(ctx context.Context, senderID, receiverID int64) (*model.FriendRequest, error) {
	defer logger.DeferLogDuration("friends.Create", time.Now())()
	if senderID == receiverID {
		return nil, apperr.Validationf("cannot send a friend request to yourself")
	}
	if _, err := s.store.GetUser(ctx, receiverID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperr.Validationf("user %d does not exist", receiverID)
		}
		return nil, apperr.Transient(err, "load receiver")
	}

	existing, err := s.store.ListFriendRequestsBetween(ctx, senderID, receiverID)
	if err != nil {
		return nil, apperr.Transient(err, "load friend requests")
	}
	for _, fr := range existing {
		if fr.Status == model.FriendRequestPending {
			return nil, apperr.Conflictf("a pending friend request already exists")
		}
	}
	isContact, err := s.store.IsContact(ctx, senderID, receiverID)
	if err != nil {
		return nil, apperr.Transient(err, "check contact")
	}
	if isContact {
		return nil, apperr.Conflictf("user is already in your contacts")
	}

	now := s.now()
	fr := &model.FriendRequest{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Status:     model.FriendRequestPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.CreateFriendRequest(ctx, fr); err != nil {
		return nil, apperr.Transient(err, "save friend request")
	}

	if sender, err := s.store.GetUser(ctx, senderID); err == nil {
		pub := sender.ToPublic()
		fr.Sender = &pub
	} else {
		logger.Errorf("friends load sender user=%d: %v", senderID, err)
	}
	if !s.reg.Send(receiverID, protocol.FriendRequest{Request: fr}) {
		logger.Debugf("friends request %d: receiver %d offline", fr.ID, receiverID)
	}
	return fr, nil
}

// ListPending returns requests waiting for userID's answer, with sender profiles.
func (s *Service) ListPending(ctx context.Context, userID int64) ([]model.FriendRequest, error) {
	defer logger.DeferLogDuration("friends.ListPending", time.Now())()
	list, err := s.store.ListPendingFriendRequests(ctx, userID)
	if err != nil {
		return nil, apperr.Transient(err, "list pending requests")
	}
	for i := range list {
		u, err := s.store.GetUser(ctx, list[i].SenderID)
		if err != nil {
			logger.Errorf("friends load sender user=%d: %v", list[i].SenderID, err)
			continue
		}
		pub := u.ToPublic()
		list[i].Sender = &pub
	}
	return list, nil
}

// Respond accepts or rejects a request. Only the receiver may respond, once.
func (s *Service) Respond(ctx context.Context, requestID, responderID int64, status model.FriendRequestStatus) (*model.FriendRequest, error) {
	defer logger.DeferLogDuration("friends.Respond", time.Now())()
	fr, err := s.store.GetFriendRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperr.NotFoundf("friend request %d not found", requestID)
		}
		return nil, apperr.Transient(err, "load friend request")
	}
	if fr.ReceiverID != responderID {
		return nil, apperr.Forbiddenf("you can only respond to friend requests sent to you")
	}
	if fr.Status != model.FriendRequestPending {
		return nil, apperr.Conflictf("friend request is already %s", fr.Status)
	}
	if !status.Resolution() {
		return nil, apperr.Validationf("status must be accepted or rejected")
	}

	now := s.now()
	if err := s.store.ResolveFriendRequest(ctx, requestID, status, now); err != nil {
		switch {
		case errors.Is(err, storage.ErrConflict):
			return nil, apperr.Conflictf("friend request was already answered")
		case errors.Is(err, storage.ErrNotFound):
			return nil, apperr.NotFoundf("friend request %d not found", requestID)
		}
		return nil, apperr.Transient(err, "resolve friend request")
	}
	fr.Status = status
	fr.UpdatedAt = now

	s.reg.Send(fr.SenderID, protocol.FriendRequestResponse{RequestID: fr.ID, Status: status})
	return fr, nil
}
