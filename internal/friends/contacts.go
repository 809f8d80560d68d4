package friends

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/chatlink/internal/apperr"
	"github.com/chatlink/internal/logger"
	"github.com/chatlink/internal/model"
)

type ContactSummary struct {
	Contact     model.UserPublic `json:"contact"`
	UnreadCount int              `json:"unreadCount"`
}

// ListContacts returns userID's contacts with the number of unread messages from each.
func (s *Service) ListContacts(ctx context.Context, userID int64) ([]ContactSummary, error) {
	defer logger.DeferLogDuration("friends.ListContacts", time.Now())()
	users, err := s.store.ListContacts(ctx, userID)
	if err != nil {
		return nil, apperr.Transient(err, "list contacts")
	}
	out := make([]ContactSummary, 0, len(users))
	for i := range users {
		n, err := s.store.CountUnread(ctx, userID, users[i].ID)
		if err != nil {
			return nil, apperr.Transient(err, "count unread")
		}
		out = append(out, ContactSummary{Contact: users[i].ToPublic(), UnreadCount: n})
	}
	return out, nil
}

type RequestRef struct {
	ID         int64                     `json:"id"`
	Status     model.FriendRequestStatus `json:"status"`
	IsOutgoing bool                      `json:"isOutgoing"`
}

type SearchResult struct {
	model.UserPublic
	IsFriend      bool        `json:"isFriend"`
	FriendRequest *RequestRef `json:"friendRequest"`
}

// Search finds users other than userID whose username or display name contains query.
func (s *Service) Search(ctx context.Context, userID int64, query string) ([]SearchResult, error) {
	defer logger.DeferLogDuration("friends.Search", time.Now())()
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperr.Validationf("search term is required")
	}
	users, err := s.store.SearchUsers(ctx, query, searchLimit+1)
	if err != nil {
		return nil, apperr.Transient(err, "search users")
	}
	requests, err := s.store.ListFriendRequestsForUser(ctx, userID)
	if err != nil {
		return nil, apperr.Transient(err, "list friend requests")
	}
	contacts, err := s.store.ListContacts(ctx, userID)
	if err != nil {
		return nil, apperr.Transient(err, "list contacts")
	}
	friends := make(map[int64]struct{}, len(contacts))
	for _, c := range contacts {
		friends[c.ID] = struct{}{}
	}

	out := make([]SearchResult, 0, len(users))
	for i := range users {
		u := &users[i]
		if u.ID == userID {
			continue
		}
		_, isFriend := friends[u.ID]
		out = append(out, SearchResult{
			UserPublic:    u.ToPublic(),
			IsFriend:      isFriend,
			FriendRequest: latestBetween(requests, userID, u.ID),
		})
		if len(out) == searchLimit {
			break
		}
	}
	return out, nil
}

// latestBetween prefers a pending request, then the most recent one.
func latestBetween(requests []model.FriendRequest, me, other int64) *RequestRef {
	var pair []model.FriendRequest
	for _, fr := range requests {
		if (fr.SenderID == me && fr.ReceiverID == other) || (fr.SenderID == other && fr.ReceiverID == me) {
			pair = append(pair, fr)
		}
	}
	if len(pair) == 0 {
		return nil
	}
	sort.SliceStable(pair, func(i, j int) bool {
		pi, pj := pair[i].Status == model.FriendRequestPending, pair[j].Status == model.FriendRequestPending
		if pi != pj {
			return pi
		}
		return pair[i].ID > pair[j].ID
	})
	fr := pair[0]
	return &RequestRef{ID: fr.ID, Status: fr.Status, IsOutgoing: fr.SenderID == me}
}
