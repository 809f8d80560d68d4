package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chatlink/internal/model"
	"github.com/chatlink/internal/storage"
)

type pair struct{ a, b int64 }

// Gateway: реализация storage.Gateway в памяти. Повторяет семантику PostgreSQL-репозиториев:
// монотонные id, порядок (created_at, id), каскадное удаление группы.
type Gateway struct {
	mu       sync.RWMutex
	seq      int64
	users    map[int64]*model.User
	contacts map[pair]model.Contact
	requests map[int64]*model.FriendRequest
	messages map[int64]*model.Message
	groups   map[int64]*model.Group
	members  map[pair]*model.GroupMember
	invites  map[int64]*model.GroupInvite
}

var _ storage.Gateway = (*Gateway)(nil)

func NewGateway() *Gateway {
	return &Gateway{
		users:    make(map[int64]*model.User),
		contacts: make(map[pair]model.Contact),
		requests: make(map[int64]*model.FriendRequest),
		messages: make(map[int64]*model.Message),
		groups:   make(map[int64]*model.Group),
		members:  make(map[pair]*model.GroupMember),
		invites:  make(map[int64]*model.GroupInvite),
	}
}

func (g *Gateway) nextID() int64 {
	g.seq++
	return g.seq
}

// --- users ---

func (g *Gateway) GetUser(ctx context.Context, id int64) (*model.User, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	u, ok := g.users[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (g *Gateway) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, u := range g.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (g *Gateway) ListUsers(ctx context.Context) ([]model.User, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]model.User, 0, len(g.users))
	for _, u := range g.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (g *Gateway) SearchUsers(ctx context.Context, query string, limit int) ([]model.User, error) {
	all, _ := g.ListUsers(ctx)
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]model.User, 0, 8)
	for _, u := range all {
		if q != "" && !strings.Contains(strings.ToLower(u.Username), q) && !strings.Contains(strings.ToLower(u.DisplayName), q) {
			continue
		}
		out = append(out, u)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (g *Gateway) CreateUser(ctx context.Context, u *model.User) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, existing := range g.users {
		if existing.Username == u.Username {
			return storage.ErrDuplicate
		}
	}
	u.ID = g.nextID()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	cp := *u
	g.users[u.ID] = &cp
	return nil
}

func (g *Gateway) SetOnline(ctx context.Context, id int64, online bool, at time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	u, ok := g.users[id]
	if !ok {
		return storage.ErrNotFound
	}
	u.IsOnline = online
	if !online {
		seen := at
		u.LastSeen = &seen
	}
	return nil
}

func (g *Gateway) ResetOnline(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, u := range g.users {
		u.IsOnline = false
	}
	return nil
}

// --- contacts ---

func (g *Gateway) ListContacts(ctx context.Context, userID int64) ([]model.User, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	edges := make([]model.Contact, 0, 8)
	for k, c := range g.contacts {
		if k.a == userID {
			edges = append(edges, c)
		}
	}
	sort.Slice(edges, func(i, j int) bool { return edges[i].ID < edges[j].ID })
	out := make([]model.User, 0, len(edges))
	for _, e := range edges {
		if u, ok := g.users[e.ContactID]; ok {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (g *Gateway) IsContact(ctx context.Context, userID, contactID int64) (bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.contacts[pair{userID, contactID}]
	return ok, nil
}

func (g *Gateway) AddContactPair(ctx context.Context, a, b int64, at time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.addContactPairLocked(a, b, at)
	return nil
}

func (g *Gateway) addContactPairLocked(a, b int64, at time.Time) {
	for _, k := range []pair{{a, b}, {b, a}} {
		if _, ok := g.contacts[k]; ok {
			continue
		}
		g.contacts[k] = model.Contact{ID: g.nextID(), UserID: k.a, ContactID: k.b, CreatedAt: at}
	}
}

// --- friend requests ---

func (g *Gateway) CreateFriendRequest(ctx context.Context, fr *model.FriendRequest) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	fr.ID = g.nextID()
	cp := *fr
	cp.Sender = nil
	g.requests[fr.ID] = &cp
	return nil
}

func (g *Gateway) GetFriendRequest(ctx context.Context, id int64) (*model.FriendRequest, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	fr, ok := g.requests[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *fr
	return &cp, nil
}

func (g *Gateway) filterRequests(keep func(*model.FriendRequest) bool) []model.FriendRequest {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]model.FriendRequest, 0, 4)
	for _, fr := range g.requests {
		if keep(fr) {
			out = append(out, *fr)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (g *Gateway) ListFriendRequestsBetween(ctx context.Context, a, b int64) ([]model.FriendRequest, error) {
	return g.filterRequests(func(fr *model.FriendRequest) bool {
		return (fr.SenderID == a && fr.ReceiverID == b) || (fr.SenderID == b && fr.ReceiverID == a)
	}), nil
}

func (g *Gateway) ListPendingFriendRequests(ctx context.Context, receiverID int64) ([]model.FriendRequest, error) {
	return g.filterRequests(func(fr *model.FriendRequest) bool {
		return fr.ReceiverID == receiverID && fr.Status == model.FriendRequestPending
	}), nil
}

func (g *Gateway) ListFriendRequestsForUser(ctx context.Context, userID int64) ([]model.FriendRequest, error) {
	return g.filterRequests(func(fr *model.FriendRequest) bool {
		return fr.SenderID == userID || fr.ReceiverID == userID
	}), nil
}

func (g *Gateway) ResolveFriendRequest(ctx context.Context, id int64, status model.FriendRequestStatus, at time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	fr, ok := g.requests[id]
	if !ok {
		return storage.ErrNotFound
	}
	if fr.Status != model.FriendRequestPending {
		return storage.ErrConflict
	}
	fr.Status = status
	fr.UpdatedAt = at
	if status == model.FriendRequestAccepted {
		for _, other := range g.requests {
			if other.Status == model.FriendRequestPending && samePair(other, fr) {
				other.Status = model.FriendRequestAccepted
				other.UpdatedAt = at
			}
		}
		g.addContactPairLocked(fr.SenderID, fr.ReceiverID, at)
	}
	return nil
}

func samePair(a, b *model.FriendRequest) bool {
	return (a.SenderID == b.SenderID && a.ReceiverID == b.ReceiverID) ||
		(a.SenderID == b.ReceiverID && a.ReceiverID == b.SenderID)
}

// --- messages ---

func (g *Gateway) CreateMessage(ctx context.Context, m *model.Message) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	m.ID = g.nextID()
	cp := *m
	g.messages[m.ID] = &cp
	return nil
}

func (g *Gateway) GetMessage(ctx context.Context, id int64) (*model.Message, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	m, ok := g.messages[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (g *Gateway) filterMessages(keep func(*model.Message) bool) []model.Message {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]model.Message, 0, 16)
	for _, m := range g.messages {
		if keep(m) {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (g *Gateway) ListMessagesByIDs(ctx context.Context, ids []int64) ([]model.Message, error) {
	want := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	return g.filterMessages(func(m *model.Message) bool {
		_, ok := want[m.ID]
		return ok
	}), nil
}

func isDirectBetween(m *model.Message, a, b int64) bool {
	if m.ReceiverID == nil {
		return false
	}
	return (m.SenderID == a && *m.ReceiverID == b) || (m.SenderID == b && *m.ReceiverID == a)
}

func (g *Gateway) ListDirectMessages(ctx context.Context, userID, contactID int64) ([]model.Message, error) {
	return g.filterMessages(func(m *model.Message) bool { return isDirectBetween(m, userID, contactID) }), nil
}

func (g *Gateway) ListGroupMessages(ctx context.Context, groupID int64) ([]model.Message, error) {
	return g.filterMessages(func(m *model.Message) bool { return m.GroupID != nil && *m.GroupID == groupID }), nil
}

func unreadFrom(m *model.Message, receiverID, senderID int64) bool {
	return !m.Read && m.SenderID == senderID && m.ReceiverID != nil && *m.ReceiverID == receiverID
}

func (g *Gateway) MarkMessagesRead(ctx context.Context, receiverID, senderID int64) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var n int64
	for _, m := range g.messages {
		if unreadFrom(m, receiverID, senderID) {
			m.Read = true
			n++
		}
	}
	return n, nil
}

func (g *Gateway) CountUnread(ctx context.Context, receiverID, senderID int64) (int, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n := 0
	for _, m := range g.messages {
		if unreadFrom(m, receiverID, senderID) {
			n++
		}
	}
	return n, nil
}

// --- groups ---

func (g *Gateway) CreateGroup(ctx context.Context, grp *model.Group, owner *model.GroupMember) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	grp.ID = g.nextID()
	cp := *grp
	g.groups[grp.ID] = &cp
	if owner != nil {
		owner.GroupID = grp.ID
		owner.ID = g.nextID()
		m := *owner
		m.User = nil
		g.members[pair{grp.ID, owner.UserID}] = &m
	}
	return nil
}

func (g *Gateway) GetGroup(ctx context.Context, id int64) (*model.Group, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	grp, ok := g.groups[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *grp
	return &cp, nil
}

func (g *Gateway) ListUserGroups(ctx context.Context, userID int64) ([]model.Group, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]model.Group, 0, 4)
	for k := range g.members {
		if k.b != userID {
			continue
		}
		if grp, ok := g.groups[k.a]; ok {
			out = append(out, *grp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (g *Gateway) UpdateGroup(ctx context.Context, grp *model.Group) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	existing, ok := g.groups[grp.ID]
	if !ok {
		return storage.ErrNotFound
	}
	existing.Name = grp.Name
	existing.Description = grp.Description
	existing.Avatar = grp.Avatar
	return nil
}

func (g *Gateway) DeleteGroup(ctx context.Context, id int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.groups[id]; !ok {
		return storage.ErrNotFound
	}
	for invID, inv := range g.invites {
		if inv.GroupID == id {
			delete(g.invites, invID)
		}
	}
	for msgID, m := range g.messages {
		if m.GroupID != nil && *m.GroupID == id {
			delete(g.messages, msgID)
		}
	}
	for k := range g.members {
		if k.a == id {
			delete(g.members, k)
		}
	}
	delete(g.groups, id)
	return nil
}

func (g *Gateway) AddGroupMember(ctx context.Context, m *model.GroupMember) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.groups[m.GroupID]; !ok {
		return storage.ErrNotFound
	}
	k := pair{m.GroupID, m.UserID}
	if _, ok := g.members[k]; ok {
		return storage.ErrDuplicate
	}
	m.ID = g.nextID()
	cp := *m
	cp.User = nil
	g.members[k] = &cp
	return nil
}

func (g *Gateway) RemoveGroupMember(ctx context.Context, groupID, userID int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	k := pair{groupID, userID}
	if _, ok := g.members[k]; !ok {
		return storage.ErrNotFound
	}
	delete(g.members, k)
	return nil
}

func (g *Gateway) GetGroupMember(ctx context.Context, groupID, userID int64) (*model.GroupMember, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	m, ok := g.members[pair{groupID, userID}]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (g *Gateway) ListGroupMembers(ctx context.Context, groupID int64) ([]model.GroupMember, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]model.GroupMember, 0, 8)
	for k, m := range g.members {
		if k.a != groupID {
			continue
		}
		cp := *m
		if u, ok := g.users[m.UserID]; ok {
			pub := u.ToPublic()
			cp.User = &pub
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (g *Gateway) ListGroupMemberIDs(ctx context.Context, groupID int64) ([]int64, error) {
	members, err := g.ListGroupMembers(ctx, groupID)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.UserID)
	}
	return ids, nil
}

func (g *Gateway) UpdateGroupMemberRole(ctx context.Context, groupID, userID int64, role model.GroupRole) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	m, ok := g.members[pair{groupID, userID}]
	if !ok {
		return storage.ErrNotFound
	}
	m.Role = role
	return nil
}

// --- invites ---

func (g *Gateway) CreateGroupInvite(ctx context.Context, inv *model.GroupInvite) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.groups[inv.GroupID]; !ok {
		return storage.ErrNotFound
	}
	for _, existing := range g.invites {
		if existing.GroupID == inv.GroupID && existing.InviteeID == inv.InviteeID && existing.Status == model.InvitePending {
			return storage.ErrDuplicate
		}
	}
	inv.ID = g.nextID()
	cp := *inv
	cp.Group, cp.Inviter = nil, nil
	g.invites[inv.ID] = &cp
	return nil
}

func (g *Gateway) GetGroupInvite(ctx context.Context, id int64) (*model.GroupInvite, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	inv, ok := g.invites[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *inv
	return &cp, nil
}

func (g *Gateway) FindPendingGroupInvite(ctx context.Context, groupID, inviteeID int64) (*model.GroupInvite, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, inv := range g.invites {
		if inv.GroupID == groupID && inv.InviteeID == inviteeID && inv.Status == model.InvitePending {
			cp := *inv
			return &cp, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (g *Gateway) ListPendingGroupInvites(ctx context.Context, inviteeID int64) ([]model.GroupInvite, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]model.GroupInvite, 0, 4)
	for _, inv := range g.invites {
		if inv.InviteeID != inviteeID || inv.Status != model.InvitePending {
			continue
		}
		cp := *inv
		if grp, ok := g.groups[inv.GroupID]; ok {
			gc := *grp
			cp.Group = &gc
		}
		if u, ok := g.users[inv.InviterID]; ok {
			pub := u.ToPublic()
			cp.Inviter = &pub
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (g *Gateway) ResolveGroupInvite(ctx context.Context, id int64, status model.InviteStatus, at time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	inv, ok := g.invites[id]
	if !ok {
		return storage.ErrNotFound
	}
	if inv.Status != model.InvitePending {
		return storage.ErrConflict
	}
	inv.Status = status
	inv.UpdatedAt = at
	return nil
}
