// Package storage описывает шлюз хранения, через который ядро работает с данными.
// Реализации: repository.Store (PostgreSQL), memory.Gateway (тесты и запуск без БД).
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/chatlink/internal/model"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate")
	// ErrConflict: условное обновление не нашло строку в ожидаемом состоянии.
	ErrConflict = errors.New("state conflict")
)

type Users interface {
	GetUser(ctx context.Context, id int64) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)
	SearchUsers(ctx context.Context, query string, limit int) ([]model.User, error)
	CreateUser(ctx context.Context, u *model.User) error
	SetOnline(ctx context.Context, id int64, online bool, at time.Time) error
	ResetOnline(ctx context.Context) error
}

type Contacts interface {
	ListContacts(ctx context.Context, userID int64) ([]model.User, error)
	IsContact(ctx context.Context, userID, contactID int64) (bool, error)
	// AddContactPair вставляет рёбра в обе стороны; существующие рёбра не дублируются.
	AddContactPair(ctx context.Context, a, b int64, at time.Time) error
}

type FriendRequests interface {
	CreateFriendRequest(ctx context.Context, fr *model.FriendRequest) error
	GetFriendRequest(ctx context.Context, id int64) (*model.FriendRequest, error)
	// ListFriendRequestsBetween: заявки в обе стороны для неупорядоченной пары.
	ListFriendRequestsBetween(ctx context.Context, a, b int64) ([]model.FriendRequest, error)
	ListPendingFriendRequests(ctx context.Context, receiverID int64) ([]model.FriendRequest, error)
	ListFriendRequestsForUser(ctx context.Context, userID int64) ([]model.FriendRequest, error)
	// ResolveFriendRequest переводит pending-заявку в status; при accepted в той же транзакции
	// создаёт пару контактов. ErrConflict, если заявка уже не pending.
	ResolveFriendRequest(ctx context.Context, id int64, status model.FriendRequestStatus, at time.Time) error
}

type Messages interface {
	CreateMessage(ctx context.Context, m *model.Message) error
	GetMessage(ctx context.Context, id int64) (*model.Message, error)
	ListMessagesByIDs(ctx context.Context, ids []int64) ([]model.Message, error)
	ListDirectMessages(ctx context.Context, userID, contactID int64) ([]model.Message, error)
	ListGroupMessages(ctx context.Context, groupID int64) ([]model.Message, error)
	MarkMessagesRead(ctx context.Context, receiverID, senderID int64) (int64, error)
	CountUnread(ctx context.Context, receiverID, senderID int64) (int, error)
}

type Groups interface {
	// CreateGroup создаёт группу и членство создателя (owner) одной операцией.
	CreateGroup(ctx context.Context, g *model.Group, owner *model.GroupMember) error
	GetGroup(ctx context.Context, id int64) (*model.Group, error)
	ListUserGroups(ctx context.Context, userID int64) ([]model.Group, error)
	UpdateGroup(ctx context.Context, g *model.Group) error
	// DeleteGroup удаляет приглашения, сообщения, участников и саму группу.
	DeleteGroup(ctx context.Context, id int64) error
	AddGroupMember(ctx context.Context, m *model.GroupMember) error
	RemoveGroupMember(ctx context.Context, groupID, userID int64) error
	GetGroupMember(ctx context.Context, groupID, userID int64) (*model.GroupMember, error)
	ListGroupMembers(ctx context.Context, groupID int64) ([]model.GroupMember, error)
	ListGroupMemberIDs(ctx context.Context, groupID int64) ([]int64, error)
	UpdateGroupMemberRole(ctx context.Context, groupID, userID int64, role model.GroupRole) error
}

type GroupInvites interface {
	CreateGroupInvite(ctx context.Context, inv *model.GroupInvite) error
	GetGroupInvite(ctx context.Context, id int64) (*model.GroupInvite, error)
	FindPendingGroupInvite(ctx context.Context, groupID, inviteeID int64) (*model.GroupInvite, error)
	ListPendingGroupInvites(ctx context.Context, inviteeID int64) ([]model.GroupInvite, error)
	ResolveGroupInvite(ctx context.Context, id int64, status model.InviteStatus, at time.Time) error
}

// Gateway: полный набор операций хранения.
type Gateway interface {
	Users
	Contacts
	FriendRequests
	Messages
	Groups
	GroupInvites
}

// PresenceCache: быстрый индекс «кто сейчас онлайн» с TTL.
// Реализации: redis.PresenceCache, memory.PresenceCache.
type PresenceCache interface {
	MarkOnline(ctx context.Context, userID int64, ttl time.Duration) error
	MarkOffline(ctx context.Context, userID int64) error
	OnlineSet(ctx context.Context, userIDs []int64) (map[int64]bool, error)
	Close() error
}
