package repository

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chatlink/internal/storage"
)

// Store собирает репозитории в storage.Gateway поверх одного пула.
type Store struct {
	*UserRepository
	*ContactRepository
	*FriendRequestRepository
	*MessageRepository
	*GroupRepository
	*InviteRepository
}

var _ storage.Gateway = (*Store)(nil)

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		UserRepository:          NewUserRepository(pool),
		ContactRepository:       NewContactRepository(pool),
		FriendRequestRepository: NewFriendRequestRepository(pool),
		MessageRepository:       NewMessageRepository(pool),
		GroupRepository:         NewGroupRepository(pool),
		InviteRepository:        NewInviteRepository(pool),
	}
}
