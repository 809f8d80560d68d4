package model

import "time"

// Contact: направленное ребро графа контактов. Пишется всегда парой (A→B и B→A).
type Contact struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"userId"`
	ContactID int64     `json:"contactId"`
	CreatedAt time.Time `json:"createdAt"`
}

type FriendRequestStatus string

const (
	FriendRequestPending  FriendRequestStatus = "pending"
	FriendRequestAccepted FriendRequestStatus = "accepted"
	FriendRequestRejected FriendRequestStatus = "rejected"
)

// Terminal: из accepted/rejected переходов нет.
func (s FriendRequestStatus) Terminal() bool {
	return s == FriendRequestAccepted || s == FriendRequestRejected
}

// Resolution проверяет, что статус допустим как ответ на заявку.
func (s FriendRequestStatus) Resolution() bool {
	return s.Terminal()
}

type FriendRequest struct {
	ID         int64               `json:"id"`
	SenderID   int64               `json:"senderId"`
	ReceiverID int64               `json:"receiverId"`
	Status     FriendRequestStatus `json:"status"`
	CreatedAt  time.Time           `json:"createdAt"`
	UpdatedAt  time.Time           `json:"updatedAt"`
	Sender     *UserPublic         `json:"sender,omitempty"`
}
