package model

import "time"

type User struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username"`
	DisplayName  string     `json:"displayName"`
	Avatar       *string    `json:"avatar,omitempty"`
	About        *string    `json:"about,omitempty"`
	Email        *string    `json:"email,omitempty"`
	Phone        *string    `json:"phone,omitempty"`
	PasswordHash string     `json:"-"`
	IsOnline     bool       `json:"isOnline"`
	LastSeen     *time.Time `json:"lastSeen,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// UserPublic: то, что уходит другим пользователям (уведомления, поиск, участники групп).
// Без пароля и контактных данных.
type UserPublic struct {
	ID          int64      `json:"id"`
	Username    string     `json:"username"`
	DisplayName string     `json:"displayName"`
	Avatar      *string    `json:"avatar,omitempty"`
	About       *string    `json:"about,omitempty"`
	IsOnline    bool       `json:"isOnline"`
	LastSeen    *time.Time `json:"lastSeen,omitempty"`
}

func (u *User) ToPublic() UserPublic {
	return UserPublic{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		Avatar:      u.Avatar,
		About:       u.About,
		IsOnline:    u.IsOnline,
		LastSeen:    u.LastSeen,
	}
}
