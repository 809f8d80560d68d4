package model

import "time"

type GroupRole string

const (
	RoleMember GroupRole = "member"
	RoleAdmin  GroupRole = "admin"
	RoleOwner  GroupRole = "owner"
)

// Elevated: admin и owner имеют одинаковые права управления группой.
func (r GroupRole) Elevated() bool {
	return r == RoleAdmin || r == RoleOwner
}

// Assignable: роли, которые можно выставить через смену роли (owner только при создании).
func (r GroupRole) Assignable() bool {
	return r == RoleAdmin || r == RoleMember
}

type Group struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	Avatar      *string   `json:"avatar"`
	CreatorID   int64     `json:"creatorId"`
	CreatedAt   time.Time `json:"createdAt"`
}

type GroupMember struct {
	ID       int64       `json:"id"`
	GroupID  int64       `json:"groupId"`
	UserID   int64       `json:"userId"`
	Role     GroupRole   `json:"role"`
	JoinedAt time.Time   `json:"joinedAt"`
	User     *UserPublic `json:"user,omitempty"`
}

type InviteStatus string

const (
	InvitePending  InviteStatus = "pending"
	InviteAccepted InviteStatus = "accepted"
	InviteRejected InviteStatus = "rejected"
)

type GroupInvite struct {
	ID        int64        `json:"id"`
	GroupID   int64        `json:"groupId"`
	InviterID int64        `json:"inviterId"`
	InviteeID int64        `json:"inviteeId"`
	Status    InviteStatus `json:"status"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
	Group     *Group       `json:"group,omitempty"`
	Inviter   *UserPublic  `json:"inviter,omitempty"`
}
