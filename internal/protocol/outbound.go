package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/chatlink/internal/model"
)

// Frame is an event pushed to a client.
type Frame interface {
	FrameType() Type
}

type Message struct {
	Message *model.Message `json:"message"`
}

type Status struct {
	UserID   int64 `json:"userId"`
	IsOnline bool  `json:"isOnline"`
}

type FriendRequest struct {
	Request *model.FriendRequest `json:"request"`
}

type FriendRequestResponse struct {
	RequestID int64                     `json:"requestId"`
	Status    model.FriendRequestStatus `json:"status"`
}

type MembershipAction string

const (
	ActionAdded       MembershipAction = "added"
	ActionRemoved     MembershipAction = "removed"
	ActionRoleChanged MembershipAction = "role_changed"
)

type GroupMembershipChange struct {
	GroupID  int64            `json:"groupId"`
	UserID   int64            `json:"userId"`
	Action   MembershipAction `json:"action"`
	ByUserID int64            `json:"byUserId"`
	NewRole  model.GroupRole  `json:"newRole,omitempty"`
}

type GroupUpdated struct {
	Group *model.Group `json:"group"`
}

type GroupDeleted struct {
	GroupID int64 `json:"groupId"`
}

type GroupInvite struct {
	Invite *model.GroupInvite `json:"invite"`
}

type Error struct {
	Message string `json:"message"`
}

func (Message) FrameType() Type               { return TypeMessage }
func (Status) FrameType() Type                { return TypeStatus }
func (FriendRequest) FrameType() Type         { return TypeFriendRequest }
func (FriendRequestResponse) FrameType() Type { return TypeFriendRequestResponse }
func (GroupMembershipChange) FrameType() Type { return TypeGroupMembershipChange }
func (GroupUpdated) FrameType() Type          { return TypeGroupUpdated }
func (GroupDeleted) FrameType() Type          { return TypeGroupDeleted }
func (GroupInvite) FrameType() Type           { return TypeGroupInvite }
func (Error) FrameType() Type                 { return TypeError }

// EncodeTo writes f as a flat JSON object with a leading "type" field.
func EncodeTo(buf *bytes.Buffer, f Frame) error {
	body, err := json.Marshal(f)
	if err != nil {
		return err
	}
	if len(body) < 2 || body[0] != '{' {
		return fmt.Errorf("protocol: frame %T is not a JSON object", f)
	}
	tag, err := json.Marshal(f.FrameType())
	if err != nil {
		return err
	}
	buf.WriteString(`{"type":`)
	buf.Write(tag)
	if len(body) > 2 {
		buf.WriteByte(',')
	}
	buf.Write(body[1:])
	return nil
}

func Encode(f Frame) ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodeTo(&buf, f); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeFrame parses a server event. Unknown types are reported as errors.
func DecodeFrame(raw []byte) (Frame, error) {
	var env struct {
		Type Type `json:"type"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("protocol: decode frame: %w", err)
	}
	var f Frame
	switch env.Type {
	case TypeMessage:
		f = &Message{}
	case TypeStatus:
		f = &Status{}
	case TypeFriendRequest:
		f = &FriendRequest{}
	case TypeFriendRequestResponse:
		f = &FriendRequestResponse{}
	case TypeGroupMembershipChange:
		f = &GroupMembershipChange{}
	case TypeGroupUpdated:
		f = &GroupUpdated{}
	case TypeGroupDeleted:
		f = &GroupDeleted{}
	case TypeGroupInvite:
		f = &GroupInvite{}
	case TypeError:
		f = &Error{}
	default:
		return nil, fmt.Errorf("protocol: unknown frame type %q", env.Type)
	}
	if err := json.Unmarshal(raw, f); err != nil {
		return nil, fmt.Errorf("protocol: decode %s: %w", env.Type, err)
	}
	return deref(f), nil
}

func deref(f Frame) Frame {
	switch v := f.(type) {
	case *Message:
		return *v
	case *Status:
		return *v
	case *FriendRequest:
		return *v
	case *FriendRequestResponse:
		return *v
	case *GroupMembershipChange:
		return *v
	case *GroupUpdated:
		return *v
	case *GroupDeleted:
		return *v
	case *GroupInvite:
		return *v
	case *Error:
		return *v
	}
	return f
}
