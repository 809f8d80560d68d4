// Package protocol defines the JSON frames exchanged over the realtime connection.
//
// Inbound frames form a closed set decoded by Decode. Outbound frames are plain
// structs; the "type" tag is added by Encode from Frame.FrameType.
package protocol

type Type string

const (
	TypeMessage     Type = "message"
	TypeReadReceipt Type = "read_receipt"

	TypeStatus                Type = "status"
	TypeFriendRequest         Type = "friend_request"
	TypeFriendRequestResponse Type = "friend_request_response"
	TypeGroupMembershipChange Type = "group_membership_change"
	TypeGroupUpdated          Type = "group_updated"
	TypeGroupDeleted          Type = "group_deleted"
	TypeGroupInvite           Type = "group_invite"
	TypeError                 Type = "error"
)
