package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatlink/internal/apperr"
	"github.com/chatlink/internal/model"
)

func TestDecodeMessageFrame(t *testing.T) {
	in, err := Decode([]byte(`{"type":"message","message":{"receiverId":2,"content":"hi","fileUrl":"/api/files/a.png","fileType":"image/png","fileName":"my+cat.png"}}`))
	require.NoError(t, err)

	f, ok := in.(MessageFrame)
	require.True(t, ok)
	assert.Equal(t, TypeMessage, f.Kind())
	require.NotNil(t, f.Message.ReceiverID)
	assert.Equal(t, int64(2), *f.Message.ReceiverID)
	assert.Nil(t, f.Message.GroupID)

	a := f.Message.Attachment()
	require.NotNil(t, a)
	assert.Equal(t, "/api/files/a.png", a.URL)
	assert.Equal(t, "image/png", a.MimeType)
	assert.Equal(t, "my cat.png", a.Name)
}

func TestDecodeReadReceipt(t *testing.T) {
	in, err := Decode([]byte(`{"type":"read_receipt","messageIds":[4,5]}`))
	require.NoError(t, err)
	f := in.(ReadReceiptFrame)
	assert.Equal(t, []int64{4, 5}, f.MessageIDs)
	assert.Nil(t, f.SenderID)
}

func TestDecodeRejects(t *testing.T) {
	cases := map[string]string{
		"malformed":     `{"type":`,
		"no type":       `{"message":{"receiverId":1}}`,
		"unknown":       `{"type":"typing"}`,
		"no payload":    `{"type":"message"}`,
		"both targets":  `{"type":"message","message":{"receiverId":1,"groupId":2,"content":"x"}}`,
		"no target":     `{"type":"message","message":{"content":"x"}}`,
		"empty receipt": `{"type":"read_receipt","messageIds":[]}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(raw))
			require.Error(t, err)
			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
		})
	}
}

func TestEncodeIsFlat(t *testing.T) {
	raw, err := Encode(GroupMembershipChange{GroupID: 7, UserID: 2, Action: ActionRoleChanged, ByUserID: 1, NewRole: model.RoleAdmin})
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "group_membership_change", got["type"])
	assert.EqualValues(t, 7, got["groupId"])
	assert.Equal(t, "role_changed", got["action"])
	assert.Equal(t, "admin", got["newRole"])

	raw, err = Encode(GroupMembershipChange{GroupID: 7, UserID: 2, Action: ActionRemoved, ByUserID: 1})
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "newRole")
}

func TestDecodeFrameRoundTrip(t *testing.T) {
	raw, err := Encode(Status{UserID: 3, IsOnline: true})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"status","userId":3,"isOnline":true}`, string(raw))

	f, err := DecodeFrame(raw)
	require.NoError(t, err)
	assert.Equal(t, Status{UserID: 3, IsOnline: true}, f)

	_, err = DecodeFrame([]byte(`{"type":"nope"}`))
	assert.Error(t, err)
}

func TestEncodeInbound(t *testing.T) {
	gid := int64(9)
	raw, err := EncodeInbound(MessageFrame{Message: MessageDraft{GroupID: &gid, Content: "hello"}})
	require.NoError(t, err)

	in, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, "hello", in.(MessageFrame).Message.Content)
	assert.Equal(t, gid, *in.(MessageFrame).Message.GroupID)
}
