package protocol

import (
	"encoding/json"
	"strings"

	"github.com/chatlink/internal/apperr"
	"github.com/chatlink/internal/model"
)

// Inbound is a frame sent by the client. Only MessageFrame and ReadReceiptFrame implement it.
type Inbound interface {
	Kind() Type
	inbound()
}

// MessageDraft is the client's view of a message before it is stored.
type MessageDraft struct {
	ReceiverID  *int64            `json:"receiverId,omitempty"`
	GroupID     *int64            `json:"groupId,omitempty"`
	SenderID    *int64            `json:"senderId,omitempty"`
	Content     string            `json:"content"`
	MessageType model.MessageType `json:"messageType,omitempty"`
	FileURL     *string           `json:"fileUrl,omitempty"`
	FileType    *string           `json:"fileType,omitempty"`
	FileName    *string           `json:"fileName,omitempty"`
}

// Attachment returns the upload triple carried by the draft, or nil.
func (d MessageDraft) Attachment() *model.Attachment {
	if d.FileURL == nil || strings.TrimSpace(*d.FileURL) == "" {
		return nil
	}
	a := &model.Attachment{URL: *d.FileURL}
	if d.FileType != nil {
		a.MimeType = *d.FileType
	}
	if d.FileName != nil {
		// "+" often arrives instead of a space from form encoding.
		a.Name = strings.TrimSpace(strings.ReplaceAll(*d.FileName, "+", " "))
	}
	return a
}

type MessageFrame struct {
	Message MessageDraft `json:"message"`
}

func (MessageFrame) Kind() Type { return TypeMessage }
func (MessageFrame) inbound()   {}

// ReadReceiptFrame lists messages the client has displayed. The ids are advisory:
// the receiver marks everything from the resolved sender as read.
type ReadReceiptFrame struct {
	MessageIDs []int64 `json:"messageIds"`
	SenderID   *int64  `json:"senderId,omitempty"`
}

func (ReadReceiptFrame) Kind() Type { return TypeReadReceipt }
func (ReadReceiptFrame) inbound()   {}

type inboundEnvelope struct {
	Type       Type          `json:"type"`
	Message    *MessageDraft `json:"message"`
	MessageIDs []int64       `json:"messageIds"`
	SenderID   *int64        `json:"senderId"`
}

// Decode parses a raw client frame. Any failure is an apperr validation error.
func Decode(raw []byte) (Inbound, error) {
	var env inboundEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, apperr.Validationf("malformed frame")
	}
	switch env.Type {
	case TypeMessage:
		if env.Message == nil {
			return nil, apperr.Validationf("message frame requires a message")
		}
		d := *env.Message
		if (d.ReceiverID == nil) == (d.GroupID == nil) {
			return nil, apperr.Validationf("message requires exactly one of receiverId and groupId")
		}
		return MessageFrame{Message: d}, nil
	case TypeReadReceipt:
		if len(env.MessageIDs) == 0 && env.SenderID == nil {
			return nil, apperr.Validationf("read_receipt frame requires messageIds or senderId")
		}
		return ReadReceiptFrame{MessageIDs: env.MessageIDs, SenderID: env.SenderID}, nil
	case "":
		return nil, apperr.Validationf("frame type is required")
	default:
		return nil, apperr.Validationf("unknown frame type %q", env.Type)
	}
}

// EncodeInbound serializes a client frame with its type tag. Used by wsclient.
func EncodeInbound(in Inbound) ([]byte, error) {
	switch f := in.(type) {
	case MessageFrame:
		m := f.Message
		return json.Marshal(inboundEnvelope{Type: TypeMessage, Message: &m})
	case ReadReceiptFrame:
		return json.Marshal(struct {
			Type       Type    `json:"type"`
			MessageIDs []int64 `json:"messageIds"`
			SenderID   *int64  `json:"senderId,omitempty"`
		}{TypeReadReceipt, f.MessageIDs, f.SenderID})
	default:
		return nil, apperr.Validationf("unsupported frame %T", in)
	}
}
