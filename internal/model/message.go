package model

import "time"

type MessageType string

const (
	MessageTypeDirect MessageType = "direct"
	MessageTypeGroup  MessageType = "group"
	MessageTypeFile   MessageType = "file"
	MessageTypeText   MessageType = "text"
)

// Message: ровно одно из ReceiverID / GroupID задано.
type Message struct {
	ID          int64       `json:"id"`
	SenderID    int64       `json:"senderId"`
	ReceiverID  *int64      `json:"receiverId"`
	GroupID     *int64      `json:"groupId"`
	Content     string      `json:"content"`
	CreatedAt   time.Time   `json:"createdAt"`
	Read        bool        `json:"read"`
	MessageType MessageType `json:"messageType"`
	FileURL     *string     `json:"fileUrl,omitempty"`
	FileType    *string     `json:"fileType,omitempty"`
	FileName    *string     `json:"fileName,omitempty"`
}

func (m *Message) IsGroup() bool { return m.GroupID != nil }

// Attachment: тройка, которую возвращает загрузчик файлов. Сам blob сюда не попадает.
type Attachment struct {
	URL      string `json:"url"`
	MimeType string `json:"mimeType"`
	Name     string `json:"originalName"`
}

// Apply копирует вложение в сообщение и переключает тип на file.
func (a *Attachment) Apply(m *Message) {
	if a == nil || a.URL == "" {
		return
	}
	url, mime, name := a.URL, a.MimeType, a.Name
	m.FileURL = &url
	m.FileType = &mime
	m.FileName = &name
	m.MessageType = MessageTypeFile
}
