package models

import (
	"strings"
	"time"
)

// MessageType classifies a message by its payload.
type MessageType string

const (
	TextMessage   MessageType = "text"
	ImageMessage  MessageType = "image"
	FileMessage   MessageType = "file"
	SystemMessage MessageType = "system"
)

// MessageStatus is the delivery state of a message.
type MessageStatus string

const (
	MessageSent      MessageStatus = "sent"
	MessageDelivered MessageStatus = "delivered"
	MessageRead      MessageStatus = "read"
	MessageFailed    MessageStatus = "failed" // audit record for a rejected send
)

// MaxContentLength is the maximum length of a message body in characters.
const MaxContentLength = 10000

// Attachment holds metadata for a stored upload. Embedded into a message
// with an attachment_ column prefix; Name being empty means no attachment.
type Attachment struct {
	Name     string `gorm:"type:varchar(255)" json:"name,omitempty"`
	URL      string `gorm:"type:varchar(255)" json:"url,omitempty"`
	MimeType string `gorm:"type:varchar(100)" json:"mimeType,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// Present reports whether an attachment was actually stored.
func (a Attachment) Present() bool {
	return a.Name != "" || a.URL != ""
}

// TypeFor derives the message type from the attachment's mime type.
func (a Attachment) TypeFor() MessageType {
	if !a.Present() {
		return TextMessage
	}
	if strings.HasPrefix(a.MimeType, "image/") {
		return ImageMessage
	}
	return FileMessage
}

// Message represents a single message inside a conversation. A message is
// never hard-deleted; per-user removal goes through MessageDeletion.
type Message struct {
	BaseModel
	ConversationID uint          `gorm:"index;not null" json:"conversationId"`
	SenderID       uint          `gorm:"index;not null" json:"senderId"`
	Type           MessageType   `gorm:"type:varchar(20);not null;default:'text'" json:"type"`
	Status         MessageStatus `gorm:"type:varchar(20);not null;default:'sent'" json:"status"`
	Content        string        `gorm:"type:text" json:"content"`
	Attachment     Attachment    `gorm:"embedded;embeddedPrefix:attachment_" json:"attachment,omitempty"`
	SentAt         time.Time     `gorm:"not null;index" json:"sentAt"`
	ReadAt         *time.Time    `json:"readAt,omitempty"`

	Sender       User         `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
	Conversation Conversation `gorm:"foreignKey:ConversationID" json:"-"`
	Deletions    []MessageDeletion `gorm:"foreignKey:MessageID" json:"-"`
}

// TableName specifies the table name for the Message model.
func (Message) TableName() string {
	return "messages"
}

// Snippet returns a short preview of the message for inbox rendering.
// Attachment messages render as a bracketed placeholder.
func (m *Message) Snippet(max int) string {
	text := m.Content
	if text == "" && m.Attachment.Present() {
		label := "File"
		if m.Type == ImageMessage {
			label = "Image"
		}
		text = "[" + label + ": " + m.Attachment.Name + "]"
	}
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "..."
}

// MessageDeletion records that a user removed a message from their own view.
// The message row itself stays intact for the other participants.
type MessageDeletion struct {
	MessageID uint      `gorm:"primaryKey;autoIncrement:false" json:"messageId"`
	UserID    uint      `gorm:"primaryKey;autoIncrement:false" json:"userId"`
	DeletedAt time.Time `gorm:"not null" json:"deletedAt"`
}

// TableName specifies the table name for the MessageDeletion model.
func (MessageDeletion) TableName() string {
	return "message_deletions"
}
