package models

import (
	"time"
)

// MessageType discriminates the message payload kind
type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
	MessageTypeFile  MessageType = "file"
)

// Valid reports whether t is a known message type
func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeFile:
		return true
	}
	return false
}

// Message is a directed chat message between two users. Rows are immutable
// after creation except IsRead, which only transitions false to true and
// only at the hand of the recipient. Ordering key is (CreatedAt, ID).
type Message struct {
	ID          uint        `json:"id" gorm:"primaryKey"`
	SenderID    uint        `json:"sender_id" gorm:"index:idx_messages_sender_recipient;not null"`
	RecipientID uint        `json:"recipient_id" gorm:"index:idx_messages_sender_recipient;index:idx_messages_recipient_unread;not null"`
	Content     string      `json:"content"`
	MessageType MessageType `json:"message_type" gorm:"type:varchar(16);default:text"`
	FileURL     string      `json:"file_url,omitempty"`
	IsRead      bool        `json:"is_read" gorm:"default:false;index:idx_messages_recipient_unread"`
	CreatedAt   time.Time   `json:"created_at" gorm:"index"`
}

// Between reports whether the message belongs to the conversation of the
// given pair, in either direction
func (m *Message) Between(a, b uint) bool {
	return (m.SenderID == a && m.RecipientID == b) ||
		(m.SenderID == b && m.RecipientID == a)
}
