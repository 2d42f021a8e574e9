package models

import (
	"time"
)

// PairKey returns the canonical (low, high) ordering of a user pair.
// Conversation summaries are keyed this way so both directions of a
// conversation share one row.
func PairKey(a, b uint) (low, high uint) {
	if a < b {
		return a, b
	}
	return b, a
}

// ConversationSummary is the materialized per-pair aggregate, updated in
// the same transaction as every append and read-state change. It replaces
// recomputing last-message and unread counts from the messages table on
// every conversation-list read.
type ConversationSummary struct {
	ID              uint        `json:"id" gorm:"primaryKey"`
	UserLowID       uint        `json:"user_low_id" gorm:"uniqueIndex:uk_conversation_pair;not null"`
	UserHighID      uint        `json:"user_high_id" gorm:"uniqueIndex:uk_conversation_pair;not null"`
	LastMessageID   uint        `json:"last_message_id"`
	LastMessage     string      `json:"last_message"`
	LastMessageType MessageType `json:"last_message_type" gorm:"type:varchar(16)"`
	LastMessageAt   *time.Time  `json:"last_message_at" gorm:"index"`
	UnreadForLow    uint        `json:"unread_for_low" gorm:"default:0"`
	UnreadForHigh   uint        `json:"unread_for_high" gorm:"default:0"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// UnreadFor returns the unread count for the given side of the pair
func (s *ConversationSummary) UnreadFor(viewer uint) uint {
	if viewer == s.UserLowID {
		return s.UnreadForLow
	}
	return s.UnreadForHigh
}

// CounterpartOf returns the other member of the pair
func (s *ConversationSummary) CounterpartOf(viewer uint) uint {
	if viewer == s.UserLowID {
		return s.UserHighID
	}
	return s.UserLowID
}

// Conversation is the per-viewer projection returned to clients
type Conversation struct {
	UserID          uint       `json:"user_id"`
	UserName        string     `json:"user_name"`
	UserAvatar      string     `json:"user_avatar"`
	UserRole        string     `json:"user_role"`
	LastMessage     string     `json:"last_message"`
	LastMessageTime *time.Time `json:"last_message_time"`
	UnreadCount     uint       `json:"unread_count"`
}
