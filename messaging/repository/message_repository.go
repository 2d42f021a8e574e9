package repository

import (
	"context"
	"time"

	"whatsmoney/backend/messaging/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MessageRepository is the durable message store: single source of truth
// for delivery and read state.
type MessageRepository interface {
	// Append persists a message and updates the pair's conversation
	// summary in one transaction
	Append(ctx context.Context, message *models.Message) error
	// ListBetween returns both directions of a conversation ascending by
	// (created_at, id); since, when non-nil, filters created_at > since
	ListBetween(ctx context.Context, userA, userB uint, since *time.Time) ([]models.Message, error)
	// ListAfter returns messages strictly after the (afterAt, afterID)
	// cursor, ascending. Used by delivery subscriptions.
	ListAfter(ctx context.Context, userA, userB uint, afterAt time.Time, afterID uint) ([]models.Message, error)
	// MarkRead flips is_read on a single message when actor is the
	// recipient and the message is unread. Idempotent; wrong actor or
	// already-read rows are a no-op returning false.
	MarkRead(ctx context.Context, messageID, actor uint) (bool, error)
	// MarkAllRead flips is_read on every unread message from counterpart
	// to actor, returning the number of rows changed
	MarkAllRead(ctx context.Context, actor, counterpart uint) (int64, error)
	// ListConversations returns the viewer's conversation list, most
	// recent activity first
	ListConversations(ctx context.Context, viewer uint) ([]models.Conversation, error)
}

// GormMessageRepository implements MessageRepository on gorm/postgres
type GormMessageRepository struct {
	db *gorm.DB
}

func NewGormMessageRepository(db *gorm.DB) *GormMessageRepository {
	return &GormMessageRepository{db: db}
}

func (r *GormMessageRepository) Append(ctx context.Context, message *models.Message) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if message.CreatedAt.IsZero() {
			message.CreatedAt = time.Now()
		}
		if err := tx.Create(message).Error; err != nil {
			return err
		}
		return upsertSummaryForAppend(tx, message)
	})
}

// summaryAdvances is the condition under which an inserted message carries a
// greater (created_at, id) than the pair's current summary. Concurrent
// appends can commit in the opposite of timestamp order, so last-message
// fields only move forward when it holds.
const summaryAdvances = `conversation_summaries.last_message_at IS NULL
	OR conversation_summaries.last_message_at < excluded.last_message_at
	OR (conversation_summaries.last_message_at = excluded.last_message_at
		AND conversation_summaries.last_message_id < excluded.last_message_id)`

func summaryColumn(name string) clause.Expr {
	return gorm.Expr("CASE WHEN " + summaryAdvances + " THEN excluded." + name +
		" ELSE conversation_summaries." + name + " END")
}

// upsertSummaryForAppend folds a freshly inserted message into the pair's
// summary row: last-message fields advance when the new row is the greatest
// (created_at, id), and the recipient side's unread counter increments
// unconditionally.
func upsertSummaryForAppend(tx *gorm.DB, message *models.Message) error {
	low, high := models.PairKey(message.SenderID, message.RecipientID)

	var unreadLow, unreadHigh uint
	if message.RecipientID == low {
		unreadLow = 1
	} else {
		unreadHigh = 1
	}

	createdAt := message.CreatedAt
	summary := models.ConversationSummary{
		UserLowID:       low,
		UserHighID:      high,
		LastMessageID:   message.ID,
		LastMessage:     message.Content,
		LastMessageType: message.MessageType,
		LastMessageAt:   &createdAt,
		UnreadForLow:    unreadLow,
		UnreadForHigh:   unreadHigh,
	}

	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_low_id"}, {Name: "user_high_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"last_message_id":   summaryColumn("last_message_id"),
			"last_message":      summaryColumn("last_message"),
			"last_message_type": summaryColumn("last_message_type"),
			"last_message_at":   summaryColumn("last_message_at"),
			"unread_for_low":    gorm.Expr("conversation_summaries.unread_for_low + ?", unreadLow),
			"unread_for_high":   gorm.Expr("conversation_summaries.unread_for_high + ?", unreadHigh),
			"updated_at":        time.Now(),
		}),
	}).Create(&summary).Error
}

func (r *GormMessageRepository) ListBetween(ctx context.Context, userA, userB uint, since *time.Time) ([]models.Message, error) {
	query := r.db.WithContext(ctx).
		Where("(sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?)",
			userA, userB, userB, userA)
	if since != nil {
		query = query.Where("created_at > ?", *since)
	}

	var messages []models.Message
	err := query.Order("created_at ASC, id ASC").Find(&messages).Error
	return messages, err
}

func (r *GormMessageRepository) ListAfter(ctx context.Context, userA, userB uint, afterAt time.Time, afterID uint) ([]models.Message, error) {
	var messages []models.Message
	err := r.db.WithContext(ctx).
		Where("(sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?)",
			userA, userB, userB, userA).
		Where("created_at > ? OR (created_at = ? AND id > ?)", afterAt, afterAt, afterID).
		Order("created_at ASC, id ASC").
		Find(&messages).Error
	return messages, err
}

func (r *GormMessageRepository) MarkRead(ctx context.Context, messageID, actor uint) (bool, error) {
	changed := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Message{}).
			Where("id = ? AND recipient_id = ? AND is_read = ?", messageID, actor, false).
			Update("is_read", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		changed = true

		var message models.Message
		if err := tx.First(&message, messageID).Error; err != nil {
			return err
		}
		return decrementUnread(tx, message.SenderID, message.RecipientID, actor, 1)
	})
	return changed, err
}

func (r *GormMessageRepository) MarkAllRead(ctx context.Context, actor, counterpart uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Message{}).
			Where("recipient_id = ? AND sender_id = ? AND is_read = ?", actor, counterpart, false).
			Update("is_read", true)
		if res.Error != nil {
			return res.Error
		}
		count = res.RowsAffected
		if count == 0 {
			return nil
		}
		return decrementUnread(tx, counterpart, actor, actor, count)
	})
	return count, err
}

// decrementUnread lowers the actor-side unread counter, clamped at zero
func decrementUnread(tx *gorm.DB, sender, recipient, actor uint, by int64) error {
	low, high := models.PairKey(sender, recipient)

	column := "unread_for_high"
	if actor == low {
		column = "unread_for_low"
	}

	return tx.Model(&models.ConversationSummary{}).
		Where("user_low_id = ? AND user_high_id = ?", low, high).
		UpdateColumn(column, gorm.Expr("GREATEST("+column+" - ?, 0)", by)).Error
}

func (r *GormMessageRepository) ListConversations(ctx context.Context, viewer uint) ([]models.Conversation, error) {
	var conversations []models.Conversation
	err := r.db.WithContext(ctx).
		Table("conversation_summaries AS cs").
		Select(`CASE WHEN cs.user_low_id = ? THEN cs.user_high_id ELSE cs.user_low_id END AS user_id,
			u.name AS user_name,
			u.avatar_url AS user_avatar,
			u.role AS user_role,
			cs.last_message,
			cs.last_message_at AS last_message_time,
			CASE WHEN cs.user_low_id = ? THEN cs.unread_for_low ELSE cs.unread_for_high END AS unread_count`,
			viewer, viewer).
		Joins("JOIN users u ON u.id = CASE WHEN cs.user_low_id = ? THEN cs.user_high_id ELSE cs.user_low_id END", viewer).
		Where("cs.user_low_id = ? OR cs.user_high_id = ?", viewer, viewer).
		Order("cs.last_message_at DESC NULLS LAST").
		Scan(&conversations).Error
	return conversations, err
}

// RebuildSummaries recomputes conversation_summaries from the messages
// table. Operational repair path: used after a manual import or if a bug
// ever lets counters drift from the append-only log.
func (r *GormMessageRepository) RebuildSummaries(ctx context.Context) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).
			Delete(&models.ConversationSummary{}).Error; err != nil {
			return err
		}

		var messages []models.Message
		if err := tx.Order("created_at ASC, id ASC").Find(&messages).Error; err != nil {
			return err
		}

		type pair struct{ low, high uint }
		summaries := make(map[pair]*models.ConversationSummary)
		for i := range messages {
			m := &messages[i]
			low, high := models.PairKey(m.SenderID, m.RecipientID)
			key := pair{low, high}
			s, ok := summaries[key]
			if !ok {
				s = &models.ConversationSummary{UserLowID: low, UserHighID: high}
				summaries[key] = s
			}
			createdAt := m.CreatedAt
			s.LastMessageID = m.ID
			s.LastMessage = m.Content
			s.LastMessageType = m.MessageType
			s.LastMessageAt = &createdAt
			if !m.IsRead {
				if m.RecipientID == low {
					s.UnreadForLow++
				} else {
					s.UnreadForHigh++
				}
			}
		}

		for _, s := range summaries {
			if err := tx.Create(s).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
