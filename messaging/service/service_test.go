package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"whatsmoney/backend/messaging/models"
)

// fakeRepo is an in-memory MessageRepository with the same ordering and
// read-state semantics as the gorm implementation.
type fakeRepo struct {
	mu        sync.Mutex
	messages  []models.Message
	nextID    uint
	appendErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{nextID: 1}
}

func (f *fakeRepo) Append(ctx context.Context, message *models.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	message.ID = f.nextID
	f.nextID++
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now()
	}
	f.messages = append(f.messages, *message)
	return nil
}

func (f *fakeRepo) ListBetween(ctx context.Context, userA, userB uint, since *time.Time) ([]models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Message
	for _, m := range f.messages {
		if !m.Between(userA, userB) {
			continue
		}
		if since != nil && !m.CreatedAt.After(*since) {
			continue
		}
		out = append(out, m)
	}
	sortMessages(out)
	return out, nil
}

func (f *fakeRepo) ListAfter(ctx context.Context, userA, userB uint, afterAt time.Time, afterID uint) ([]models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Message
	for _, m := range f.messages {
		if !m.Between(userA, userB) {
			continue
		}
		if m.CreatedAt.After(afterAt) || (m.CreatedAt.Equal(afterAt) && m.ID > afterID) {
			out = append(out, m)
		}
	}
	sortMessages(out)
	return out, nil
}

func (f *fakeRepo) MarkRead(ctx context.Context, messageID, actor uint) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.messages {
		m := &f.messages[i]
		if m.ID == messageID && m.RecipientID == actor && !m.IsRead {
			m.IsRead = true
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRepo) MarkAllRead(ctx context.Context, actor, counterpart uint) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for i := range f.messages {
		m := &f.messages[i]
		if m.RecipientID == actor && m.SenderID == counterpart && !m.IsRead {
			m.IsRead = true
			count++
		}
	}
	return count, nil
}

func (f *fakeRepo) ListConversations(ctx context.Context, viewer uint) ([]models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	type agg struct {
		last   models.Message
		unread uint
	}
	byCounterpart := make(map[uint]*agg)
	for _, m := range f.messages {
		var counterpart uint
		switch viewer {
		case m.SenderID:
			counterpart = m.RecipientID
		case m.RecipientID:
			counterpart = m.SenderID
		default:
			continue
		}
		a, ok := byCounterpart[counterpart]
		if !ok {
			a = &agg{}
			byCounterpart[counterpart] = a
		}
		if m.CreatedAt.After(a.last.CreatedAt) ||
			(m.CreatedAt.Equal(a.last.CreatedAt) && m.ID > a.last.ID) {
			a.last = m
		}
		if m.RecipientID == viewer && !m.IsRead {
			a.unread++
		}
	}

	var out []models.Conversation
	for counterpart, a := range byCounterpart {
		lastAt := a.last.CreatedAt
		out = append(out, models.Conversation{
			UserID:          counterpart,
			LastMessage:     a.last.Content,
			LastMessageTime: &lastAt,
			UnreadCount:     a.unread,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastMessageTime.After(*out[j].LastMessageTime)
	})
	return out, nil
}

func (f *fakeRepo) lookup(id uint) (models.Message, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.messages {
		if m.ID == id {
			return m, true
		}
	}
	return models.Message{}, false
}

func sortMessages(messages []models.Message) {
	sort.Slice(messages, func(i, j int) bool {
		if messages[i].CreatedAt.Equal(messages[j].CreatedAt) {
			return messages[i].ID < messages[j].ID
		}
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})
}

// fakeDirectory answers active-status lookups from a fixed set
type fakeDirectory struct {
	active   map[uint]bool
	failWith error
}

func (d *fakeDirectory) IsActive(ctx context.Context, id uint) (bool, error) {
	if d.failWith != nil {
		return false, d.failWith
	}
	return d.active[id], nil
}

// capturePublisher records published messages
type capturePublisher struct {
	mu        sync.Mutex
	published []models.Message
}

func (p *capturePublisher) Publish(message models.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, message)
}

func (p *capturePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}
