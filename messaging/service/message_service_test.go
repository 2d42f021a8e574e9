package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"whatsmoney/backend/messaging/models"
	apperrors "whatsmoney/backend/pkg/errors"
	"whatsmoney/backend/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(repo *fakeRepo, dir *fakeDirectory, pub Publisher) *MessageService {
	log := logger.New(logger.Config{Level: "error"})
	return NewMessageService(repo, dir, pub, log)
}

func activeUsers(ids ...uint) *fakeDirectory {
	d := &fakeDirectory{active: make(map[uint]bool)}
	for _, id := range ids {
		d.active[id] = true
	}
	return d
}

func TestSendAndHistoryRoundTrip(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, activeUsers(1, 2), nil)

	sent, err := svc.Send(context.Background(), SendRequest{
		Sender:    1,
		Recipient: 2,
		Content:   "oi",
	})
	require.NoError(t, err)
	require.NotZero(t, sent.ID)
	assert.Equal(t, models.MessageTypeText, sent.MessageType)
	assert.False(t, sent.IsRead)

	messages, err := svc.History(context.Background(), 1, 2, nil)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "oi", messages[0].Content)
	assert.Equal(t, uint(1), messages[0].SenderID)
	assert.Equal(t, uint(2), messages[0].RecipientID)
	assert.False(t, messages[0].IsRead)
}

func TestSendValidation(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, activeUsers(1, 2), nil)

	cases := []struct {
		name string
		req  SendRequest
	}{
		{"missing recipient", SendRequest{Sender: 1, Content: "hi"}},
		{"self message", SendRequest{Sender: 1, Recipient: 1, Content: "hi"}},
		{"empty text content", SendRequest{Sender: 1, Recipient: 2, Content: "   "}},
		{"unknown type", SendRequest{Sender: 1, Recipient: 2, Content: "hi", MessageType: "video"}},
		{"image without file url", SendRequest{Sender: 1, Recipient: 2, Content: "pic", MessageType: models.MessageTypeImage}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Send(context.Background(), tc.req)
			require.Error(t, err)
			assert.True(t, apperrors.IsValidation(err))
		})
	}

	// Nothing was written
	messages, err := svc.History(context.Background(), 1, 2, nil)
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestSendFileMessage(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, activeUsers(1, 2), nil)

	sent, err := svc.Send(context.Background(), SendRequest{
		Sender:      1,
		Recipient:   2,
		Content:     "contract.pdf",
		MessageType: models.MessageTypeFile,
		FileURL:     "https://files.example.com/contract.pdf",
	})
	require.NoError(t, err)
	assert.Equal(t, models.MessageTypeFile, sent.MessageType)
	assert.Equal(t, "https://files.example.com/contract.pdf", sent.FileURL)
}

func TestSendToMissingOrInactiveRecipient(t *testing.T) {
	repo := newFakeRepo()
	dir := activeUsers(1)
	dir.active[3] = false // exists but suspended
	svc := newTestService(repo, dir, nil)

	for _, recipient := range []uint{3, 99} {
		_, err := svc.Send(context.Background(), SendRequest{
			Sender:    1,
			Recipient: recipient,
			Content:   "hello",
		})
		require.Error(t, err)
		assert.True(t, apperrors.IsNotFound(err))
	}
}

func TestSendDirectoryOutage(t *testing.T) {
	repo := newFakeRepo()
	dir := &fakeDirectory{failWith: errors.New("connection refused")}
	svc := newTestService(repo, dir, nil)

	_, err := svc.Send(context.Background(), SendRequest{Sender: 1, Recipient: 2, Content: "hi"})
	require.Error(t, err)
	assert.True(t, apperrors.IsStoreUnavailable(err))
}

func TestSendPublishesStoredMessage(t *testing.T) {
	repo := newFakeRepo()
	pub := &capturePublisher{}
	svc := newTestService(repo, activeUsers(1, 2), pub)

	sent, err := svc.Send(context.Background(), SendRequest{Sender: 1, Recipient: 2, Content: "oi"})
	require.NoError(t, err)

	require.Equal(t, 1, pub.count())
	assert.Equal(t, sent.ID, pub.published[0].ID)
	assert.Equal(t, "oi", pub.published[0].Content)
}

func TestHistorySinceFilter(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, activeUsers(1, 2), nil)

	base := time.Now()
	seed(t, repo, 1, 2, "first", base)
	seed(t, repo, 2, 1, "second", base.Add(time.Second))

	since := base.Add(500 * time.Millisecond)
	messages, err := svc.History(context.Background(), 1, 2, &since)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "second", messages[0].Content)
}

func TestConversationOrdering(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, activeUsers(1, 2, 3), nil)

	// viewer=1 exchanges with A=2 at T1 and T2, with B=3 at T3, T1 < T3 < T2
	base := time.Now()
	seed(t, repo, 2, 1, "a-first", base)                    // T1
	seed(t, repo, 3, 1, "b-only", base.Add(1*time.Second))  // T3
	seed(t, repo, 2, 1, "a-last", base.Add(2*time.Second))  // T2

	conversations, err := svc.Conversations(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, conversations, 2)

	assert.Equal(t, uint(2), conversations[0].UserID)
	assert.Equal(t, "a-last", conversations[0].LastMessage)
	assert.Equal(t, uint(3), conversations[1].UserID)
	assert.Equal(t, "b-only", conversations[1].LastMessage)
}

func TestUnreadLifecycle(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, activeUsers(1, 2), nil)
	tracker := NewReadTracker(repo)

	// U1 sends "oi" to U2
	_, err := svc.Send(context.Background(), SendRequest{Sender: 1, Recipient: 2, Content: "oi"})
	require.NoError(t, err)

	conversations, err := svc.Conversations(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, conversations, 1)
	assert.Equal(t, uint(1), conversations[0].UnreadCount)
	assert.Equal(t, "oi", conversations[0].LastMessage)

	count, err := tracker.AcknowledgeAll(context.Background(), 2, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	conversations, err = svc.Conversations(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, conversations, 1)
	assert.Equal(t, uint(0), conversations[0].UnreadCount)
	assert.Equal(t, "oi", conversations[0].LastMessage)
}

func seed(t *testing.T, repo *fakeRepo, sender, recipient uint, content string, at time.Time) models.Message {
	t.Helper()
	message := &models.Message{
		SenderID:    sender,
		RecipientID: recipient,
		Content:     content,
		MessageType: models.MessageTypeText,
		CreatedAt:   at,
	}
	require.NoError(t, repo.Append(context.Background(), message))
	return *message
}
