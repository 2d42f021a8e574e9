package delivery

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"whatsmoney/backend/messaging/bus"
	"whatsmoney/backend/messaging/models"
	apperrors "whatsmoney/backend/pkg/errors"
	"whatsmoney/backend/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory read model for the polling path with
// injectable failures
type fakeStore struct {
	mu       sync.Mutex
	messages []models.Message
	nextID   uint
	failures int
	queries  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{nextID: 1}
}

func (s *fakeStore) add(sender, recipient uint, content string, at time.Time) models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := models.Message{
		ID:          s.nextID,
		SenderID:    sender,
		RecipientID: recipient,
		Content:     content,
		MessageType: models.MessageTypeText,
		CreatedAt:   at,
	}
	s.nextID++
	s.messages = append(s.messages, m)
	return m
}

func (s *fakeStore) failNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = n
}

func (s *fakeStore) queryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queries
}

func (s *fakeStore) ListAfter(ctx context.Context, userA, userB uint, afterAt time.Time, afterID uint) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries++
	if s.failures > 0 {
		s.failures--
		return nil, errors.New("store temporarily unavailable")
	}
	var out []models.Message
	for _, m := range s.messages {
		if !m.Between(userA, userB) {
			continue
		}
		if m.CreatedAt.After(afterAt) || (m.CreatedAt.Equal(afterAt) && m.ID > afterID) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// eventSink collects delivered events
type eventSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *eventSink) record(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *eventSink) snapshot() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

func (s *eventSink) messageContents() []string {
	var out []string
	for _, ev := range s.snapshot() {
		if ev.Type == EventMessage {
			out = append(out, ev.Message.Content)
		}
	}
	return out
}

func newTestChannel(store Store, wakeups Wakeups, interval time.Duration) *Channel {
	log := logger.New(logger.Config{Level: "error"})
	return NewChannel(store, wakeups, log, WithPollInterval(interval))
}

func TestSubscribeEmitsConnectedFirst(t *testing.T) {
	store := newFakeStore()
	b := bus.New(4)
	channel := newTestChannel(store, b, 10*time.Millisecond)
	sink := &eventSink{}

	stop, err := channel.Subscribe(context.Background(), 1, 2, sink.record)
	require.NoError(t, err)
	defer stop()

	require.Eventually(t, func() bool {
		return len(sink.snapshot()) >= 1
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, EventConnected, sink.snapshot()[0].Type)
}

func TestSubscribeRejectsInvalidPairs(t *testing.T) {
	store := newFakeStore()
	b := bus.New(4)
	channel := newTestChannel(store, b, 10*time.Millisecond)

	_, err := channel.Subscribe(context.Background(), 1, 1, func(Event) {})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))

	_, err = channel.Subscribe(context.Background(), 1, 2, nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
}

func TestBusDeliveryWithinInterval(t *testing.T) {
	store := newFakeStore()
	b := bus.New(4)
	// Long poll interval: only the bus path can deliver in time
	channel := newTestChannel(store, b, time.Hour)
	sink := &eventSink{}

	stop, err := channel.Subscribe(context.Background(), 1, 2, sink.record)
	require.NoError(t, err)
	defer stop()

	m := store.add(1, 2, "oi", time.Now())
	b.Publish(m)

	require.Eventually(t, func() bool {
		contents := sink.messageContents()
		return len(contents) == 1 && contents[0] == "oi"
	}, time.Second, 5*time.Millisecond)
}

func TestPollDeliversBacklogInOrder(t *testing.T) {
	store := newFakeStore()
	b := bus.New(4)
	channel := newTestChannel(store, b, 10*time.Millisecond)
	sink := &eventSink{}

	stop, err := channel.Subscribe(context.Background(), 1, 2, sink.record)
	require.NoError(t, err)
	defer stop()

	// Two messages land inside one tick window; both must be delivered,
	// oldest first, never only the newest
	now := time.Now()
	store.add(1, 2, "first", now.Add(time.Millisecond))
	store.add(2, 1, "second", now.Add(2*time.Millisecond))

	require.Eventually(t, func() bool {
		return len(sink.messageContents()) == 2
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, []string{"first", "second"}, sink.messageContents())
}

func TestReversedPublishOrderDeliversAll(t *testing.T) {
	store := newFakeStore()
	b := bus.New(4)
	// Long poll interval: only bus wakeups can trigger delivery in time
	channel := newTestChannel(store, b, time.Hour)
	sink := &eventSink{}

	stop, err := channel.Subscribe(context.Background(), 1, 2, sink.record)
	require.NoError(t, err)
	defer stop()

	// Two concurrent sends can publish in the opposite of creation order;
	// the earlier message must still be delivered, and first
	now := time.Now()
	m1 := store.add(1, 2, "first", now.Add(time.Millisecond))
	m2 := store.add(2, 1, "second", now.Add(2*time.Millisecond))
	b.Publish(m2)
	b.Publish(m1)

	require.Eventually(t, func() bool {
		return len(sink.messageContents()) == 2
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, []string{"first", "second"}, sink.messageContents())
}

func TestNoDuplicateWhenBusAndPollOverlap(t *testing.T) {
	store := newFakeStore()
	b := bus.New(4)
	channel := newTestChannel(store, b, 10*time.Millisecond)
	sink := &eventSink{}

	stop, err := channel.Subscribe(context.Background(), 1, 2, sink.record)
	require.NoError(t, err)
	defer stop()

	m := store.add(1, 2, "once", time.Now().Add(time.Millisecond))
	b.Publish(m)

	// Give several ticks a chance to re-observe the row
	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, []string{"once"}, sink.messageContents())
}

func TestPollErrorIsSwallowed(t *testing.T) {
	store := newFakeStore()
	b := bus.New(4)
	channel := newTestChannel(store, b, 10*time.Millisecond)
	sink := &eventSink{}

	store.failNext(3)

	stop, err := channel.Subscribe(context.Background(), 1, 2, sink.record)
	require.NoError(t, err)
	defer stop()

	store.add(1, 2, "survives", time.Now().Add(time.Millisecond))

	// Ticks keep coming after failures and eventually deliver
	require.Eventually(t, func() bool {
		contents := sink.messageContents()
		return len(contents) == 1 && contents[0] == "survives"
	}, time.Second, 5*time.Millisecond)
}

func TestStopTearsDownSynchronously(t *testing.T) {
	store := newFakeStore()
	b := bus.New(4)
	channel := newTestChannel(store, b, 10*time.Millisecond)
	sink := &eventSink{}

	stop, err := channel.Subscribe(context.Background(), 1, 2, sink.record)
	require.NoError(t, err)
	require.Equal(t, 1, b.SubscriberCount(1, 2))

	stop()

	// Bus subscription is gone: no dangling timer or channel remains
	assert.Equal(t, 0, b.SubscriberCount(1, 2))
	delivered := len(sink.snapshot())
	queriesAtStop := store.queryCount()

	m := store.add(1, 2, "late", time.Now())
	b.Publish(m)
	time.Sleep(50 * time.Millisecond)

	// No further events and no further polling after teardown
	assert.Len(t, sink.snapshot(), delivered)
	assert.Equal(t, queriesAtStop, store.queryCount())

	// Stop is safe to call again
	stop()
}

func TestContextCancelTearsDown(t *testing.T) {
	store := newFakeStore()
	b := bus.New(4)
	channel := newTestChannel(store, b, 10*time.Millisecond)
	sink := &eventSink{}

	ctx, cancel := context.WithCancel(context.Background())
	stop, err := channel.Subscribe(ctx, 1, 2, sink.record)
	require.NoError(t, err)

	cancel()

	require.Eventually(t, func() bool {
		return b.SubscriberCount(1, 2) == 0
	}, time.Second, 5*time.Millisecond)

	// stop still returns promptly after ctx cancellation
	stop()
}

func TestOnlyMessagesAfterSubscribeAreDelivered(t *testing.T) {
	store := newFakeStore()
	b := bus.New(4)

	// History exists before the subscription starts
	store.add(1, 2, "old", time.Now().Add(-time.Minute))

	channel := newTestChannel(store, b, 10*time.Millisecond)
	sink := &eventSink{}

	stop, err := channel.Subscribe(context.Background(), 1, 2, sink.record)
	require.NoError(t, err)
	defer stop()

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, sink.messageContents())

	store.add(1, 2, "new", time.Now())
	require.Eventually(t, func() bool {
		contents := sink.messageContents()
		return len(contents) == 1 && contents[0] == "new"
	}, time.Second, 5*time.Millisecond)
}
