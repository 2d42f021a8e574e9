package delivery

import (
	"context"
	"time"

	"whatsmoney/backend/messaging/models"
	"whatsmoney/backend/pkg/errors"
	"whatsmoney/backend/pkg/logger"
)

// Event types emitted to subscribers
const (
	EventConnected = "connected"
	EventMessage   = "message"
)

// Event is a single frame pushed to a subscriber
type Event struct {
	Type    string          `json:"type"`
	Message *models.Message `json:"message,omitempty"`
}

// Store is the read side of the message store the channel polls
type Store interface {
	ListAfter(ctx context.Context, userA, userB uint, afterAt time.Time, afterID uint) ([]models.Message, error)
}

// Wakeups is the pub/sub source of low-latency notifications; the bus
// implements it
type Wakeups interface {
	Subscribe(a, b uint) (<-chan models.Message, func())
}

// Channel delivers new messages for a (user, counterpart) pair to
// connected clients. Each subscription is one goroutine moving through
// Connecting -> Active -> Closed: it emits a connected event, then polls the
// store on a fixed interval, with bus publishes acting as wakeups that run
// the same cursor query early. Every delivery flows through that single
// (created_at, id) cursor query, so messages arrive exactly once and in
// ascending order even when publishes race out of creation order or a
// wakeup is dropped: every message since the last delivered one is pushed,
// never just the newest.
type Channel struct {
	store        Store
	wakeups      Wakeups
	log          *logger.Logger
	pollInterval time.Duration
	metrics      *channelMetrics
	now          func() time.Time
}

// ChannelOption customizes a Channel
type ChannelOption func(*Channel)

// WithPollInterval overrides the default 2s tick period
func WithPollInterval(d time.Duration) ChannelOption {
	return func(c *Channel) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithClock overrides the time source, for tests
func WithClock(now func() time.Time) ChannelOption {
	return func(c *Channel) { c.now = now }
}

// NewChannel creates a delivery channel over the given store and bus
func NewChannel(store Store, wakeups Wakeups, log *logger.Logger, opts ...ChannelOption) *Channel {
	c := &Channel{
		store:        store,
		wakeups:      wakeups,
		log:          log.WithComponent("messaging.delivery"),
		pollInterval: 2 * time.Second,
		metrics:      newChannelMetrics(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Subscribe starts delivering events for the conversation between userID
// and withUser to onEvent. onEvent is always invoked from a single
// goroutine, in order. The returned cancel function tears the subscription
// down synchronously: once it returns, onEvent will not be called again and
// the internal timer is stopped. Cancelling ctx has the same effect.
//
// Only messages created after the subscription starts are delivered;
// history is served by the message listing API.
func (c *Channel) Subscribe(ctx context.Context, userID, withUser uint, onEvent func(Event)) (func(), error) {
	if onEvent == nil {
		return nil, errors.NewValidationError("event callback is required")
	}
	if userID == 0 || withUser == 0 || userID == withUser {
		return nil, errors.NewValidationError("subscription requires two distinct users")
	}

	busCh, unsubscribeBus := c.wakeups.Subscribe(userID, withUser)

	subCtx, cancel := context.WithCancel(ctx)
	sub := &subscription{
		channel:  c,
		userID:   userID,
		withUser: withUser,
		onEvent:  onEvent,
		busCh:    busCh,
		cursorAt: c.now(),
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer unsubscribeBus()
		sub.run(subCtx)
	}()

	stop := func() {
		cancel()
		<-done
	}
	return stop, nil
}

// subscription is the per-client delivery state
type subscription struct {
	channel  *Channel
	userID   uint
	withUser uint
	onEvent  func(Event)
	busCh    <-chan models.Message

	// cursor of the last delivered message; rows at or before it are
	// never re-delivered
	cursorAt time.Time
	cursorID uint
}

func (s *subscription) run(ctx context.Context) {
	c := s.channel
	c.metrics.subscriptionStarted(ctx)
	defer c.metrics.subscriptionEnded(context.WithoutCancel(ctx))

	s.onEvent(Event{Type: EventConnected})

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.busCh:
			// The payload is only a wakeup. Delivering it directly could
			// advance the cursor past an earlier message whose publish
			// lost the race or was dropped on a full buffer; the cursor
			// query picks up everything pending in order.
			s.poll(ctx)
		case <-ticker.C:
			s.poll(ctx)
		}
	}
}

// deliver pushes a message if it sits beyond the cursor, then advances
// the cursor
func (s *subscription) deliver(ctx context.Context, message models.Message) {
	if !afterCursor(message, s.cursorAt, s.cursorID) {
		return
	}

	s.cursorAt = message.CreatedAt
	s.cursorID = message.ID
	s.onEvent(Event{Type: EventMessage, Message: &message})
	s.channel.metrics.delivered(ctx, 1)
}

// poll queries the store for everything past the cursor and delivers it in
// order. A failed query is logged and swallowed; the next tick retries
// independently.
func (s *subscription) poll(ctx context.Context) {
	c := s.channel
	c.metrics.tick(ctx)

	messages, err := c.store.ListAfter(ctx, s.userID, s.withUser, s.cursorAt, s.cursorID)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		c.metrics.pollError(ctx)
		c.log.Warn("poll tick failed",
			"user_id", s.userID,
			"with_user", s.withUser,
			"error", err.Error(),
		)
		return
	}

	for _, message := range messages {
		s.deliver(ctx, message)
	}
}

func afterCursor(m models.Message, at time.Time, id uint) bool {
	if m.CreatedAt.After(at) {
		return true
	}
	return m.CreatedAt.Equal(at) && m.ID > id
}
