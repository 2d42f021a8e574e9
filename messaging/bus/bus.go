package bus

import (
	"sync"

	"whatsmoney/backend/messaging/models"
)

// pairKey is the canonical identity of a two-person conversation
type pairKey struct {
	low, high uint
}

func keyFor(a, b uint) pairKey {
	low, high := models.PairKey(a, b)
	return pairKey{low: low, high: high}
}

// Bus is an in-process publish/subscribe channel keyed by user pair.
// Appends publish here so live subscriptions see new messages without
// waiting for their next poll tick. Publishing never blocks: a subscriber
// whose buffer is full misses the wakeup and is repaired by its next poll.
type Bus struct {
	mu     sync.RWMutex
	subs   map[pairKey]map[uint64]chan models.Message
	nextID uint64
	buffer int
}

// New creates a bus whose subscriber channels hold up to buffer messages
func New(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 16
	}
	return &Bus{
		subs:   make(map[pairKey]map[uint64]chan models.Message),
		buffer: buffer,
	}
}

// Subscribe registers interest in the conversation between a and b. The
// returned cancel function removes the subscription and closes the channel;
// it is safe to call more than once.
func (b *Bus) Subscribe(a, c uint) (<-chan models.Message, func()) {
	key := keyFor(a, c)
	ch := make(chan models.Message, b.buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	if b.subs[key] == nil {
		b.subs[key] = make(map[uint64]chan models.Message)
	}
	b.subs[key][id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			if subs, ok := b.subs[key]; ok {
				delete(subs, id)
				if len(subs) == 0 {
					delete(b.subs, key)
				}
			}
			b.mu.Unlock()
			close(ch)
		})
	}

	return ch, cancel
}

// Publish fans a stored message out to every subscription of its pair
func (b *Bus) Publish(message models.Message) {
	key := keyFor(message.SenderID, message.RecipientID)

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs[key] {
		select {
		case ch <- message:
		default:
			// full buffer: drop, the poll path catches up
		}
	}
}

// SubscriberCount reports the number of active subscriptions for a pair
func (b *Bus) SubscriberCount(a, c uint) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[keyFor(a, c)])
}
