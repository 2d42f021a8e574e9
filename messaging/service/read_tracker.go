package service

import (
	"context"

	"whatsmoney/backend/messaging/repository"
	"whatsmoney/backend/pkg/errors"
)

// ReadTracker exposes read acknowledgment over the message store. It holds
// no state of its own: only the recipient of a message may acknowledge it,
// and the store enforces that with conditional, idempotent updates. An
// acknowledgment by the wrong actor is a silent no-op, never an error.
type ReadTracker struct {
	repo repository.MessageRepository
}

func NewReadTracker(repo repository.MessageRepository) *ReadTracker {
	return &ReadTracker{repo: repo}
}

// AcknowledgeOne marks a single message read. Returns whether the message
// state changed: false when already read, missing, or actor is not the
// recipient.
func (t *ReadTracker) AcknowledgeOne(ctx context.Context, messageID, actor uint) (bool, error) {
	changed, err := t.repo.MarkRead(ctx, messageID, actor)
	if err != nil {
		return false, errors.NewStoreUnavailableError(err)
	}
	return changed, nil
}

// AcknowledgeAll marks every unread message from counterpart to actor as
// read, returning the number of messages changed. A repeated call returns 0.
func (t *ReadTracker) AcknowledgeAll(ctx context.Context, actor, counterpart uint) (int64, error) {
	count, err := t.repo.MarkAllRead(ctx, actor, counterpart)
	if err != nil {
		return 0, errors.NewStoreUnavailableError(err)
	}
	return count, nil
}
