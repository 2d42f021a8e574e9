package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcknowledgeOneIdempotent(t *testing.T) {
	repo := newFakeRepo()
	tracker := NewReadTracker(repo)

	m := seed(t, repo, 1, 2, "hello", time.Now())

	changed, err := tracker.AcknowledgeOne(context.Background(), m.ID, 2)
	require.NoError(t, err)
	assert.True(t, changed)

	stored, ok := repo.lookup(m.ID)
	require.True(t, ok)
	assert.True(t, stored.IsRead)

	// Second acknowledgment is a no-op
	changed, err = tracker.AcknowledgeOne(context.Background(), m.ID, 2)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestAcknowledgeOneWrongActor(t *testing.T) {
	repo := newFakeRepo()
	tracker := NewReadTracker(repo)

	m := seed(t, repo, 1, 2, "hello", time.Now())

	// The sender may not acknowledge their own message
	changed, err := tracker.AcknowledgeOne(context.Background(), m.ID, 1)
	require.NoError(t, err)
	assert.False(t, changed)

	stored, ok := repo.lookup(m.ID)
	require.True(t, ok)
	assert.False(t, stored.IsRead)
}

func TestAcknowledgeOneUnknownMessage(t *testing.T) {
	repo := newFakeRepo()
	tracker := NewReadTracker(repo)

	changed, err := tracker.AcknowledgeOne(context.Background(), 42, 2)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestAcknowledgeAllCountsAndIdempotence(t *testing.T) {
	repo := newFakeRepo()
	tracker := NewReadTracker(repo)

	base := time.Now()
	seed(t, repo, 1, 2, "one", base)
	seed(t, repo, 1, 2, "two", base.Add(time.Second))
	seed(t, repo, 2, 1, "reply", base.Add(2*time.Second))
	seed(t, repo, 3, 2, "other sender", base.Add(3*time.Second))

	count, err := tracker.AcknowledgeAll(context.Background(), 2, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	// Only messages from counterpart 1 to actor 2 were touched
	other, ok := repo.lookup(4)
	require.True(t, ok)
	assert.False(t, other.IsRead)
	reply, ok := repo.lookup(3)
	require.True(t, ok)
	assert.False(t, reply.IsRead)

	count, err = tracker.AcknowledgeAll(context.Background(), 2, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}
