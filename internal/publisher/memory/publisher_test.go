package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublisherStoresMessages(t *testing.T) {
	t.Parallel()

	pub := New()
	id1, err := pub.Publish(context.Background(), "law-notes", map[string]string{"law_id": "A"})
	require.NoError(t, err)
	assert.Equal(t, "memory-1", id1)

	id2, err := pub.Publish(context.Background(), "audit", "payload")
	require.NoError(t, err)
	assert.Equal(t, "memory-2", id2)

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	msgs[0].Topic = "modified"
	assert.Equal(t, "law-notes", pub.Messages()[0].Topic, "Messages returns a copy")

	notes := pub.Topic("law-notes")
	require.Len(t, notes, 1)
	assert.Equal(t, "memory-1", notes[0].ID)
	assert.Empty(t, pub.Topic("unknown"))
}

func TestPublisherRejectsAfterClose(t *testing.T) {
	t.Parallel()

	pub := New()
	_, err := pub.Publish(context.Background(), "law-notes", "x")
	require.NoError(t, err)
	require.NoError(t, pub.Close())

	_, err = pub.Publish(context.Background(), "law-notes", "y")
	require.ErrorIs(t, err, ErrClosed)
	assert.Len(t, pub.Messages(), 1)
}

func TestPublisherHonorsCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New().Publish(ctx, "law-notes", "x")
	require.ErrorIs(t, err, context.Canceled)
}
