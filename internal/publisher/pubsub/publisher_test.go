package pubsub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRequiresProjectAndTopic(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), "", "law-notes")
	require.Error(t, err)
	_, err = New(context.Background(), "project", "")
	require.Error(t, err)
}

func TestPublishWithoutTopic(t *testing.T) {
	t.Parallel()

	p := NewWithTopic(nil)
	_, err := p.Publish(context.Background(), "law-notes", map[string]string{"law_id": "A"})
	require.Error(t, err)
	require.NoError(t, p.Close())
}
