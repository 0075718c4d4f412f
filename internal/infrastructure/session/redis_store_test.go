package session

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/marshnicholas123/nlq-demo/internal/domain/session"
)

// 需要真实 Redis：REDIS_URL=redis://localhost:6379/0
func TestRedisStore(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}

	ctx := context.Background()
	client, err := NewRedisClient(ctx, url)
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	s := NewRedisStore(client, time.Minute)
	id := "test-" + uuid.New().String()
	defer func() { _ = s.Clear(ctx, id) }()

	history, err := s.History(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, history)

	for i := 1; i <= 12; i++ {
		require.NoError(t, s.Append(ctx, id, turn(i)))
	}
	history, err = s.History(ctx, id)
	require.NoError(t, err)
	require.Len(t, history, domain.MaxTurns)
	assert.Equal(t, "q3", history[0].UserQuery)

	require.NoError(t, s.Clear(ctx, id))
	history, err = s.History(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestNewRedisClient_BadURL(t *testing.T) {
	_, err := NewRedisClient(context.Background(), "not a url")
	assert.Error(t, err)
}
