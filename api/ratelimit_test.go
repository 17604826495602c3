package api

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func localRedis(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skipf("redis not available: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestSendLimiterAllow(t *testing.T) {
	client := localRedis(t)
	l := NewSendLimiter(client, "test:send:"+uuid.NewString(), 3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, "user:1")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := l.Allow(ctx, "user:1")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = l.Allow(ctx, "user:2")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSendLimiterWindowSlides(t *testing.T) {
	client := localRedis(t)
	l := NewSendLimiter(client, "test:send:"+uuid.NewString(), 1, 200*time.Millisecond)
	ctx := context.Background()

	ok, _ := l.Allow(ctx, "user:1")
	assert.True(t, ok)
	ok, _ = l.Allow(ctx, "user:1")
	assert.False(t, ok)

	time.Sleep(300 * time.Millisecond)
	ok, err := l.Allow(ctx, "user:1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSendLimiterFailsOpen(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1})
	defer client.Close()
	l := NewSendLimiter(client, "test", 1, time.Minute)

	ok, err := l.Allow(context.Background(), "user:1")
	assert.Error(t, err)
	assert.True(t, ok)
}

func TestSendLimiterDisabled(t *testing.T) {
	var l *SendLimiter
	ok, err := l.Allow(context.Background(), "user:1")
	assert.NoError(t, err)
	assert.True(t, ok)
}
