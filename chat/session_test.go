package chat_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/h-like/sleeprism-chat/chat"
)

type stubVerifier map[string]chat.Identity

func (s stubVerifier) Verify(_ context.Context, token string) (chat.Identity, error) {
	id, ok := s[token]
	if !ok {
		return chat.Identity{}, errors.New("token signature is invalid")
	}
	return id, nil
}

func TestRegistryResolveBeforeBind(t *testing.T) {
	r := chat.NewRegistry()
	_, ok := r.Resolve("conn-1")
	assert.False(t, ok)
}

func TestRegistryBindNeverOverwrites(t *testing.T) {
	r := chat.NewRegistry()
	require.NoError(t, r.Bind("conn-1", chat.Identity{UserID: 1}))

	err := r.Bind("conn-1", chat.Identity{UserID: 2})
	assert.ErrorIs(t, err, chat.ErrConflict)

	id, ok := r.Resolve("conn-1")
	require.True(t, ok)
	assert.Equal(t, uint(1), id.UserID)
}

func TestRegistryUnbindIsIdempotent(t *testing.T) {
	r := chat.NewRegistry()
	require.NoError(t, r.Bind("conn-1", chat.Identity{UserID: 1}))
	require.NoError(t, r.Bind("conn-2", chat.Identity{UserID: 1}))
	assert.ElementsMatch(t, []string{"conn-1", "conn-2"}, r.ConnectionsOf(1))

	id, ok := r.Unbind("conn-1")
	assert.True(t, ok)
	assert.Equal(t, uint(1), id.UserID)
	_, ok = r.Unbind("conn-1")
	assert.False(t, ok)

	assert.Equal(t, []string{"conn-2"}, r.ConnectionsOf(1))
	assert.Equal(t, 1, r.Len())
}

func TestRegistryConcurrentBindUnbind(t *testing.T) {
	r := chat.NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn := fmt.Sprintf("conn-%d", i)
			assert.NoError(t, r.Bind(conn, chat.Identity{UserID: uint(i % 5)}))
			_, ok := r.Resolve(conn)
			assert.True(t, ok)
			r.Unbind(conn)
		}(i)
	}
	wg.Wait()
	assert.Zero(t, r.Len())
	assert.Empty(t, r.ConnectionsOf(1))
}

func TestRegistryConnect(t *testing.T) {
	v := stubVerifier{"good": {UserID: 7, Nickname: "alice"}}
	ctx := context.Background()

	tests := []struct {
		name   string
		header string
		want   error
	}{
		{"missing header", "", chat.ErrUnauthenticated},
		{"wrong scheme", "Basic abc", chat.ErrUnauthenticated},
		{"empty token", "Bearer   ", chat.ErrUnauthenticated},
		{"bad token", "Bearer nope", chat.ErrUnauthenticated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := chat.NewRegistry()
			_, err := r.Connect(ctx, v, "conn-1", tt.header)
			assert.ErrorIs(t, err, tt.want)
			assert.Zero(t, r.Len())
		})
	}

	r := chat.NewRegistry()
	id, err := r.Connect(ctx, v, "conn-1", "bearer good")
	require.NoError(t, err)
	assert.Equal(t, uint(7), id.UserID)

	_, err = r.Connect(ctx, v, "conn-1", "Bearer good")
	assert.ErrorIs(t, err, chat.ErrConflict)
}

func TestIdentityContext(t *testing.T) {
	_, ok := chat.IdentityFrom(context.Background())
	assert.False(t, ok)

	ctx := chat.WithIdentity(context.Background(), chat.Identity{UserID: 3})
	id, ok := chat.IdentityFrom(ctx)
	require.True(t, ok)
	assert.Equal(t, uint(3), id.UserID)
}

func TestErrorKindAndReason(t *testing.T) {
	tests := []struct {
		err    error
		kind   string
		reason string
	}{
		{fmt.Errorf("%w: chat room 4", chat.ErrNotFound), "not_found", "not found: chat room 4"},
		{fmt.Errorf("%w: nope", chat.ErrPermission), "permission", "permission denied: nope"},
		{chat.ErrInvalidState, "invalid_state", "invalid state"},
		{chat.ErrConflict, "conflict", "conflict"},
		{chat.ErrUnauthenticated, "unauthenticated", "unauthenticated"},
		{errors.New("database is locked"), "internal", "internal error"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.kind, chat.Kind(tt.err))
		assert.Equal(t, tt.reason, chat.Reason(tt.err))
	}
}
