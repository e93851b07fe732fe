package distributed

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager(t *testing.T) (*miniredis.Miniredis, *LockManager) {
	t.Helper()
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return s, NewLockManager(client, "jamlink:")
}

func TestLock_SingleOwner(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, lm := newManager(t)

	first := lm.NewLock("settings", time.Minute)
	second := lm.NewLock("settings", time.Minute)
	assert.Equal(t, "jamlink:lock:settings", first.Key())

	ok, err := first.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = second.TryLock(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	held, err := first.Held(ctx)
	require.NoError(t, err)
	assert.True(t, held)
	held, err = second.Held(ctx)
	require.NoError(t, err)
	assert.False(t, held)

	assert.ErrorIs(t, second.Unlock(ctx), ErrNotHeld)
	require.NoError(t, first.Unlock(ctx))

	ok, err = second.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, second.Unlock(ctx))
}

func TestLock_RenewAfterTakeover(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s, lm := newManager(t)

	l := lm.NewLock("settings", time.Hour)
	ok, err := l.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = l.Renew(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	s.FastForward(2 * time.Hour)
	require.NoError(t, s.Set(l.Key(), "someone-else"))

	ok, err = l.Renew(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.ErrorIs(t, l.Unlock(ctx), ErrNotHeld)
}
