package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/gatekeeper/core"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisStore_RevokeAndLookup(t *testing.T) {
	mr, client := newTestRedis(t)
	s := NewRedisStore(client)
	ctx := context.Background()
	at := time.Unix(1_700_000_000, 0)

	t.Run("unknown token", func(t *testing.T) {
		rev, err := s.Revocation(ctx, "missing")
		require.NoError(t, err)
		assert.Nil(t, rev)
	})

	t.Run("revoked token", func(t *testing.T) {
		err := s.Revoke(ctx, "jti-1", core.Revocation{Reason: core.RevokedRotated, At: at}, time.Hour)
		require.NoError(t, err)

		rev, err := s.Revocation(ctx, "jti-1")
		require.NoError(t, err)
		require.NotNil(t, rev)
		assert.Equal(t, core.RevokedRotated, rev.Reason)
		assert.Equal(t, at.Unix(), rev.At.Unix())

		assert.Equal(t, time.Hour, mr.TTL(defaultRedisPrefix+"jti-1"))
	})

	t.Run("record expires", func(t *testing.T) {
		err := s.Revoke(ctx, "jti-2", core.Revocation{Reason: core.RevokedLogout, At: at}, time.Minute)
		require.NoError(t, err)

		mr.FastForward(2 * time.Minute)

		rev, err := s.Revocation(ctx, "jti-2")
		require.NoError(t, err)
		assert.Nil(t, rev)
	})

	t.Run("non-positive ttl is a no-op", func(t *testing.T) {
		err := s.Revoke(ctx, "jti-3", core.Revocation{Reason: core.RevokedLogout, At: at}, 0)
		require.NoError(t, err)
		assert.False(t, mr.Exists(defaultRedisPrefix+"jti-3"))
	})

	t.Run("corrupt record", func(t *testing.T) {
		require.NoError(t, mr.Set(defaultRedisPrefix+"jti-4", "garbage"))
		_, err := s.Revocation(ctx, "jti-4")
		assert.Error(t, err)
	})
}

func TestRedisStore_Unavailable(t *testing.T) {
	mr, client := newTestRedis(t)
	s := NewRedisStore(client)
	mr.Close()

	_, err := s.Revocation(context.Background(), "jti-1")
	assert.Error(t, err)

	err = s.Revoke(context.Background(), "jti-1", core.Revocation{Reason: core.RevokedLogout, At: time.Now()}, time.Hour)
	assert.Error(t, err)
}

func TestMemoryStore_RevokeAndExpire(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewMemoryStoreWithClock(func() time.Time { return now })
	ctx := context.Background()

	require.NoError(t, s.Revoke(ctx, "jti-1", core.Revocation{Reason: core.RevokedLogout, At: now}, time.Hour))

	rev, err := s.Revocation(ctx, "jti-1")
	require.NoError(t, err)
	require.NotNil(t, rev)
	assert.Equal(t, core.RevokedLogout, rev.Reason)

	now = now.Add(time.Hour)
	rev, err = s.Revocation(ctx, "jti-1")
	require.NoError(t, err)
	assert.Nil(t, rev)

	// Expired records are swept on the next write
	require.NoError(t, s.Revoke(ctx, "jti-2", core.Revocation{Reason: core.RevokedRotated, At: now}, time.Hour))
	assert.Len(t, s.revoked, 1)
}
