package data

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/creative-dispatch/internal/domain/model"
	"github.com/target/creative-dispatch/internal/testutil"
)

func TestRedisCacheRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	client := testutil.SetupTestRedis(t)
	defer func() { _ = client.Close() }()

	prefix := "test:cache:" + t.Name() + ":"
	repo := NewRedisCacheRepo(client, prefix)
	ctx := context.Background()

	t.Run("set and get", func(t *testing.T) {
		require.NoError(t, repo.Set(ctx, "k1", []byte("v1"), 5*time.Minute))

		got, err := repo.Get(ctx, "k1")
		require.NoError(t, err)
		assert.Equal(t, []byte("v1"), got)

		ttl := client.TTL(ctx, prefix+"k1").Val()
		assert.True(t, ttl > 0 && ttl <= 5*time.Minute)
	})

	t.Run("missing key", func(t *testing.T) {
		got, err := repo.Get(ctx, "absent")
		require.NoError(t, err)
		assert.Nil(t, got)

		deleted, err := repo.Delete(ctx, "absent")
		require.NoError(t, err)
		assert.False(t, deleted)
	})

	t.Run("set if not exists only once", func(t *testing.T) {
		set, err := repo.SetIfNotExists(ctx, "alert:queue_paused", []byte("1"), time.Minute)
		require.NoError(t, err)
		assert.True(t, set)

		set, err = repo.SetIfNotExists(ctx, "alert:queue_paused", []byte("2"), time.Minute)
		require.NoError(t, err)
		assert.False(t, set)

		got, err := repo.Get(ctx, "alert:queue_paused")
		require.NoError(t, err)
		assert.Equal(t, []byte("1"), got)

		deleted, err := repo.Delete(ctx, "alert:queue_paused")
		require.NoError(t, err)
		assert.True(t, deleted)
	})

	t.Run("health", func(t *testing.T) {
		assert.NoError(t, repo.Health(ctx))
	})
}

func TestRedisCacheRepo_EmptyKey(t *testing.T) {
	repo := NewRedisCacheRepo(nil, "")
	ctx := context.Background()

	require.ErrorIs(t, repo.Set(ctx, "", nil, time.Minute), errEmptyKey)
	_, err := repo.Get(ctx, "")
	require.ErrorIs(t, err, errEmptyKey)
	_, err = repo.Delete(ctx, "")
	require.ErrorIs(t, err, errEmptyKey)
	_, err = repo.SetIfNotExists(ctx, "", nil, time.Minute)
	require.ErrorIs(t, err, errEmptyKey)
}

func TestRedisSystemStateRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	client := testutil.SetupTestRedis(t)
	defer func() { _ = client.Close() }()

	prefix := "test:state:" + t.Name() + ":"
	t.Cleanup(func() { client.Del(context.Background(), prefix+model.SystemStateKeyQueuePaused) })

	repo, err := NewRedisSystemStateRepo(RedisSystemStateOptions{
		Client:       client,
		KeyPrefix:    prefix,
		TimeProvider: NewFixedTimeProvider(testutil.TestTime()),
	})
	require.NoError(t, err)
	ctx := context.Background()

	st, err := repo.Get(ctx, model.SystemStateKeyQueuePaused)
	require.NoError(t, err)
	assert.Nil(t, st)

	require.NoError(t, repo.Set(ctx, model.SystemStateKeyQueuePaused, json.RawMessage(`{"paused":true}`)))

	st, err = repo.Get(ctx, model.SystemStateKeyQueuePaused)
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.JSONEq(t, `{"paused":true}`, string(st.Value))
	assert.True(t, testutil.TestTime().Equal(st.UpdatedAt))

	require.Error(t, repo.Set(ctx, model.SystemStateKeyQueuePaused, json.RawMessage(`{`)))
}

func TestNewRedisSystemStateRepo_RequiresClient(t *testing.T) {
	_, err := NewRedisSystemStateRepo(RedisSystemStateOptions{})
	require.Error(t, err)
}
