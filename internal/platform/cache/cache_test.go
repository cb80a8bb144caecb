package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func TestFetchJSONCachesLoaderResult(t *testing.T) {
	client, mr := newTestClient(t)
	c := NewJSONCache(client, "test", time.Minute)
	ctx := context.Background()

	calls := 0
	loader := func(context.Context) (any, error) {
		calls++
		return map[string]int{"n": 7}, nil
	}

	var first, second map[string]int
	require.NoError(t, c.FetchJSON(ctx, c.Key("a"), &first, loader))
	require.NoError(t, c.FetchJSON(ctx, c.Key("a"), &second, loader))

	assert.Equal(t, 1, calls)
	assert.Equal(t, 7, second["n"])
	assert.True(t, mr.Exists("test:a"))

	require.NoError(t, c.Invalidate(ctx, c.Key("a")))
	require.NoError(t, c.FetchJSON(ctx, c.Key("a"), &second, loader))
	assert.Equal(t, 2, calls)
}

func TestFetchJSONPropagatesLoaderError(t *testing.T) {
	client, _ := newTestClient(t)
	c := NewJSONCache(client, "test", time.Minute)

	var dest map[string]int
	err := c.FetchJSON(context.Background(), "k", &dest, func(context.Context) (any, error) {
		return nil, errors.New("db down")
	})
	assert.EqualError(t, err, "db down")
}

func TestNilCacheCallsLoader(t *testing.T) {
	var c *JSONCache
	var dest []string
	err := c.FetchJSON(context.Background(), "k", &dest, func(context.Context) (any, error) {
		return []string{"x"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, dest)
}

func TestLockerExclusive(t *testing.T) {
	client, _ := newTestClient(t)
	locker := NewLocker(client)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "lock:slot", time.Second)
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, "lock:slot", time.Second)
	assert.ErrorIs(t, err, ErrLocked)

	release(ctx)
	release2, err := locker.Acquire(ctx, "lock:slot", time.Second)
	require.NoError(t, err)
	release2(ctx)
}
