package settlement

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute)
}

func TestCacheFetchJSONPopulatesAndReuses(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	key, err := cache.BuildKey(ctx, "earnings", "7", "2026")
	require.NoError(t, err)

	calls := 0
	loader := func(context.Context) (any, error) {
		calls++
		return map[string]int{"value": 42}, nil
	}

	var first map[string]int
	require.NoError(t, cache.FetchJSON(ctx, key, &first, loader))
	require.Equal(t, 42, first["value"])
	require.Equal(t, 1, calls)

	var second map[string]int
	require.NoError(t, cache.FetchJSON(ctx, key, &second, loader))
	require.Equal(t, 42, second["value"])
	require.Equal(t, 1, calls)
}

func TestCacheBumpInvalidates(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	before, err := cache.BuildKey(ctx, "earnings", "7", "2026")
	require.NoError(t, err)

	require.NoError(t, cache.Bump(ctx))

	after, err := cache.BuildKey(ctx, "earnings", "7", "2026")
	require.NoError(t, err)
	require.NotEqual(t, before, after)
}

func TestCacheNilDegradesToLoader(t *testing.T) {
	var cache *Cache
	ctx := context.Background()

	key, err := cache.BuildKey(ctx, "earnings", "7", "2026")
	require.NoError(t, err)

	calls := 0
	var out map[string]int
	err = cache.FetchJSON(ctx, key, &out, func(context.Context) (any, error) {
		calls++
		return map[string]int{"value": 7}, nil
	})
	require.NoError(t, err)
	require.Equal(t, 7, out["value"])
	require.Equal(t, 1, calls)

	require.NoError(t, cache.Bump(ctx))
}
