package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/tonyzinh/system-hospital-backend/internal/types"
)

func newTestRedisCache(t *testing.T, capacity int) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	cache, err := NewRedisCache(context.Background(), RedisCacheConfig{
		Addr:     mr.Addr(),
		Prefix:   "test:cache",
		Capacity: capacity,
	})
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })
	return cache, mr
}

func TestCacheBackends(t *testing.T) {
	backends := map[string]func(t *testing.T, capacity int) types.CacheStore{
		"memory": func(t *testing.T, capacity int) types.CacheStore {
			return NewMemoryCache(capacity)
		},
		"redis": func(t *testing.T, capacity int) types.CacheStore {
			c, _ := newTestRedisCache(t, capacity)
			return c
		},
	}

	for name, newCache := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			t.Run("fifo eviction", func(t *testing.T) {
				c := newCache(t, 3)
				for i := 1; i <= 3; i++ {
					require.NoError(t, c.Put(ctx, fmt.Sprintf("k%d", i), fmt.Sprintf("v%d", i)))
				}
				// Reads do not refresh position
				_, ok, err := c.Get(ctx, "k1")
				require.NoError(t, err)
				assert.True(t, ok)

				require.NoError(t, c.Put(ctx, "k4", "v4"))

				_, ok, err = c.Get(ctx, "k1")
				require.NoError(t, err)
				assert.False(t, ok)
				for _, k := range []string{"k2", "k3", "k4"} {
					_, ok, err := c.Get(ctx, k)
					require.NoError(t, err)
					assert.True(t, ok, k)
				}
				n, err := c.Len(ctx)
				require.NoError(t, err)
				assert.Equal(t, 3, n)
			})

			t.Run("overwrite keeps size", func(t *testing.T) {
				c := newCache(t, 2)
				require.NoError(t, c.Put(ctx, "a", "1"))
				require.NoError(t, c.Put(ctx, "a", "2"))
				v, ok, err := c.Get(ctx, "a")
				require.NoError(t, err)
				assert.True(t, ok)
				assert.Equal(t, "2", v)
				n, err := c.Len(ctx)
				require.NoError(t, err)
				assert.Equal(t, 1, n)
			})

			t.Run("concurrent writers", func(t *testing.T) {
				c := newCache(t, 10)
				g, gctx := errgroup.WithContext(ctx)
				for w := 0; w < 16; w++ {
					w := w
					g.Go(func() error {
						for i := 0; i < 50; i++ {
							key := fmt.Sprintf("k%d", (w*7+i)%30)
							if err := c.Put(gctx, key, fmt.Sprintf("v%d-%d", w, i)); err != nil {
								return err
							}
							if _, _, err := c.Get(gctx, key); err != nil {
								return err
							}
							n, err := c.Len(gctx)
							if err != nil {
								return err
							}
							if n > 10 {
								return fmt.Errorf("size %d over capacity", n)
							}
						}
						return nil
					})
				}
				require.NoError(t, g.Wait())

				n, err := c.Len(ctx)
				require.NoError(t, err)
				assert.Equal(t, 10, n)
			})

			t.Run("clear", func(t *testing.T) {
				c := newCache(t, 2)
				require.NoError(t, c.Put(ctx, "a", "1"))
				require.NoError(t, c.Clear(ctx))
				n, err := c.Len(ctx)
				require.NoError(t, err)
				assert.Equal(t, 0, n)
				assert.Equal(t, 2, c.Capacity())
			})
		})
	}
}

func TestMemoryCacheConcurrentIndexConsistency(t *testing.T) {
	c := NewMemoryCache(5)
	ctx := context.Background()

	var wg sync.WaitGroup
	var evicted atomic.Int64
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				n, _ := c.put(ctx, fmt.Sprintf("k%d", (w+i)%12), "v")
				evicted.Add(n)
			}
		}(w)
	}
	wg.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Equal(t, 5, len(c.entries))
	assert.Equal(t, len(c.entries), c.order.Len())
	for e := c.order.Front(); e != nil; e = e.Next() {
		key := e.Value.(*memoryEntry).key
		assert.Same(t, e, c.entries[key], key)
	}
	assert.Positive(t, evicted.Load())
}

func TestRedisCacheConcurrentIndexConsistency(t *testing.T) {
	c, mr := newTestRedisCache(t, 5)
	ctx := context.Background()

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < 8; w++ {
		w := w
		g.Go(func() error {
			for i := 0; i < 40; i++ {
				if err := c.Put(gctx, fmt.Sprintf("k%d", (w+i)%12), "v"); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	order, err := mr.List("test:cache:order")
	require.NoError(t, err)
	assert.Len(t, order, 5)
	keys, err := mr.HKeys("test:cache:values")
	require.NoError(t, err)
	assert.ElementsMatch(t, order, keys)
}

func TestRedisCacheReportsEvictions(t *testing.T) {
	c, _ := newTestRedisCache(t, 1)
	ctx := context.Background()

	n, err := c.put(ctx, "a", "1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	n, err = c.put(ctx, "b", "2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestRedisCacheUnreachable(t *testing.T) {
	_, err := NewRedisCache(context.Background(), RedisCacheConfig{Addr: "127.0.0.1:1"})
	assert.Error(t, err)
}

func TestRedisCacheSharesState(t *testing.T) {
	mr := miniredis.RunT(t)
	config := RedisCacheConfig{Prefix: "shared", Capacity: 10}

	first := newRedisCache(redis.NewClient(&redis.Options{Addr: mr.Addr()}), config)
	second := newRedisCache(redis.NewClient(&redis.Options{Addr: mr.Addr()}), config)
	defer first.Close()
	defer second.Close()

	ctx := context.Background()
	require.NoError(t, first.Put(ctx, "k", "v"))
	v, ok, err := second.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)
}
