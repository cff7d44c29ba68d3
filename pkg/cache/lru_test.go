package cache_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/fleetbilling/pkg/cache"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func TestLRUCache(t *testing.T) {
	t.Parallel()

	t.Run("evicts least recently used", func(t *testing.T) {
		t.Parallel()
		c := cache.NewLRUCache[string, int](2)

		c.Put("a", 1)
		c.Put("b", 2)
		_, _ = c.Get("a")
		c.Put("c", 3)

		_, ok := c.Get("b")
		assert.False(t, ok)
		v, ok := c.Get("a")
		require.True(t, ok)
		assert.Equal(t, 1, v)
		assert.Equal(t, 2, c.Len())
	})

	t.Run("put returns previous value", func(t *testing.T) {
		t.Parallel()
		c := cache.NewLRUCache[string, int](2)

		_, existed := c.Put("a", 1)
		assert.False(t, existed)
		old, existed := c.Put("a", 2)
		assert.True(t, existed)
		assert.Equal(t, 1, old)
	})

	t.Run("remove and clear call evict callback", func(t *testing.T) {
		t.Parallel()
		var evicted []string
		c := cache.NewLRUCache[string, int](3, cache.WithEvictCallback(func(k string, _ int) {
			evicted = append(evicted, k)
		}))

		c.Put("a", 1)
		c.Put("b", 2)
		v, ok := c.Remove("a")
		assert.True(t, ok)
		assert.Equal(t, 1, v)
		c.Clear()

		assert.ElementsMatch(t, []string{"a", "b"}, evicted)
		assert.Zero(t, c.Len())
	})

	t.Run("entries expire after ttl", func(t *testing.T) {
		t.Parallel()
		clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
		c := cache.NewLRUCache[string, int](4,
			cache.WithTTL[string, int](time.Minute),
			cache.WithClock[string, int](clock.Now),
		)

		c.Put("a", 1)
		clock.Advance(30 * time.Second)
		_, ok := c.Get("a")
		assert.True(t, ok)

		clock.Advance(31 * time.Second)
		_, ok = c.Get("a")
		assert.False(t, ok)
		assert.Zero(t, c.Len())
	})

	t.Run("put over expired entry reports no previous value", func(t *testing.T) {
		t.Parallel()
		clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
		c := cache.NewLRUCache[string, int](4,
			cache.WithTTL[string, int](time.Second),
			cache.WithClock[string, int](clock.Now),
		)

		c.Put("a", 1)
		clock.Advance(2 * time.Second)
		_, existed := c.Put("a", 2)
		assert.False(t, existed)
		v, ok := c.Get("a")
		require.True(t, ok)
		assert.Equal(t, 2, v)
	})

	t.Run("panics on non-positive capacity", func(t *testing.T) {
		t.Parallel()
		assert.Panics(t, func() { cache.NewLRUCache[string, int](0) })
	})

	t.Run("concurrent access", func(t *testing.T) {
		t.Parallel()
		c := cache.NewLRUCache[int, int](16)
		var wg sync.WaitGroup
		for i := range 8 {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				for j := range 100 {
					c.Put(n*100+j, j)
					_, _ = c.Get(n*100 + j)
				}
			}(i)
		}
		wg.Wait()
		assert.LessOrEqual(t, c.Len(), 16)
	})
}
