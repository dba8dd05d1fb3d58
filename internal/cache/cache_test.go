package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rizkypsr/cms-masterlu/internal/domain"
)

func listing(key string, ids ...int64) *domain.ScopeListing {
	l := &domain.ScopeListing{Key: key, Family: "audio", Table: "audio"}
	for i, id := range ids {
		l.Items = append(l.Items, domain.ListingEntry{ID: id, Seq: i + 1})
	}
	return l
}

func TestCacheGetSetDelete(t *testing.T) {
	cache := NewListingCache(4, 3600)
	ctx := context.Background()

	_, ok := cache.Get(ctx, "audio|audio_sub_group_id=1")
	assert.False(t, ok)

	require.NoError(t, cache.Set(ctx, "audio|audio_sub_group_id=1", listing("audio|audio_sub_group_id=1", 3, 1)))

	got, ok := cache.Get(ctx, "audio|audio_sub_group_id=1")
	require.True(t, ok)
	assert.Equal(t, []domain.ListingEntry{{ID: 3, Seq: 1}, {ID: 1, Seq: 2}}, got.Items)

	require.NoError(t, cache.Delete(ctx, "audio|audio_sub_group_id=1"))
	_, ok = cache.Get(ctx, "audio|audio_sub_group_id=1")
	assert.False(t, ok)
}

func TestCacheCancelledContext(t *testing.T) {
	cache := NewListingCache(4, 3600)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, cache.Set(ctx, "k", listing("k")), context.Canceled)
	_, ok := cache.Get(ctx, "k")
	assert.False(t, ok)
}

// TestCacheConcurrentAccess tests concurrent access to cache with race detection
func TestCacheConcurrentAccess(t *testing.T) {
	cache := NewListingCache(16, 3600)
	ctx := context.Background()

	numGoroutines := 100
	numOperations := 100
	var wg sync.WaitGroup

	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()
			for j := 0; j < numOperations; j++ {
				key := fmt.Sprintf("key-%d-%d", id, j)
				err := cache.Set(ctx, key, listing(key, int64(j)))
				assert.NoError(t, err)
			}
		}(i)
	}

	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()
			for j := 0; j < numOperations; j++ {
				_, _ = cache.Get(ctx, fmt.Sprintf("key-%d-%d", id, j))
			}
		}(i)
	}

	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()
			for j := 0; j < numOperations; j++ {
				_ = cache.Delete(ctx, fmt.Sprintf("key-%d-%d", id, j))
			}
		}(i)
	}

	wg.Wait()
}

// TestCacheCleanupWorker tests that expired listings disappear
func TestCacheCleanupWorker(t *testing.T) {
	cache := NewListingCache(16, 1) // 1 second TTL
	ctx := context.Background()

	cache.StartCleanupWorker()
	defer cache.StopCleanupWorker()

	for i := 0; i < 100; i++ {
		key := fmt.Sprintf("expire-key-%d", i)
		_ = cache.Set(ctx, key, listing(key))
	}

	time.Sleep(2 * time.Second)

	cleaned := 0
	for i := 0; i < 100; i++ {
		if _, exists := cache.Get(ctx, fmt.Sprintf("expire-key-%d", i)); !exists {
			cleaned++
		}
	}
	assert.Equal(t, 100, cleaned)

	require.NoError(t, cache.CleanExpired(ctx))
	assert.Zero(t, cache.GetStats().Items)
}

// TestCacheSharding tests that sharding distributes keys evenly
func TestCacheSharding(t *testing.T) {
	cache := NewListingCache(16, 3600)
	ctx := context.Background()

	for i := 0; i < 1000; i++ {
		key := fmt.Sprintf("video|video_id=%d", i)
		_ = cache.Set(ctx, key, listing(key))
	}

	stats := cache.GetStats()
	assert.Equal(t, 16, stats.Shards)
	assert.Equal(t, 1000, stats.Items)

	nonEmptyShards := 0
	for _, n := range stats.PerShard {
		if n > 0 {
			nonEmptyShards++
		}
	}
	assert.Greater(t, nonEmptyShards, 10, "Items should be distributed across multiple shards")

	cache.Clear()
	assert.Zero(t, cache.GetStats().Items)
}

func TestCacheHitMissStats(t *testing.T) {
	cache := NewListingCache(2, 3600)
	ctx := context.Background()
	key := "book|book_category_id=3"

	_, _ = cache.Get(ctx, key)
	require.NoError(t, cache.Set(ctx, key, listing(key, 1)))
	_, _ = cache.Get(ctx, key)
	_, _ = cache.Get(ctx, key)

	stats := cache.GetStats()
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 1, stats.Items)
	assert.Zero(t, stats.Expired)
}

func TestCacheWorkerRestart(t *testing.T) {
	cache := NewListingCache(2, 3600)

	cache.StartCleanupWorker()
	cache.StartCleanupWorker()
	cache.StopCleanupWorker()
	cache.StopCleanupWorker()

	cache.StartCleanupWorker()
	cache.StopCleanupWorker()
}

func TestScopeLocksSerializeOneKey(t *testing.T) {
	locks := NewScopeLocks(8)

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("book|book_category_id=1")
			defer unlock()

			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
}

func TestScopeLocksSameKeySameStripe(t *testing.T) {
	locks := NewScopeLocks(0)
	assert.Len(t, locks.locks, defaultShardCount)

	unlock := locks.Lock("a")
	unlock()
	unlock = locks.Lock("a")
	unlock()
}
