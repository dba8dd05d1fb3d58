package cache

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rizkypsr/cms-masterlu/internal/domain"
)

const (
	defaultShardCount      = 16
	defaultTTL             = 15 * time.Minute
	defaultCleanupInterval = 1 * time.Minute
)

type entry struct {
	listing   *domain.ScopeListing
	expiresAt time.Time
}

func (e *entry) expired(now time.Time) bool {
	return now.After(e.expiresAt)
}

type shard struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// sweep drops expired entries and reports how many were removed
func (s *shard) sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

// ListingCache is a sharded TTL cache of sibling listings keyed by scope key.
// Cached listings are shared between readers and must not be modified.
type ListingCache struct {
	shards          []*shard
	ttl             time.Duration
	cleanupInterval time.Duration

	hits   atomic.Int64
	misses atomic.Int64

	workerMu   sync.Mutex
	workerStop chan struct{}
	workerDone chan struct{}
}

// NewListingCache creates a cache with shardCount shards and a TTL in seconds
func NewListingCache(shardCount int, ttl int) *ListingCache {
	if shardCount < 1 {
		shardCount = defaultShardCount
	}

	ttlDuration := time.Duration(ttl) * time.Second
	if ttlDuration <= 0 {
		ttlDuration = defaultTTL
	}

	shards := make([]*shard, shardCount)
	for i := range shards {
		shards[i] = &shard{entries: make(map[string]*entry)}
	}

	return &ListingCache{
		shards:          shards,
		ttl:             ttlDuration,
		cleanupInterval: defaultCleanupInterval,
	}
}

// shardIndex maps a key onto one of n shards using FNV-1a
func shardIndex(key string, n int) int {
	hash := fnv.New32a()
	hash.Write([]byte(key))
	return int(hash.Sum32() % uint32(n))
}

func (c *ListingCache) shardFor(key string) *shard {
	return c.shards[shardIndex(key, len(c.shards))]
}

// Get returns the listing of a scope key if it is present and fresh
func (c *ListingCache) Get(ctx context.Context, key string) (*domain.ScopeListing, bool) {
	if ctx.Err() != nil {
		return nil, false
	}

	s := c.shardFor(key)
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok || e.expired(time.Now()) {
		c.misses.Add(1)
		return nil, false
	}

	c.hits.Add(1)
	return e.listing, true
}

// Set stores a listing under its scope key for one TTL
func (c *ListingCache) Set(ctx context.Context, key string, listing *domain.ScopeListing) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s := c.shardFor(key)
	s.mu.Lock()
	s.entries[key] = &entry{listing: listing, expiresAt: time.Now().Add(c.ttl)}
	s.mu.Unlock()
	return nil
}

// Delete drops the listing of a scope key
func (c *ListingCache) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s := c.shardFor(key)
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

// CleanExpired removes all expired listings
func (c *ListingCache) CleanExpired(ctx context.Context) error {
	now := time.Now()
	for _, s := range c.shards {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.sweep(now)
	}
	return nil
}

// StartCleanupWorker starts the background sweeper. Calling it twice is a no-op.
func (c *ListingCache) StartCleanupWorker() {
	c.workerMu.Lock()
	defer c.workerMu.Unlock()

	if c.workerStop != nil {
		return
	}

	c.workerStop = make(chan struct{})
	c.workerDone = make(chan struct{})
	go c.runCleanup(c.workerStop, c.workerDone)
}

// StopCleanupWorker stops the sweeper and waits for its final pass
func (c *ListingCache) StopCleanupWorker() {
	c.workerMu.Lock()
	defer c.workerMu.Unlock()

	if c.workerStop == nil {
		return
	}

	close(c.workerStop)
	<-c.workerDone
	c.workerStop, c.workerDone = nil, nil
}

func (c *ListingCache) runCleanup(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			_ = c.CleanExpired(context.Background())
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			_ = c.CleanExpired(ctx)
			cancel()
		}
	}
}

// Clear removes all listings
func (c *ListingCache) Clear() {
	for _, s := range c.shards {
		s.mu.Lock()
		s.entries = make(map[string]*entry)
		s.mu.Unlock()
	}
}

// CacheStats is a point-in-time view of the cache
type CacheStats struct {
	Shards   int   `json:"shards"`
	Items    int   `json:"items"`
	Expired  int   `json:"expired"`
	Hits     int64 `json:"hits"`
	Misses   int64 `json:"misses"`
	PerShard []int `json:"-"`
}

// GetStats counts entries per shard along with hit and miss totals
func (c *ListingCache) GetStats() CacheStats {
	now := time.Now()
	stats := CacheStats{
		Shards:   len(c.shards),
		Hits:     c.hits.Load(),
		Misses:   c.misses.Load(),
		PerShard: make([]int, len(c.shards)),
	}

	for i, s := range c.shards {
		s.mu.RLock()
		for _, e := range s.entries {
			if e.expired(now) {
				stats.Expired++
			}
		}
		stats.PerShard[i] = len(s.entries)
		s.mu.RUnlock()
		stats.Items += stats.PerShard[i]
	}

	return stats
}

var _ domain.ListingCache = (*ListingCache)(nil)
