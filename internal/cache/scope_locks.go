package cache

import (
	"sync"

	"github.com/rizkypsr/cms-masterlu/internal/domain"
)

// ScopeLocks serializes in-process work per scope key. Keys hash onto a fixed
// set of mutexes, so two scopes may share a lock but one scope always maps to
// the same one.
type ScopeLocks struct {
	locks []sync.Mutex
}

// NewScopeLocks creates a lock table with n stripes
func NewScopeLocks(n int) *ScopeLocks {
	if n < 1 {
		n = defaultShardCount
	}
	return &ScopeLocks{locks: make([]sync.Mutex, n)}
}

// Lock acquires the lock of key and returns its unlock function
func (l *ScopeLocks) Lock(key string) func() {
	mu := &l.locks[shardIndex(key, len(l.locks))]
	mu.Lock()
	return mu.Unlock
}

var _ domain.KeyLocker = (*ScopeLocks)(nil)
