package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rizkypsr/cms-masterlu/internal/dbtest"
	"github.com/rizkypsr/cms-masterlu/internal/domain"
	"github.com/rizkypsr/cms-masterlu/internal/families"
	"github.com/rizkypsr/cms-masterlu/internal/ordering"
)

// fakeStore hands every scope its own in-memory sibling set
type fakeStore struct {
	mu      sync.Mutex
	scopes  map[string]map[int64]int
	failKey string
	delay   time.Duration
}

func (s *fakeStore) InScope(ctx context.Context, scope domain.Scope, fn func(tx domain.SiblingTx) error) error {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if scope.Key() == s.failKey {
		return errors.New("lock timeout")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&fakeTx{rows: s.scopes[scope.Key()]})
}

func (s *fakeStore) Load(context.Context, domain.Family, int64) (domain.OrderedEntity, error) {
	return nil, domain.ErrEntityNotFound
}

func (s *fakeStore) Siblings(context.Context, domain.Scope) ([]domain.Sibling, error) { return nil, nil }

func (s *fakeStore) Scopes(context.Context, domain.Family) ([]domain.Scope, error) { return nil, nil }

type fakeTx struct {
	rows map[int64]int
}

func (tx *fakeTx) LockSiblings(context.Context, domain.Scope) ([]domain.Sibling, error) {
	var out []domain.Sibling
	for id, seq := range tx.rows {
		out = append(out, domain.Sibling{ID: id, Seq: seq})
	}
	return ordering.Sorted(out), nil
}

func (tx *fakeTx) WriteSeq(_ context.Context, _ domain.Scope, id int64, seq int) error {
	tx.rows[id] = seq
	return nil
}

func (tx *fakeTx) CreateEntity(context.Context, domain.OrderedEntity) error { return nil }
func (tx *fakeTx) SaveEntity(context.Context, domain.OrderedEntity) error   { return nil }
func (tx *fakeTx) DeleteEntity(context.Context, domain.Scope, int64) error  { return nil }

func scopeN(i int) domain.Scope {
	return domain.Scope{
		Family:    "audio",
		Table:     "audio",
		SeqColumn: "seq",
		Conds:     []domain.ScopeCond{{Column: "audio_sub_group_id", Value: int64(i)}},
	}
}

func newFakeStore(n int) *fakeStore {
	s := &fakeStore{scopes: map[string]map[int64]int{}}
	for i := 0; i < n; i++ {
		rows := map[int64]int{1: 1, 2: 2}
		if i%2 == 1 {
			rows = map[int64]int{1: 5, 2: 5, 3: 0}
		}
		s.scopes[scopeN(i).Key()] = rows
	}
	return s
}

// TestNormalizerOrderPreservation tests that results come back in input order
func TestNormalizerOrderPreservation(t *testing.T) {
	logger := zaptest.NewLogger(t)
	store := newFakeStore(100)
	store.delay = time.Millisecond
	normalizer := NewScopeNormalizer(store, ordering.NewManager(logger), 5, 100, logger)
	normalizer.Start()
	defer normalizer.Stop()

	scopes := make([]domain.Scope, 100)
	for i := range scopes {
		scopes[i] = scopeN(i)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	results, err := normalizer.NormalizeScopes(ctx, scopes)
	require.NoError(t, err)
	require.Len(t, results, 100)

	for i, result := range results {
		assert.Equal(t, scopes[i].Key(), result.ScopeKey, "Order should be preserved at index %d", i)
		if i%2 == 1 {
			assert.Equal(t, domain.NormalizeStatusRepaired, result.Status)
			assert.Equal(t, 3, result.Renumbered)
		} else {
			assert.Equal(t, domain.NormalizeStatusUnchanged, result.Status)
		}
	}
}

func TestNormalizerReportsFailedScopes(t *testing.T) {
	logger := zaptest.NewLogger(t)
	store := newFakeStore(3)
	store.failKey = scopeN(1).Key()
	normalizer := NewScopeNormalizer(store, ordering.NewManager(logger), 2, 10, logger)
	normalizer.Start()
	defer normalizer.Stop()

	results, err := normalizer.NormalizeScopes(context.Background(), []domain.Scope{scopeN(0), scopeN(1), scopeN(2)})
	require.NoError(t, err)

	assert.Equal(t, domain.NormalizeStatusUnchanged, results[0].Status)
	assert.Equal(t, domain.NormalizeStatusFailed, results[1].Status)
	assert.Equal(t, "lock timeout", results[1].Message)
	assert.Equal(t, domain.NormalizeStatusUnchanged, results[2].Status)
}

// TestNormalizerConcurrentCalls runs several calls at once; each must get
// exactly its own results back
func TestNormalizerConcurrentCalls(t *testing.T) {
	logger := zaptest.NewLogger(t)
	store := newFakeStore(200)
	normalizer := NewScopeNormalizer(store, ordering.NewManager(logger), 8, 50, logger)
	normalizer.Start()
	defer normalizer.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	for batch := 0; batch < 10; batch++ {
		scopes := make([]domain.Scope, 20)
		for i := range scopes {
			scopes[i] = scopeN(batch*20 + i)
		}

		wg.Add(1)
		go func(batch int, scopes []domain.Scope) {
			defer wg.Done()
			results, err := normalizer.NormalizeScopes(ctx, scopes)
			if !assert.NoError(t, err) {
				return
			}
			for i, r := range results {
				assert.Equal(t, scopes[i].Key(), r.ScopeKey, "batch %d index %d", batch, i)
			}
		}(batch, scopes)
	}
	wg.Wait()
}

func TestNormalizerEmptyInput(t *testing.T) {
	logger := zaptest.NewLogger(t)
	normalizer := NewScopeNormalizer(newFakeStore(0), ordering.NewManager(logger), 1, 1, logger)

	results, err := normalizer.NormalizeScopes(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

// TestNormalizerGracefulShutdown stops the pool while a call is in flight
func TestNormalizerGracefulShutdown(t *testing.T) {
	logger := zaptest.NewLogger(t)
	store := newFakeStore(100)
	store.delay = 5 * time.Millisecond
	normalizer := NewScopeNormalizer(store, ordering.NewManager(logger), 2, 100, logger)
	normalizer.Start()

	scopes := make([]domain.Scope, 100)
	for i := range scopes {
		scopes[i] = scopeN(i)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = normalizer.NormalizeScopes(context.Background(), scopes)
	}()

	time.Sleep(10 * time.Millisecond)
	normalizer.Stop()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Normalizer did not shutdown gracefully")
	}
}

func TestNormalizerAgainstSQLite(t *testing.T) {
	logger := zaptest.NewLogger(t)
	registry := families.New(families.Options{})
	store := dbtest.NewStore(t, registry)
	ctx := context.Background()

	for book := int64(1); book <= 3; book++ {
		for i := 0; i < 4; i++ {
			// every chapter shares seq 7 so each scope needs repair
			ch := &domain.BookChapter{BookID: book, Title: fmt.Sprintf("ch %d", i), Seq: 7}
			require.NoError(t, store.DB().Create(ch).Error)
		}
	}

	family, err := registry.Lookup(families.BookChapter)
	require.NoError(t, err)
	scopes, err := store.Scopes(ctx, family)
	require.NoError(t, err)
	require.Len(t, scopes, 3)

	normalizer := NewScopeNormalizer(store, ordering.NewManager(logger), 3, 10, logger)
	normalizer.Start()
	defer normalizer.Stop()

	results, err := normalizer.NormalizeScopes(ctx, scopes)
	require.NoError(t, err)
	for _, r := range results {
		assert.Equal(t, domain.NormalizeStatusRepaired, r.Status)
		assert.Equal(t, 4, r.Renumbered)
	}

	for _, scope := range scopes {
		siblings, err := store.Siblings(ctx, scope)
		require.NoError(t, err)
		assert.NoError(t, ordering.VerifyDense(siblings))
	}
}
