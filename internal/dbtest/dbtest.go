// Package dbtest opens isolated in-memory catalog databases for tests.
package dbtest

import (
	"context"
	"fmt"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rizkypsr/cms-masterlu/internal/families"
	"github.com/rizkypsr/cms-masterlu/internal/repositories"
)

// DSN returns a unique shared-cache in-memory SQLite DSN
func DSN() string {
	return fmt.Sprintf("file:testdb_%s?mode=memory&cache=shared", ulid.Make().String())
}

// NewStore opens a fresh SQLite store with every family table migrated.
// The store is closed when the test ends.
func NewStore(t testing.TB, registry *families.Registry) *repositories.SQLRepository {
	t.Helper()

	store, err := repositories.NewSQLRepository(repositories.SQLConfig{
		Driver: repositories.DialectSQLite,
		DSN:    DSN(),
	}, registry.Models(), zaptest.NewLogger(t))
	require.NoError(t, err)

	require.NoError(t, store.EnsureCollections(context.Background()))
	t.Cleanup(func() { _ = store.Close() })

	return store
}
