// Package storetest opens migrated in-memory stores for tests.
package storetest

import (
	"context"
	"testing"

	"github.com/spigell/talent-outreach/internal/store"
)

// New returns an in-memory SQLite store with every migration applied.
func New(t testing.TB) *store.Store {
	t.Helper()

	s, err := store.Open(context.Background(), store.Config{Driver: store.DriverSQLite, URL: ":memory:"})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	if err := s.Migrate(store.MigrateUp, 0, nil); err != nil {
		t.Fatalf("migrate store: %v", err)
	}
	return s
}
