// Package db test helpers. Using these ensures in-memory databases for
// speed and cleanup via t.Cleanup().
package db

import (
	"testing"
)

// NewTestStore creates an in-memory store for testing. Schema
// migrations are applied automatically and the store is closed when the
// test completes.
func NewTestStore(t testing.TB) *Store {
	t.Helper()

	s, err := OpenInMemory()
	if err != nil {
		t.Fatalf("create test store: %v", err)
	}

	t.Cleanup(func() {
		_ = s.Close()
	})

	return s
}
