package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/pos/internal/order"
)

// createTestStore creates a new store in a temp dir with a fixed clock
// and deterministic event ids.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s, err := Open(path,
		WithClock(func() time.Time { return fixed }),
		WithIDGenerator(NewFixedGenerator("evt")),
		WithSource("us-east-1", "store-7"),
	)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// mustRecord decodes a JSON object literal into a record.
func mustRecord(t *testing.T, js string) order.Record {
	t.Helper()
	rec, err := order.DecodeRecord([]byte(js))
	if err != nil {
		t.Fatalf("DecodeRecord(%s) failed: %v", js, err)
	}
	return rec
}
