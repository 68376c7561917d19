package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer s.Close()

	tables := []string{"raw_orders", "orders", "change_feed", "master_orders", "replication_checkpoints"}
	for _, table := range tables {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found after idempotent opens: %v", table, err)
		}
	}
}

func TestOpen_Pragmas(t *testing.T) {
	s := createTestStore(t)

	if err := s.verifyPragma("journal_mode", "wal"); err != nil {
		t.Error(err)
	}
	if err := s.verifyPragma("busy_timeout", "5000"); err != nil {
		t.Error(err)
	}
	if err := s.verifyPragma("user_version", "1"); err != nil {
		t.Error(err)
	}
}

func TestOpen_MasterIndex(t *testing.T) {
	s := createTestStore(t)

	var name string
	err := s.db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='index' AND name='idx_master_orders_live'",
	).Scan(&name)
	if err != nil {
		t.Fatalf("index not created: %v", err)
	}
}

func TestPing(t *testing.T) {
	s := createTestStore(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() failed: %v", err)
	}
}

func TestSourceARN(t *testing.T) {
	s := createTestStore(t)
	want := "arn:pos:us-east-1:store-7:table/orders/stream"
	if got := s.SourceARN(); got != want {
		t.Errorf("SourceARN() = %q, want %q", got, want)
	}
}

func TestFixedGenerator(t *testing.T) {
	g := NewFixedGenerator("evt", "a", "b")
	got := []string{g.Generate(), g.Generate(), g.Generate()}
	want := []string{"a", "b", "evt-3"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Generate() #%d = %q, want %q", i, got[i], want[i])
		}
	}

	defer func() {
		if recover() == nil {
			t.Error("expected panic when ids are exhausted without prefix")
		}
	}()
	NewFixedGenerator("").Generate()
}
