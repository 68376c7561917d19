package testutil

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/roach88/pos/internal/order"
	"github.com/roach88/pos/internal/store"
	"github.com/roach88/pos/internal/stream"
)

// MemoryMaster is an in-memory master table with the same sequence guard
// as store.Master. FailKeys makes writes for chosen keys fail, for
// exercising partial-failure paths.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type MemoryMaster struct {
	mu       sync.Mutex
	rows     map[string]store.MasterRow
	FailKeys map[string]error
}

// NewMemoryMaster creates an empty master.
func NewMemoryMaster() *MemoryMaster {
	return &MemoryMaster{
		rows:     make(map[string]store.MasterRow),
		FailKeys: make(map[string]error),
	}
}

// ErrInjected is the default failure for FailKeys entries with a nil error.
var ErrInjected = errors.New("injected failure")

func (m *MemoryMaster) Upsert(ctx context.Context, key string, rec order.Record, sequence, source string) (bool, error) {
	return m.write(ctx, key, rec, sequence, source, false)
}

func (m *MemoryMaster) Delete(ctx context.Context, key, sequence, source string) (bool, error) {
	return m.write(ctx, key, nil, sequence, source, true)
}

func (m *MemoryMaster) write(ctx context.Context, key string, rec order.Record, sequence, source string, deleted bool) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	seq, err := stream.NormalizeSequence(sequence)
	if err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if failErr, ok := m.FailKeys[key]; ok {
		if failErr == nil {
			failErr = ErrInjected
		}
		return false, failErr
	}

	prev, exists := m.rows[key]
	if exists && seq != "" && seq < prev.Sequence {
		return false, nil
	}
	if seq == "" && exists {
		seq = prev.Sequence
	}

	m.rows[key] = store.MasterRow{
		Key:      key,
		Record:   rec,
		Sequence: seq,
		Source:   source,
		Deleted:  deleted,
	}
	return true, nil
}

// Get returns the live record for key.
func (m *MemoryMaster) Get(ctx context.Context, key string) (order.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.rows[key]
	if !ok || row.Deleted {
		return nil, order.NewNotFoundError(key)
	}
	return row.Record, nil
}

// Snapshot returns every row ordered by key, with display sequences.
func (m *MemoryMaster) Snapshot(ctx context.Context) ([]store.MasterRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]store.MasterRow, 0, len(m.rows))
	for _, row := range m.rows {
		row.Sequence = stream.TrimSequence(row.Sequence)
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Len returns the number of live rows.
func (m *MemoryMaster) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, row := range m.rows {
		if !row.Deleted {
			n++
		}
	}
	return n
}
