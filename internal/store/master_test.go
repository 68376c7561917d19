package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pos/internal/order"
)

func TestMaster_UpsertAndGet(t *testing.T) {
	m := createTestStore(t).Master()
	ctx := context.Background()

	rec := mustRecord(t, `{"order_id":"A1","total":42}`)
	ok, err := m.Upsert(ctx, "A1", rec, "1", "store-7")
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := m.Get(ctx, "A1")
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestMaster_StaleWritesSkipped(t *testing.T) {
	m := createTestStore(t).Master()
	ctx := context.Background()

	ok, err := m.Upsert(ctx, "A1", mustRecord(t, `{"order_id":"A1","v":2}`), "20", "s")
	require.NoError(t, err)
	assert.True(t, ok)

	// Numeric, not lexical: 9 < 20.
	ok, err = m.Upsert(ctx, "A1", mustRecord(t, `{"order_id":"A1","v":1}`), "9", "s")
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := m.Get(ctx, "A1")
	require.NoError(t, err)
	assert.Equal(t, mustRecord(t, `{"order_id":"A1","v":2}`), got)

	// Same sequence re-applies (duplicate delivery).
	ok, err = m.Upsert(ctx, "A1", mustRecord(t, `{"order_id":"A1","v":2}`), "20", "s")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMaster_DeleteLeavesTombstone(t *testing.T) {
	m := createTestStore(t).Master()
	ctx := context.Background()

	rec := mustRecord(t, `{"order_id":"A1"}`)
	_, err := m.Upsert(ctx, "A1", rec, "1", "s")
	require.NoError(t, err)

	ok, err := m.Delete(ctx, "A1", "3", "s")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = m.Get(ctx, "A1")
	assert.True(t, order.IsNotFound(err))

	// A replayed INSERT from before the delete stays hidden.
	ok, err = m.Upsert(ctx, "A1", rec, "1", "s")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = m.Get(ctx, "A1")
	assert.True(t, order.IsNotFound(err))

	snap, err := m.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap, 1)
	assert.True(t, snap[0].Deleted)
	assert.Equal(t, "3", snap[0].Sequence)
	assert.Nil(t, snap[0].Record)
}

func TestMaster_DeleteAbsentKey(t *testing.T) {
	m := createTestStore(t).Master()
	ctx := context.Background()

	_, err := m.Delete(ctx, "ghost", "5", "s")
	require.NoError(t, err)

	_, err = m.Get(ctx, "ghost")
	assert.True(t, order.IsNotFound(err))
}

func TestMaster_UnorderedWriteKeepsSequence(t *testing.T) {
	m := createTestStore(t).Master()
	ctx := context.Background()

	_, err := m.Upsert(ctx, "A1", mustRecord(t, `{"order_id":"A1","v":1}`), "10", "s")
	require.NoError(t, err)

	ok, err := m.Upsert(ctx, "A1", mustRecord(t, `{"order_id":"A1","v":2}`), "", "manual")
	require.NoError(t, err)
	assert.True(t, ok)

	// Still guarded by seq 10.
	ok, err = m.Upsert(ctx, "A1", mustRecord(t, `{"order_id":"A1","v":0}`), "4", "s")
	require.NoError(t, err)
	assert.False(t, ok)

	snap, err := m.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap, 1)
	assert.Equal(t, "10", snap[0].Sequence)
	assert.Equal(t, "manual", snap[0].Source)
}

func TestMaster_InvalidSequence(t *testing.T) {
	m := createTestStore(t).Master()
	_, err := m.Upsert(context.Background(), "A1", mustRecord(t, `{"order_id":"A1"}`), "12a", "s")
	assert.Error(t, err)
}

func TestMaster_SnapshotOrdered(t *testing.T) {
	m := createTestStore(t).Master()
	ctx := context.Background()

	for _, k := range []string{"C", "A", "B"} {
		_, err := m.Upsert(ctx, k, order.Record{"order_id": k}, "", "s")
		require.NoError(t, err)
	}

	snap, err := m.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap, 3)
	assert.Equal(t, []string{"A", "B", "C"}, []string{snap[0].Key, snap[1].Key, snap[2].Key})
	assert.Empty(t, snap[0].Sequence)
}
