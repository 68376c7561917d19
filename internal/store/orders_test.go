package store

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pos/internal/order"
	"github.com/roach88/pos/internal/stream"
)

func TestPutOrder_InsertThenGet(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	rec := mustRecord(t, `{"order_id":"A1","items":[{"sku":"x","qty":1}],"total":9.99,"timestamp":"2024-01-01T00:00:00Z","note":"extra"}`)

	change, err := s.PutOrder(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, stream.Insert, change.Event)
	assert.Equal(t, int64(1), change.Seq)
	assert.True(t, change.Appended())
	assert.Equal(t, "1", change.Sequence())

	got, err := s.GetOrder(ctx, "A1")
	require.NoError(t, err)
	assert.Equal(t, rec, got)
	assert.Equal(t, json.Number("9.99"), got["total"])
}

func TestPutOrder_UnchangedAppendsNothing(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	rec := mustRecord(t, `{"order_id":"A1","items":[],"total":1,"timestamp":"t"}`)

	first, err := s.PutOrder(ctx, rec)
	require.NoError(t, err)

	second, err := s.PutOrder(ctx, rec.Clone())
	require.NoError(t, err)
	assert.False(t, second.Appended())
	assert.Equal(t, first.Seq, second.Seq)

	last, err := s.LastFeedSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), last)
}

func TestPutOrder_ModifyCarriesOldImage(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.PutOrder(ctx, mustRecord(t, `{"order_id":"A1","total":1}`))
	require.NoError(t, err)
	change, err := s.PutOrder(ctx, mustRecord(t, `{"order_id":"A1","total":2}`))
	require.NoError(t, err)
	assert.Equal(t, stream.Modify, change.Event)
	assert.Equal(t, int64(2), change.Seq)

	feed, err := s.ReadFeed(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, feed, 1)
	assert.JSONEq(t, `{"N":"1"}`, string(feed[0].Change.OldImage["total"]))
	assert.JSONEq(t, `{"N":"2"}`, string(feed[0].Change.NewImage["total"]))
}

func TestPutOrder_MissingID(t *testing.T) {
	s := createTestStore(t)
	_, err := s.PutOrder(context.Background(), order.Record{"total": json.Number("1")})
	assert.Error(t, err)
}

func TestGetOrder_NotFound(t *testing.T) {
	s := createTestStore(t)
	_, err := s.GetOrder(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, order.IsNotFound(err))
}

func TestDeleteOrder(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.PutOrder(ctx, mustRecord(t, `{"order_id":"A1","total":5}`))
	require.NoError(t, err)

	change, err := s.DeleteOrder(ctx, "A1")
	require.NoError(t, err)
	assert.Equal(t, stream.Remove, change.Event)

	_, err = s.GetOrder(ctx, "A1")
	assert.True(t, order.IsNotFound(err))

	feed, err := s.ReadFeed(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, feed, 2)
	assert.Equal(t, stream.Remove, feed[1].EventName)
	assert.Nil(t, feed[1].Change.NewImage)
	assert.JSONEq(t, `{"S":"A1"}`, string(feed[1].Change.OldImage["order_id"]))

	_, err = s.DeleteOrder(ctx, "A1")
	assert.True(t, order.IsNotFound(err))
}

func TestPutOrder_AfterDeleteIsInsert(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	rec := mustRecord(t, `{"order_id":"A1","total":5}`)
	_, err := s.PutOrder(ctx, rec)
	require.NoError(t, err)
	_, err = s.DeleteOrder(ctx, "A1")
	require.NoError(t, err)

	change, err := s.PutOrder(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, stream.Insert, change.Event)
	assert.Equal(t, int64(3), change.Seq)
}

func TestListOrders(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	recs, err := s.ListOrders(ctx)
	require.NoError(t, err)
	assert.Empty(t, recs)

	for _, js := range []string{`{"order_id":"B2","total":2}`, `{"order_id":"A1","total":1}`, `{"order_id":"C3","total":3}`} {
		_, err := s.PutOrder(ctx, mustRecord(t, js))
		require.NoError(t, err)
	}
	_, err = s.DeleteOrder(ctx, "C3")
	require.NoError(t, err)

	recs, err = s.ListOrders(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "A1", recs[0].ID())
	assert.Equal(t, "B2", recs[1].ID())
}
