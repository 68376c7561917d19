package httpapi

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pos/internal/intake"
	"github.com/roach88/pos/internal/replication"
	"github.com/roach88/pos/internal/store"
)

func newTestServer(t *testing.T, raw bool) (*httptest.Server, *store.Store) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "pos.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	svc := intake.NewService(s, s.Master())
	handler := NewHandler(svc, Options{
		RawEnabled:  raw,
		Replication: replication.NewHandler(replication.NewProcessor(s.Master())),
		Health:      s,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv, s
}

func do(t *testing.T, method, url, body string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(data)
}

func TestServer_EndToEnd(t *testing.T) {
	srv, s := newTestServer(t, false)

	order := `{"order_id":"A1","items":[{"sku":"tea","qty":1}],"total":3.25,"timestamp":"2024-05-01T08:00:00Z"}`
	status, body := do(t, http.MethodPost, srv.URL+"/order", order)
	require.Equal(t, http.StatusCreated, status, body)

	status, body = do(t, http.MethodGet, srv.URL+"/orders/A1", "")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, order, body)
	assert.Contains(t, body, `"total":3.25`)

	status, _ = do(t, http.MethodGet, srv.URL+"/master/orders/A1", "")
	require.Equal(t, http.StatusOK, status)

	// Delete in the store, then deliver the REMOVE from the feed.
	status, _ = do(t, http.MethodDelete, srv.URL+"/orders/A1", "")
	require.Equal(t, http.StatusOK, status)

	feed, err := s.ReadFeed(t.Context(), 1, 10)
	require.NoError(t, err)
	require.Len(t, feed, 1)
	event, err := json.Marshal(map[string]any{"Records": feed})
	require.NoError(t, err)

	status, body = do(t, http.MethodPost, srv.URL+"/replication/events", string(event))
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"statusCode":200,"processed":1,"failed":0,"batchItemFailures":[]}`, body)

	status, body = do(t, http.MethodGet, srv.URL+"/master/orders/A1", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, body, `"error":"Order not found"`)
}

func TestServer_MissingFields(t *testing.T) {
	srv, _ := newTestServer(t, false)

	status, body := do(t, http.MethodPost, srv.URL+"/order", `{"order_id":"A1"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.JSONEq(t, `{"error":"Missing required order fields","code":"validation","missing":["items","total","timestamp"]}`, body)

	status, _ = do(t, http.MethodGet, srv.URL+"/orders/A1", "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestServer_RawRouteToggle(t *testing.T) {
	srv, _ := newTestServer(t, false)
	status, _ := do(t, http.MethodPost, srv.URL+"/submit_order", `{"a":1}`)
	assert.Equal(t, http.StatusNotFound, status)

	srv, _ = newTestServer(t, true)
	status, body := do(t, http.MethodPost, srv.URL+"/submit_order", `{"a":1}`)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"status":"Order saved","id":1}`, body)

	status, body = do(t, http.MethodPost, srv.URL+"/submit_order", ``)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.JSONEq(t, `{"error":"No data provided","code":"validation"}`, body)
}

func TestServer_ReplicationPartialFailure(t *testing.T) {
	srv, _ := newTestServer(t, false)

	event := `{"Records":[
		{"eventName":"INSERT","dynamodb":{"SequenceNumber":"1","NewImage":{"order_id":{"S":"B1"},"total":{"N":"1"}}}},
		{"eventName":"INSERT","dynamodb":{"SequenceNumber":"2","NewImage":{"order_id":{"S":"B2"},"total":{"N":"bad"}}}},
		{"eventName":"INSERT","dynamodb":{"SequenceNumber":"3","NewImage":{"order_id":{"S":"B3"},"total":{"N":"3"}}}}
	]}`
	status, body := do(t, http.MethodPost, srv.URL+"/replication/events", event)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"statusCode":200,"processed":3,"failed":1,"batchItemFailures":[{"itemIdentifier":"2"}]}`, body)

	status, _ = do(t, http.MethodGet, srv.URL+"/master/orders/B3", "")
	assert.Equal(t, http.StatusOK, status)

	status, _ = do(t, http.MethodPost, srv.URL+"/replication/events", `{"Records":`)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestServer_Health(t *testing.T) {
	srv, _ := newTestServer(t, false)
	status, body := do(t, http.MethodGet, srv.URL+"/health", "")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"status":"ok"}`, body)
}
