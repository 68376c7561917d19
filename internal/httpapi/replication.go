package httpapi

import (
	"bytes"
	"context"
	"net/http"

	"github.com/roach88/pos/internal/replication"
	"github.com/roach88/pos/internal/stream"
)

// EventHandler applies a trigger batch.
type EventHandler interface {
	Handle(ctx context.Context, ev stream.Event) replication.Response
}

// HandleReplicationEvents returns the trigger endpoint
// (POST /replication/events). Once a batch decodes, the reply is always
// 200 with per-record failures in batchItemFailures.
func HandleReplicationEvents(h EventHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, ok := readBody(w, r)
		if !ok {
			return
		}

		ev, err := stream.Decode(bytes.NewReader(body))
		if err != nil {
			writeError(w, http.StatusBadRequest, codeValidation, msgInvalidEvent)
			return
		}

		writeJSON(w, http.StatusOK, h.Handle(r.Context(), ev))
	}
}
