package replication

import (
	"context"
	"net/http"

	"github.com/roach88/pos/internal/stream"
)

// Response is the trigger reply. StatusCode is 200 whenever the batch was
// attempted; BatchItemFailures names records the trigger should retry.
type Response struct {
	StatusCode        int           `json:"statusCode"`
	Processed         int           `json:"processed"`
	Failed            int           `json:"failed"`
	BatchItemFailures []ItemFailure `json:"batchItemFailures"`
}

// ItemFailure identifies one failed record.
type ItemFailure struct {
	ItemIdentifier string `json:"itemIdentifier"`
}

// Handler serves stream trigger invocations.
type Handler struct {
	processor *Processor
}

// NewHandler creates a handler backed by p.
func NewHandler(p *Processor) *Handler {
	return &Handler{processor: p}
}

// Handle applies every record of ev and reports per-record failures.
func (h *Handler) Handle(ctx context.Context, ev stream.Event) Response {
	res, _ := h.processor.Apply(ctx, ev.Records)

	resp := Response{
		StatusCode:        http.StatusOK,
		Processed:         res.Processed,
		Failed:            len(res.Failures),
		BatchItemFailures: make([]ItemFailure, 0, len(res.Failures)),
	}
	for _, f := range res.Failures {
		resp.BatchItemFailures = append(resp.BatchItemFailures, ItemFailure{ItemIdentifier: f.Identifier()})
	}
	return resp
}
