// Package httpapi is the HTTP surface of the order service.
package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/roach88/pos/internal/intake"
	"github.com/roach88/pos/internal/replication"
)

// Options selects the routes NewHandler mounts.
type Options struct {
	// RawEnabled mounts POST /submit_order.
	RawEnabled bool

	// Replication mounts POST /replication/events when non-nil.
	Replication *replication.Handler

	// Health is pinged by GET /health when non-nil.
	Health Pinger

	Logger *slog.Logger
}

// NewHandler builds the service router wrapped in request logging.
func NewHandler(svc *intake.Service, opts Options) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /health", HandleHealth(opts.Health))
	mux.Handle("POST /order", HandleCreateOrder(svc))
	mux.Handle("GET /orders/{order_id}", HandleGetOrder(svc.Get))
	mux.Handle("DELETE /orders/{order_id}", HandleDeleteOrder(svc))
	mux.Handle("GET /master/orders/{order_id}", HandleGetOrder(svc.GetMaster))

	if opts.RawEnabled {
		mux.Handle("POST /submit_order", HandleSubmitOrder(svc))
	}
	if opts.Replication != nil {
		mux.Handle("POST /replication/events", HandleReplicationEvents(opts.Replication))
	}

	return RequestLogger(mux, opts.Logger)
}
