package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/roach88/pos/internal/intake"
	"github.com/roach88/pos/internal/order"
	"github.com/roach88/pos/internal/store"
)

// MaxBodyBytes caps request bodies.
const MaxBodyBytes = 1 << 20

// OrderSubmitter is the minimal interface needed to accept strict orders.
type OrderSubmitter interface {
	Submit(ctx context.Context, payload []byte) (intake.Confirmation, error)
}

// RawSubmitter is the minimal interface needed to accept permissive orders.
type RawSubmitter interface {
	SubmitRaw(ctx context.Context, payload []byte) (intake.RawConfirmation, error)
}

// OrderGetter reads one order by id.
type OrderGetter func(ctx context.Context, orderID string) (order.Record, error)

// OrderDeleter is the minimal interface needed to delete orders.
type OrderDeleter interface {
	Delete(ctx context.Context, orderID string) (store.Change, error)
}

// HandleCreateOrder returns the strict intake handler (POST /order).
func HandleCreateOrder(svc OrderSubmitter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, ok := readBody(w, r)
		if !ok {
			return
		}

		conf, err := svc.Submit(r.Context(), body)
		if err != nil {
			writeOrderError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, createOrderResponse{
			Message: "Order created successfully",
			OrderID: conf.OrderID,
			Seq:     conf.Seq,
			Created: conf.Created,
		})
	}
}

type createOrderResponse struct {
	Message string `json:"message"`
	OrderID string `json:"order_id"`
	Seq     string `json:"seq"`
	Created bool   `json:"created"`
}

// HandleSubmitOrder returns the permissive intake handler (POST /submit_order).
func HandleSubmitOrder(svc RawSubmitter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, ok := readBody(w, r)
		if !ok {
			return
		}

		conf, err := svc.SubmitRaw(r.Context(), body)
		if err != nil {
			if order.IsValidation(err) {
				writeError(w, http.StatusBadRequest, codeValidation, msgNoData)
				return
			}
			writeOrderError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, submitOrderResponse{Status: "Order saved", ID: conf.ID})
	}
}

type submitOrderResponse struct {
	Status string `json:"status"`
	ID     int64  `json:"id"`
}

// HandleGetOrder returns a handler serving GET .../{order_id} from get.
// The stored record is written as canonical JSON so numbers keep their
// original text.
func HandleGetOrder(get OrderGetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := get(r.Context(), r.PathValue("order_id"))
		if err != nil {
			writeOrderError(w, err)
			return
		}

		payload, err := rec.Canonical()
		if err != nil {
			writeError(w, http.StatusInternalServerError, codeInternalError, msgInternal)
			return
		}
		writeRaw(w, http.StatusOK, payload)
	}
}

// HandleDeleteOrder returns the DELETE /orders/{order_id} handler.
func HandleDeleteOrder(svc OrderDeleter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID := r.PathValue("order_id")
		change, err := svc.Delete(r.Context(), orderID)
		if err != nil {
			writeOrderError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, deleteOrderResponse{
			Message: "Order deleted",
			OrderID: orderID,
			Seq:     change.Sequence(),
		})
	}
}

type deleteOrderResponse struct {
	Message string `json:"message"`
	OrderID string `json:"order_id"`
	Seq     string `json:"seq"`
}

// readBody reads a bounded request body, writing a 413 when it is too big.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, codeTooLarge, msgRequestTooLong)
			return nil, false
		}
		writeError(w, http.StatusBadRequest, codeValidation, msgNoData)
		return nil, false
	}
	return body, true
}
