package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/roach88/pos/internal/order"
)

// Client-facing messages.
const (
	msgMissingFields  = "Missing required order fields"
	msgNoData         = "No data provided"
	msgNotFound       = "Order not found"
	msgInternal       = "Internal server error"
	msgInvalidEvent   = "Invalid replication event"
	msgRequestTooLong = "Request body too large"
)

const (
	codeValidation    = "validation"
	codeNotFound      = "not_found"
	codeInternalError = "internal_error"
	codeStorage       = "storage_error"
	codeTooLarge      = "request_too_large"
)

type errorResponse struct {
	Error   string   `json:"error"`
	Code    string   `json:"code"`
	Missing []string `json:"missing,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Internal server error","code":"internal_error"}`))
		return
	}
	writeRaw(w, status, payload)
}

func writeRaw(w http.ResponseWriter, status int, payload []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}

// writeOrderError maps an order error kind to a status and body.
func writeOrderError(w http.ResponseWriter, err error) {
	var oe *order.Error
	if !errors.As(err, &oe) {
		writeError(w, http.StatusInternalServerError, codeInternalError, msgInternal)
		return
	}

	switch oe.Kind {
	case order.KindValidation:
		resp := errorResponse{Error: oe.Message, Code: codeValidation, Missing: oe.Missing}
		if len(oe.Missing) > 0 || oe.Message == "no data provided" {
			resp.Error = msgMissingFields
		}
		writeJSON(w, http.StatusBadRequest, resp)
	case order.KindNotFound:
		writeError(w, http.StatusNotFound, codeNotFound, msgNotFound)
	case order.KindStorage:
		writeError(w, http.StatusInternalServerError, codeStorage, storageText(oe))
	default:
		writeError(w, http.StatusInternalServerError, codeInternalError, msgInternal)
	}
}

// storageText is the storage failure reported to the client: the
// underlying driver error when there is one.
func storageText(oe *order.Error) string {
	if oe.Err != nil {
		return oe.Err.Error()
	}
	return oe.Error()
}
