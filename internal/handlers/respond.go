package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ruralpay/ledger/internal/services"
)

const maxBodyBytes = 1_048_576 // 1 MB

// decodeJSON reads exactly one JSON object with no unknown fields into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return false
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return false
	}
	return true
}

// uuidParam reads a UUID path parameter, answering 400 when it is malformed.
func uuidParam(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	raw := chi.URLParam(r, name)
	id, err := uuid.Parse(raw)
	if err != nil {
		services.SendErrorResponse(w, "Invalid "+name, http.StatusBadRequest, nil)
		return "", false
	}
	return id.String(), true
}

// canonicalUUID returns the lowercase hyphenated form of an already
// validated UUID.
func canonicalUUID(raw string) string {
	id, err := uuid.Parse(raw)
	if err != nil {
		return raw
	}
	return id.String()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeServiceError maps service errors onto HTTP statuses. Infrastructure
// failures are logged and answered with a generic message.
func writeServiceError(w http.ResponseWriter, logger *zap.Logger, err error) {
	switch {
	case errors.Is(err, services.ErrAccountNotFound),
		errors.Is(err, services.ErrReceiverNotFound),
		errors.Is(err, services.ErrTransactionNotFound):
		services.SendErrorResponse(w, err.Error(), http.StatusNotFound, nil)
	case errors.Is(err, services.ErrInsufficientFunds),
		errors.Is(err, services.ErrCurrencyMismatch),
		errors.Is(err, services.ErrSameAccount),
		errors.Is(err, services.ErrInvalidAmount),
		errors.Is(err, services.ErrInvalidCursor):
		services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
	case errors.Is(err, services.ErrTransferInProgress),
		errors.Is(err, services.ErrIdempotencyKeyReused):
		services.SendErrorResponse(w, err.Error(), http.StatusConflict, nil)
	default:
		logger.Error("request failed", zap.Error(err))
		services.SendErrorResponse(w, "Failed to process request", http.StatusInternalServerError, nil)
	}
}
