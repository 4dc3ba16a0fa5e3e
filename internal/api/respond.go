// Package api defines the JSON envelope every HTTP response uses and the
// mapping from domain errors to HTTP statuses.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/cylonmolting/agora-oracle/internal/domain"
)

// Version reported in every response envelope.
const Version = "v1"

// Envelope is the wire shape of all API responses except the health probe.
type Envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Meta    Meta        `json:"meta"`
}

// Meta carries response metadata.
type Meta struct {
	Timestamp  string `json:"timestamp"`
	APIVersion string `json:"apiVersion"`
}

func newMeta() Meta {
	return Meta{
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		APIVersion: Version,
	}
}

// OK writes a 200 success envelope.
func OK(w http.ResponseWriter, data interface{}) {
	Respond(w, http.StatusOK, data)
}

// Created writes a 201 success envelope.
func Created(w http.ResponseWriter, data interface{}) {
	Respond(w, http.StatusCreated, data)
}

// Respond writes a success envelope with the given status.
func Respond(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Envelope{
		Success: true,
		Data:    data,
		Meta:    newMeta(),
	})
}

// Error writes a failure envelope with an explicit status and message.
func Error(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Envelope{
		Success: false,
		Error:   msg,
		Meta:    newMeta(),
	})
}

// FromError maps a domain error to its status. Unexpected errors surface
// as 500 with a generic message; callers log the details.
func FromError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		Error(w, http.StatusUnauthorized, "missing or invalid API key")
	case errors.Is(err, domain.ErrBudgetExceeded):
		Error(w, http.StatusPaymentRequired, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		Error(w, http.StatusForbidden, "access denied")
	case errors.Is(err, domain.ErrNotFound):
		Error(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrUnavailable):
		Error(w, http.StatusServiceUnavailable, err.Error())
	default:
		Error(w, http.StatusInternalServerError, "internal error")
	}
}
