// Package domain holds shared value types and the error taxonomy used
// across modules. Leaf operations wrap these sentinels; the HTTP boundary
// maps them to status codes.
package domain

import "errors"

var (
	// ErrNotFound maps to 404.
	ErrNotFound = errors.New("not found")
	// ErrValidation maps to 400.
	ErrValidation = errors.New("validation failed")
	// ErrForbidden maps to 403 (cross-agent access).
	ErrForbidden = errors.New("forbidden")
	// ErrUnauthorized maps to 401 (missing or invalid API key).
	ErrUnauthorized = errors.New("unauthorized")
	// ErrBudgetExceeded maps to 402 on the smart-router path.
	ErrBudgetExceeded = errors.New("budget exceeded")
	// ErrUnavailable maps to 503 (no configured providers, dependency timeout).
	ErrUnavailable = errors.New("unavailable")
)
