package domain

import "errors"

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrBadRequest   = errors.New("bad request")

	// ErrNoSession means no session has been established yet. The verification
	// poller treats it as an expected transient between account creation and
	// the first session hand-off, never as a reportable failure.
	ErrNoSession = errors.New("no session")
)
