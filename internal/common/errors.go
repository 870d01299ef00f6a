// Package common defines shared constants, sentinel errors and random helpers
// used across the server, the transport and the reference client. Callers
// should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")

	// Validation errors, raised before any key material is touched.
	ErrInvalidLoginID = errors.New("invalid login id")
	ErrLoginIDTaken   = errors.New("login id already taken")
	ErrInvalidSecret  = errors.New("invalid secret format")
	ErrInvalidInput   = errors.New("invalid input")

	// Authentication errors. Every login failure is reported to callers as
	// ErrInvalidCredentials whatever the underlying reason.
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrSessionRevoked       = errors.New("session revoked")
	ErrMasterKeyUnavailable = errors.New("master key unavailable")

	// Integrity errors: key material that should decrypt does not.
	ErrIntegrity = errors.New("integrity check failed")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")

	// Graph errors.
	ErrShareNotPending   = errors.New("share is not pending")
	ErrRecoveryPlanEmpty = errors.New("recovery plan has no shares")
)
