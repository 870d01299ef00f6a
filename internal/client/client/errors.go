package client

import "errors"

var (
	ErrUnavailable   = errors.New("server unavailable")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrForbidden     = errors.New("forbidden")
	ErrNotFound      = errors.New("not found")
	ErrInvalidInput  = errors.New("invalid input")
	ErrSecretNeeded  = errors.New("secure session: password required")
	ErrNoSession     = errors.New("not logged in")
	ErrAlreadyExists = errors.New("already exists")
)
