package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound    = errors.New("score record not found")
	ErrConflict    = errors.New("concurrent update conflict")
	ErrUnavailable = errors.New("score store unavailable")
	ErrInvalidKey  = errors.New("invalid player key")
)
