package service

import "errors"

var (
	// ErrNotStarted is returned by operations called before Start.
	ErrNotStarted = errors.New("service not started")
	// ErrBusy is returned when the import queue has no room for a batch.
	ErrBusy = errors.New("import queue full")
)
