package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/okian/leaderboard/internal/adapters/mq/queue"
	"github.com/okian/leaderboard/internal/adapters/repository"
	"github.com/okian/leaderboard/internal/domain/pagination"
	"github.com/okian/leaderboard/internal/domain/ranking"
	"github.com/okian/leaderboard/internal/domain/submission"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest   = errors.New("bad request")
	ErrBackpressure = errors.New("backpressure")
	ErrRateLimited  = errors.New("rate limited")
	ErrUnavailable  = errors.New("temporarily unavailable, retry")
	ErrInternal     = errors.New("internal error")
)

// Error records the handler operation and API kind of a failure.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Kind != nil:
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
}

func (e *Error) Unwrap() []error {
	var errs []error
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// NewKind returns an Error of kind with no underlying cause.
func NewKind(op string, kind error) error {
	return &Error{Op: op, Kind: kind}
}

// Wrap attaches op to err.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}

// WrapKind attaches op and kind to err.
func WrapKind(op string, kind, err error) error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// problem is how an error is shown to clients.
type problem struct {
	status  int
	code    string
	message string
	// internal problems are logged with their full error.
	internal bool
}

// classify maps domain errors to HTTP statuses. Messages of 5xx responses
// never carry error details.
func classify(err error) problem {
	var verr *submission.ValidationError
	switch {
	case errors.As(err, &verr):
		return problem{status: http.StatusBadRequest, code: "invalid_submission", message: verr.Error()}
	case errors.Is(err, ranking.ErrInvalidLevel):
		return problem{status: http.StatusBadRequest, code: "invalid_level", message: "level must be between 0 and 5"}
	case errors.Is(err, pagination.ErrInvalidQuery), errors.Is(err, ErrBadRequest):
		return problem{status: http.StatusBadRequest, code: "bad_request", message: rootMessage(err)}
	case errors.Is(err, repository.ErrNotFound):
		return problem{status: http.StatusNotFound, code: "not_found", message: "not found"}
	case errors.Is(err, queue.ErrFull), errors.Is(err, queue.ErrClosed), errors.Is(err, ErrBackpressure):
		return problem{status: http.StatusTooManyRequests, code: "backpressure", message: "import queue full, retry later"}
	case errors.Is(err, ErrRateLimited):
		return problem{status: http.StatusTooManyRequests, code: "rate_limited", message: "too many requests"}
	case errors.Is(err, repository.ErrConflict), errors.Is(err, context.DeadlineExceeded):
		return problem{status: http.StatusServiceUnavailable, code: "unavailable", message: ErrUnavailable.Error(), internal: true}
	default:
		return problem{status: http.StatusInternalServerError, code: "internal_error", message: ErrInternal.Error(), internal: true}
	}
}

// rootMessage returns the innermost message of an *Error, or err's own.
func rootMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Err != nil {
		return e.Err.Error()
	}
	return err.Error()
}
