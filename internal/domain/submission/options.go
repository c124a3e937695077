package submission

import (
	"time"

	"github.com/okian/leaderboard/pkg/logger"
)

// Option applies a configuration option to the Processor.
type Option func(*Processor)

// WithClock overrides the time source used for submittedAt.
func WithClock(now func() time.Time) Option {
	return func(p *Processor) {
		if now != nil {
			p.now = now
		}
	}
}

// WithMaxAttempts bounds how many times a conflicting submission is tried.
func WithMaxAttempts(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

// WithRetryInitialInterval sets the first backoff delay after a conflict.
func WithRetryInitialInterval(d time.Duration) Option {
	return func(p *Processor) {
		if d > 0 {
			p.retryInitial = d
		}
	}
}

// WithLogger sets the processor's logger.
func WithLogger(log logger.Logger) Option {
	return func(p *Processor) {
		if log != nil {
			p.log = log
		}
	}
}
