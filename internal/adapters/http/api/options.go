package api

import "golang.org/x/time/rate"

const (
	defaultMaxBodyBytes    = 1 << 20
	defaultPopulatePlayers = 50
)

type config struct {
	ratePerSec      rate.Limit
	burst           int
	maxBodyBytes    int64
	populatePlayers int
	maintenance     bool
}

func defaultConfig() config {
	return config{
		maxBodyBytes:    defaultMaxBodyBytes,
		populatePlayers: defaultPopulatePlayers,
		maintenance:     true,
	}
}

// Option configures a Server.
type Option func(*config)

// WithRateLimit limits submissions per client IP. A rate <= 0 disables limiting.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *config) {
		c.ratePerSec = rate.Limit(perSecond)
		c.burst = max(burst, 1)
	}
}

// WithMaxBodyBytes caps request bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(c *config) {
		if n > 0 {
			c.maxBodyBytes = n
		}
	}
}

// WithPopulatePlayers sets the player count used when a populate request names none.
func WithPopulatePlayers(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.populatePlayers = n
		}
	}
}

// WithMaintenance exposes or hides the clear and populate endpoints.
func WithMaintenance(enabled bool) Option {
	return func(c *config) {
		c.maintenance = enabled
	}
}
