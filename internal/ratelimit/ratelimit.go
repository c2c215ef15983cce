// Package ratelimit bounds the rate at which an Enumeration Worker issues
// Directory Client searches, so a burst of per-object jobs cannot spike
// request rate against a domain controller.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Config configures a Limiter. RequestsPerSecond <= 0 means unlimited.
type Config struct {
	RequestsPerSecond float64
	Burst             int
}

// Limiter wraps golang.org/x/time/rate for directory-query throttling.
type Limiter struct {
	limiter *rate.Limiter
}

// New builds a Limiter. An unlimited limiter is returned when
// cfg.RequestsPerSecond <= 0, preserving current (unthrottled) behavior.
func New(cfg Config) *Limiter {
	if cfg.RequestsPerSecond <= 0 {
		return &Limiter{limiter: rate.NewLimiter(rate.Inf, 0)}
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
	}
	return &Limiter{limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)}
}

// Wait blocks until a token is available or ctx is cancelled. It is a
// suspension point inside a worker, alongside directory I/O and output-
// channel sends, and is the first thing a cancelled worker context
// unblocks.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}
