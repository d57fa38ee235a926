// Package retry holds the delivery retry policy shared by the outbox
// dispatcher and the inbox consumer.
package retry

import (
	"errors"
	"fmt"
	"time"
)

// Backoff is an exponential, capped retry schedule. The delay strictly
// increases with the attempt count until it reaches Cap.
type Backoff struct {
	Base        time.Duration
	Cap         time.Duration
	MaxAttempts int
}

// DefaultBackoff is 5s, 10s, 20s ... capped at 5m, with 10 attempts before
// a delivery is declared terminal.
func DefaultBackoff() Backoff {
	return Backoff{
		Base:        5 * time.Second,
		Cap:         5 * time.Minute,
		MaxAttempts: 10,
	}
}

// Next returns the delay before the given attempt (1-based) may run again.
func (b Backoff) Next(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	d := b.Base
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= b.Cap {
			return b.Cap
		}
	}
	if d > b.Cap {
		return b.Cap
	}
	return d
}

// Exhausted reports whether the attempt budget is spent.
func (b Backoff) Exhausted(attempts int) bool {
	return attempts >= b.MaxAttempts
}

// TerminalError marks a delivery failure that must not be retried, e.g. a
// payload the downstream permanently rejects.
type TerminalError struct {
	Err error
}

func (e *TerminalError) Error() string {
	return fmt.Sprintf("terminal: %v", e.Err)
}

func (e *TerminalError) Unwrap() error { return e.Err }

// Terminal wraps err as non-retryable.
func Terminal(err error) error {
	if err == nil {
		return nil
	}
	return &TerminalError{Err: err}
}

// IsTerminal reports whether err is marked non-retryable.
func IsTerminal(err error) bool {
	var t *TerminalError
	return errors.As(err, &t)
}
