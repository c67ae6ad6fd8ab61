package client

import (
	"errors"
	"time"

	"github.com/cory-johannsen/flowspace/internal/config"
)

const (
	// DefaultInitialDelay is the wait before the first reconnection attempt.
	DefaultInitialDelay = 500 * time.Millisecond
	// DefaultMaxDelay caps the growth of the reconnection delay.
	DefaultMaxDelay = 5 * time.Second
	// DefaultMaxAttempts bounds reconnection before giving up for good.
	DefaultMaxAttempts = 30
)

// ErrRetriesExhausted is returned once the attempt ceiling is reached. It is
// terminal: the caller must surface it to the user and wait for a manual
// reload rather than retry further.
var ErrRetriesExhausted = errors.New("reconnection attempts exhausted")

// Backoff produces the delay before each reconnection attempt: the delay
// doubles from the initial value up to a cap, and the attempt count is
// bounded. Not safe for concurrent use.
type Backoff struct {
	initial     time.Duration
	max         time.Duration
	maxAttempts int
	attempts    int
}

// NewBackoff creates a Backoff with the given policy.
//
// Precondition: initial > 0, max >= initial, maxAttempts > 0.
func NewBackoff(initial, max time.Duration, maxAttempts int) *Backoff {
	return &Backoff{
		initial:     initial,
		max:         max,
		maxAttempts: maxAttempts,
	}
}

// NewDefaultBackoff creates a Backoff with the standard reconnection policy.
func NewDefaultBackoff() *Backoff {
	return NewBackoff(DefaultInitialDelay, DefaultMaxDelay, DefaultMaxAttempts)
}

// NewBackoffFromConfig creates a Backoff from the configured reconnection
// policy, falling back to the defaults for unset fields.
func NewBackoffFromConfig(cfg config.ClientConfig) *Backoff {
	initial := cfg.ReconnectDelay
	if initial <= 0 {
		initial = DefaultInitialDelay
	}
	max := cfg.ReconnectDelayMax
	if max < initial {
		max = DefaultMaxDelay
	}
	attempts := cfg.ReconnectAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	return NewBackoff(initial, max, attempts)
}

// Next returns the delay to wait before the next attempt.
//
// Postcondition: Returns ErrRetriesExhausted once maxAttempts delays have
// been handed out; the counter only moves forward until Reset.
func (b *Backoff) Next() (time.Duration, error) {
	if b.attempts >= b.maxAttempts {
		return 0, ErrRetriesExhausted
	}

	delay := b.initial << b.attempts
	if delay > b.max || delay <= 0 {
		delay = b.max
	}
	b.attempts++
	return delay, nil
}

// Attempts returns how many delays have been handed out since the last Reset.
func (b *Backoff) Attempts() int {
	return b.attempts
}

// Reset clears the attempt counter after a successful connection.
func (b *Backoff) Reset() {
	b.attempts = 0
}
