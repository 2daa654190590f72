package errors

import (
	"errors"
	"sync"
	"time"
)

// ErrBreakerOpen is returned when the breaker is open and calls are blocked.
var ErrBreakerOpen = errors.New("breaker is open")

// BreakerState represents the breaker state.
type BreakerState int

const (
	// BreakerClosed is the normal state where calls are allowed.
	BreakerClosed BreakerState = iota
	// BreakerOpen is when the breaker is tripped and calls are blocked.
	BreakerOpen
	// BreakerHalfOpen is when the breaker is probing for recovery.
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Breaker trips after repeated failures so that optional services
// (reranker, generators) fail fast instead of adding latency to every
// request while down.
type Breaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration

	mu          sync.Mutex
	state       BreakerState
	failures    int
	lastFailure time.Time
}

// NewBreaker creates a breaker with the given name.
// Default: 5 consecutive failures, 30 second reset timeout.
func NewBreaker(name string, maxFailures int, resetTimeout time.Duration) *Breaker {
	if maxFailures <= 0 {
		maxFailures = 5
	}
	if resetTimeout <= 0 {
		resetTimeout = 30 * time.Second
	}
	return &Breaker{
		name:         name,
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		state:        BreakerClosed,
	}
}

// Name returns the breaker name.
func (b *Breaker) Name() string { return b.name }

// State returns the current state, accounting for reset timeout expiry.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stateLocked()
}

func (b *Breaker) stateLocked() BreakerState {
	if b.state == BreakerOpen && time.Since(b.lastFailure) > b.resetTimeout {
		return BreakerHalfOpen
	}
	return b.state
}

// Allow reports whether a call should be attempted.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stateLocked() != BreakerOpen
}

// Record updates the breaker after a call. A nil error closes the
// breaker and clears the failure count; an error increments it and
// trips the breaker at the threshold.
func (b *Breaker) Record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		b.state = BreakerClosed
		b.failures = 0
		return
	}

	b.failures++
	b.lastFailure = time.Now()
	if b.failures >= b.maxFailures {
		b.state = BreakerOpen
	}
}

// Do runs fn through the breaker. When the breaker is open it returns
// ErrBreakerOpen without invoking fn.
func (b *Breaker) Do(fn func() error) error {
	if !b.Allow() {
		return ErrBreakerOpen
	}
	err := fn()
	b.Record(err)
	return err
}
