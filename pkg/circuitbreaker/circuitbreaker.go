// Package circuitbreaker stops calling a failing dependency for a while so
// that callers fall back quickly instead of waiting on timeouts.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State is the state of a breaker.
type State int

const (
	StateClosed   State = iota // every call goes through
	StateOpen                  // calls are rejected until the cool-down ends
	StateHalfOpen              // a few probe calls decide the next state
)

var stateNames = [...]string{"closed", "open", "half-open"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

var (
	// ErrCircuitOpen is returned without calling fn while the breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// ErrTooManyRequests is returned when every half-open probe slot is taken.
	ErrTooManyRequests = errors.New("circuit breaker: probe limit reached")
)

// IsRejected reports whether err came from the breaker rather than the call.
func IsRejected(err error) bool {
	return errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrTooManyRequests)
}

// StateChangeFunc observes transitions. It runs with the breaker locked and
// must not call back into it.
type StateChangeFunc func(name string, from, to State)

// Counts are the breaker's request counters. Consecutive counts restart on
// every transition.
type Counts struct {
	Requests             int
	Rejected             int
	TotalSuccesses       int
	TotalFailures        int
	ConsecutiveSuccesses int
	ConsecutiveFailures  int
}

func (c *Counts) record(failed bool) {
	c.Requests++
	if failed {
		c.TotalFailures++
		c.ConsecutiveFailures++
		c.ConsecutiveSuccesses = 0
		return
	}
	c.TotalSuccesses++
	c.ConsecutiveSuccesses++
	c.ConsecutiveFailures = 0
}

// CircuitBreaker is safe for concurrent use.
type CircuitBreaker struct {
	name          string
	maxFailures   int
	minSuccesses  int
	coolDown      time.Duration
	maxProbes     int
	onStateChange StateChangeFunc
	now           func() time.Time

	mu       sync.Mutex
	state    State
	counts   Counts
	openedAt time.Time
	probes   int
}

// Option configures a breaker built by New.
type Option func(*CircuitBreaker)

// WithFailureThreshold opens the breaker after n consecutive failures.
func WithFailureThreshold(n int) Option {
	return func(cb *CircuitBreaker) { cb.maxFailures = positive(n, cb.maxFailures) }
}

// WithSuccessThreshold closes a half-open breaker after n consecutive
// successful probes.
func WithSuccessThreshold(n int) Option {
	return func(cb *CircuitBreaker) { cb.minSuccesses = positive(n, cb.minSuccesses) }
}

// WithTimeout sets how long the breaker stays open.
func WithTimeout(d time.Duration) Option {
	return func(cb *CircuitBreaker) {
		if d > 0 {
			cb.coolDown = d
		}
	}
}

// WithMaxHalfOpenRequests bounds concurrent probes.
func WithMaxHalfOpenRequests(n int) Option {
	return func(cb *CircuitBreaker) { cb.maxProbes = positive(n, cb.maxProbes) }
}

func WithOnStateChange(fn StateChangeFunc) Option {
	return func(cb *CircuitBreaker) { cb.onStateChange = fn }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(cb *CircuitBreaker) {
		if now != nil {
			cb.now = now
		}
	}
}

func positive(n, fallback int) int {
	if n > 0 {
		return n
	}
	return fallback
}

// New returns a closed breaker. Without options it opens after five
// failures, cools down for 30s and closes after two successful probes.
func New(name string, opts ...Option) *CircuitBreaker {
	cb := &CircuitBreaker{
		name:         name,
		maxFailures:  5,
		minSuccesses: 2,
		coolDown:     30 * time.Second,
		maxProbes:    1,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(cb)
	}
	return cb
}

// Name returns the name given to New.
func (cb *CircuitBreaker) Name() string { return cb.name }

// Execute calls fn unless the breaker rejects it, and records the outcome.
// Context cancellation is passed through without counting as a failure.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	probe, err := cb.admit()
	if err != nil {
		return err
	}
	err = fn(ctx)
	cb.settle(probe, err != nil && !errors.Is(err, context.Canceled))
	return err
}

// Allow reports whether Execute would call fn right now. It does not take
// a probe slot.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch cb.state {
	case StateOpen:
		return cb.coolingDone()
	case StateHalfOpen:
		return cb.probes < cb.maxProbes
	default:
		return true
	}
}

func (cb *CircuitBreaker) coolingDone() bool {
	return !cb.now().Before(cb.openedAt.Add(cb.coolDown))
}

// admit decides whether a call may proceed and whether it is a probe.
func (cb *CircuitBreaker) admit() (probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if !cb.coolingDone() {
			cb.counts.Rejected++
			return false, ErrCircuitOpen
		}
		cb.moveTo(StateHalfOpen)
	}
	if cb.state == StateClosed {
		return false, nil
	}
	if cb.probes >= cb.maxProbes {
		cb.counts.Rejected++
		return false, ErrTooManyRequests
	}
	cb.probes++
	return true, nil
}

func (cb *CircuitBreaker) settle(probe, failed bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if probe && cb.state == StateHalfOpen {
		cb.probes--
	}
	cb.counts.record(failed)

	switch {
	case failed && cb.state == StateHalfOpen:
		cb.moveTo(StateOpen)
	case failed && cb.counts.ConsecutiveFailures >= cb.maxFailures:
		cb.moveTo(StateOpen)
	case !failed && cb.state == StateHalfOpen && cb.counts.ConsecutiveSuccesses >= cb.minSuccesses:
		cb.moveTo(StateClosed)
	}
}

func (cb *CircuitBreaker) moveTo(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	cb.probes = 0
	cb.counts.ConsecutiveFailures, cb.counts.ConsecutiveSuccesses = 0, 0
	if to == StateOpen {
		cb.openedAt = cb.now()
	}
	if cb.onStateChange != nil {
		cb.onStateChange(cb.name, from, to)
	}
}

// State returns the current state. An open breaker whose cool-down has
// passed still reports StateOpen until the next call.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Counts returns a copy of the counters.
func (cb *CircuitBreaker) Counts() Counts {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.counts
}

// Reset closes the breaker and clears the counters without notifying.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state, cb.counts, cb.probes = StateClosed, Counts{}, 0
}

// ══════════════════════════════════════════════════════════════════════════════
// PRESETS
// ══════════════════════════════════════════════════════════════════════════════

// CacheBreaker guards the leaderboard cache. It opens fast and recovers
// fast, since every rejected call falls back to the progress store.
func CacheBreaker(onStateChange StateChangeFunc) *CircuitBreaker {
	return New("leaderboard-cache",
		WithFailureThreshold(3),
		WithSuccessThreshold(1),
		WithTimeout(15*time.Second),
		WithOnStateChange(onStateChange),
	)
}

// ArchiveBreaker guards backup uploads. It counts whole backup runs, not
// single upload attempts.
func ArchiveBreaker(onStateChange StateChangeFunc) *CircuitBreaker {
	return New("backup-archive",
		WithFailureThreshold(2),
		WithSuccessThreshold(1),
		WithTimeout(5*time.Minute),
		WithOnStateChange(onStateChange),
	)
}
