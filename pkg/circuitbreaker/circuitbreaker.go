package circuitbreaker

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrOpen is returned without calling the guarded function.
var ErrOpen = errors.New("circuit breaker is open")

type Config struct {
	FailureThreshold    int           // consecutive failures before opening
	SuccessThreshold    int           // half-open successes before closing
	Timeout             time.Duration // open -> half-open delay
	MaxRequestsHalfOpen int
}

func DefaultConfig() Config {
	return Config{
		FailureThreshold:    5,
		SuccessThreshold:    2,
		Timeout:             30 * time.Second,
		MaxRequestsHalfOpen: 3,
	}
}

type CircuitBreaker struct {
	config Config
	now    func() time.Time

	mu               sync.Mutex
	state            State
	failures         int
	successes        int
	halfOpenRequests int
	changedAt        time.Time

	onStateChange func(from, to State)
}

func New(config Config) *CircuitBreaker {
	cb := &CircuitBreaker{config: config, now: time.Now}
	cb.changedAt = cb.now()
	return cb
}

// WithClock replaces the time source; used by tests.
func (cb *CircuitBreaker) WithClock(now func() time.Time) *CircuitBreaker {
	cb.now = now
	return cb
}

// OnStateChange registers a callback invoked synchronously after each transition.
func (cb *CircuitBreaker) OnStateChange(fn func(from, to State)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.onStateChange = fn
}

// Execute runs fn unless the breaker is open, in which case it returns
// ErrOpen without calling fn.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.allow() {
		return ErrOpen
	}
	if err := fn(); err != nil {
		cb.record(false)
		return fmt.Errorf("circuit breaker call failed: %w", err)
	}
	cb.record(true)
	return nil
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset forces the breaker closed.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	from, changed := cb.transitionLocked(StateClosed)
	hook := cb.onStateChange
	cb.mu.Unlock()

	if changed && hook != nil {
		hook(from, StateClosed)
	}
}

func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	var (
		allowed bool
		from    State
		changed bool
	)
	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.changedAt) >= cb.config.Timeout {
			from, changed = cb.transitionLocked(StateHalfOpen)
			cb.halfOpenRequests = 1
			allowed = true
		}
	case StateHalfOpen:
		if cb.halfOpenRequests < cb.config.MaxRequestsHalfOpen {
			cb.halfOpenRequests++
			allowed = true
		}
	default:
		allowed = true
	}
	to := cb.state
	hook := cb.onStateChange
	cb.mu.Unlock()

	if changed && hook != nil {
		hook(from, to)
	}
	return allowed
}

func (cb *CircuitBreaker) record(success bool) {
	cb.mu.Lock()
	var (
		from    State
		changed bool
	)
	if success {
		cb.failures = 0
		cb.successes++
		if cb.state == StateHalfOpen && cb.successes >= cb.config.SuccessThreshold {
			from, changed = cb.transitionLocked(StateClosed)
		}
	} else {
		cb.successes = 0
		cb.failures++
		if cb.state == StateHalfOpen || (cb.state == StateClosed && cb.failures >= cb.config.FailureThreshold) {
			from, changed = cb.transitionLocked(StateOpen)
		}
	}
	to := cb.state
	hook := cb.onStateChange
	cb.mu.Unlock()

	if changed && hook != nil {
		hook(from, to)
	}
}

func (cb *CircuitBreaker) transitionLocked(to State) (State, bool) {
	from := cb.state
	if from == to {
		return from, false
	}
	cb.state = to
	cb.changedAt = cb.now()
	cb.failures = 0
	cb.successes = 0
	cb.halfOpenRequests = 0
	return from, true
}
