package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned by Call while the circuit is open
var ErrOpen = errors.New("circuit breaker is open")

// State represents the circuit breaker state
type State int

const (
	// StateClosed lets calls through
	StateClosed State = iota
	// StateOpen rejects calls until the timeout has passed
	StateOpen
	// StateHalfOpen lets one trial call through
	StateHalfOpen
)

// String returns the string representation of the state
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

// Config holds configuration for the circuit breaker
type Config struct {
	Threshold     int                  // consecutive failures before opening (default 5)
	Timeout       time.Duration        // time open before a trial call (default 30s)
	OnStateChange func(from, to State) // called synchronously, without the lock held
}

// CircuitBreaker stops calling a failing dependency for a while after
// Threshold consecutive failures.
type CircuitBreaker struct {
	threshold     int
	timeout       time.Duration
	onStateChange func(from, to State)
	nowFunc       func() time.Time

	mu                  sync.Mutex
	state               State
	consecutiveFailures int
	openedAt            time.Time
}

// New creates a new circuit breaker with the given configuration
func New(config Config) *CircuitBreaker {
	if config.Threshold <= 0 {
		config.Threshold = 5
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	return &CircuitBreaker{
		threshold:     config.Threshold,
		timeout:       config.Timeout,
		onStateChange: config.OnStateChange,
		nowFunc:       time.Now,
	}
}

// Call runs fn unless the circuit is open, in which case it returns ErrOpen
func (cb *CircuitBreaker) Call(fn func() error) error {
	if err := cb.before(); err != nil {
		return err
	}
	err := fn()
	cb.after(err)
	return err
}

func (cb *CircuitBreaker) before() error {
	cb.mu.Lock()
	if cb.state != StateOpen {
		cb.mu.Unlock()
		return nil
	}
	if cb.nowFunc().Sub(cb.openedAt) < cb.timeout {
		cb.mu.Unlock()
		return ErrOpen
	}
	from := cb.setStateLocked(StateHalfOpen)
	cb.mu.Unlock()

	cb.notify(from, StateHalfOpen)
	return nil
}

func (cb *CircuitBreaker) after(err error) {
	cb.mu.Lock()
	from := cb.state
	to := from

	if err == nil {
		cb.consecutiveFailures = 0
		to = StateClosed
	} else {
		cb.consecutiveFailures++
		if from == StateHalfOpen || cb.consecutiveFailures >= cb.threshold {
			to = StateOpen
			cb.openedAt = cb.nowFunc()
		}
	}
	cb.setStateLocked(to)
	cb.mu.Unlock()

	cb.notify(from, to)
}

// setStateLocked sets the state and returns the previous one
func (cb *CircuitBreaker) setStateLocked(s State) State {
	prev := cb.state
	cb.state = s
	return prev
}

func (cb *CircuitBreaker) notify(from, to State) {
	if from != to && cb.onStateChange != nil {
		cb.onStateChange(from, to)
	}
}

// State returns the current state of the circuit breaker
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// ConsecutiveFailures returns the number of failures since the last success
func (cb *CircuitBreaker) ConsecutiveFailures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.consecutiveFailures
}

// Reset closes the circuit and clears the failure count
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	from := cb.setStateLocked(StateClosed)
	cb.consecutiveFailures = 0
	cb.mu.Unlock()

	cb.notify(from, StateClosed)
}
