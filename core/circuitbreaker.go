package core

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// CircuitBreakerState represents the state of a circuit breaker
type CircuitBreakerState string

const (
	// CircuitBreakerStateClosed lets calls through
	CircuitBreakerStateClosed CircuitBreakerState = "closed"
	// CircuitBreakerStateOpen rejects calls until the cool-down elapses
	CircuitBreakerStateOpen CircuitBreakerState = "open"
	// CircuitBreakerStateHalfOpen admits a limited number of trial calls
	CircuitBreakerStateHalfOpen CircuitBreakerState = "half_open"
)

var (
	// ErrCircuitBreakerOpen is returned when the breaker rejects a call
	ErrCircuitBreakerOpen = errors.New("circuit breaker is open")
	// ErrTooManyTrialCalls is returned when the half-open trial budget is spent
	ErrTooManyTrialCalls = errors.New("too many half-open trial calls")
	// ErrInvalidCircuitBreakerConfig is returned for a zero-valued config field
	ErrInvalidCircuitBreakerConfig = errors.New("invalid circuit breaker configuration")
)

// CircuitBreakerConfig holds configuration for a circuit breaker guarding
// one outbound collaborator
type CircuitBreakerConfig struct {
	// MaxFailures is the number of consecutive failures that opens the circuit
	MaxFailures uint32
	// Cooldown is how long the circuit stays open before admitting trial calls
	Cooldown time.Duration
	// MaxTrialCalls is the number of concurrent calls allowed while half-open
	MaxTrialCalls uint32
}

// Validate checks the config
func (c CircuitBreakerConfig) Validate() error {
	switch {
	case c.MaxFailures == 0:
		return errors.New("MaxFailures must be greater than 0")
	case c.Cooldown <= 0:
		return errors.New("Cooldown must be greater than 0")
	case c.MaxTrialCalls == 0:
		return errors.New("MaxTrialCalls must be greater than 0")
	}
	return nil
}

// DefaultCircuitBreakerConfig returns the defaults used for webhooks
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		MaxFailures:   5,
		Cooldown:      60 * time.Second,
		MaxTrialCalls: 1,
	}
}

// CircuitBreaker stops hammering a collaborator that keeps failing
type CircuitBreaker struct {
	mu       sync.Mutex
	config   CircuitBreakerConfig
	state    CircuitBreakerState
	failures uint32
	openedAt time.Time
	trials   uint32
	now      func() time.Time
}

// NewCircuitBreaker creates a closed circuit breaker
func NewCircuitBreaker(config CircuitBreakerConfig) (*CircuitBreaker, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCircuitBreakerConfig, err)
	}
	return &CircuitBreaker{
		config: config,
		state:  CircuitBreakerStateClosed,
		now:    time.Now,
	}, nil
}

// MustNewCircuitBreaker panics on an invalid config
func MustNewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	cb, err := NewCircuitBreaker(config)
	if err != nil {
		panic(err)
	}
	return cb
}

// Allow reports whether a call may proceed. Every nil return must be
// followed by RecordSuccess or RecordFailure.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitBreakerStateOpen:
		if cb.now().Sub(cb.openedAt) < cb.config.Cooldown {
			return ErrCircuitBreakerOpen
		}
		cb.state = CircuitBreakerStateHalfOpen
		cb.trials = 1
		return nil
	case CircuitBreakerStateHalfOpen:
		if cb.trials >= cb.config.MaxTrialCalls {
			return ErrTooManyTrialCalls
		}
		cb.trials++
		return nil
	default:
		return nil
	}
}

// RecordSuccess closes a half-open circuit and clears the failure count
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = CircuitBreakerStateClosed
	cb.failures = 0
	cb.trials = 0
}

// RecordFailure counts a failure and opens the circuit when the limit is
// reached or a trial call fails
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	if cb.state == CircuitBreakerStateHalfOpen || cb.failures >= cb.config.MaxFailures {
		cb.state = CircuitBreakerStateOpen
		cb.openedAt = cb.now()
		cb.trials = 0
	}
}

// Execute runs fn through the breaker
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.Allow(); err != nil {
		return err
	}
	if err := fn(); err != nil {
		cb.RecordFailure()
		return err
	}
	cb.RecordSuccess()
	return nil
}

// State returns the current state
func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Failures returns the consecutive failure count
func (cb *CircuitBreaker) Failures() uint32 {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}
