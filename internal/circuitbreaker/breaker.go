package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when the circuit is open
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Shields the shared backend instance: when it starts failing, the
// governor rejects traffic at the edge instead of piling more load on.
type CircuitBreaker struct {
	mu              sync.RWMutex
	state           State
	failureCount    int
	successCount    int
	lastFailureTime time.Time
	lastStateChange time.Time

	maxFailures     int           // failures before opening
	timeout         time.Duration // how long to stay open
	halfOpenSuccess int           // successes needed in half-open to close
}

type Config struct {
	MaxFailures     int           // Default: 5
	Timeout         time.Duration // Default: 30 seconds
	HalfOpenSuccess int           // Default: 1
}

func New(cfg Config) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.HalfOpenSuccess <= 0 {
		cfg.HalfOpenSuccess = 1
	}

	return &CircuitBreaker{
		state:           StateClosed,
		maxFailures:     cfg.MaxFailures,
		timeout:         cfg.Timeout,
		halfOpenSuccess: cfg.HalfOpenSuccess,
		lastStateChange: time.Now(),
	}
}

// Executes fn with circuit breaker protection
func (cb *CircuitBreaker) Call(fn func() error) error {
	cb.mu.Lock()

	if cb.state == StateOpen {
		if time.Since(cb.lastFailureTime) > cb.timeout {
			cb.setState(StateHalfOpen)
			cb.successCount = 0
		} else {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
	}

	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.onFailure()
		return err
	}

	cb.onSuccess()
	return nil
}

func (cb *CircuitBreaker) onFailure() {
	cb.failureCount++
	cb.lastFailureTime = time.Now()

	if cb.state == StateHalfOpen {
		// Any failure while probing reopens the circuit
		cb.setState(StateOpen)
		cb.successCount = 0
	} else if cb.failureCount >= cb.maxFailures {
		cb.setState(StateOpen)
	}
}

func (cb *CircuitBreaker) onSuccess() {
	switch cb.state {
	case StateHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.halfOpenSuccess {
			cb.setState(StateClosed)
			cb.failureCount = 0
		}
	case StateClosed:
		cb.failureCount = 0
	default:
	}
}

func (cb *CircuitBreaker) setState(newState State) {
	if cb.state != newState {
		cb.state = newState
		cb.lastStateChange = time.Now()
	}
}

// Returns the current state
func (cb *CircuitBreaker) State() State {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// Manually resets the circuit breaker to closed
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = StateClosed
	cb.failureCount = 0
	cb.successCount = 0
	cb.lastStateChange = time.Now()
}
