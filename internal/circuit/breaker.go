// Package circuit stops hammering the Oracle after repeated failures. While the
// breaker is open every call fails fast and the pipeline escalates instead.
package circuit

import (
	"errors"
	"strings"
	"sync"
	"time"

	cwerrors "github.com/rooney011/CodeWeaver/internal/errors"
	"github.com/rs/zerolog/log"
)

// State represents the circuit breaker state
type State int

const (
	// StateClosed means calls flow normally
	StateClosed State = iota
	// StateOpen means calls are rejected until the backoff elapses
	StateOpen
	// StateHalfOpen means a single probe call is allowed through
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

// ErrorCategory decides how a failure counts toward tripping.
type ErrorCategory int

const (
	// CategoryTransient counts toward the failure threshold
	CategoryTransient ErrorCategory = iota
	// CategoryRateLimit trips immediately
	CategoryRateLimit
	// CategoryInvalid never trips; retrying the same request will not help
	CategoryInvalid
)

// Config configures the circuit breaker behavior
type Config struct {
	FailureThreshold  int
	SuccessThreshold  int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

// DefaultConfig returns the settings used for Oracle calls.
func DefaultConfig() Config {
	return Config{
		FailureThreshold:  3,
		SuccessThreshold:  1,
		InitialBackoff:    5 * time.Second,
		MaxBackoff:        2 * time.Minute,
		BackoffMultiplier: 2.0,
	}
}

// ErrCircuitOpen is returned when a call is blocked by an open circuit.
var ErrCircuitOpen = cwerrors.New(cwerrors.KindTransientExternal, "circuit.allow", "", errors.New("circuit breaker is open"))

// Breaker implements the circuit breaker pattern
type Breaker struct {
	mu sync.Mutex

	config Config
	name   string
	state  State
	now    func() time.Time

	consecutiveFailures  int
	consecutiveSuccesses int
	currentBackoff       time.Duration
	openedAt             time.Time
	probeInFlight        bool
	lastError            error

	onStateChange func(from, to State)
}

// NewBreaker creates a breaker, filling zero config values with defaults.
func NewBreaker(name string, config Config) *Breaker {
	def := DefaultConfig()
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = def.FailureThreshold
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = def.SuccessThreshold
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = def.InitialBackoff
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = def.MaxBackoff
	}
	if config.BackoffMultiplier <= 1 {
		config.BackoffMultiplier = def.BackoffMultiplier
	}
	return &Breaker{
		config:         config,
		name:           name,
		state:          StateClosed,
		now:            time.Now,
		currentBackoff: config.InitialBackoff,
	}
}

// SetOnStateChange registers a callback invoked synchronously on every transition.
// It runs under the breaker lock and must not call back into the breaker.
func (b *Breaker) SetOnStateChange(fn func(from, to State)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onStateChange = fn
}

// Allow reports whether a call may proceed. It may move open to half-open.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.currentBackoff {
			return false
		}
		b.transitionTo(StateHalfOpen)
		b.probeInFlight = true
		log.Info().Str("breaker", b.name).Msg("Circuit breaker half-open, probing")
		return true
	case StateHalfOpen:
		if b.probeInFlight {
			return false
		}
		b.probeInFlight = true
		return true
	default:
		return true
	}
}

// RecordSuccess records a successful call.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures = 0
	b.consecutiveSuccesses++
	if b.state == StateHalfOpen {
		b.probeInFlight = false
		if b.consecutiveSuccesses >= b.config.SuccessThreshold {
			b.transitionTo(StateClosed)
			b.currentBackoff = b.config.InitialBackoff
			log.Info().Str("breaker", b.name).Msg("Circuit breaker recovered and closed")
		}
	}
}

// RecordFailure records a failed call of the given category.
func (b *Breaker) RecordFailure(err error, category ErrorCategory) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastError = err
	b.consecutiveSuccesses = 0

	switch category {
	case CategoryInvalid:
		if b.state == StateHalfOpen {
			b.probeInFlight = false
		}
		return
	case CategoryRateLimit:
		b.consecutiveFailures = b.config.FailureThreshold
	default:
		b.consecutiveFailures++
	}

	switch b.state {
	case StateClosed:
		if b.consecutiveFailures >= b.config.FailureThreshold {
			b.trip(err)
		}
	case StateHalfOpen:
		b.currentBackoff = time.Duration(float64(b.currentBackoff) * b.config.BackoffMultiplier)
		if b.currentBackoff > b.config.MaxBackoff {
			b.currentBackoff = b.config.MaxBackoff
		}
		b.trip(err)
	}
}

func (b *Breaker) trip(err error) {
	b.transitionTo(StateOpen)
	b.openedAt = b.now()
	b.probeInFlight = false
	log.Warn().
		Str("breaker", b.name).
		Dur("backoff", b.currentBackoff).
		Int("failures", b.consecutiveFailures).
		Err(err).
		Msg("Circuit breaker tripped")
}

func (b *Breaker) transitionTo(next State) {
	if b.state == next {
		return
	}
	prev := b.state
	b.state = next
	if b.onStateChange != nil {
		b.onStateChange(prev, next)
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset closes the breaker and clears counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transitionTo(StateClosed)
	b.consecutiveFailures = 0
	b.consecutiveSuccesses = 0
	b.currentBackoff = b.config.InitialBackoff
	b.probeInFlight = false
	b.lastError = nil
}

// Execute runs operation if the breaker allows it and records the outcome.
func (b *Breaker) Execute(operation func() error) error {
	if !b.Allow() {
		return ErrCircuitOpen
	}
	if err := operation(); err != nil {
		b.RecordFailure(err, CategorizeError(err))
		return err
	}
	b.RecordSuccess()
	return nil
}

// IsCircuitOpen reports whether err came from an open breaker.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, ErrCircuitOpen)
}

// CategorizeError sorts a provider error for breaker accounting.
func CategorizeError(err error) ErrorCategory {
	if err == nil {
		return CategoryTransient
	}
	if cwerrors.KindOf(err) == cwerrors.KindMalformedOutput {
		return CategoryInvalid
	}
	msg := strings.ToLower(err.Error())
	if containsAny(msg, "rate limit", "429", "too many requests", "quota exceeded") {
		return CategoryRateLimit
	}
	if containsAny(msg, "400", "bad request", "invalid request", "401", "403", "unauthorized", "api key") {
		return CategoryInvalid
	}
	return CategoryTransient
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
