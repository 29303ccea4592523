package embedding

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned while the breaker rejects requests after a run
// of embedder failures.
var ErrCircuitOpen = errors.New("embedding circuit breaker is open")

// BreakerConfig tunes the circuit breaker around embedder calls.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures that trips the
	// circuit. Default 3.
	MaxFailures uint32

	// Timeout is how long the circuit stays open before allowing probe
	// requests. Default 30 seconds.
	Timeout time.Duration

	// HalfOpenMaxSuccesses is the number of consecutive probe successes
	// needed to close the circuit again. Default 2.
	HalfOpenMaxSuccesses uint32
}

// Breaker wraps gobreaker around embedder calls so a dead embedder degrades
// each chapter run to a handful of fast rejections instead of a wall of
// timeouts.
type Breaker struct {
	breaker *gobreaker.CircuitBreaker
}

// NewBreaker builds a breaker, filling unset config fields with defaults.
func NewBreaker(config BreakerConfig) *Breaker {
	if config.MaxFailures == 0 {
		config.MaxFailures = 3
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.HalfOpenMaxSuccesses == 0 {
		config.HalfOpenMaxSuccesses = 2
	}

	settings := gobreaker.Settings{
		Name:        "embedder",
		MaxRequests: config.HalfOpenMaxSuccesses,
		Interval:    0,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.MaxFailures
		},
	}

	return &Breaker{breaker: gobreaker.NewCircuitBreaker(settings)}
}

// Execute runs fn through the breaker. An open circuit yields ErrCircuitOpen
// without invoking fn.
func (b *Breaker) Execute(ctx context.Context, fn func() ([]float32, error)) ([]float32, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	result, err := b.breaker.Execute(func() (interface{}, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		return fn()
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, ErrCircuitOpen
		}
		return nil, err
	}

	return result.([]float32), nil
}

// State reports "closed", "open", or "half-open".
func (b *Breaker) State() string {
	switch b.breaker.State() {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateOpen:
		return "open"
	case gobreaker.StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}
