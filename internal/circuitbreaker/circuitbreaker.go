// Package circuitbreaker keys a per-action circuit breaker the way the
// connector registry needs: one gobreaker state machine per
// platform:account:action, since gobreaker itself is single-breaker-per-instance.
package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// ErrOpen is returned when a call is rejected because the breaker is open.
type ErrOpen struct {
	Key          string
	RetryAfterMs int64
}

func (e *ErrOpen) Error() string {
	return fmt.Sprintf("circuit open for %s, retry after %dms", e.Key, e.RetryAfterMs)
}

// StateChangeFunc is invoked whenever any keyed breaker changes state.
type StateChangeFunc func(key string, from, to gobreaker.State)

// Registry holds one gobreaker.CircuitBreaker per key, created lazily.
type Registry struct {
	mu               sync.Mutex
	breakers         map[string]*gobreaker.CircuitBreaker
	failureThreshold uint32
	cooldown         time.Duration
	onStateChange    StateChangeFunc
	openedAt         sync.Map // key -> time.Time, for RetryAfterMs
}

// NewRegistry creates a keyed circuit breaker registry. failureThreshold is
// the number of consecutive failures that opens a breaker; cooldown is how
// long it stays open before allowing a single half-open probe.
func NewRegistry(failureThreshold uint32, cooldown time.Duration, onStateChange StateChangeFunc) *Registry {
	return &Registry{
		breakers:         make(map[string]*gobreaker.CircuitBreaker),
		failureThreshold: failureThreshold,
		cooldown:         cooldown,
		onStateChange:    onStateChange,
	}
}

func (r *Registry) breakerFor(key string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[key]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        key,
		MaxRequests: 1, // single serialized half-open probe
		Timeout:     r.cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= r.failureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				r.openedAt.Store(name, time.Now())
			}
			if r.onStateChange != nil {
				r.onStateChange(name, from, to)
			}
		},
	})
	r.breakers[key] = cb
	return cb
}

// Execute runs fn through the breaker keyed by key. A rejected call (open
// breaker) returns *ErrOpen without invoking fn.
func (r *Registry) Execute(ctx context.Context, key string, fn func(ctx context.Context) (any, error)) (any, error) {
	cb := r.breakerFor(key)

	result, err := cb.Execute(func() (any, error) {
		return fn(ctx)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			retryAfter := int64(0)
			if openedAt, ok := r.openedAt.Load(key); ok {
				elapsed := time.Since(openedAt.(time.Time))
				if remaining := r.cooldown - elapsed; remaining > 0 {
					retryAfter = remaining.Milliseconds()
				}
			}
			return nil, &ErrOpen{Key: key, RetryAfterMs: retryAfter}
		}
		return nil, err
	}
	return result, nil
}

// State returns the current state of the breaker for key, or closed if it
// has never been used.
func (r *Registry) State(key string) gobreaker.State {
	r.mu.Lock()
	cb, ok := r.breakers[key]
	r.mu.Unlock()
	if !ok {
		return gobreaker.StateClosed
	}
	return cb.State()
}
