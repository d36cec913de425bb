package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/pdf-rag-assistant/internal/core/domain"
)

// Outcome tells the executor what a failed call means.
type Outcome struct {
	Retry bool
	// Trip counts the failure against the operation's breaker.
	Trip bool
}

var (
	Ignored   = Outcome{}
	Permanent = Outcome{Trip: true}
	Transient = Outcome{Retry: true, Trip: true}
)

type Classifier func(err error) Outcome

// Observer receives retry and breaker events, usually to export them as
// metrics.
type Observer interface {
	ObserveRetry(operation string)
	ObserveBreakerState(operation, state string)
}

type Executor struct {
	policy Policy

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[any]
	observer Observer
}

func NewExecutor(policy Policy) *Executor {
	return &Executor{
		policy:   policy.normalize(),
		breakers: make(map[string]*gobreaker.CircuitBreaker[any]),
	}
}

func (e *Executor) SetObserver(o Observer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observer = o
}

func (e *Executor) currentObserver() Observer {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.observer
}

func (e *Executor) Execute(ctx context.Context, operation string, fn func(context.Context) error, classify Classifier) error {
	if fn == nil {
		return fmt.Errorf("resilience: operation callback is nil")
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		op = "unknown"
	}
	if classify == nil {
		classify = func(error) Outcome { return Permanent }
	}

	if !e.policy.Breaker.Enabled {
		return e.retry(ctx, op, fn, classify)
	}
	_, err := e.breaker(op, classify).Execute(func() (any, error) {
		return nil, e.retry(ctx, op, fn, classify)
	})
	return err
}

func (e *Executor) retry(ctx context.Context, op string, fn func(context.Context) error, classify Classifier) error {
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= e.policy.Retry.MaxAttempts || !classify(err).Retry {
			return err
		}

		wait := e.policy.Retry.backoff(attempt)
		slog.Warn("retry_attempt",
			"operation", op,
			"attempt", attempt,
			"max_attempts", e.policy.Retry.MaxAttempts,
			"backoff_ms", wait.Milliseconds(),
			"error", err,
		)
		if o := e.currentObserver(); o != nil {
			o.ObserveRetry(op)
		}
		if !sleep(ctx, wait) {
			return err
		}
	}
}

func (e *Executor) breaker(op string, classify Classifier) *gobreaker.CircuitBreaker[any] {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cb, ok := e.breakers[op]; ok {
		return cb
	}

	bp := e.policy.Breaker
	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        op,
		MaxRequests: bp.HalfOpenCalls,
		Timeout:     bp.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < bp.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= bp.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !classify(err).Trip
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit_breaker_state_change", "operation", name, "from", from.String(), "to", to.String())
			if o := e.currentObserver(); o != nil {
				o.ObserveBreakerState(name, to.String())
			}
		},
	})
	e.breakers[op] = cb
	return cb
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// Classify handles what every backend shares: cancellation is ignored and an
// open breaker is transient. Anything else goes to specific; errors it does
// not recognise are permanent.
func Classify(err error, specific func(error) (Outcome, bool)) Outcome {
	switch {
	case err == nil:
		return Ignored
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return Ignored
	case IsCircuitOpen(err):
		return Transient
	}
	if specific != nil {
		if out, ok := specific(err); ok {
			return out
		}
	}
	return Permanent
}

// WrapTemporary tags err as domain.ErrTemporary when a later attempt could
// succeed, so the HTTP layer answers 503 instead of 500.
func WrapTemporary(operation string, err error, classify Classifier) error {
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if IsCircuitOpen(err) || classify(err).Retry {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return err
}

// Call runs fn through the executor and returns its value. A nil executor
// calls fn directly.
func Call[T any](ctx context.Context, e *Executor, operation string, fn func(context.Context) (T, error), classify Classifier) (T, error) {
	if e == nil {
		return fn(ctx)
	}
	var out T
	err := e.Execute(ctx, operation, func(callCtx context.Context) error {
		value, err := fn(callCtx)
		if err != nil {
			return err
		}
		out = value
		return nil
	}, classify)
	return out, err
}
