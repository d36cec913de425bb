package resilience

import (
	"math"
	"time"
)

// RetryPolicy bounds how often a failed Ollama or NATS call is repeated.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

// BreakerPolicy configures one breaker per operation name.
type BreakerPolicy struct {
	Enabled       bool
	MinRequests   uint32
	FailureRatio  float64
	OpenTimeout   time.Duration
	HalfOpenCalls uint32
}

type Policy struct {
	Retry   RetryPolicy
	Breaker BreakerPolicy
}

func DefaultPolicy() Policy {
	return Policy{
		Retry: RetryPolicy{
			MaxAttempts:    3,
			InitialBackoff: 100 * time.Millisecond,
			MaxBackoff:     400 * time.Millisecond,
			Multiplier:     2,
		},
		Breaker: BreakerPolicy{
			Enabled:       true,
			MinRequests:   10,
			FailureRatio:  0.5,
			OpenTimeout:   30 * time.Second,
			HalfOpenCalls: 2,
		},
	}
}

func (p Policy) normalize() Policy {
	def := DefaultPolicy()
	r, b := p.Retry, p.Breaker

	if r.MaxAttempts <= 0 {
		r.MaxAttempts = def.Retry.MaxAttempts
	}
	if r.InitialBackoff <= 0 {
		r.InitialBackoff = def.Retry.InitialBackoff
	}
	if r.MaxBackoff <= 0 {
		r.MaxBackoff = def.Retry.MaxBackoff
	}
	r.MaxBackoff = max(r.MaxBackoff, r.InitialBackoff)
	if r.Multiplier < 1 {
		r.Multiplier = def.Retry.Multiplier
	}

	if b.MinRequests == 0 {
		b.MinRequests = def.Breaker.MinRequests
	}
	if b.FailureRatio <= 0 || b.FailureRatio > 1 {
		b.FailureRatio = def.Breaker.FailureRatio
	}
	if b.OpenTimeout <= 0 {
		b.OpenTimeout = def.Breaker.OpenTimeout
	}
	if b.HalfOpenCalls == 0 {
		b.HalfOpenCalls = def.Breaker.HalfOpenCalls
	}
	return Policy{Retry: r, Breaker: b}
}

// backoff is the wait after the given failed attempt (1-based).
func (r RetryPolicy) backoff(attempt int) time.Duration {
	wait := float64(r.InitialBackoff) * math.Pow(r.Multiplier, float64(attempt-1))
	if wait >= float64(r.MaxBackoff) {
		return r.MaxBackoff
	}
	return time.Duration(wait)
}
