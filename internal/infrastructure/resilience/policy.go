package resilience

import "time"

// Observer receives breaker transitions and retry attempts, normally the
// Prometheus metrics.
type Observer interface {
	ObserveBreakerState(operation, state string)
	ObserveRetry(operation string)
}

type Config struct {
	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
	RetryMultiplier     float64
	// RetryLinear grows the wait by RetryInitialBackoff per attempt instead of multiplying it.
	RetryLinear bool

	BreakerEnabled          bool
	BreakerMinRequests      uint32
	BreakerFailureRatio     float64
	BreakerOpenTimeout      time.Duration
	BreakerHalfOpenMaxCalls uint32

	Observer Observer
}

// DefaultConfig backs broker publishes: short exponential retries plus a breaker.
func DefaultConfig() Config {
	return Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: 100 * time.Millisecond,
		RetryMaxBackoff:     400 * time.Millisecond,
		RetryMultiplier:     2.0,

		BreakerEnabled:          true,
		BreakerMinRequests:      10,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      30 * time.Second,
		BreakerHalfOpenMaxCalls: 2,
	}
}

// ProviderConfig backs LLM, embedding and search calls. They are never
// repeated; only the breaker applies.
func ProviderConfig() Config {
	cfg := DefaultConfig()
	cfg.RetryMaxAttempts = 1
	return cfg
}

// VectorWriteConfig waits step, 2*step, ... between attempts.
func VectorWriteConfig(attempts int, step time.Duration) Config {
	cfg := DefaultConfig()
	cfg.RetryMaxAttempts = attempts
	cfg.RetryInitialBackoff = step
	cfg.RetryMaxBackoff = time.Duration(attempts) * step
	cfg.RetryLinear = true
	return cfg
}

func (c Config) WithObserver(observer Observer) Config {
	c.Observer = observer
	return c
}

func (c Config) normalize() Config {
	out := c
	def := DefaultConfig()

	if out.RetryMaxAttempts <= 0 {
		out.RetryMaxAttempts = def.RetryMaxAttempts
	}
	if out.RetryInitialBackoff <= 0 {
		out.RetryInitialBackoff = def.RetryInitialBackoff
	}
	if out.RetryMaxBackoff <= 0 {
		out.RetryMaxBackoff = def.RetryMaxBackoff
	}
	if out.RetryMaxBackoff < out.RetryInitialBackoff {
		out.RetryMaxBackoff = out.RetryInitialBackoff
	}
	if out.RetryMultiplier < 1.0 {
		out.RetryMultiplier = def.RetryMultiplier
	}

	if out.BreakerMinRequests == 0 {
		out.BreakerMinRequests = def.BreakerMinRequests
	}
	if out.BreakerFailureRatio <= 0 || out.BreakerFailureRatio > 1 {
		out.BreakerFailureRatio = def.BreakerFailureRatio
	}
	if out.BreakerOpenTimeout <= 0 {
		out.BreakerOpenTimeout = def.BreakerOpenTimeout
	}
	if out.BreakerHalfOpenMaxCalls == 0 {
		out.BreakerHalfOpenMaxCalls = def.BreakerHalfOpenMaxCalls
	}

	return out
}

// backoff is the wait after the given failed attempt (1-based), capped at
// RetryMaxBackoff.
func (c Config) backoff(attempt int) time.Duration {
	var wait time.Duration
	if c.RetryLinear {
		wait = c.RetryInitialBackoff * time.Duration(attempt)
	} else {
		wait = c.RetryInitialBackoff
		for i := 1; i < attempt; i++ {
			wait = time.Duration(float64(wait) * c.RetryMultiplier)
			if wait >= c.RetryMaxBackoff {
				break
			}
		}
	}
	if wait > c.RetryMaxBackoff {
		wait = c.RetryMaxBackoff
	}
	return wait
}
