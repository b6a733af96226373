package chain

import (
	"context"
	"fmt"
	"math"
	"time"

	"smallbiznis-tokenomics/pkg/config"

	"github.com/cenkalti/backoff/v4"
)

type RetryConfig struct {
	MaxRetries        int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
}

// RetryConfigUpdate is a partial RetryConfig; nil fields are left unchanged.
type RetryConfigUpdate struct {
	MaxRetries        *int
	InitialDelay      *time.Duration
	MaxDelay          *time.Duration
	BackoffMultiplier *float64
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        3,
		InitialDelay:      time.Second,
		MaxDelay:          30 * time.Second,
		BackoffMultiplier: 2,
	}
}

func retryConfigFrom(c config.RetryConfig) RetryConfig {
	out := DefaultRetryConfig()
	if c.MaxRetries != nil {
		out.MaxRetries = *c.MaxRetries
	}
	if c.InitialDelay > 0 {
		out.InitialDelay = c.InitialDelay
	}
	if c.MaxDelay > 0 {
		out.MaxDelay = c.MaxDelay
	}
	if c.BackoffMultiplier > 0 {
		out.BackoffMultiplier = c.BackoffMultiplier
	}
	return out
}

func (c RetryConfig) Validate() error {
	switch {
	case c.MaxRetries < 0:
		return fmt.Errorf("max retries must not be negative")
	case c.InitialDelay < 0 || c.MaxDelay < 0:
		return fmt.Errorf("delays must not be negative")
	case c.MaxDelay < c.InitialDelay:
		return fmt.Errorf("max delay must be >= initial delay")
	case c.BackoffMultiplier < 1:
		return fmt.Errorf("backoff multiplier must be >= 1")
	}
	return nil
}

func (c RetryConfig) apply(u RetryConfigUpdate) RetryConfig {
	if u.MaxRetries != nil {
		c.MaxRetries = *u.MaxRetries
	}
	if u.InitialDelay != nil {
		c.InitialDelay = *u.InitialDelay
	}
	if u.MaxDelay != nil {
		c.MaxDelay = *u.MaxDelay
	}
	if u.BackoffMultiplier != nil {
		c.BackoffMultiplier = *u.BackoffMultiplier
	}
	return c
}

// Delay returns the wait before retry n (0-based): min(initial * mult^n, max).
func (c RetryConfig) Delay(n int) time.Duration {
	d := float64(c.InitialDelay) * math.Pow(c.BackoffMultiplier, float64(n))
	if d > float64(c.MaxDelay) {
		return c.MaxDelay
	}
	return time.Duration(d)
}

// backOff allows MaxRetries+1 attempts with deterministic exponential delays.
func (c RetryConfig) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.InitialDelay
	b.MaxInterval = c.MaxDelay
	b.Multiplier = c.BackoffMultiplier
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.MaxRetries)), ctx)
}
