// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package concurrency provides the bounded-worker-pool and retry
// primitives every stage of the pipeline uses to talk to the two rate
// limited external APIs. Per spec §9: "never spawn unbounded
// concurrent work — use a semaphore-like primitive around every
// external call." Limiter is built on golang.org/x/sync's semaphore
// rather than the teacher's hand-rolled channel+WaitGroup pools, since
// this is the one primitive the spec requires across every stage.
package concurrency

import (
	"context"
	"math/rand"
	"time"

	"golang.org/x/sync/semaphore"
)

// Limiter bounds the number of concurrently in-flight operations.
type Limiter struct {
	sem *semaphore.Weighted
}

// NewLimiter creates a Limiter admitting at most n concurrent holders.
func NewLimiter(n int) *Limiter {
	if n <= 0 {
		n = 1
	}
	return &Limiter{sem: semaphore.NewWeighted(int64(n))}
}

// Acquire blocks until a slot is free or ctx is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	return l.sem.Acquire(ctx, 1)
}

// Release frees a slot acquired with Acquire.
func (l *Limiter) Release() {
	l.sem.Release(1)
}

// Do runs fn while holding one slot of the limiter.
func (l *Limiter) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := l.Acquire(ctx); err != nil {
		return err
	}
	defer l.Release()
	return fn(ctx)
}

// RetryConfig parameterizes exponential backoff with jitter, matching
// the teacher's embedding-generator retry shape and reused unchanged
// for fetch, LLM, and embedding retries.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

// sanitize fills zero-valued fields with safe defaults, avoiding
// busy-loops from an accidentally zero RetryConfig.
func (c RetryConfig) sanitize() RetryConfig {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 200 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 2 * time.Second
	}
	if c.Multiplier <= 1.0 {
		c.Multiplier = 2.0
	}
	return c
}

// DefaultTransportRetry is the "up to 3 retries with jitter" policy
// spec §4.D assigns to transport errors.
func DefaultTransportRetry() RetryConfig {
	return RetryConfig{MaxRetries: 3, InitialBackoff: 200 * time.Millisecond, MaxBackoff: 2 * time.Second, Multiplier: 2.0}
}

// DefaultRateLimitRetry is the "up to 5 retries with backoff" policy
// spec §4.D assigns to rate-limit signals.
func DefaultRateLimitRetry() RetryConfig {
	return RetryConfig{MaxRetries: 5, InitialBackoff: 500 * time.Millisecond, MaxBackoff: 10 * time.Second, Multiplier: 2.0}
}

// Classifier tells Retry whether an error is retryable at all, and
// whether it should use the more patient rate-limit backoff.
type Classifier func(err error) (retryable bool, rateLimited bool)

// Retry runs fn, retrying on retryable errors per cfg (transport) or
// per the rate-limit policy (when classify reports rate-limited),
// until it succeeds, attempts are exhausted, or ctx is done. onRetry,
// when non-nil, fires once per attempt about to be retried, letting
// callers feed internal/metrics' retry counters without this package
// depending on metrics.
func Retry(ctx context.Context, cfg RetryConfig, rateLimitCfg RetryConfig, classify Classifier, fn func(ctx context.Context) error, onRetry ...func()) error {
	cfg = cfg.sanitize()
	rateLimitCfg = rateLimitCfg.sanitize()

	var lastErr error
	attempt := 0
	for {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		retryable, rateLimited := classify(lastErr)
		if !retryable {
			return lastErr
		}

		active := cfg
		if rateLimited {
			active = rateLimitCfg
		}
		if attempt >= active.MaxRetries {
			return lastErr
		}

		for _, hook := range onRetry {
			if hook != nil {
				hook()
			}
		}

		backoff := backoffFor(active, attempt)
		attempt++

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
}

// backoffFor computes the jittered exponential delay for attempt n.
func backoffFor(cfg RetryConfig, attempt int) time.Duration {
	d := float64(cfg.InitialBackoff)
	for i := 0; i < attempt; i++ {
		d *= cfg.Multiplier
	}
	if d > float64(cfg.MaxBackoff) {
		d = float64(cfg.MaxBackoff)
	}
	jitter := 0.5 + rand.Float64() // 0.5x .. 1.5x
	d *= jitter
	if d > float64(cfg.MaxBackoff) {
		d = float64(cfg.MaxBackoff)
	}
	return time.Duration(d)
}
