// Package genai provides the rate-limited invoker that protects the
// completion service behind a global pacing gate and a retry policy.
package genai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mindsupport/compass/internal/metrics"
	"github.com/mindsupport/compass/internal/models"
)

// Default invoker configuration.
const (
	// DefaultMaxCallsPerMinute bounds the global completion call rate.
	DefaultMaxCallsPerMinute = 20
	// DefaultMaxAttempts bounds retries for rate-limit-class failures.
	DefaultMaxAttempts = 5
)

// PacingGate enforces a minimum inter-call spacing shared by all callers of
// the completion service. It is the one piece of process-wide state in this
// subsystem: construct it once and inject it everywhere.
type PacingGate struct {
	mu       sync.Mutex
	interval time.Duration
	next     time.Time // earliest time the next call may start
}

// NewPacingGate creates a gate enforcing delay = 60/maxCallsPerMinute between
// calls. Non-positive rates fall back to DefaultMaxCallsPerMinute.
func NewPacingGate(maxCallsPerMinute int) *PacingGate {
	if maxCallsPerMinute <= 0 {
		maxCallsPerMinute = DefaultMaxCallsPerMinute
	}
	interval := time.Minute / time.Duration(maxCallsPerMinute)
	slog.Debug("genai.NewPacingGate: created", "interval", interval)
	return &PacingGate{interval: interval}
}

// Wait reserves the next call slot and sleeps until it is due. The
// reservation happens under the lock but the sleep does not, so concurrent
// callers queue behind the gate without serializing their sleeps on it.
func (g *PacingGate) Wait(ctx context.Context) error {
	g.mu.Lock()
	now := time.Now()
	start := g.next
	if start.Before(now) {
		start = now
	}
	g.next = start.Add(g.interval)
	g.mu.Unlock()

	delay := time.Until(start)
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Interval exposes the configured spacing, mainly for logging and tests.
func (g *PacingGate) Interval() time.Duration { return g.interval }

// RetryPolicy is the explicit retry strategy for completion calls.
type RetryPolicy struct {
	MaxAttempts int
	// Backoff returns the wait before retrying after the given zero-based
	// attempt number.
	Backoff func(attempt int) time.Duration
	// Retryable reports whether the error is a transient, rate-limit-class
	// failure. Permanent failures surface immediately.
	Retryable func(err error) bool
}

// DefaultRetryPolicy returns the standard policy: up to 5 attempts, 2^attempt
// seconds of backoff, retrying only rate-limit-class failures.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: DefaultMaxAttempts,
		Backoff: func(attempt int) time.Duration {
			return time.Duration(1<<attempt) * time.Second
		},
		Retryable: func(err error) bool {
			return errors.Is(err, models.ErrRateLimited)
		},
	}
}

// Invoker throttles and retries calls to the completion service. Callers must
// treat Invoke as blocking: every call waits at least the gate interval.
type Invoker struct {
	client ClientInterface
	gate   *PacingGate
	policy RetryPolicy
}

// NewInvoker creates an invoker around the given client, gate, and policy.
func NewInvoker(client ClientInterface, gate *PacingGate, policy RetryPolicy) *Invoker {
	if policy.MaxAttempts <= 0 {
		policy = DefaultRetryPolicy()
	}
	return &Invoker{client: client, gate: gate, policy: policy}
}

// Invoke performs one completion call through the pacing gate, retrying
// rate-limit-class failures with backoff. It fails with
// models.ErrExternalService only after exhausting retries; permanent failures
// surface on the first attempt.
func (inv *Invoker) Invoke(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	var lastErr error
	for attempt := 0; attempt < inv.policy.MaxAttempts; attempt++ {
		if err := inv.gate.Wait(ctx); err != nil {
			return "", fmt.Errorf("pacing gate wait interrupted: %w", err)
		}

		reply, err := inv.client.Complete(ctx, systemPrompt, userPrompt)
		if err == nil {
			metrics.RecordCompletionCall("success")
			return reply, nil
		}
		lastErr = err

		if !inv.policy.Retryable(err) {
			metrics.RecordCompletionCall("error")
			slog.Error("Invoker.Invoke: permanent completion failure", "attempt", attempt, "error", err)
			return "", fmt.Errorf("%w: %v", models.ErrExternalService, err)
		}

		metrics.RecordCompletionCall("rate_limited")
		if attempt == inv.policy.MaxAttempts-1 {
			break
		}
		wait := inv.policy.Backoff(attempt)
		slog.Warn("Invoker.Invoke: rate limited, backing off", "attempt", attempt, "wait", wait)
		metrics.RecordCompletionRetry()
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", fmt.Errorf("retry backoff interrupted: %w", ctx.Err())
		case <-timer.C:
		}
	}
	slog.Error("Invoker.Invoke: retries exhausted", "attempts", inv.policy.MaxAttempts, "error", lastErr)
	return "", fmt.Errorf("%w: retries exhausted: %v", models.ErrExternalService, lastErr)
}
