package modelclient

import (
	"context"

	"github.com/agentruntime/core/internal/backoff"
	"github.com/agentruntime/core/internal/runtimeerr"
)

// RetryConfig is the retry budget for a ModelClient call (spec.md §6's
// RuntimeConfig.retry table).
type RetryConfig struct {
	MaxRetries  int
	BaseDelayMs float64
	MaxDelayMs  float64
	MaxTotalMs  int64
}

// DefaultRetryConfig matches the teacher's providers.BaseProvider
// defaults (3 attempts, linear-ish backoff), adapted to the exponential
// jitter policy shared by every retryable collaborator.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxRetries: 3, BaseDelayMs: 250, MaxDelayMs: 10000, MaxTotalMs: 60000}
}

func (c RetryConfig) policy() backoff.BackoffPolicy {
	return backoff.BackoffPolicy{InitialMs: c.BaseDelayMs, MaxMs: c.MaxDelayMs, Factor: 2, Jitter: 0.2}
}

// callWithRetry wraps a single streaming attempt with the shared retry
// budget. Only the initial connect/handshake is retried — once a stream
// has started delivering deltas, a mid-stream failure surfaces as a
// DeltaStop{StopError} rather than silently restarting and duplicating
// already-emitted text (spec.md §4.2 doesn't ask for stream resumption).
func callWithRetry(ctx context.Context, cfg RetryConfig, attempt func(ctx context.Context, try int) (<-chan Delta, error)) (<-chan Delta, error) {
	result, err := backoff.RetryWithBudget(
		ctx,
		cfg.policy(),
		maxInt(cfg.MaxRetries, 1),
		cfg.MaxTotalMs,
		func(err error) bool { return runtimeerr.KindOf(err).Retryable() },
		func(try int) (<-chan Delta, error) {
			return attempt(ctx, try)
		},
	)
	if err != nil {
		return nil, err
	}
	return result.Value, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
