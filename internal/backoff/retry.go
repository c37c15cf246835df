package backoff

import (
	"context"
	"errors"
	"time"
)

// ErrMaxAttemptsExhausted is returned when all retry attempts have been exhausted.
var ErrMaxAttemptsExhausted = errors.New("max retry attempts exhausted")

// RetryResult holds the result of a retry operation.
type RetryResult[T any] struct {
	// Value is the successful result value.
	Value T
	// Attempts is the number of attempts made (1-indexed).
	Attempts int
	// LastError is the last error encountered, if any.
	LastError error
}

// RetryWithBackoff executes the provided function with exponential backoff retry logic.
// It will retry up to maxAttempts times, sleeping between attempts according to the policy.
// Returns the result on success, or an error after all attempts are exhausted or context is cancelled.
//
// The fn function receives the current attempt number (1-indexed) and should return:
//   - (value, nil) on success
//   - (zero, error) on failure (will trigger retry if attempts remain)
//
// Context cancellation is checked between attempts, allowing graceful shutdown.
func RetryWithBackoff[T any](
	ctx context.Context,
	policy BackoffPolicy,
	maxAttempts int,
	fn func(attempt int) (T, error),
) (RetryResult[T], error) {
	var result RetryResult[T]
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result.Attempts = attempt

		// Check context before each attempt
		if err := ctx.Err(); err != nil {
			result.LastError = lastErr
			return result, err
		}

		// Execute the function
		value, err := fn(attempt)
		if err == nil {
			result.Value = value
			return result, nil
		}

		lastErr = err
		result.LastError = err

		// Don't sleep after the last attempt
		if attempt < maxAttempts {
			if err := SleepWithBackoff(ctx, policy, attempt); err != nil {
				return result, err
			}
		}
	}

	return result, ErrMaxAttemptsExhausted
}

// RetryWithBudget extends RetryWithBackoff with a wall-clock budget: once
// maxTotalMs has elapsed since the first attempt, no further attempt
// starts even if maxAttempts has not been reached. isRetryable decides
// whether an error should trigger another attempt at all; a nil
// isRetryable retries every error (matching RetryWithBackoff). A
// maxTotalMs of 0 disables the wall-clock budget.
func RetryWithBudget[T any](
	ctx context.Context,
	policy BackoffPolicy,
	maxAttempts int,
	maxTotalMs int64,
	isRetryable func(error) bool,
	fn func(attempt int) (T, error),
) (RetryResult[T], error) {
	var result RetryResult[T]
	deadline := time.Now().Add(time.Duration(maxTotalMs) * time.Millisecond)

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result.Attempts = attempt

		if err := ctx.Err(); err != nil {
			return result, err
		}
		if maxTotalMs > 0 && time.Now().After(deadline) {
			if result.LastError != nil {
				return result, result.LastError
			}
			return result, ErrMaxAttemptsExhausted
		}

		value, err := fn(attempt)
		if err == nil {
			result.Value = value
			return result, nil
		}
		result.LastError = err

		if isRetryable != nil && !isRetryable(err) {
			return result, err
		}
		if attempt < maxAttempts {
			if maxTotalMs > 0 && time.Until(deadline) <= 0 {
				return result, err
			}
			if err := SleepWithBackoff(ctx, policy, attempt); err != nil {
				return result, err
			}
		}
	}

	return result, ErrMaxAttemptsExhausted
}

// RetryFunc is a convenience wrapper for RetryWithBackoff that uses the default policy.
// It executes the provided function with exponential backoff retry logic.
func RetryFunc[T any](
	ctx context.Context,
	maxAttempts int,
	fn func(attempt int) (T, error),
) (T, error) {
	result, err := RetryWithBackoff(ctx, DefaultPolicy(), maxAttempts, fn)
	return result.Value, err
}

// RetrySimple is a convenience wrapper for simple retry cases without return values.
// It uses the default policy and retries the function up to maxAttempts times.
func RetrySimple(
	ctx context.Context,
	maxAttempts int,
	fn func() error,
) error {
	_, err := RetryWithBackoff(ctx, DefaultPolicy(), maxAttempts, func(_ int) (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}
