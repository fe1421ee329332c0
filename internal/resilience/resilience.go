// Package resilience provides retry-with-backoff and graceful-degradation
// wrappers for the subprocess/network boundary calls that talk to git, the
// QA web server, and validator commands.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/edison-dev/edison/internal/config"
	"github.com/edison-dev/edison/internal/logging"
)

// Policy is a resolved retry policy: the values get_retry_config used to
// read straight from YAML, here loaded through config.ResilienceConfig.
type Policy struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	BackoffFactor float64
	MaxDelay      time.Duration
}

// PolicyFromConfig converts the domain config view into a Policy, applying
// the same fallbacks config.Resilience already defaults to.
func PolicyFromConfig(cfg *config.ResilienceConfig) Policy {
	return Policy{
		MaxAttempts:   cfg.MaxAttempts,
		InitialDelay:  time.Duration(cfg.InitialDelayMS) * time.Millisecond,
		BackoffFactor: cfg.BackoffFactor,
		MaxDelay:      time.Duration(cfg.MaxDelayMS) * time.Millisecond,
	}
}

// ErrUnreachable should never surface: it only fires if the retry loop
// exits without returning or raising, which the loop's bounds make
// impossible.
var ErrUnreachable = errors.New("resilience: retry loop exited without result")

// Retry runs fn, retrying with exponential backoff on error up to
// policy.MaxAttempts total attempts. It gives up early if ctx is canceled
// during a backoff sleep. name is used only for log messages.
func Retry(ctx context.Context, name string, policy Policy, fn func() error) error {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	delay := policy.InitialDelay
	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if attempt == policy.MaxAttempts {
			logging.Error(ctx, "retry exhausted", slog.String("op", name),
				slog.Int("attempts", policy.MaxAttempts), slog.String("error", lastErr.Error()))
			return lastErr
		}
		logging.Warn(ctx, "retrying after failure", slog.String("op", name),
			slog.Int("attempt", attempt), slog.Int("max_attempts", policy.MaxAttempts),
			slog.String("error", lastErr.Error()), slog.Duration("delay", delay))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay = time.Duration(float64(delay) * policy.BackoffFactor)
		if delay > policy.MaxDelay {
			delay = policy.MaxDelay
		}
	}
	return ErrUnreachable
}

// RetryValue is Retry's generic-result counterpart: fn returns a value
// alongside its error, and the last successful value is returned.
func RetryValue[T any](ctx context.Context, name string, policy Policy, fn func() (T, error)) (T, error) {
	var result T
	err := Retry(ctx, name, policy, func() error {
		v, err := fn()
		if err == nil {
			result = v
		}
		return err
	})
	return result, err
}

// GracefulDegradation runs fn and returns fallback instead of propagating
// an error, logging the failure at warn level. Used for optional-data reads
// where the caller would rather proceed with a safe default than fail the
// whole command.
func GracefulDegradation[T any](ctx context.Context, name string, fallback T, fn func() (T, error)) T {
	v, err := fn()
	if err != nil {
		logging.Warn(ctx, "operation failed, using fallback", slog.String("op", name),
			slog.String("error", err.Error()))
		return fallback
	}
	return v
}
