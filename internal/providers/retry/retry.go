// Package retry implements the transport's bounded exponential backoff loop.
package retry

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"time"

	moderr "github.com/leion/aihelper/errors"
)

// Config holds retry parameters. MaxAttempts includes the first attempt.
// MaxDelay of zero leaves the exponential growth uncapped and JitterRatio of
// zero keeps the waits deterministic, matching the upstream behavior; both
// knobs exist for callers that want them. AttemptTimeout bounds each attempt
// separately, so a hanging endpoint costs one attempt, not the whole budget;
// zero leaves attempts bounded only by the caller's context.
type Config struct {
	MaxAttempts    int           `json:"max_attempts"`
	BaseDelay      time.Duration `json:"base_delay"`
	MaxDelay       time.Duration `json:"max_delay"`
	JitterRatio    float64       `json:"jitter_ratio"`
	AttemptTimeout time.Duration `json:"attempt_timeout"`
}

// DefaultConfig mirrors the service defaults: three attempts, two seconds
// base delay, no cap, no jitter.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
	}
}

// Delay returns the backoff wait after the given 1-based attempt:
// BaseDelay * 2^(attempt-1), capped by MaxDelay when set.
func (c Config) Delay(attempt int) time.Duration {
	d := time.Duration(float64(c.BaseDelay) * math.Pow(2, float64(attempt-1)))
	if c.MaxDelay > 0 && d > c.MaxDelay {
		d = c.MaxDelay
	}
	return d
}

// Do runs fn until it succeeds, fails with a non-retryable error, or the
// attempt budget is exhausted. The returned error is the last observed
// failure annotated with the attempt it occurred on. Every retry is logged
// with its attempt number and wait so each attempt is observable.
//
// Each invocation of fn receives its own context: derived from ctx with
// AttemptTimeout applied when set, so one timed-out attempt leaves the
// remaining budget intact. Cancelling ctx itself still aborts the loop.
func Do(ctx context.Context, cfg Config, logger *slog.Logger, fn func(ctx context.Context, attempt int) error) error {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	for attempt := 1; ; attempt++ {
		err := runAttempt(ctx, cfg, attempt, fn)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return moderr.WithAttempt(moderr.Classify(ctx.Err()), attempt)
		}
		if !moderr.Retryable(err) {
			return moderr.WithAttempt(err, attempt)
		}
		if attempt >= cfg.MaxAttempts {
			return moderr.WithAttempt(err, attempt)
		}

		delay := cfg.Delay(attempt)
		if cfg.JitterRatio > 0 {
			delay += time.Duration(rand.Float64() * cfg.JitterRatio * float64(delay))
		}
		logger.Warn("retrying request",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", cfg.MaxAttempts),
			slog.Duration("wait", delay),
			slog.String("error", err.Error()),
		)
		select {
		case <-ctx.Done():
			return moderr.WithAttempt(ctx.Err(), attempt)
		case <-time.After(delay):
		}
	}
}

func runAttempt(ctx context.Context, cfg Config, attempt int, fn func(ctx context.Context, attempt int) error) error {
	if cfg.AttemptTimeout <= 0 {
		return fn(ctx, attempt)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, cfg.AttemptTimeout)
	defer cancel()
	return fn(attemptCtx, attempt)
}
