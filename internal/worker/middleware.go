package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/shamanpi/BAD-Mutations/internal/domain"
	"github.com/shamanpi/BAD-Mutations/shared/config"
	"github.com/shamanpi/BAD-Mutations/shared/observability/types"
)

// StageFunc runs one stage of a pass.
type StageFunc func(ctx context.Context) error

// Middleware wraps a StageFunc with additional behavior.
type Middleware func(next StageFunc) StageFunc

// Chain applies middlewares so that the first one is the outermost.
func Chain(fn StageFunc, middlewares ...Middleware) StageFunc {
	for i := len(middlewares) - 1; i >= 0; i-- {
		fn = middlewares[i](fn)
	}
	return fn
}

// StageMiddleware puts the stage name into the context.
func StageMiddleware(name string) Middleware {
	return func(next StageFunc) StageFunc {
		return func(ctx context.Context) error {
			return next(context.WithValue(ctx, types.StageKey, name))
		}
	}
}

// LoggingMiddleware logs the start and outcome of a stage
func LoggingMiddleware(name string, logger types.Logger) Middleware {
	return func(next StageFunc) StageFunc {
		return func(ctx context.Context) error {
			logger.Debug(ctx, "Stage started", types.Fields{"stage": name})

			start := time.Now()
			err := next(ctx)
			duration := time.Since(start)

			if err != nil {
				logger.Error(ctx, "Stage failed", err, types.Fields{
					"stage":       name,
					"duration_ms": duration.Milliseconds(),
				})
			} else {
				logger.Info(ctx, "Stage completed", types.Fields{
					"stage":       name,
					"duration_ms": duration.Milliseconds(),
				})
			}

			return err
		}
	}
}

// MetricsMiddleware records duration and outcome of a stage
func MetricsMiddleware(name string, metrics types.Metrics) Middleware {
	return func(next StageFunc) StageFunc {
		return func(ctx context.Context) error {
			metrics.StartOperation(name)
			defer metrics.EndOperation(name)

			start := time.Now()
			err := next(ctx)
			metrics.RecordDuration("stage_"+name, time.Since(start).Seconds())

			if err != nil {
				metrics.RecordError(name, stageError(err))
			} else {
				metrics.RecordSuccess(name)
			}

			return err
		}
	}
}

// RecoveryMiddleware turns a panic inside a stage into an error.
// It should be the outermost layer.
func RecoveryMiddleware(name string, logger types.Logger, metrics types.Metrics) Middleware {
	return func(next StageFunc) StageFunc {
		return func(ctx context.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error(ctx, "Panic recovered", fmt.Errorf("%v", r), types.Fields{
						"stage": name,
						"stack": string(debug.Stack()),
					})
					metrics.RecordError(name, "panic_recovered")
					err = fmt.Errorf("panic in %s stage: %v", name, r)
				}
			}()

			return next(ctx)
		}
	}
}

// RetryMiddleware re-runs a stage whose error is marked retryable, with
// exponential backoff between attempts. MaxAttempts counts the first run.
func RetryMiddleware(cfg *config.RetryConfig, logger types.Logger, sleep func(context.Context, time.Duration) error) Middleware {
	return func(next StageFunc) StageFunc {
		return func(ctx context.Context) error {
			var lastErr error

			attempts := max(cfg.MaxAttempts, 1)
			for attempt := 0; attempt < attempts; attempt++ {
				if attempt > 0 {
					backoff := cfg.Backoff(attempt - 1)
					logger.Warn(ctx, "Retrying stage", types.Fields{
						"attempt":    attempt + 1,
						"backoff_ms": backoff.Milliseconds(),
						"error":      lastErr.Error(),
					})
					if err := sleep(ctx, backoff); err != nil {
						return err
					}
				}

				err := next(ctx)
				if err == nil {
					return nil
				}
				if ctx.Err() != nil || !isRetryable(err) {
					return err
				}
				lastErr = err
			}

			return fmt.Errorf("max attempts (%d) exceeded: %w", attempts, lastErr)
		}
	}
}

// isRetryable determines if a stage error is worth another attempt
func isRetryable(err error) bool {
	// Don't retry if context is cancelled
	if errors.Is(err, context.Canceled) {
		return false
	}
	return domain.IsRetryable(err)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
