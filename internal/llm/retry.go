package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/charmbracelet/log"
)

// RetryPolicy bounds how long a single remote call may take in total
type RetryPolicy struct {
	Attempts uint
	Delay    time.Duration
	// Timeout applies to each attempt, zero means no per-attempt limit
	Timeout time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts: 3,
		Delay:    500 * time.Millisecond,
		Timeout:  90 * time.Second,
	}
}

func (p RetryPolicy) Validate() error {
	if p.Attempts == 0 {
		return fmt.Errorf("retry attempts must be greater than 0")
	}
	if p.Delay < 0 {
		return fmt.Errorf("retry delay must not be negative")
	}
	if p.Timeout < 0 {
		return fmt.Errorf("llm timeout must not be negative")
	}
	return nil
}

// StatusFunc extracts an HTTP status code from a provider error
type StatusFunc func(err error) (int, bool)

// Classify maps err onto ErrRejected, ErrQuotaExceeded or ErrUnavailable
// using the status code status reports for it. Errors without a status are
// treated as transport failures.
func Classify(err error, status StatusFunc) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrRejected) || errors.Is(err, ErrQuotaExceeded) || errors.Is(err, ErrUnavailable) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if status != nil {
		if code, ok := status(err); ok {
			return classifyStatus(code, err)
		}
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}

func classifyStatus(code int, err error) error {
	switch {
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w", ErrQuotaExceeded, err)
	case code == http.StatusRequestTimeout || code >= 500:
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	case code >= 400:
		return fmt.Errorf("%w: %w", ErrRejected, err)
	default:
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
}

// Do runs fn until it succeeds, the error is not transient or attempts run
// out. Each attempt gets its own timeout derived from ctx. Cancelling ctx
// stops the loop and returns the context error.
func (p RetryPolicy) Do(ctx context.Context, logger *log.Logger, op string, status StatusFunc, fn func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts == 0 {
		attempts = 1
	}

	err := retry.Do(
		func() error {
			attemptCtx := ctx
			if p.Timeout > 0 {
				var cancel context.CancelFunc
				attemptCtx, cancel = context.WithTimeout(ctx, p.Timeout)
				defer cancel()
			}
			err := fn(attemptCtx)
			if err == nil {
				return nil
			}
			if ctx.Err() != nil {
				return retry.Unrecoverable(ctx.Err())
			}
			return Classify(err, status)
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(p.Delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, ErrUnavailable)
		}),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn("Retrying llm request",
				"op", op,
				"attempt", n+1,
				"max_attempts", attempts,
				"error", err)
		}),
	)
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", op, ctxErr)
	}
	if errors.Is(err, ErrUnavailable) {
		return fmt.Errorf("%s failed after %d attempts: %w", op, attempts, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
