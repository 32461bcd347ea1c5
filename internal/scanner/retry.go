package scanner

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	scanerrors "github.com/codepulse/codepulse/internal/errors"
)

// maxRetryAttempts bounds the retry executor.
const maxRetryAttempts = 3

// retrySleep is swapped in tests.
var retrySleep = sleepCtx

// Retry runs op with bounded exponential backoff. Only quota-exhaustion
// errors are retried; anything else surfaces immediately. Between attempts
// the governor re-synchronizes with the remote, so the backoff composes
// with the rate-limit block rather than duplicating it. On exhaustion the
// last error is returned as a value for batch aggregation.
func Retry[T any](ctx context.Context, gov *Governor, name string, op func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt < maxRetryAttempts; attempt++ {
		if attempt > 0 {
			delay := time.Duration(1<<(attempt-1)) * time.Second
			log.Debug().
				Str("op", name).
				Int("attempt", attempt+1).
				Dur("delay", delay).
				Msg("Retrying after rate limit")
			if err := retrySleep(ctx, delay); err != nil {
				return zero, err
			}
			if err := gov.CheckAndWait(ctx); err != nil {
				return zero, err
			}
		}

		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		if !scanerrors.IsQuotaError(err) {
			return zero, err
		}
		lastErr = err
	}

	log.Warn().Str("op", name).Int("attempts", maxRetryAttempts).Msg("Retry budget exhausted")
	return zero, lastErr
}
