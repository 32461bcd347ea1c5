package scanner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	scanerrors "github.com/codepulse/codepulse/internal/errors"
	"github.com/codepulse/codepulse/pkg/github"
)

func quotaErr() error {
	return scanerrors.New(scanerrors.ErrorTypeQuota, "get_blob", "o/r", errors.New("rate limit exceeded"))
}

func testGovernor() *Governor {
	g := NewGovernor(&fakeRateSource{limits: []github.RateLimit{
		{Remaining: 5000, ResetAt: time.Now().Add(time.Hour)},
	}})
	g.sleepFn = func(ctx context.Context, d time.Duration) error { return nil }
	return g
}

func TestRetrySucceedsAfterQuotaErrors(t *testing.T) {
	orig := retrySleep
	var delays []time.Duration
	retrySleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	defer func() { retrySleep = orig }()

	attempts := 0
	got, err := Retry(context.Background(), testGovernor(), "op", func(ctx context.Context) (string, error) {
		attempts++
		if attempts < 3 {
			return "", quotaErr()
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, delays)
}

func TestRetryExhaustsBudget(t *testing.T) {
	orig := retrySleep
	retrySleep = func(ctx context.Context, d time.Duration) error { return nil }
	defer func() { retrySleep = orig }()

	attempts := 0
	_, err := Retry(context.Background(), testGovernor(), "op", func(ctx context.Context) (int, error) {
		attempts++
		return 0, quotaErr()
	})
	require.Error(t, err)
	assert.Equal(t, maxRetryAttempts, attempts)
	assert.True(t, scanerrors.IsQuotaError(err))
}

func TestRetryOnlyRetriesQuotaErrors(t *testing.T) {
	attempts := 0
	notFound := scanerrors.New(scanerrors.ErrorTypeNotFound, "get_blob", "o/r", errors.New("404"))
	_, err := Retry(context.Background(), testGovernor(), "op", func(ctx context.Context) (int, error) {
		attempts++
		return 0, notFound
	})
	assert.Equal(t, 1, attempts, "non-quota errors must surface immediately")
	assert.True(t, scanerrors.IsNotFound(err))
}

func TestRetryStopsOnContextCancel(t *testing.T) {
	orig := retrySleep
	retrySleep = func(ctx context.Context, d time.Duration) error { return context.Canceled }
	defer func() { retrySleep = orig }()

	attempts := 0
	_, err := Retry(context.Background(), testGovernor(), "op", func(ctx context.Context) (int, error) {
		attempts++
		return 0, quotaErr()
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}
