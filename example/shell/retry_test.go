package shell_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
	"github.com/AntonStoeckl/library-circulation-go/example/shell"
	"github.com/AntonStoeckl/library-circulation-go/testutil/observability/testdoubles"
)

var errTransient = errors.Join(circulation.ErrPersistence, errors.New("connection reset"))

func fastRetries() []shell.RetryOption {
	return []shell.RetryOption{shell.WithBaseDelay(time.Millisecond), shell.WithJitterFactor(0)}
}

func Test_RetryWithExponentialBackoff_Success_NoRetries(t *testing.T) {
	// arrange
	callCount := 0
	fn := func(context.Context) error {
		callCount++
		return nil
	}

	// act
	meta, err := shell.RetryWithExponentialBackoff(context.Background(), fn)

	// assert
	assert.NoError(t, err)
	assert.Equal(t, 1, callCount)
	assert.Equal(t, 1, meta.Attempts)
	assert.Equal(t, time.Duration(0), meta.TotalDelay)
	assert.Equal(t, "none", meta.LastErrorType)
}

func Test_RetryWithExponentialBackoff_RetriesTransientFailures(t *testing.T) {
	// arrange
	callCount := 0
	fn := func(context.Context) error {
		callCount++
		if callCount < 3 {
			return errTransient
		}

		return nil
	}

	// act
	meta, err := shell.RetryWithExponentialBackoff(context.Background(), fn, fastRetries()...)

	// assert
	assert.NoError(t, err)
	assert.Equal(t, 3, callCount)
	assert.Equal(t, 3, meta.Attempts)
	assert.GreaterOrEqual(t, meta.TotalDelay, 3*time.Millisecond)
}

func Test_RetryWithExponentialBackoff_FailsFast(t *testing.T) {
	testCases := []struct {
		name string
		err  error
	}{
		{name: "rejection", err: circulation.ErrOutOfStock},
		{name: "duplicate loan", err: circulation.ErrDuplicateLoan},
		{name: "consistency failure", err: &circulation.ConsistencyError{Operation: "borrow", Err: errTransient}},
		{name: "deadline", err: errors.Join(circulation.ErrPersistence, context.DeadlineExceeded)},
		{name: "unclassified", err: errors.New("boom")},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// arrange
			callCount := 0
			fn := func(context.Context) error {
				callCount++
				return tc.err
			}

			// act
			meta, err := shell.RetryWithExponentialBackoff(context.Background(), fn, fastRetries()...)

			// assert
			assert.ErrorIs(t, err, tc.err)
			assert.Equal(t, 1, callCount)
			assert.Equal(t, 1, meta.Attempts)
		})
	}
}

func Test_RetryWithExponentialBackoff_GivesUpAfterMaxAttempts(t *testing.T) {
	// arrange
	metrics := testdoubles.NewMetricsCollectorSpy()
	callCount := 0
	fn := func(context.Context) error {
		callCount++
		return errTransient
	}
	options := append(fastRetries(), shell.WithMaxAttempts(3), shell.WithMetrics(metrics, "Borrow"))

	// act
	meta, err := shell.RetryWithExponentialBackoff(context.Background(), fn, options...)

	// assert
	assert.ErrorIs(t, err, circulation.ErrPersistence)
	assert.Equal(t, 3, callCount)
	assert.Equal(t, 3, meta.Attempts)
	assert.Equal(t, "persistence", meta.LastErrorType)

	assert.Len(t, metrics.Records(shell.RetriesMetric), 2)
	assert.Len(t, metrics.Records(shell.RetryDelayMetric), 2)
	assert.True(t, metrics.HasRecord(shell.MaxRetriesReachedMetric, map[string]string{
		"command_type":     "Borrow",
		"final_error_type": "persistence",
	}))
}

func Test_RetryWithExponentialBackoff_StopsWhenContextIsCanceled(t *testing.T) {
	// arrange
	ctx, cancel := context.WithCancel(context.Background())
	fn := func(context.Context) error {
		cancel()
		return errTransient
	}

	// act
	meta, err := shell.RetryWithExponentialBackoff(ctx, fn, shell.WithBaseDelay(time.Second))

	// assert
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, meta.Attempts)
	assert.Equal(t, "context_canceled", meta.LastErrorType)
}

func Test_RetryWithExponentialBackoff_InvalidOptions(t *testing.T) {
	fn := func(context.Context) error { return nil }

	testCases := []struct {
		name     string
		option   shell.RetryOption
		expected error
	}{
		{name: "max attempts", option: shell.WithMaxAttempts(0), expected: shell.ErrInvalidMaxAttempts},
		{name: "base delay", option: shell.WithBaseDelay(-time.Millisecond), expected: shell.ErrNegativeBaseDelay},
		{name: "jitter", option: shell.WithJitterFactor(1.5), expected: shell.ErrInvalidJitterFactor},
		{name: "nil collector", option: shell.WithMetrics(nil, "Borrow"), expected: shell.ErrNilMetricsCollector},
		{name: "empty command type", option: shell.WithMetrics(testdoubles.NewMetricsCollectorSpy(), ""), expected: shell.ErrEmptyCommandType},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// act
			_, err := shell.RetryWithExponentialBackoff(context.Background(), fn, tc.option)

			// assert
			assert.ErrorIs(t, err, tc.expected)
		})
	}
}
