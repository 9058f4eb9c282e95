package utils

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestFormatCurrency(t *testing.T) {
	tests := []struct {
		amount float64
		want   string
	}{
		{0, "$0.00"},
		{5.5, "$5.50"},
		{999.999, "$1,000.00"},
		{1234.5, "$1,234.50"},
		{100000, "$100,000.00"},
		{1234567.891, "$1,234,567.89"},
		{-2500, "-$2,500.00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatCurrency(tt.amount))
	}
}

func TestFormatHelpers(t *testing.T) {
	assert.Equal(t, "+12.50%", FormatPercent(12.5))
	assert.Equal(t, "-3.00%", FormatPercent(-3))
	assert.Equal(t, "0.00%", FormatPercent(0))
	assert.Equal(t, "+$200.00", FormatPnL(200))
	assert.Equal(t, "-$100.05", FormatPnL(-100.05))
	assert.Equal(t, "1,500", FormatQuantity(1500))
	assert.Equal(t, "-12,000", FormatQuantity(-12000))
	assert.Equal(t, "2.50M", FormatCompact(2_500_000))
	assert.Equal(t, "1.2K", FormatCompact(1234))
	assert.Equal(t, "3.00B", FormatCompact(3e9))
	assert.Equal(t, "950", FormatCompact(950))
	assert.Equal(t, "2.88x", FormatRatio(2.8846))
}

// Property: currency formatting keeps the $ prefix, two decimals, three-digit
// groups, and parses back to the rounded amount.
func TestProperty_CurrencyFormatting(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("FormatCurrency produces grouped dollar amounts", prop.ForAll(
		func(amount float64) bool {
			formatted := FormatCurrency(amount)
			body := formatted
			if amount < 0 && math.Round(amount*100) != 0 {
				if !strings.HasPrefix(body, "-$") {
					return false
				}
				body = body[2:]
			} else {
				body = strings.TrimPrefix(body, "-")
				if !strings.HasPrefix(body, "$") {
					return false
				}
				body = body[1:]
			}

			parts := strings.Split(body, ".")
			if len(parts) != 2 || len(parts[1]) != 2 {
				return false
			}
			groups := strings.Split(parts[0], ",")
			for i, g := range groups {
				if len(g) > 3 || len(g) == 0 || (i > 0 && len(g) != 3) {
					return false
				}
			}

			parsed, err := strconv.ParseFloat(strings.ReplaceAll(body, ",", ""), 64)
			if err != nil {
				return false
			}
			return math.Abs(parsed-math.Abs(amount)) <= 0.005+1e-9*math.Abs(amount)
		},
		gen.Float64Range(-1e12, 1e12),
	))

	properties.TestingRun(t)
}

var errBusy = errors.New("database is locked")

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{MaxAttempts: attempts, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, BackoffFactor: 2}
}

func TestRetry(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetry(3), func() error {
		calls++
		if calls < 3 {
			return errBusy
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = Retry(context.Background(), fastRetry(2), func() error {
		calls++
		return errBusy
	})
	assert.ErrorIs(t, err, errBusy)
	assert.Equal(t, 2, calls)
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	permanent := errors.New("no such table")
	cfg := fastRetry(5)
	cfg.Retryable = RetryOn(errBusy)

	calls := 0
	err := Retry(context.Background(), cfg, func() error {
		calls++
		return permanent
	})
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestRetryHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cfg := fastRetry(5)
	cfg.InitialDelay = time.Hour
	cfg.MaxDelay = time.Hour

	err := Retry(ctx, cfg, func() error { return errBusy })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetryWithResult(t *testing.T) {
	calls := 0
	v, err := RetryWithResult(context.Background(), fastRetry(3), func() (int, error) {
		calls++
		if calls == 1 {
			return 0, errBusy
		}
		return 42, nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestCalculateBackoff(t *testing.T) {
	assert.Equal(t, 100*time.Millisecond, CalculateBackoff(0, 100*time.Millisecond, time.Second, 2))
	assert.Equal(t, 400*time.Millisecond, CalculateBackoff(2, 100*time.Millisecond, time.Second, 2))
	assert.Equal(t, time.Second, CalculateBackoff(10, 100*time.Millisecond, time.Second, 2))
}
