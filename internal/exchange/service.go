// Package exchange converts report amounts between currencies using ECB
// reference rates.
package exchange

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const dayLayout = "2006-01-02"

var (
	// ErrRateUnavailable is returned when the rate source has no rate for the pair.
	ErrRateUnavailable = errors.New("exchange rate unavailable")

	errNonPositiveRate = errors.New("conversion rate must be positive")
	errMissingCurrency = errors.New("from and to currencies are required")
)

// ConversionResult is one converted amount and the rate behind it.
type ConversionResult struct {
	Amount   decimal.Decimal
	Rate     decimal.Decimal
	RateDate time.Time
}

// Converter converts amount at the reference rate published for day.
// A zero day means the latest published rate.
type Converter interface {
	Convert(ctx context.Context, amount decimal.Decimal, from, to string, day time.Time) (ConversionResult, error)
}

func normalizeCurrency(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// rateDay truncates day to the UTC calendar date rates are published for.
// Future days resolve to the latest rate.
func rateDay(day, now time.Time) string {
	if day.IsZero() || day.After(now) {
		return "latest"
	}
	return day.UTC().Format(dayLayout)
}

func apply(amount decimal.Decimal, rate decimal.Decimal, rateDate time.Time) ConversionResult {
	return ConversionResult{Amount: amount.Mul(rate).Round(2), Rate: rate, RateDate: rateDate}
}
