package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gitlab.com/billit/billit-api/internal/logger"
	"gitlab.com/billit/billit-api/internal/telemetry"
)

// DefaultFrankfurterURL is the public Frankfurter API.
const DefaultFrankfurterURL = "https://api.frankfurter.app"

// Frankfurter fetches ECB reference rates from a Frankfurter API. Historical
// days resolve to the closest earlier working day, as the ECB publishes no
// rates on weekends or holidays.
type Frankfurter struct {
	baseURL    string
	httpClient *http.Client
	now        func() time.Time
}

type frankfurterRates struct {
	Date  string                 `json:"date"`
	Rates map[string]json.Number `json:"rates"`
}

// NewFrankfurter creates a Frankfurter client with the given request timeout.
func NewFrankfurter(baseURL string, timeout time.Duration) *Frankfurter {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		base = DefaultFrankfurterURL
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Frankfurter{baseURL: base, httpClient: telemetry.HTTPClient(timeout), now: time.Now}
}

// Convert implements Converter.
func (f *Frankfurter) Convert(ctx context.Context, amount decimal.Decimal, from, to string, day time.Time) (ConversionResult, error) {
	from, to = normalizeCurrency(from), normalizeCurrency(to)
	if from == "" || to == "" {
		return ConversionResult{}, errMissingCurrency
	}
	if from == to {
		return ConversionResult{Amount: amount, Rate: decimal.NewFromInt(1), RateDate: day}, nil
	}

	rate, rateDate, err := f.Rate(ctx, from, to, day)
	if err != nil {
		return ConversionResult{}, err
	}
	return apply(amount, rate, rateDate), nil
}

// Rate returns the from->to rate published for day and the date it was published.
func (f *Frankfurter) Rate(ctx context.Context, from, to string, day time.Time) (decimal.Decimal, time.Time, error) {
	endpoint := fmt.Sprintf("%s/%s?from=%s&to=%s",
		f.baseURL, rateDay(day, f.now()), url.QueryEscape(from), url.QueryEscape(to))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("failed to create rate request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("failed to request exchange rate: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusUnprocessableEntity:
		return decimal.Zero, time.Time{}, fmt.Errorf("%s->%s: %w", from, to, ErrRateUnavailable)
	case resp.StatusCode != http.StatusOK:
		logger.Log.Warn().Int("status", resp.StatusCode).Str("from", from).Str("to", to).Msg("Exchange rate lookup failed")
		return decimal.Zero, time.Time{}, fmt.Errorf("exchange API returned status %d", resp.StatusCode)
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	var payload frankfurterRates
	if err := dec.Decode(&payload); err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("failed to decode exchange rates: %w", err)
	}

	raw, ok := payload.Rates[to]
	if !ok {
		return decimal.Zero, time.Time{}, fmt.Errorf("%s->%s: %w", from, to, ErrRateUnavailable)
	}
	rate, err := decimal.NewFromString(raw.String())
	if err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("failed to parse exchange rate: %w", err)
	}
	if !rate.IsPositive() {
		return decimal.Zero, time.Time{}, errNonPositiveRate
	}
	rateDate, err := time.Parse(dayLayout, payload.Date)
	if err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("failed to parse rate date: %w", err)
	}
	return rate, rateDate, nil
}
