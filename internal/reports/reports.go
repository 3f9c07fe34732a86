// Package reports renders spend summaries over a user's receipts.
package reports

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gitlab.com/billit/billit-api/internal/exchange"
	"gitlab.com/billit/billit-api/internal/logger"
	"gitlab.com/billit/billit-api/internal/models"
)

// ErrNoReceipts is returned when the window holds nothing to report.
var ErrNoReceipts = errors.New("no receipts in period")

// MaxSlices is the number of suppliers charted before the rest are grouped.
const MaxSlices = 8

const otherSuppliers = "Otros"

// ReceiptLister lists a user's receipts issued in [from, to).
type ReceiptLister interface {
	ListByUserAndDateRange(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]models.Receipt, error)
}

// SupplierTotal is the spend on one supplier in the report currency.
type SupplierTotal struct {
	Supplier string          `json:"supplier"`
	Total    decimal.Decimal `json:"total"`
	Receipts int             `json:"receipts"`
}

// Summary is a converted spend breakdown.
type Summary struct {
	Currency string          `json:"currency"`
	From     time.Time       `json:"from"`
	To       time.Time       `json:"to"`
	Total    decimal.Decimal `json:"total"`
	Skipped  int             `json:"skipped"`
	Totals   []SupplierTotal `json:"suppliers"`
}

// Reporter builds supplier reports.
type Reporter struct {
	receipts  ReceiptLister
	converter exchange.Converter
	currency  string
}

// NewReporter creates a Reporter. converter may be nil, in which case
// receipts in other currencies are left out of the totals.
func NewReporter(receipts ReceiptLister, converter exchange.Converter, currency string) *Reporter {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = models.DefaultCurrency
	}
	return &Reporter{receipts: receipts, converter: converter, currency: currency}
}

// Suppliers sums the window's receipts per supplier, largest first.
func (r *Reporter) Suppliers(ctx context.Context, userID uuid.UUID, from, to time.Time) (*Summary, error) {
	receipts, err := r.receipts.ListByUserAndDateRange(ctx, userID, from, to)
	if err != nil {
		return nil, err
	}
	if len(receipts) == 0 {
		return nil, ErrNoReceipts
	}

	summary := &Summary{Currency: r.currency, From: from, To: to, Total: decimal.Zero}
	bySupplier := make(map[string]*SupplierTotal)
	for _, receipt := range receipts {
		amount, ok := r.convert(ctx, userID, receipt)
		if !ok {
			summary.Skipped++
			continue
		}
		name := strings.TrimSpace(receipt.Supplier)
		if name == "" {
			name = otherSuppliers
		}
		st, exists := bySupplier[name]
		if !exists {
			st = &SupplierTotal{Supplier: name, Total: decimal.Zero}
			bySupplier[name] = st
		}
		st.Total = st.Total.Add(amount)
		st.Receipts++
		summary.Total = summary.Total.Add(amount)
	}
	if len(bySupplier) == 0 {
		return nil, ErrNoReceipts
	}

	for _, st := range bySupplier {
		summary.Totals = append(summary.Totals, *st)
	}
	sort.Slice(summary.Totals, func(i, j int) bool {
		if c := summary.Totals[i].Total.Cmp(summary.Totals[j].Total); c != 0 {
			return c > 0
		}
		return summary.Totals[i].Supplier < summary.Totals[j].Supplier
	})
	return summary, nil
}

// SupplierChart renders Suppliers as a PNG pie chart.
func (r *Reporter) SupplierChart(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]byte, error) {
	summary, err := r.Suppliers(ctx, userID, from, to)
	if err != nil {
		return nil, err
	}
	title := fmt.Sprintf("Gasto por proveedor %s - %s (%s)",
		from.Format("02/01/2006"), to.AddDate(0, 0, -1).Format("02/01/2006"), summary.Currency)
	return RenderSupplierChart(summary.Totals, title)
}

func (r *Reporter) convert(ctx context.Context, userID uuid.UUID, receipt models.Receipt) (decimal.Decimal, bool) {
	source := strings.ToUpper(strings.TrimSpace(receipt.Currency))
	if source == "" {
		source = models.DefaultCurrency
	}
	if source == r.currency || receipt.Total.IsZero() {
		return receipt.Total, true
	}
	if r.converter == nil {
		logger.Log.Debug().
			Str("source_currency", source).
			Str("user_hash", logger.HashUserID(userID)).
			Msg("No exchange service; leaving receipt out of report")
		return decimal.Zero, false
	}

	amount := receipt.Total.Abs()
	var day time.Time
	if receipt.IssueDate != nil {
		day = *receipt.IssueDate
	}
	result, err := r.converter.Convert(ctx, amount, source, r.currency, day)
	if err != nil {
		logger.Log.Warn().
			Err(err).
			Str("source_currency", source).
			Str("target_currency", r.currency).
			Str("user_hash", logger.HashUserID(userID)).
			Msg("Exchange lookup failed; leaving receipt out of report")
		return decimal.Zero, false
	}
	if receipt.Total.IsNegative() {
		return result.Amount.Neg(), true
	}
	return result.Amount, true
}
