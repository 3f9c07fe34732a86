package integrations

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gitlab.com/billit/billit-api/internal/extractor"
	"gitlab.com/billit/billit-api/internal/models"
)

// DefaultPaymentTerm sets the due date when a receipt carries none.
const DefaultPaymentTerm = 30 * 24 * time.Hour

// Invoice is the normalized document every accounting system receives.
type Invoice struct {
	ReceiptID uuid.UUID
	Contact   string
	Number    string
	Currency  string
	Date      time.Time
	DueDate   time.Time
	Items     []models.LineItem
	TaxTotal  decimal.Decimal
}

// Overrides replace receipt fields before dispatch. The automation
// platform sends them when the user corrected values in the chat.
type Overrides struct {
	Supplier      string            `json:"proveedor"`
	Total         *decimal.Decimal  `json:"total"`
	Currency      string            `json:"moneda"`
	IssueDate     string            `json:"fechaEmision"`
	DueDate       string            `json:"fechaVencimiento"`
	InvoiceNumber string            `json:"numeroFactura"`
	LineItems     []models.LineItem `json:"lineItems"`
}

// BuildInvoice normalizes a receipt, applying overrides when given.
func BuildInvoice(r *models.Receipt, o *Overrides) Invoice {
	receipt := *r
	if o != nil {
		if s := strings.TrimSpace(o.Supplier); s != "" {
			receipt.Supplier = s
		}
		if o.Total != nil {
			receipt.Total = *o.Total
		}
		if o.Currency != "" {
			receipt.Currency = o.Currency
		}
		if d, ok := parseDate(o.IssueDate); ok {
			receipt.IssueDate = &d
		}
		if o.InvoiceNumber != "" {
			receipt.InvoiceNumber = o.InvoiceNumber
		}
	}

	result := extractor.Extract(extractor.FromReceipt(&receipt))
	inv := Invoice{
		ReceiptID: receipt.ID,
		Contact:   receipt.Supplier,
		Number:    receipt.InvoiceNumber,
		Currency:  strings.ToUpper(receipt.Currency),
		Items:     result.Items,
		TaxTotal:  result.TaxTotal,
	}
	if inv.Currency == "" {
		inv.Currency = models.DefaultCurrency
	}
	if o != nil && len(o.LineItems) > 0 {
		inv.Items = o.LineItems
		inv.TaxTotal = extractor.SumTax(inv.Items)
	}

	switch {
	case receipt.IssueDate != nil:
		inv.Date = *receipt.IssueDate
	case !receipt.CreatedAt.IsZero():
		inv.Date = receipt.CreatedAt
	default:
		inv.Date = time.Now()
	}
	inv.Date = truncateDay(inv.Date)
	inv.DueDate = inv.Date.Add(DefaultPaymentTerm)
	if o != nil {
		if d, ok := parseDate(o.DueDate); ok {
			inv.DueDate = d
		}
	}
	return inv
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339, "02/01/2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return truncateDay(t), true
		}
	}
	return time.Time{}, false
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
