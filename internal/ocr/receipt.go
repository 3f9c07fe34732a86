package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gitlab.com/billit/billit-api/internal/logger"
	"google.golang.org/genai"
)

// RecognizeTimeout bounds one Gemini call.
const RecognizeTimeout = 30 * time.Second

var (
	// ErrRecognizeTimeout indicates the Gemini API call timed out.
	ErrRecognizeTimeout = errors.New("receipt recognition timed out")
	// ErrNoData indicates nothing usable was read from the image.
	ErrNoData = errors.New("no usable data extracted from receipt")
)

// Amount decodes a JSON number or numeric string.
type Amount struct {
	decimal.Decimal
}

// UnmarshalJSON accepts 12.5, "12.5", "12,50" and empty values.
func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		a.Decimal = decimal.Zero
		return nil
	}
	s := strings.Trim(string(data), `"`)
	s = strings.TrimSpace(s)
	if s == "" {
		a.Decimal = decimal.Zero
		return nil
	}
	if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", s, err)
	}
	a.Decimal = d
	return nil
}

// Line is one recognized line item.
type Line struct {
	Description string  `json:"description"`
	Quantity    Amount  `json:"quantity"`
	UnitPrice   Amount  `json:"unit_price"`
	TotalAmount Amount  `json:"total_amount"`
	TaxRate     *Amount `json:"tax_rate,omitempty"`
}

// Tax is one recognized tax rate.
type Tax struct {
	Rate Amount `json:"rate"`
}

// Document is a recognized receipt.
type Document struct {
	Supplier      string `json:"supplier"`
	InvoiceNumber string `json:"invoice_number"`
	Date          string `json:"date"`
	Currency      string `json:"currency"`
	Total         Amount `json:"total"`
	TotalNet      Amount `json:"total_net"`
	TotalTax      Amount `json:"total_tax"`
	Taxes         []Tax  `json:"taxes"`
	LineItems     []Line `json:"line_items"`

	// Engine is the model that read the document.
	Engine string `json:"-"`
}

// IssueDate returns the parsed document date, if any.
func (d *Document) IssueDate() (time.Time, bool) {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(d.Date))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// IsEmpty reports whether neither a supplier nor a total was read.
func (d *Document) IsEmpty() bool {
	return strings.TrimSpace(d.Supplier) == "" && d.Total.IsZero()
}

// Payload renders the document in the flat vendor shape stored under the
// receipt's OCR metadata, so line item extraction treats it like any other
// vendor payload.
func (d *Document) Payload() map[string]any {
	items := make([]any, 0, len(d.LineItems))
	for _, l := range d.LineItems {
		item := map[string]any{
			"description":  l.Description,
			"quantity":     l.Quantity.Decimal,
			"unit_price":   l.UnitPrice.Decimal,
			"total_amount": l.TotalAmount.Decimal,
		}
		if l.TaxRate != nil {
			item["tax_rate"] = l.TaxRate.Decimal
		}
		items = append(items, item)
	}
	taxes := make([]any, 0, len(d.Taxes))
	for _, t := range d.Taxes {
		taxes = append(taxes, map[string]any{"rate": t.Rate.Decimal})
	}
	return map[string]any{
		"supplier_name":  d.Supplier,
		"invoice_number": d.InvoiceNumber,
		"date":           d.Date,
		"currency":       d.Currency,
		"total_amount":   d.Total.Decimal,
		"total_net":      d.TotalNet.Decimal,
		"total_tax":      d.TotalTax.Decimal,
		"taxes":          taxes,
		"line_items":     items,
		"engine":         d.Engine,
	}
}

// Recognize reads a receipt image. The raw model text is returned next to
// the parsed document so callers can keep it for later re-parsing.
func (c *Client) Recognize(ctx context.Context, image []byte, mimeType string) (*Document, string, error) {
	if len(image) == 0 {
		return nil, "", fmt.Errorf("image data is required")
	}
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, RecognizeTimeout)
	defer cancel()

	resp, err := c.generator.GenerateContent(timeoutCtx, c.model, []*genai.Content{
		{
			Parts: []*genai.Part{
				{InlineData: &genai.Blob{MIMEType: mimeType, Data: image}},
				{Text: receiptPrompt},
			},
		},
	}, nil)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, "", ErrRecognizeTimeout
		}
		return nil, "", fmt.Errorf("failed to generate content: %w", err)
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, "", fmt.Errorf("no response from Gemini")
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}
	raw := stripFences(text.String())
	if raw == "" {
		return nil, "", fmt.Errorf("empty response from Gemini")
	}

	doc, err := parseDocument(raw)
	if err != nil {
		logger.Log.Warn().Err(err).Str("response", logger.SanitizeText(raw)).Msg("Unparseable receipt recognition")
		return nil, raw, err
	}
	if doc.IsEmpty() {
		return nil, raw, ErrNoData
	}
	doc.Engine = c.model
	return doc, raw, nil
}

const receiptPrompt = `Analyze this invoice or receipt image and extract its data.
Return ONLY a JSON object with no additional text or markdown formatting.

Fields:
- supplier: issuing business name
- invoice_number: invoice or ticket number
- date: issue date in YYYY-MM-DD format
- currency: ISO 4217 code, e.g. "EUR"
- total: total amount paid including taxes, numeric string
- total_net: amount before taxes, numeric string
- total_tax: total tax amount, numeric string
- taxes: array of {"rate": percentage as numeric string}
- line_items: array of {"description", "quantity", "unit_price", "total_amount" (net), "tax_rate" (percentage)}

Use "" for unknown text and "0" for unknown amounts. Omit tax_rate on a line when it is not printed.

Example response:
{"supplier": "Mercadona", "invoice_number": "F-001", "date": "2026-03-01", "currency": "EUR", "total": "12.10", "total_net": "10.00", "total_tax": "2.10", "taxes": [{"rate": "21"}], "line_items": [{"description": "Aceite", "quantity": "2", "unit_price": "5.00", "total_amount": "10.00", "tax_rate": "21"}]}`

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func parseDocument(raw string) (*Document, error) {
	var doc Document
	if err := json.Unmarshal([]byte(stripFences(raw)), &doc); err != nil {
		return nil, fmt.Errorf("failed to parse receipt response: %w", err)
	}
	doc.Supplier = strings.TrimSpace(doc.Supplier)
	doc.Currency = strings.ToUpper(strings.TrimSpace(doc.Currency))
	return &doc, nil
}
