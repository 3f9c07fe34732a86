// Package extractor turns vendor OCR payloads and user edits into a uniform
// list of line items with resolved tax rates.
package extractor

import (
	"encoding/json"

	"github.com/shopspring/decimal"
	"gitlab.com/billit/billit-api/internal/models"
)

const (
	metaEdited  = models.MetaEditedLineItems
	metaOCR     = models.MetaOCRData
	metaRawText = models.MetaOCRRawText
)

// Input is everything the extractor looks at for one receipt.
type Input struct {
	// Metadata is the receipt metadata blob.
	Metadata map[string]any
	// OCR is the stored vendor payload.
	OCR map[string]any
	// Total is the receipt's overall total, used for the synthetic item.
	Total decimal.Decimal
}

// Result is the uniform extraction output. Items is never empty.
type Result struct {
	Items    []models.LineItem `json:"items"`
	TaxTotal decimal.Decimal   `json:"tax_total"`
	Source   Source            `json:"source"`
}

// FromReceipt builds the extractor input for a stored receipt.
func FromReceipt(r *models.Receipt) Input {
	in := Input{Metadata: r.Metadata, Total: r.Total}
	if in.Metadata == nil {
		in.Metadata = map[string]any{}
	}
	switch ocr := in.Metadata[metaOCR].(type) {
	case map[string]any:
		in.OCR = ocr
	case string:
		var parsed map[string]any
		if json.Unmarshal([]byte(ocr), &parsed) == nil {
			in.OCR = parsed
		}
	}
	return in
}

// Extract resolves line items with DefaultResolvers.
func Extract(in Input) Result {
	return ExtractWith(in, DefaultResolvers)
}

// ExtractWith resolves line items: user edits first, then the first resolver
// that finds vendor line items, then a single synthetic item.
func ExtractWith(in Input, resolvers []Resolver) Result {
	if edited, ok := editedItems(in.Metadata); ok {
		items := make([]models.LineItem, 0, len(edited))
		for _, raw := range edited {
			items = append(items, mapEdited(asObject(raw)))
		}
		if len(items) > 0 {
			return Result{Items: items, TaxTotal: SumTax(items), Source: SourceEdited}
		}
		return synthetic(in.Total)
	}

	match, ok := FirstMatch(in, resolvers)
	if !ok {
		return synthetic(in.Total)
	}

	docRate, hasDocRate := documentTaxRate(match.Document)
	items := make([]models.LineItem, 0, len(match.Items))
	for _, raw := range match.Items {
		items = append(items, mapVendor(asObject(raw), docRate, hasDocRate))
	}

	taxTotal, ok := toDecimal(match.Document["total_tax"])
	if ok && !taxTotal.IsNegative() {
		taxTotal = taxTotal.Round(2)
	} else {
		taxTotal = SumTax(items)
	}

	return Result{Items: items, TaxTotal: taxTotal, Source: match.Source}
}

// editedItems returns the persisted user edits. Their presence, even as an
// empty list, overrides anything parsed from the vendor payload.
func editedItems(meta map[string]any) ([]any, bool) {
	switch v := meta[metaEdited].(type) {
	case []any:
		return v, true
	case string:
		var parsed []any
		if json.Unmarshal([]byte(v), &parsed) == nil {
			return parsed, true
		}
	}
	return nil, false
}

func mapEdited(obj map[string]any) models.LineItem {
	item := models.LineItem{Description: models.DefaultLineItemDescription}
	if s, ok := firstString(obj, "description", "concept", "concepto", "name"); ok {
		item.Description = s
	}
	item.Quantity = decimal.NewFromInt(1)
	if q, ok := toDecimal(obj["quantity"]); ok {
		item.Quantity = q
	}
	item.UnitPrice, _ = toDecimal(obj["unit_price"])
	item.Total, _ = toDecimal(obj["total"])
	if rate, ok := toDecimal(obj["tax_rate"]); ok && !rate.IsNegative() {
		item.TaxRate = rate
	}
	return item
}

func mapVendor(obj map[string]any, docRate decimal.Decimal, hasDocRate bool) models.LineItem {
	item := models.LineItem{Description: models.DefaultLineItemDescription}
	if s, ok := firstString(obj, "description", "name", "concept"); ok {
		item.Description = s
	}
	item.Quantity = decimal.NewFromInt(1)
	if q, ok := firstDecimal(obj, "quantity", "units", "cantidad"); ok {
		item.Quantity = q
	}
	item.UnitPrice, _ = firstDecimal(obj, "unit_price", "price", "precio")
	item.Total, _ = firstDecimal(obj, "total_amount", "total", "amount")
	item.TaxRate = itemTaxRate(obj, docRate, hasDocRate)
	return item
}

// itemTaxRate resolves a non-negative percentage for one vendor line item.
func itemTaxRate(obj map[string]any, docRate decimal.Decimal, hasDocRate bool) decimal.Decimal {
	if rate, ok := toDecimal(obj["tax_rate"]); ok && !rate.IsNegative() {
		return rate
	}

	taxAmount, hasTax := toDecimal(obj["tax_amount"])
	total, hasTotal := toDecimal(obj["total_amount"])
	if hasTax && hasTotal && total.IsPositive() {
		if rate := percentOf(taxAmount, total); !rate.IsNegative() {
			return rate
		}
	}

	if hasDocRate {
		return docRate
	}
	return decimal.Zero
}

// documentTaxRate finds the document-wide rate: the first rate on the
// taxes array, else total_tax over total_net.
func documentTaxRate(doc map[string]any) (decimal.Decimal, bool) {
	if taxes, ok := doc["taxes"].([]any); ok {
		for _, raw := range taxes {
			tax, isObj := raw.(map[string]any)
			if !isObj {
				continue
			}
			if rate, ok := toDecimal(tax["rate"]); ok && !rate.IsNegative() {
				return rate, true
			}
		}
	}

	totalTax, hasTax := toDecimal(doc["total_tax"])
	totalNet, hasNet := toDecimal(doc["total_net"])
	if hasTax && hasNet && totalNet.IsPositive() {
		if rate := percentOf(totalTax, totalNet); !rate.IsNegative() {
			return rate, true
		}
	}
	return decimal.Zero, false
}

func synthetic(total decimal.Decimal) Result {
	return Result{
		Items: []models.LineItem{{
			Description: models.DefaultLineItemDescription,
			Quantity:    decimal.NewFromInt(1),
			UnitPrice:   total,
			TaxRate:     decimal.Zero,
			Total:       total,
		}},
		TaxTotal: decimal.Zero,
		Source:   SourceSynthetic,
	}
}

// SumTax totals the tax of items, treating line totals as net amounts.
func SumTax(items []models.LineItem) decimal.Decimal {
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(it.Total.Mul(it.TaxRate).Div(hundred))
	}
	return sum.Round(2)
}

func asObject(v any) map[string]any {
	if obj, ok := v.(map[string]any); ok {
		return obj
	}
	return map[string]any{}
}
