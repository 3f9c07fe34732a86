package extractor

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// toDecimal coerces an untyped JSON value into a decimal. Vendor payloads
// carry numbers as JSON numbers, as strings with either decimal separator,
// or wrapped as {"value": n}.
func toDecimal(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case nil:
		return decimal.Zero, false
	case float64:
		return decimal.NewFromFloat(n), true
	case float32:
		return decimal.NewFromFloat32(n), true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int64:
		return decimal.NewFromInt(n), true
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		return d, err == nil
	case decimal.Decimal:
		return n, true
	case string:
		return parseNumericString(n)
	case map[string]any:
		if inner, ok := n["value"]; ok {
			return toDecimal(inner)
		}
	}
	return decimal.Zero, false
}

func parseNumericString(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "%")
	s = strings.TrimSuffix(s, "€")
	s = strings.TrimPrefix(s, "€")
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return decimal.Zero, false
	}

	// Whichever separator comes last is the decimal one.
	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")
	switch {
	case lastComma > lastDot:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case lastComma >= 0:
		s = strings.ReplaceAll(s, ",", "")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// firstDecimal returns the first key in obj holding a parseable number.
func firstDecimal(obj map[string]any, keys ...string) (decimal.Decimal, bool) {
	for _, k := range keys {
		if d, ok := toDecimal(obj[k]); ok {
			return d, true
		}
	}
	return decimal.Zero, false
}

// firstString returns the first key in obj holding a non-blank string.
func firstString(obj map[string]any, keys ...string) (string, bool) {
	for _, k := range keys {
		s, ok := obj[k].(string)
		if !ok {
			// Some vendor fields wrap text too.
			if m, isMap := obj[k].(map[string]any); isMap {
				s, ok = m["value"].(string)
			}
		}
		if ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s), true
		}
	}
	return "", false
}

// percentOf returns part/whole*100 rounded to 2 decimals.
func percentOf(part, whole decimal.Decimal) decimal.Decimal {
	return part.Div(whole).Mul(hundred).Round(2)
}
