package extractor

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToDecimal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		in     any
		want   string
		wantOK bool
	}{
		{name: "float", in: 12.5, want: "12.5", wantOK: true},
		{name: "int", in: 3, want: "3", wantOK: true},
		{name: "json number", in: json.Number("7.25"), want: "7.25", wantOK: true},
		{name: "dot decimal string", in: "12.50", want: "12.5", wantOK: true},
		{name: "comma decimal string", in: "12,50", want: "12.5", wantOK: true},
		{name: "european thousands", in: "1.234,56", want: "1234.56", wantOK: true},
		{name: "english thousands", in: "1,234.56", want: "1234.56", wantOK: true},
		{name: "percent suffix", in: "21%", want: "21", wantOK: true},
		{name: "euro sign", in: "€ 9,99", want: "9.99", wantOK: true},
		{name: "wrapped value", in: map[string]any{"value": "4,2"}, want: "4.2", wantOK: true},
		{name: "negative", in: "-3.5", want: "-3.5", wantOK: true},
		{name: "nil", in: nil, wantOK: false},
		{name: "blank", in: "  ", wantOK: false},
		{name: "text", in: "abc", wantOK: false},
		{name: "bool", in: true, wantOK: false},
		{name: "object without value", in: map[string]any{"amount": 1.0}, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, ok := toDecimal(tt.in)
			require.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "want %s, got %s", tt.want, got)
			}
		})
	}
}

func TestFirstString(t *testing.T) {
	t.Parallel()

	obj := map[string]any{
		"description": "  ",
		"name":        map[string]any{"value": " Pan "},
		"concept":     "Otro",
	}
	got, ok := firstString(obj, "description", "name", "concept")
	require.True(t, ok)
	require.Equal(t, "Pan", got)

	_, ok = firstString(obj, "missing")
	require.False(t, ok)
}

func FuzzParseNumericString(f *testing.F) {
	for _, seed := range []string{"", "1", "1,5", "1.234,56", "1,234.56", "21%", "€3", "abc", ",,", ".", "-0,01"} {
		f.Add(seed)
	}

	f.Fuzz(func(t *testing.T, s string) {
		d, ok := parseNumericString(s)
		if !ok {
			require.True(t, d.IsZero())
		}
	})
}
