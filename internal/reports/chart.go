package reports

import (
	"fmt"

	"github.com/go-analyze/charts"
	"github.com/shopspring/decimal"
)

// RenderSupplierChart creates a pie chart of spend per supplier and returns
// the PNG bytes. Totals must be sorted largest first; suppliers past
// MaxSlices are grouped into one slice. Non-positive totals are not drawn.
func RenderSupplierChart(totals []SupplierTotal, title string) ([]byte, error) {
	var values []float64
	var names []string

	rest := decimal.Zero
	for i, st := range totals {
		if !st.Total.IsPositive() {
			continue
		}
		if i >= MaxSlices-1 && len(totals) > MaxSlices {
			rest = rest.Add(st.Total)
			continue
		}
		names = append(names, st.Supplier)
		values = append(values, st.Total.InexactFloat64())
	}
	if rest.IsPositive() {
		names = append(names, otherSuppliers)
		values = append(values, rest.InexactFloat64())
	}
	if len(values) == 0 {
		return nil, ErrNoReceipts
	}

	p, err := charts.PieRender(
		values,
		charts.TitleOptionFunc(charts.TitleOption{Text: title}),
		charts.LegendLabelsOptionFunc(names),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create chart: %w", err)
	}

	buf, err := p.Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to render chart: %w", err)
	}
	return buf, nil
}
