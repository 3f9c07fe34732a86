package reports

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"time"

	"github.com/google/uuid"

	"gitlab.com/billit/billit-api/internal/extractor"
	"gitlab.com/billit/billit-api/internal/models"
)

var csvHeader = []string{
	"ID", "Fecha", "Proveedor", "Numero factura", "Total", "Moneda", "IVA", "Lineas", "Duplicada de",
}

// ReceiptsCSV renders receipts as CSV in their own currencies. The tax
// column is the extracted line item tax total.
func ReceiptsCSV(receipts []models.Receipt) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}

	for i := range receipts {
		r := &receipts[i]
		issued := ""
		if r.IssueDate != nil {
			issued = r.IssueDate.Format("2006-01-02")
		}
		duplicateOf := ""
		if r.DuplicateOf != nil {
			duplicateOf = r.DuplicateOf.String()
		}
		lines := extractor.Extract(extractor.FromReceipt(r))

		row := []string{
			r.ID.String(),
			issued,
			r.Supplier,
			r.InvoiceNumber,
			r.Total.StringFixed(2),
			r.Currency,
			lines.TaxTotal.StringFixed(2),
			fmt.Sprint(len(lines.Items)),
			duplicateOf,
		}
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}

// ExportFilename names the CSV for the window [from, to).
func ExportFilename(from, to time.Time) string {
	last := to.AddDate(0, 0, -1)
	if from.Day() == 1 && to.Equal(from.AddDate(0, 1, 0)) {
		return fmt.Sprintf("facturas_%s.csv", from.Format("2006-01"))
	}
	return fmt.Sprintf("facturas_%s_%s.csv", from.Format("2006-01-02"), last.Format("2006-01-02"))
}

// Export renders the window's receipts as CSV.
func (r *Reporter) Export(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]byte, error) {
	receipts, err := r.receipts.ListByUserAndDateRange(ctx, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list receipts: %w", err)
	}
	if len(receipts) == 0 {
		return nil, ErrNoReceipts
	}
	return ReceiptsCSV(receipts)
}
