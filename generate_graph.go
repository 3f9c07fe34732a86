//go:build ignore
// +build ignore

// Renders a sample supplier spend chart to supplier_chart.png.
package main

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gitlab.com/billit/billit-api/internal/reports"
)

func main() {
	totals := []reports.SupplierTotal{
		{Supplier: "Repsol", Total: decimal.NewFromFloat(412.35), Receipts: 7},
		{Supplier: "Mercadona", Total: decimal.NewFromFloat(268.10), Receipts: 11},
		{Supplier: "Endesa", Total: decimal.NewFromFloat(121.00), Receipts: 1},
		{Supplier: "Amazon", Total: decimal.NewFromFloat(96.49), Receipts: 3},
		{Supplier: "Renfe", Total: decimal.NewFromFloat(54.80), Receipts: 2},
	}

	chartData, err := reports.RenderSupplierChart(totals, "Gasto por proveedor · marzo 2026")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := os.WriteFile("supplier_chart.png", chartData, 0600); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing file: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("✓ Created supplier_chart.png - Example supplier spend chart")
}
