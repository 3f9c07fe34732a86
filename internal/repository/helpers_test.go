package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gitlab.com/billit/billit-api/internal/database"
	"gitlab.com/billit/billit-api/internal/models"
)

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func createReceipt(ctx context.Context, t *testing.T, db database.PGXDB, userID uuid.UUID, supplier, total string, issued *time.Time) *models.Receipt {
	t.Helper()

	r := &models.Receipt{
		UserID:    userID,
		Supplier:  supplier,
		Total:     decimal.RequireFromString(total),
		IssueDate: issued,
		Metadata:  map[string]any{"source": "test"},
	}
	require.NoError(t, NewReceiptRepository(db).Create(ctx, r))
	return r
}
