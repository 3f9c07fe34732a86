package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"gitlab.com/billit/billit-api/internal/database"
	"gitlab.com/billit/billit-api/internal/models"
)

const receiptColumns = `id, user_id, supplier, total, currency, issue_date, invoice_number,
	metadata, folder_id, duplicate_of, created_at, updated_at`

// ReceiptRepository handles receipt database operations.
type ReceiptRepository struct {
	db database.PGXDB
}

// NewReceiptRepository creates a new ReceiptRepository.
func NewReceiptRepository(db database.PGXDB) *ReceiptRepository {
	return &ReceiptRepository{db: db}
}

// Create stores a new receipt and fills in its generated fields.
func (r *ReceiptRepository) Create(ctx context.Context, receipt *models.Receipt) error {
	if receipt.Currency == "" {
		receipt.Currency = models.DefaultCurrency
	}
	if receipt.Metadata == nil {
		receipt.Metadata = map[string]any{}
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO receipts (user_id, supplier, total, currency, issue_date, invoice_number, metadata, folder_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`, receipt.UserID, receipt.Supplier, receipt.Total, receipt.Currency, receipt.IssueDate,
		receipt.InvoiceNumber, receipt.Metadata, receipt.FolderID,
	).Scan(&receipt.ID, &receipt.CreatedAt, &receipt.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create receipt: %w", err)
	}
	return nil
}

// Get retrieves a receipt by ID.
func (r *ReceiptRepository) Get(ctx context.Context, id uuid.UUID) (*models.Receipt, error) {
	receipt, err := scanReceipt(r.db.QueryRow(ctx, `SELECT `+receiptColumns+` FROM receipts WHERE id = $1`, id))
	if err != nil {
		return nil, wrapNotFound(err, "receipt")
	}
	return receipt, nil
}

// GetOwner returns the user owning a receipt.
func (r *ReceiptRepository) GetOwner(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	var owner uuid.UUID
	err := r.db.QueryRow(ctx, `SELECT user_id FROM receipts WHERE id = $1`, id).Scan(&owner)
	if err != nil {
		return uuid.Nil, wrapNotFound(err, "receipt owner")
	}
	return owner, nil
}

// MergeMetadata shallow-merges patch into the receipt's metadata.
func (r *ReceiptRepository) MergeMetadata(ctx context.Context, id uuid.UUID, patch map[string]any) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE receipts SET metadata = metadata || $2::jsonb, updated_at = NOW()
		WHERE id = $1
	`, id, patch)
	if err != nil {
		return fmt.Errorf("failed to update receipt metadata: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("receipt: %w", ErrNotFound)
	}
	return nil
}

// SetEditedLineItems persists user edited line items. From then on they
// take precedence over vendor OCR line items.
func (r *ReceiptRepository) SetEditedLineItems(ctx context.Context, id uuid.UUID, items []models.LineItem) error {
	if items == nil {
		items = []models.LineItem{}
	}
	return r.MergeMetadata(ctx, id, map[string]any{models.MetaEditedLineItems: items})
}

// ListByUserAndDateRange returns a user's non-duplicate receipts issued in [from, to).
func (r *ReceiptRepository) ListByUserAndDateRange(
	ctx context.Context,
	userID uuid.UUID,
	from, to time.Time,
) ([]models.Receipt, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+receiptColumns+`
		FROM receipts
		WHERE user_id = $1 AND issue_date >= $2 AND issue_date < $3 AND duplicate_of IS NULL
		ORDER BY issue_date DESC, created_at DESC
	`, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query receipts by date range: %w", err)
	}
	defer rows.Close()

	var receipts []models.Receipt
	for rows.Next() {
		receipt, err := scanReceipt(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan receipt: %w", err)
		}
		receipts = append(receipts, *receipt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate receipts: %w", err)
	}
	return receipts, nil
}

// MoveToFolder moves the user's receipts into a folder through the
// move_tickets_to_folder procedure and returns how many rows moved.
func (r *ReceiptRepository) MoveToFolder(
	ctx context.Context,
	userID uuid.UUID,
	receiptIDs []uuid.UUID,
	folderID uuid.UUID,
) (int, error) {
	var moved int
	err := r.db.QueryRow(ctx, `SELECT move_tickets_to_folder($1, $2, $3)`, receiptIDs, folderID, userID).Scan(&moved)
	if err != nil {
		return 0, fmt.Errorf("failed to move receipts: %w", err)
	}
	return moved, nil
}

// FolderExists reports whether the user owns the folder.
func (r *ReceiptRepository) FolderExists(ctx context.Context, userID, folderID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM folders WHERE id = $1 AND user_id = $2)
	`, folderID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check folder: %w", err)
	}
	return exists, nil
}

func scanReceipt(row pgx.Row) (*models.Receipt, error) {
	var rc models.Receipt
	err := row.Scan(&rc.ID, &rc.UserID, &rc.Supplier, &rc.Total, &rc.Currency, &rc.IssueDate,
		&rc.InvoiceNumber, &rc.Metadata, &rc.FolderID, &rc.DuplicateOf, &rc.CreatedAt, &rc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if rc.Metadata == nil {
		rc.Metadata = map[string]any{}
	}
	return &rc, nil
}
