package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gitlab.com/billit/billit-api/internal/database"
	"gitlab.com/billit/billit-api/internal/models"
)

// CandidateQuery are the inputs of find_potential_duplicates.
type CandidateQuery struct {
	UserID          uuid.UUID
	Supplier        string
	Total           decimal.Decimal
	IssueDate       time.Time
	ThresholdDays   int
	ThresholdAmount decimal.Decimal
}

// DuplicateRepository handles duplicate detection database operations.
type DuplicateRepository struct {
	db database.PGXDB
}

// NewDuplicateRepository creates a new DuplicateRepository.
func NewDuplicateRepository(db database.PGXDB) *DuplicateRepository {
	return &DuplicateRepository{db: db}
}

// FindCandidates calls the find_potential_duplicates procedure.
func (r *DuplicateRepository) FindCandidates(ctx context.Context, q CandidateQuery) ([]models.DuplicateCandidate, error) {
	rows, err := r.db.Query(ctx, `
		SELECT receipt_id, similarity_score
		FROM find_potential_duplicates($1, $2, $3, $4, $5, $6)
	`, q.UserID, q.Supplier, q.Total, q.IssueDate, q.ThresholdDays, q.ThresholdAmount)
	if err != nil {
		return nil, fmt.Errorf("failed to find potential duplicates: %w", err)
	}
	defer rows.Close()

	var out []models.DuplicateCandidate
	for rows.Next() {
		var c models.DuplicateCandidate
		if err := rows.Scan(&c.ReceiptID, &c.SimilarityScore); err != nil {
			return nil, fmt.Errorf("failed to scan duplicate candidate: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate duplicate candidates: %w", err)
	}
	return out, nil
}

// Insert stores a detection row.
func (r *DuplicateRepository) Insert(ctx context.Context, d *models.DuplicateDetection) error {
	if d.Action == "" {
		d.Action = models.DetectionPending
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO duplicate_detections (user_id, receipt_id, duplicate_ids, similarity_scores, action)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, detected_at
	`, d.UserID, d.ReceiptID, d.DuplicateIDs, d.SimilarityScores, d.Action).Scan(&d.ID, &d.DetectedAt)
	if err != nil {
		return fmt.Errorf("failed to insert duplicate detection: %w", err)
	}
	return nil
}

// Recent returns the user's newest detection rows.
func (r *DuplicateRepository) Recent(ctx context.Context, userID uuid.UUID, limit int) ([]models.DuplicateDetection, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, receipt_id, duplicate_ids, similarity_scores, action, detected_at
		FROM duplicate_detections
		WHERE user_id = $1
		ORDER BY detected_at DESC, id DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query duplicate detections: %w", err)
	}
	defer rows.Close()

	var out []models.DuplicateDetection
	for rows.Next() {
		var d models.DuplicateDetection
		if err := rows.Scan(&d.ID, &d.UserID, &d.ReceiptID, &d.DuplicateIDs, &d.SimilarityScores,
			&d.Action, &d.DetectedAt); err != nil {
			return nil, fmt.Errorf("failed to scan duplicate detection: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate duplicate detections: %w", err)
	}
	return out, nil
}

// ResolvePending sets the action of the user's pending detections for a
// subject receipt and returns how many rows changed.
func (r *DuplicateRepository) ResolvePending(ctx context.Context, userID, receiptID uuid.UUID, action string) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE duplicate_detections SET action = $3
		WHERE user_id = $1 AND receipt_id = $2 AND action = 'pending'
	`, userID, receiptID, action)
	if err != nil {
		return 0, fmt.Errorf("failed to update duplicate detection: %w", err)
	}
	return tag.RowsAffected(), nil
}

// MarkDuplicate calls mark_as_duplicate. It reports false when the
// procedure changed nothing.
func (r *DuplicateRepository) MarkDuplicate(ctx context.Context, receiptID, duplicateOfID, userID uuid.UUID) (bool, error) {
	var ok bool
	err := r.db.QueryRow(ctx, `SELECT mark_as_duplicate($1, $2, $3)`, receiptID, duplicateOfID, userID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("failed to mark duplicate: %w", err)
	}
	return ok, nil
}

// UnmarkDuplicate calls unmark_as_duplicate.
func (r *DuplicateRepository) UnmarkDuplicate(ctx context.Context, receiptID, userID uuid.UUID) (bool, error) {
	var ok bool
	err := r.db.QueryRow(ctx, `SELECT unmark_as_duplicate($1, $2)`, receiptID, userID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("failed to unmark duplicate: %w", err)
	}
	return ok, nil
}
