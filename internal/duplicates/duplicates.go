// Package duplicates flags receipts that likely describe the same invoice
// and lets the user confirm or dismiss that judgment.
package duplicates

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gitlab.com/billit/billit-api/internal/logger"
	"gitlab.com/billit/billit-api/internal/models"
	"gitlab.com/billit/billit-api/internal/repository"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Defaults applied when a request leaves the thresholds out.
const (
	DefaultThresholdDays = 7
	RecentLimit          = 50
)

// DefaultThresholdAmount is the default amount window in currency units.
var DefaultThresholdAmount = decimal.NewFromInt(5)

// Resolve actions.
const (
	ActionMark   = "mark_duplicate"
	ActionUnmark = "unmark_duplicate"
)

var (
	// ErrInvalidInput is returned for requests missing required fields.
	ErrInvalidInput = errors.New("invalid input")
	// ErrForbidden is returned when a receipt belongs to another user.
	ErrForbidden = errors.New("receipt belongs to another user")
	// ErrNotFound is returned when a referenced receipt does not exist.
	ErrNotFound = errors.New("receipt not found")
	// ErrNoEffect is returned when a mark or unmark changed nothing.
	ErrNoEffect = errors.New("no change applied")
	// ErrDetection wraps failures of the similarity procedure.
	ErrDetection = errors.New("duplicate detection failed")
)

// Store is the data access the detector needs.
type Store interface {
	FindCandidates(ctx context.Context, q repository.CandidateQuery) ([]models.DuplicateCandidate, error)
	Insert(ctx context.Context, d *models.DuplicateDetection) error
	Recent(ctx context.Context, userID uuid.UUID, limit int) ([]models.DuplicateDetection, error)
	ResolvePending(ctx context.Context, userID, receiptID uuid.UUID, action string) (int64, error)
	MarkDuplicate(ctx context.Context, receiptID, duplicateOfID, userID uuid.UUID) (bool, error)
	UnmarkDuplicate(ctx context.Context, receiptID, userID uuid.UUID) (bool, error)
}

// Owners resolves receipt ownership.
type Owners interface {
	GetOwner(ctx context.Context, id uuid.UUID) (uuid.UUID, error)
}

// Notifier emits best-effort user notifications.
type Notifier interface {
	Emit(ctx context.Context, userID uuid.UUID, typ, title, message string, data map[string]any)
}

// DetectRequest describes the receipt to check. Pointer fields are optional
// at the type level; Supplier, Total and IssueDate are required.
type DetectRequest struct {
	UserID          uuid.UUID
	ReceiptID       *uuid.UUID
	Supplier        string
	Total           *decimal.Decimal
	IssueDate       *time.Time
	ThresholdDays   *int
	ThresholdAmount *decimal.Decimal
}

// Params echoes the thresholds a detection ran with.
type Params struct {
	ThresholdDays   int             `json:"thresholdDays"`
	ThresholdAmount decimal.Decimal `json:"thresholdAmount"`
}

// DetectResult is the outcome of Detect.
type DetectResult struct {
	Duplicates  []models.DuplicateCandidate `json:"duplicates"`
	Count       int                         `json:"count"`
	Params      Params                      `json:"detection_params"`
	DetectionID *uuid.UUID                  `json:"detection_id,omitempty"`
}

// ResolveRequest marks or unmarks a receipt as a duplicate.
type ResolveRequest struct {
	UserID        uuid.UUID
	Action        string
	ReceiptID     uuid.UUID
	DuplicateOfID *uuid.UUID
}

// Detector runs duplicate detection for one user at a time.
type Detector struct {
	store    Store
	owners   Owners
	notifier Notifier
	detected metric.Int64Counter
}

// NewDetector creates a Detector. notifier may be nil.
func NewDetector(store Store, owners Owners, notifier Notifier) *Detector {
	counter, err := otel.Meter("gitlab.com/billit/billit-api/internal/duplicates").
		Int64Counter("billit.duplicates.detected",
			metric.WithDescription("Receipts flagged as potential duplicates"))
	if err != nil {
		logger.Log.Warn().Err(err).Msg("Failed to create duplicates counter")
	}
	return &Detector{store: store, owners: owners, notifier: notifier, detected: counter}
}

// Detect asks the similarity procedure for candidates and records one
// pending detection when any remain after dropping the subject itself.
// Concurrent calls for the same subject may each record a row.
func (d *Detector) Detect(ctx context.Context, req DetectRequest) (*DetectResult, error) {
	params, err := validateDetect(req)
	if err != nil {
		return nil, err
	}

	candidates, err := d.store.FindCandidates(ctx, repository.CandidateQuery{
		UserID:          req.UserID,
		Supplier:        strings.TrimSpace(req.Supplier),
		Total:           *req.Total,
		IssueDate:       *req.IssueDate,
		ThresholdDays:   params.ThresholdDays,
		ThresholdAmount: params.ThresholdAmount,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDetection, err)
	}

	candidates = excludeSelf(candidates, req.ReceiptID)
	result := &DetectResult{
		Duplicates: candidates,
		Count:      len(candidates),
		Params:     params,
	}
	if len(candidates) == 0 {
		return result, nil
	}

	detection := &models.DuplicateDetection{
		UserID:           req.UserID,
		ReceiptID:        req.ReceiptID,
		DuplicateIDs:     make([]uuid.UUID, len(candidates)),
		SimilarityScores: make([]float64, len(candidates)),
		Action:           models.DetectionPending,
	}
	for i, c := range candidates {
		detection.DuplicateIDs[i] = c.ReceiptID
		detection.SimilarityScores[i] = c.SimilarityScore
	}
	if err := d.store.Insert(ctx, detection); err != nil {
		logger.Log.Error().Err(err).
			Str("user", logger.HashUserID(req.UserID)).
			Int("candidates", len(candidates)).
			Msg("Failed to record duplicate detection")
	} else {
		result.DetectionID = &detection.ID
	}

	if d.detected != nil {
		d.detected.Add(ctx, 1)
	}

	data := map[string]any{"count": len(candidates), "duplicate_ids": detection.DuplicateIDs}
	if req.ReceiptID != nil {
		data["receipt_id"] = req.ReceiptID.String()
	}
	d.notify(ctx, req.UserID, models.NotifyDuplicateDetected, "Posible factura duplicada",
		fmt.Sprintf("%s: %d coincidencia(s)", strings.TrimSpace(req.Supplier), len(candidates)), data)

	return result, nil
}

// Recent returns the user's newest detection rows.
func (d *Detector) Recent(ctx context.Context, userID uuid.UUID) ([]models.DuplicateDetection, error) {
	rows, err := d.store.Recent(ctx, userID, RecentLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list detections: %w", err)
	}
	if rows == nil {
		rows = []models.DuplicateDetection{}
	}
	return rows, nil
}

// Resolve applies a mark or unmark after checking ownership.
func (d *Detector) Resolve(ctx context.Context, req ResolveRequest) error {
	switch req.Action {
	case ActionMark:
		if req.DuplicateOfID == nil || *req.DuplicateOfID == uuid.Nil {
			return fmt.Errorf("%w: duplicateOfId is required for %s", ErrInvalidInput, ActionMark)
		}
	case ActionUnmark:
	default:
		return fmt.Errorf("%w: action must be %s or %s", ErrInvalidInput, ActionMark, ActionUnmark)
	}
	if req.ReceiptID == uuid.Nil {
		return fmt.Errorf("%w: receiptId is required", ErrInvalidInput)
	}

	if err := d.checkOwner(ctx, req.UserID, req.ReceiptID); err != nil {
		return err
	}

	var (
		changed   bool
		err       error
		newAction string
		notifyTyp string
		title     string
	)
	if req.Action == ActionMark {
		if err := d.checkOwner(ctx, req.UserID, *req.DuplicateOfID); err != nil {
			return err
		}
		changed, err = d.store.MarkDuplicate(ctx, req.ReceiptID, *req.DuplicateOfID, req.UserID)
		newAction, notifyTyp, title = models.DetectionMarkedDuplicate, models.NotifyDuplicateMarked, "Factura marcada como duplicada"
	} else {
		changed, err = d.store.UnmarkDuplicate(ctx, req.ReceiptID, req.UserID)
		newAction, notifyTyp, title = models.DetectionIgnored, models.NotifyDuplicateUnmarked, "Factura desmarcada como duplicada"
	}
	if err != nil {
		return fmt.Errorf("failed to %s: %w", req.Action, err)
	}
	if !changed {
		return ErrNoEffect
	}

	if _, err := d.store.ResolvePending(ctx, req.UserID, req.ReceiptID, newAction); err != nil {
		logger.Log.Warn().Err(err).
			Str("user", logger.HashUserID(req.UserID)).
			Str("action", req.Action).
			Msg("Failed to update duplicate detection action")
	}

	data := map[string]any{"receipt_id": req.ReceiptID.String()}
	if req.DuplicateOfID != nil {
		data["duplicate_of_id"] = req.DuplicateOfID.String()
	}
	d.notify(ctx, req.UserID, notifyTyp, title, "", data)
	return nil
}

func (d *Detector) checkOwner(ctx context.Context, userID, receiptID uuid.UUID) error {
	owner, err := d.owners.GetOwner(ctx, receiptID)
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, receiptID)
	}
	if err != nil {
		return fmt.Errorf("failed to check receipt owner: %w", err)
	}
	if owner != userID {
		return ErrForbidden
	}
	return nil
}

func (d *Detector) notify(ctx context.Context, userID uuid.UUID, typ, title, message string, data map[string]any) {
	if d.notifier == nil {
		return
	}
	d.notifier.Emit(ctx, userID, typ, title, message, data)
}

func validateDetect(req DetectRequest) (Params, error) {
	var missing []string
	if strings.TrimSpace(req.Supplier) == "" {
		missing = append(missing, "proveedor")
	}
	if req.Total == nil {
		missing = append(missing, "total")
	}
	if req.IssueDate == nil || req.IssueDate.IsZero() {
		missing = append(missing, "fechaEmision")
	}
	if len(missing) > 0 {
		return Params{}, fmt.Errorf("%w: missing required fields: %s", ErrInvalidInput, strings.Join(missing, ", "))
	}

	params := Params{ThresholdDays: DefaultThresholdDays, ThresholdAmount: DefaultThresholdAmount}
	if req.ThresholdDays != nil {
		if *req.ThresholdDays < 0 {
			return Params{}, fmt.Errorf("%w: thresholdDays must not be negative", ErrInvalidInput)
		}
		params.ThresholdDays = *req.ThresholdDays
	}
	if req.ThresholdAmount != nil {
		if req.ThresholdAmount.IsNegative() {
			return Params{}, fmt.Errorf("%w: thresholdAmount must not be negative", ErrInvalidInput)
		}
		params.ThresholdAmount = *req.ThresholdAmount
	}
	return params, nil
}

// excludeSelf drops the subject receipt from the candidate list.
func excludeSelf(candidates []models.DuplicateCandidate, self *uuid.UUID) []models.DuplicateCandidate {
	out := make([]models.DuplicateCandidate, 0, len(candidates))
	for _, c := range candidates {
		if self != nil && c.ReceiptID == *self {
			continue
		}
		out = append(out, c)
	}
	return out
}
