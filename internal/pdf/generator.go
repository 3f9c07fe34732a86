package pdf

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gitlab.com/billit/billit-api/internal/extractor"
	"gitlab.com/billit/billit-api/internal/logger"
	"gitlab.com/billit/billit-api/internal/models"
	"gitlab.com/billit/billit-api/internal/repository"
)

var (
	// ErrReceiptNotFound is returned when the receipt does not exist.
	ErrReceiptNotFound = errors.New("receipt not found")
	// ErrForbidden is returned when the receipt belongs to another user.
	ErrForbidden = errors.New("receipt belongs to another user")
)

// ReceiptStore reads receipts and records the generated document.
type ReceiptStore interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Receipt, error)
	MergeMetadata(ctx context.Context, id uuid.UUID, patch map[string]any) error
}

// Renderer turns template data into a PDF.
type Renderer interface {
	Render(ctx context.Context, data any) ([]byte, error)
}

// Store persists rendered documents.
type Store interface {
	Bucket() string
	Put(ctx context.Context, key string, body []byte, contentType string) error
}

// Notifier emits best-effort user notifications.
type Notifier interface {
	Emit(ctx context.Context, userID uuid.UUID, typ, title, message string, data map[string]any)
}

// Generated describes an archived document.
type Generated struct {
	Bucket      string    `json:"bucket"`
	Key         string    `json:"key"`
	Size        int       `json:"size"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Generator renders and archives receipt PDFs.
type Generator struct {
	receipts ReceiptStore
	renderer Renderer
	store    Store
	notifier Notifier
	now      func() time.Time
}

// NewGenerator creates a Generator. notifier may be nil.
func NewGenerator(receipts ReceiptStore, renderer Renderer, store Store, notifier Notifier) *Generator {
	return &Generator{receipts: receipts, renderer: renderer, store: store, notifier: notifier, now: time.Now}
}

// ObjectKey is where a receipt's PDF is stored.
func ObjectKey(userID, receiptID uuid.UUID) string {
	return fmt.Sprintf("receipts/%s/%s.pdf", userID, receiptID)
}

type templateLine struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TaxRate     decimal.Decimal `json:"tax_rate"`
	Total       decimal.Decimal `json:"total"`
}

type templateData struct {
	Supplier      string          `json:"proveedor"`
	InvoiceNumber string          `json:"numero_factura"`
	IssueDate     string          `json:"fecha_emision"`
	Currency      string          `json:"moneda"`
	Items         []templateLine  `json:"items"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	TaxTotal      decimal.Decimal `json:"tax_total"`
	Total         decimal.Decimal `json:"total"`
}

func newTemplateData(r *models.Receipt) templateData {
	result := extractor.Extract(extractor.FromReceipt(r))
	data := templateData{
		Supplier:      r.Supplier,
		InvoiceNumber: r.InvoiceNumber,
		Currency:      r.Currency,
		TaxTotal:      result.TaxTotal,
		Total:         r.Total,
		Subtotal:      decimal.Zero,
	}
	if data.Currency == "" {
		data.Currency = models.DefaultCurrency
	}
	if r.IssueDate != nil {
		data.IssueDate = r.IssueDate.Format("02/01/2006")
	}
	for _, it := range result.Items {
		data.Items = append(data.Items, templateLine(it))
		data.Subtotal = data.Subtotal.Add(it.Total)
	}
	return data
}

// Generate renders the receipt, uploads it and records the object key in
// the receipt metadata.
func (g *Generator) Generate(ctx context.Context, userID, receiptID uuid.UUID) (*Generated, error) {
	receipt, err := g.receipts.Get(ctx, receiptID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrReceiptNotFound
	}
	if err != nil {
		return nil, err
	}
	if receipt.UserID != userID {
		return nil, ErrForbidden
	}

	doc, err := g.renderer.Render(ctx, newTemplateData(receipt))
	if err != nil {
		return nil, err
	}

	key := ObjectKey(userID, receiptID)
	if err := g.store.Put(ctx, key, doc, "application/pdf"); err != nil {
		return nil, err
	}

	out := &Generated{Bucket: g.store.Bucket(), Key: key, Size: len(doc), GeneratedAt: g.now().UTC()}
	if err := g.receipts.MergeMetadata(ctx, receiptID, map[string]any{
		models.MetaGeneratedPDF: map[string]any{
			"bucket":       out.Bucket,
			"key":          out.Key,
			"generated_at": out.GeneratedAt.Format(time.RFC3339),
		},
	}); err != nil {
		return nil, fmt.Errorf("failed to record generated pdf: %w", err)
	}

	logger.Log.Info().
		Str("user", logger.HashUserID(userID)).
		Int("bytes", out.Size).
		Msg("Receipt PDF generated")
	if g.notifier != nil {
		g.notifier.Emit(ctx, userID, models.NotifyPDFGenerated, "PDF generado",
			fmt.Sprintf("El PDF de %s está listo", receipt.Supplier),
			map[string]any{"receipt_id": receiptID.String(), "key": key})
	}
	return out, nil
}
