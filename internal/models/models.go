// Package models defines the domain entities for Billit.
package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func init() {
	// API consumers expect amounts as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

// DefaultCurrency is the currency assumed when a receipt carries none.
const DefaultCurrency = "EUR"

// DefaultLineItemDescription labels line items with no usable description.
const DefaultLineItemDescription = "Producto/Servicio"

// Metadata keys stored on a receipt.
const (
	MetaEditedLineItems  = "edited_line_items"
	MetaOCRData          = "ocr_data"
	MetaOCRRawText       = "ocr_raw_response"
	MetaGeneratedPDF     = "generated_pdf"
	MetaIntegrationName  = "integration_name"
	MetaIntegrationSent  = "sent_to_integration_at"
	MetaIntegrationReply = "integration_response"
)

// Receipt is a digitized invoice or ticket owned by a user.
type Receipt struct {
	ID            uuid.UUID       `json:"id"`
	UserID        uuid.UUID       `json:"user_id"`
	Supplier      string          `json:"proveedor"`
	Total         decimal.Decimal `json:"total"`
	Currency      string          `json:"moneda"`
	IssueDate     *time.Time      `json:"fecha_emision,omitempty"`
	InvoiceNumber string          `json:"numero_factura"`
	Metadata      map[string]any  `json:"metadata"`
	FolderID      *uuid.UUID      `json:"folder_id,omitempty"`
	DuplicateOf   *uuid.UUID      `json:"duplicate_of,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// LineItem is one priced entry within a receipt. It is derived from the
// receipt metadata and never stored as its own row.
type LineItem struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TaxRate     decimal.Decimal `json:"tax_rate"`
	Total       decimal.Decimal `json:"total"`
}

// Duplicate detection actions.
const (
	DetectionPending         = "pending"
	DetectionMarkedDuplicate = "marked_duplicate"
	DetectionIgnored         = "ignored"
)

// DuplicateDetection records candidate receipts suspected to be the same
// real invoice as a subject receipt.
type DuplicateDetection struct {
	ID               uuid.UUID   `json:"id"`
	UserID           uuid.UUID   `json:"user_id"`
	ReceiptID        *uuid.UUID  `json:"receipt_id,omitempty"`
	DuplicateIDs     []uuid.UUID `json:"duplicate_ids"`
	SimilarityScores []float64   `json:"similarity_scores"`
	Action           string      `json:"action"`
	DetectedAt       time.Time   `json:"detected_at"`
}

// DuplicateCandidate is one match returned by the similarity procedure.
type DuplicateCandidate struct {
	ReceiptID       uuid.UUID `json:"receipt_id"`
	SimilarityScore float64   `json:"similarity_score"`
}

// Integration identifies an accounting system.
type Integration string

// Supported accounting systems.
const (
	IntegrationHolded Integration = "holded"
	IntegrationOdoo   Integration = "odoo"
	IntegrationXero   Integration = "xero"
)

// Integrations lists every supported accounting system.
var Integrations = []Integration{IntegrationHolded, IntegrationOdoo, IntegrationXero}

// Valid reports whether i names a supported accounting system.
func (i Integration) Valid() bool {
	switch i {
	case IntegrationHolded, IntegrationOdoo, IntegrationXero:
		return true
	}
	return false
}

// IntegrationCredential holds encrypted secret material for one accounting
// system. Settings carries the system specific fields.
type IntegrationCredential struct {
	ID               uuid.UUID       `json:"id"`
	UserID           uuid.UUID       `json:"user_id"`
	System           Integration     `json:"system"`
	SecretEncrypted  string          `json:"-"`
	RefreshEncrypted string          `json:"-"`
	Settings         json.RawMessage `json:"settings"`
	IsActive         bool            `json:"is_active"`
	CreatedAt        time.Time       `json:"created_at"`
}

// HoldedSettings are the Holded specific credential fields.
type HoldedSettings struct {
	TestMode bool `json:"test_mode"`
}

// OdooSettings are the Odoo specific credential fields.
type OdooSettings struct {
	URL      string `json:"url"`
	Database string `json:"database"`
	Username string `json:"username"`
	UID      int64  `json:"uid"`
}

// XeroSettings are the Xero specific credential fields.
type XeroSettings struct {
	TenantID  string    `json:"tenant_id"`
	Scope     string    `json:"scope"`
	ExpiresAt time.Time `json:"expires_at"`
}

// OAuthState is a pending OAuth authorization.
type OAuthState struct {
	State        string      `json:"state"`
	UserID       uuid.UUID   `json:"user_id"`
	System       Integration `json:"system"`
	CodeVerifier string      `json:"-"`
	ExpiresAt    time.Time   `json:"expires_at"`
	CreatedAt    time.Time   `json:"created_at"`
}

// Expired reports whether the state can no longer complete a callback.
func (s *OAuthState) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Profile holds the contact points of a user.
type Profile struct {
	ID               uuid.UUID `json:"id"`
	PhoneNumber      string    `json:"phone_number"`
	Email            string    `json:"email"`
	TelegramChatID   *int64    `json:"telegram_chat_id,omitempty"`
	StripeCustomerID string    `json:"stripe_customer_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// Notification types.
const (
	NotifyDuplicateDetected = "duplicate_detected"
	NotifyDuplicateMarked   = "duplicate_marked"
	NotifyDuplicateUnmarked = "duplicate_unmarked"
	NotifyIntegrationSent   = "integration_sent"
	NotifyIntegrationFailed = "integration_failed"
	NotifyReceiptIngested   = "receipt_ingested"
	NotifyPDFGenerated      = "pdf_generated"
)

// Notification is a user-facing dashboard message.
type Notification struct {
	ID        uuid.UUID      `json:"id"`
	UserID    uuid.UUID      `json:"user_id"`
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data"`
	Read      bool           `json:"read"`
	CreatedAt time.Time      `json:"created_at"`
}
