package integrations

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
	"gitlab.com/billit/billit-api/internal/models"
)

// HoldedClient talks to the Holded invoicing API.
type HoldedClient struct {
	baseURL string
	http    *http.Client
}

// NewHoldedClient creates a Holded client.
func NewHoldedClient(baseURL string, client *http.Client) *HoldedClient {
	return &HoldedClient{baseURL: strings.TrimRight(baseURL, "/"), http: client}
}

type holdedItem struct {
	Name     string          `json:"name"`
	Units    decimal.Decimal `json:"units"`
	Subtotal decimal.Decimal `json:"subtotal"`
	Tax      decimal.Decimal `json:"tax"`
}

type holdedDocument struct {
	ContactName string       `json:"contactName"`
	Date        int64        `json:"date"`
	DueDate     int64        `json:"dueDate"`
	InvoiceNum  string       `json:"invoiceNum,omitempty"`
	Currency    string       `json:"currency"`
	ApproveDoc  bool         `json:"approveDoc"`
	Items       []holdedItem `json:"items"`
}

// holdedDocument maps an invoice to a Holded purchase document. Test mode
// leaves the document as a draft.
func newHoldedDocument(inv Invoice, settings models.HoldedSettings) holdedDocument {
	doc := holdedDocument{
		ContactName: inv.Contact,
		Date:        inv.Date.Unix(),
		DueDate:     inv.DueDate.Unix(),
		InvoiceNum:  inv.Number,
		Currency:    strings.ToLower(inv.Currency),
		ApproveDoc:  !settings.TestMode,
		Items:       make([]holdedItem, 0, len(inv.Items)),
	}
	for _, it := range inv.Items {
		doc.Items = append(doc.Items, holdedItem{
			Name:     it.Description,
			Units:    it.Quantity,
			Subtotal: unitPrice(it),
			Tax:      it.TaxRate,
		})
	}
	return doc
}

// Verify checks an API key with one read-only call.
func (c *HoldedClient) Verify(ctx context.Context, apiKey string) error {
	_, err := doJSON(ctx, c.http, models.IntegrationHolded, http.MethodGet,
		c.baseURL+"/api/invoicing/v1/contacts", map[string]string{"key": apiKey}, nil)
	var vendorErr *VendorError
	if errors.As(err, &vendorErr) && (vendorErr.StatusCode == http.StatusUnauthorized || vendorErr.StatusCode == http.StatusForbidden) {
		return ErrInvalidCredentials
	}
	return err
}

// Send creates a purchase document.
func (c *HoldedClient) Send(ctx context.Context, cred *Credential, inv Invoice) (json.RawMessage, error) {
	var settings models.HoldedSettings
	if err := decodeSettings(cred.Settings, &settings); err != nil {
		return nil, err
	}
	return doJSON(ctx, c.http, models.IntegrationHolded, http.MethodPost,
		c.baseURL+"/api/invoicing/v1/documents/purchase",
		map[string]string{"key": cred.Secret},
		newHoldedDocument(inv, settings))
}

// unitPrice falls back to total/quantity when the line has no unit price.
func unitPrice(it models.LineItem) decimal.Decimal {
	if !it.UnitPrice.IsZero() || it.Quantity.IsZero() {
		return it.UnitPrice
	}
	return it.Total.Div(it.Quantity).Round(4)
}
