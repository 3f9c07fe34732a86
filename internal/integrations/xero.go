package integrations

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gitlab.com/billit/billit-api/internal/models"
	"golang.org/x/oauth2"
)

// XeroScopes are requested when connecting Xero.
var XeroScopes = []string{"openid", "profile", "email", "accounting.transactions", "offline_access"}

// XeroConfig holds the Xero OAuth application and API endpoints.
type XeroConfig struct {
	ClientID       string
	ClientSecret   string
	RedirectURL    string
	AuthURL        string
	TokenURL       string
	APIBaseURL     string
	ConnectionsURL string
}

// XeroClient talks to the Xero accounting API.
type XeroClient struct {
	oauth          *oauth2.Config
	apiBaseURL     string
	connectionsURL string
	http           *http.Client
}

// NewXeroClient creates a Xero client.
func NewXeroClient(cfg XeroConfig, client *http.Client) *XeroClient {
	return &XeroClient{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       XeroScopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		apiBaseURL:     strings.TrimRight(cfg.APIBaseURL, "/"),
		connectionsURL: cfg.ConnectionsURL,
		http:           client,
	}
}

// AuthCodeURL builds the consent URL with an S256 PKCE challenge.
func (c *XeroClient) AuthCodeURL(state, verifier string) string {
	return c.oauth.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))
}

// Exchange trades an authorization code for tokens.
func (c *XeroClient) Exchange(ctx context.Context, code, verifier string) (*oauth2.Token, error) {
	tok, err := c.oauth.Exchange(c.clientContext(ctx), code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("failed to exchange xero code: %w", err)
	}
	return tok, nil
}

// Refresh returns a valid token, refreshing tok when it has expired.
func (c *XeroClient) Refresh(ctx context.Context, tok *oauth2.Token) (*oauth2.Token, error) {
	fresh, err := c.oauth.TokenSource(c.clientContext(ctx), tok).Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh xero token: %w", err)
	}
	return fresh, nil
}

type xeroConnection struct {
	TenantID   string `json:"tenantId"`
	TenantType string `json:"tenantType"`
}

// Tenant returns the first organisation the token can access.
func (c *XeroClient) Tenant(ctx context.Context, accessToken string) (string, error) {
	raw, err := doJSON(ctx, c.http, models.IntegrationXero, http.MethodGet, c.connectionsURL,
		map[string]string{"Authorization": "Bearer " + accessToken}, nil)
	if err != nil {
		return "", err
	}
	var conns []xeroConnection
	if err := json.Unmarshal(raw, &conns); err != nil {
		return "", fmt.Errorf("failed to decode xero connections: %w", err)
	}
	for _, conn := range conns {
		if conn.TenantType == "" || conn.TenantType == "ORGANISATION" {
			return conn.TenantID, nil
		}
	}
	return "", fmt.Errorf("%w: no xero organisation authorized", ErrInvalidCredentials)
}

type xeroLineItem struct {
	Description string          `json:"Description"`
	Quantity    decimal.Decimal `json:"Quantity"`
	UnitAmount  decimal.Decimal `json:"UnitAmount"`
	LineAmount  decimal.Decimal `json:"LineAmount"`
	TaxAmount   decimal.Decimal `json:"TaxAmount"`
}

type xeroContact struct {
	Name string `json:"Name"`
}

type xeroInvoice struct {
	Type            string         `json:"Type"`
	Contact         xeroContact    `json:"Contact"`
	Date            string         `json:"Date"`
	DueDate         string         `json:"DueDate"`
	InvoiceNumber   string         `json:"InvoiceNumber,omitempty"`
	CurrencyCode    string         `json:"CurrencyCode"`
	LineAmountTypes string         `json:"LineAmountTypes"`
	Status          string         `json:"Status"`
	LineItems       []xeroLineItem `json:"LineItems"`
}

type xeroInvoices struct {
	Invoices []xeroInvoice `json:"Invoices"`
}

// newXeroInvoices maps an invoice to a draft Xero bill with tax-exclusive lines.
func newXeroInvoices(inv Invoice) xeroInvoices {
	doc := xeroInvoice{
		Type:            "ACCPAY",
		Contact:         xeroContact{Name: inv.Contact},
		Date:            inv.Date.Format("2006-01-02"),
		DueDate:         inv.DueDate.Format("2006-01-02"),
		InvoiceNumber:   inv.Number,
		CurrencyCode:    inv.Currency,
		LineAmountTypes: "Exclusive",
		Status:          "DRAFT",
		LineItems:       make([]xeroLineItem, 0, len(inv.Items)),
	}
	for _, it := range inv.Items {
		doc.LineItems = append(doc.LineItems, xeroLineItem{
			Description: it.Description,
			Quantity:    it.Quantity,
			UnitAmount:  unitPrice(it),
			LineAmount:  it.Total,
			TaxAmount:   it.Total.Mul(it.TaxRate).Div(decimal.NewFromInt(100)).Round(2),
		})
	}
	return xeroInvoices{Invoices: []xeroInvoice{doc}}
}

// Send creates a bill in the tenant recorded on the credential.
func (c *XeroClient) Send(ctx context.Context, accessToken, tenantID string, inv Invoice) (json.RawMessage, error) {
	return doJSON(ctx, c.http, models.IntegrationXero, http.MethodPost,
		c.apiBaseURL+"/api.xro/2.0/Invoices",
		map[string]string{
			"Authorization":  "Bearer " + accessToken,
			"xero-tenant-id": tenantID,
		},
		newXeroInvoices(inv))
}

func (c *XeroClient) clientContext(ctx context.Context) context.Context {
	if c.http == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, c.http)
}

// xeroToken rebuilds an oauth2 token from a stored credential.
func xeroToken(cred *Credential, settings models.XeroSettings) *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  cred.Secret,
		RefreshToken: cred.Refresh,
		TokenType:    "Bearer",
		Expiry:       settings.ExpiresAt,
	}
}

// xeroSettings builds the settings persisted next to a token pair.
func xeroSettings(tenantID string, tok *oauth2.Token) models.XeroSettings {
	scope, _ := tok.Extra("scope").(string)
	if scope == "" {
		scope = strings.Join(XeroScopes, " ")
	}
	expiry := tok.Expiry
	if expiry.IsZero() {
		expiry = time.Now().Add(30 * time.Minute)
	}
	return models.XeroSettings{TenantID: tenantID, Scope: scope, ExpiresAt: expiry.UTC()}
}
