package integrations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/kolo/xmlrpc"
	"gitlab.com/billit/billit-api/internal/models"
)

// OdooClient talks to an Odoo instance over XML-RPC.
type OdooClient struct {
	transport http.RoundTripper
	timeout   time.Duration
}

// NewOdooClient creates an Odoo client. timeout bounds every call.
func NewOdooClient(transport http.RoundTripper, timeout time.Duration) *OdooClient {
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &OdooClient{transport: transport, timeout: timeout}
}

// Authenticate checks the login and returns the Odoo user id.
func (c *OdooClient) Authenticate(ctx context.Context, settings models.OdooSettings, password string) (int64, error) {
	client, err := xmlrpc.NewClient(endpoint(settings.URL, "common"), c.transport)
	if err != nil {
		return 0, fmt.Errorf("failed to create odoo client: %w", err)
	}
	defer func() { _ = client.Close() }()

	var reply any
	err = c.call(ctx, client, "authenticate",
		[]any{settings.Database, settings.Username, password, map[string]any{}}, &reply)
	if err != nil {
		return 0, err
	}

	// Odoo answers false for a rejected login.
	uid, ok := reply.(int64)
	if !ok || uid <= 0 {
		return 0, ErrInvalidCredentials
	}
	return uid, nil
}

// Send creates a vendor bill through account.move. The partner is looked up
// by name first and created when missing.
func (c *OdooClient) Send(ctx context.Context, cred *Credential, inv Invoice) (json.RawMessage, error) {
	var settings models.OdooSettings
	if err := decodeSettings(cred.Settings, &settings); err != nil {
		return nil, err
	}
	if settings.URL == "" || settings.UID == 0 {
		return nil, fmt.Errorf("%w: odoo settings incomplete", ErrNoCredentials)
	}

	client, err := xmlrpc.NewClient(endpoint(settings.URL, "object"), c.transport)
	if err != nil {
		return nil, fmt.Errorf("failed to create odoo client: %w", err)
	}
	defer func() { _ = client.Close() }()

	exec := func(model, method string, args []any, reply any) error {
		return c.call(ctx, client, "execute_kw",
			[]any{settings.Database, settings.UID, cred.Secret, model, method, args}, reply)
	}

	partnerID, err := c.partner(exec, inv.Contact)
	if err != nil {
		return nil, err
	}

	var moveID int64
	if err := exec("account.move", "create", []any{newOdooMove(inv, partnerID)}, &moveID); err != nil {
		return nil, err
	}

	out, err := json.Marshal(map[string]any{"id": moveID, "partner_id": partnerID})
	if err != nil {
		return nil, fmt.Errorf("failed to encode odoo response: %w", err)
	}
	return out, nil
}

func (c *OdooClient) partner(exec func(string, string, []any, any) error, name string) (int64, error) {
	var ids []any
	domain := []any{[]any{"name", "=", name}}
	if err := exec("res.partner", "search", []any{domain}, &ids); err != nil {
		return 0, err
	}
	if len(ids) > 0 {
		if id, ok := ids[0].(int64); ok {
			return id, nil
		}
	}

	var id int64
	if err := exec("res.partner", "create", []any{map[string]any{"name": name, "supplier_rank": 1}}, &id); err != nil {
		return 0, err
	}
	return id, nil
}

// newOdooMove maps an invoice to an account.move vendor bill.
func newOdooMove(inv Invoice, partnerID int64) map[string]any {
	lines := make([]any, 0, len(inv.Items))
	for _, it := range inv.Items {
		lines = append(lines, []any{0, 0, map[string]any{
			"name":       it.Description,
			"quantity":   it.Quantity.InexactFloat64(),
			"price_unit": unitPrice(it).InexactFloat64(),
		}})
	}
	move := map[string]any{
		"move_type":        "in_invoice",
		"partner_id":       partnerID,
		"invoice_date":     inv.Date.Format("2006-01-02"),
		"invoice_date_due": inv.DueDate.Format("2006-01-02"),
		"invoice_line_ids": lines,
	}
	if inv.Number != "" {
		move["ref"] = inv.Number
	}
	return move
}

// call runs one XML-RPC call bounded by ctx and the client timeout.
func (c *OdooClient) call(ctx context.Context, client *xmlrpc.Client, method string, args []any, reply any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	// The goroutine decodes into its own value so a call that outlives the
	// deadline never writes into reply.
	target := reflect.ValueOf(reply)
	if target.Kind() != reflect.Pointer || target.IsNil() {
		return fmt.Errorf("odoo %s: reply must be a non-nil pointer", method)
	}
	local := reflect.New(target.Elem().Type())
	done := make(chan error, 1)
	go func() { done <- client.Call(method, args, local.Interface()) }()

	select {
	case err := <-done:
		if err != nil {
			return odooError(err)
		}
		target.Elem().Set(local.Elem())
		return nil
	case <-ctx.Done():
		_ = client.Close()
		return fmt.Errorf("odoo %s: %w", method, ctx.Err())
	}
}

func odooError(err error) error {
	if err == nil {
		return nil
	}
	var fault xmlrpc.FaultError
	if errors.As(err, &fault) {
		return &VendorError{Integration: models.IntegrationOdoo, Status: fault.String, Body: fmt.Sprint(fault.Code)}
	}
	return &VendorError{Integration: models.IntegrationOdoo, Status: err.Error()}
}

func endpoint(base, service string) string {
	return strings.TrimRight(base, "/") + "/xmlrpc/2/" + service
}
