package integrations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gitlab.com/billit/billit-api/internal/logger"
	"gitlab.com/billit/billit-api/internal/models"
	"gitlab.com/billit/billit-api/internal/repository"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ReceiptStore is the receipt data the dispatcher reads and annotates.
type ReceiptStore interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Receipt, error)
	MergeMetadata(ctx context.Context, id uuid.UUID, patch map[string]any) error
}

// Notifier emits best-effort user notifications.
type Notifier interface {
	Emit(ctx context.Context, userID uuid.UUID, typ, title, message string, data map[string]any)
}

// Request names the receipt to send and where.
type Request struct {
	UserID      uuid.UUID
	ReceiptID   uuid.UUID
	Integration models.Integration
	Overrides   *Overrides
}

// Result is a successful dispatch.
type Result struct {
	Integration models.Integration `json:"integration"`
	Response    json.RawMessage    `json:"response"`
	SentAt      time.Time          `json:"sent_at"`
}

// Dispatcher submits receipts to accounting systems, one call per dispatch
// and no retries.
type Dispatcher struct {
	receipts   ReceiptStore
	creds      *CredentialStore
	holded     *HoldedClient
	odoo       *OdooClient
	xero       *XeroClient
	notifier   Notifier
	dispatched metric.Int64Counter
	now        func() time.Time
}

// NewDispatcher creates a Dispatcher. xero and notifier may be nil.
func NewDispatcher(
	receipts ReceiptStore,
	creds *CredentialStore,
	holded *HoldedClient,
	odoo *OdooClient,
	xero *XeroClient,
	notifier Notifier,
) *Dispatcher {
	counter, err := otel.Meter("gitlab.com/billit/billit-api/internal/integrations").
		Int64Counter("billit.integrations.dispatched",
			metric.WithDescription("Receipts submitted to accounting systems"))
	if err != nil {
		logger.Log.Warn().Err(err).Msg("Failed to create dispatch counter")
	}
	return &Dispatcher{
		receipts:   receipts,
		creds:      creds,
		holded:     holded,
		odoo:       odoo,
		xero:       xero,
		notifier:   notifier,
		dispatched: counter,
		now:        time.Now,
	}
}

// Dispatch sends one receipt. On success the vendor response, the sent
// timestamp and the integration name are stored on the receipt.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (*Result, error) {
	if !req.Integration.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, req.Integration)
	}

	receipt, err := d.receipts.Get(ctx, req.ReceiptID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrReceiptNotFound
	}
	if err != nil {
		return nil, err
	}
	if receipt.UserID != req.UserID {
		return nil, ErrForbidden
	}

	cred, err := d.creds.Load(ctx, req.UserID, req.Integration)
	if err != nil {
		return nil, err
	}

	inv := BuildInvoice(receipt, req.Overrides)
	response, err := d.send(ctx, req.UserID, cred, inv)
	if err != nil {
		d.record(ctx, req.Integration, "error")
		logger.Log.Error().Err(err).
			Str("user", logger.HashUserID(req.UserID)).
			Str("integration", string(req.Integration)).
			Msg("Integration dispatch failed")
		d.notify(ctx, req.UserID, models.NotifyIntegrationFailed, "Error al enviar la factura",
			err.Error(), map[string]any{"receipt_id": req.ReceiptID.String(), "integration": string(req.Integration)})
		return nil, err
	}

	sentAt := d.now().UTC()
	patch := map[string]any{
		models.MetaIntegrationReply: response,
		models.MetaIntegrationSent:  sentAt.Format(time.RFC3339),
		models.MetaIntegrationName:  string(req.Integration),
	}
	if err := d.receipts.MergeMetadata(ctx, req.ReceiptID, patch); err != nil {
		return nil, fmt.Errorf("failed to record dispatch: %w", err)
	}

	d.record(ctx, req.Integration, "success")
	logger.Log.Info().
		Str("user", logger.HashUserID(req.UserID)).
		Str("integration", string(req.Integration)).
		Int("items", len(inv.Items)).
		Msg("Receipt sent to integration")
	d.notify(ctx, req.UserID, models.NotifyIntegrationSent, "Factura enviada",
		fmt.Sprintf("%s enviada a %s", inv.Contact, req.Integration),
		map[string]any{"receipt_id": req.ReceiptID.String(), "integration": string(req.Integration)})

	return &Result{Integration: req.Integration, Response: response, SentAt: sentAt}, nil
}

func (d *Dispatcher) send(ctx context.Context, userID uuid.UUID, cred *Credential, inv Invoice) (json.RawMessage, error) {
	switch cred.System {
	case models.IntegrationHolded:
		return d.holded.Send(ctx, cred, inv)
	case models.IntegrationOdoo:
		return d.odoo.Send(ctx, cred, inv)
	case models.IntegrationXero:
		if d.xero == nil {
			return nil, fmt.Errorf("%w: xero", ErrNotConfigured)
		}
		var settings models.XeroSettings
		if err := decodeSettings(cred.Settings, &settings); err != nil {
			return nil, err
		}
		token, err := d.freshXeroToken(ctx, userID, cred, settings)
		if err != nil {
			return nil, err
		}
		return d.xero.Send(ctx, token, settings.TenantID, inv)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupported, cred.System)
}

// freshXeroToken refreshes an expired access token and stores the new pair.
func (d *Dispatcher) freshXeroToken(
	ctx context.Context,
	userID uuid.UUID,
	cred *Credential,
	settings models.XeroSettings,
) (string, error) {
	current := xeroToken(cred, settings)
	fresh, err := d.xero.Refresh(ctx, current)
	if err != nil {
		return "", err
	}
	if fresh.AccessToken == current.AccessToken {
		return current.AccessToken, nil
	}

	refresh := fresh.RefreshToken
	if refresh == "" {
		refresh = cred.Refresh
	}
	if err := d.creds.Save(ctx, userID, models.IntegrationXero, fresh.AccessToken, refresh,
		xeroSettings(settings.TenantID, fresh)); err != nil {
		return "", fmt.Errorf("failed to store refreshed xero token: %w", err)
	}
	return fresh.AccessToken, nil
}

func (d *Dispatcher) record(ctx context.Context, system models.Integration, outcome string) {
	if d.dispatched == nil {
		return
	}
	d.dispatched.Add(ctx, 1, metric.WithAttributes(
		attribute.String("integration", string(system)),
		attribute.String("outcome", outcome),
	))
}

func (d *Dispatcher) notify(ctx context.Context, userID uuid.UUID, typ, title, message string, data map[string]any) {
	if d.notifier == nil {
		return
	}
	d.notifier.Emit(ctx, userID, typ, title, message, data)
}
