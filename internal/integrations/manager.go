package integrations

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gitlab.com/billit/billit-api/internal/logger"
	"gitlab.com/billit/billit-api/internal/models"
	"gitlab.com/billit/billit-api/internal/repository"
	"golang.org/x/oauth2"
)

// OAuthStateTTL is how long a pending authorization stays valid.
const OAuthStateTTL = 10 * time.Minute

// StateRepo stores pending OAuth authorizations.
type StateRepo interface {
	Create(ctx context.Context, s *models.OAuthState) error
	Get(ctx context.Context, state string) (*models.OAuthState, error)
	Delete(ctx context.Context, state string) error
}

// Manager connects and disconnects accounting systems.
type Manager struct {
	creds  *CredentialStore
	states StateRepo
	holded *HoldedClient
	odoo   *OdooClient
	xero   *XeroClient
	now    func() time.Time
}

// NewManager creates a Manager. xero may be nil when the server has no Xero
// application configured.
func NewManager(creds *CredentialStore, states StateRepo, holded *HoldedClient, odoo *OdooClient, xero *XeroClient) *Manager {
	return &Manager{creds: creds, states: states, holded: holded, odoo: odoo, xero: xero, now: time.Now}
}

// ConnectHolded verifies an API key and stores it.
func (m *Manager) ConnectHolded(ctx context.Context, userID uuid.UUID, apiKey string, testMode bool) error {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return fmt.Errorf("%w: apiKey is required", ErrInvalidCredentials)
	}
	if err := m.holded.Verify(ctx, apiKey); err != nil {
		return err
	}
	return m.creds.Save(ctx, userID, models.IntegrationHolded, apiKey, "", models.HoldedSettings{TestMode: testMode})
}

// ConnectOdoo authenticates against the instance and stores the password
// together with the resolved user id.
func (m *Manager) ConnectOdoo(ctx context.Context, userID uuid.UUID, settings models.OdooSettings, password string) error {
	uid, err := m.odoo.Authenticate(ctx, settings, password)
	if err != nil {
		return err
	}
	settings.UID = uid
	return m.creds.Save(ctx, userID, models.IntegrationOdoo, password, "", settings)
}

// StartXero creates a pending authorization and returns the consent URL.
func (m *Manager) StartXero(ctx context.Context, userID uuid.UUID) (string, error) {
	if m.xero == nil {
		return "", fmt.Errorf("%w: xero", ErrNotConfigured)
	}
	state := &models.OAuthState{
		State:        oauth2.GenerateVerifier(),
		UserID:       userID,
		System:       models.IntegrationXero,
		CodeVerifier: oauth2.GenerateVerifier(),
		ExpiresAt:    m.now().Add(OAuthStateTTL),
	}
	if err := m.states.Create(ctx, state); err != nil {
		return "", err
	}
	return m.xero.AuthCodeURL(state.State, state.CodeVerifier), nil
}

// CompleteXero finishes the authorization for a callback. An expired state
// is deleted and the callback rejected.
func (m *Manager) CompleteXero(ctx context.Context, stateValue, code string) (uuid.UUID, error) {
	if m.xero == nil {
		return uuid.Nil, fmt.Errorf("%w: xero", ErrNotConfigured)
	}
	if stateValue == "" || code == "" {
		return uuid.Nil, ErrOAuthStateUnknown
	}

	state, err := m.states.Get(ctx, stateValue)
	if errors.Is(err, repository.ErrNotFound) {
		return uuid.Nil, ErrOAuthStateUnknown
	}
	if err != nil {
		return uuid.Nil, err
	}
	if state.Expired(m.now()) {
		if err := m.states.Delete(ctx, stateValue); err != nil {
			logger.Log.Warn().Err(err).Msg("Failed to delete expired oauth state")
		}
		return uuid.Nil, ErrOAuthStateExpired
	}

	tok, err := m.xero.Exchange(ctx, code, state.CodeVerifier)
	if err != nil {
		return uuid.Nil, err
	}
	tenantID, err := m.xero.Tenant(ctx, tok.AccessToken)
	if err != nil {
		return uuid.Nil, err
	}
	if err := m.creds.Save(ctx, state.UserID, models.IntegrationXero, tok.AccessToken, tok.RefreshToken,
		xeroSettings(tenantID, tok)); err != nil {
		return uuid.Nil, err
	}

	if err := m.states.Delete(ctx, stateValue); err != nil {
		logger.Log.Warn().Err(err).Msg("Failed to delete used oauth state")
	}
	logger.Log.Info().Str("user", logger.HashUserID(state.UserID)).Msg("Xero connected")
	return state.UserID, nil
}

// Disconnect deactivates the user's credential for system.
func (m *Manager) Disconnect(ctx context.Context, userID uuid.UUID, system models.Integration) error {
	if !system.Valid() {
		return fmt.Errorf("%w: %s", ErrUnsupported, system)
	}
	ok, err := m.creds.Disconnect(ctx, userID, system)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoCredentials, system)
	}
	return nil
}

// Connected lists the user's active credentials without secrets.
func (m *Manager) Connected(ctx context.Context, userID uuid.UUID) ([]models.IntegrationCredential, error) {
	return m.creds.Connected(ctx, userID)
}
