package integrations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gitlab.com/billit/billit-api/internal/models"
	"gitlab.com/billit/billit-api/internal/repository"
	"gitlab.com/billit/billit-api/internal/secrets"
)

// CredentialRepo is the credential table.
type CredentialRepo interface {
	GetActive(ctx context.Context, userID uuid.UUID, system models.Integration) (*models.IntegrationCredential, error)
	Deactivate(ctx context.Context, userID uuid.UUID, system models.Integration) (int64, error)
	Insert(ctx context.Context, cred *models.IntegrationCredential) error
	ListActive(ctx context.Context, userID uuid.UUID) ([]models.IntegrationCredential, error)
}

// Credential is a decrypted credential, held only for the duration of a call.
type Credential struct {
	System   models.Integration
	Secret   string
	Refresh  string
	Settings json.RawMessage
}

// CredentialStore encrypts secrets on the way in and decrypts them on the
// way out.
type CredentialStore struct {
	repo   CredentialRepo
	cipher *secrets.Cipher
}

// NewCredentialStore creates a CredentialStore.
func NewCredentialStore(repo CredentialRepo, cipher *secrets.Cipher) *CredentialStore {
	return &CredentialStore{repo: repo, cipher: cipher}
}

// Save supersedes any active credential for the system with a new one.
// Deactivation and insert are separate statements, so a concurrent reader
// can briefly see no active credential.
func (s *CredentialStore) Save(
	ctx context.Context,
	userID uuid.UUID,
	system models.Integration,
	secret, refresh string,
	settings any,
) error {
	encSecret, err := s.cipher.Encrypt(secret)
	if err != nil {
		return fmt.Errorf("failed to encrypt secret: %w", err)
	}
	var encRefresh string
	if refresh != "" {
		if encRefresh, err = s.cipher.Encrypt(refresh); err != nil {
			return fmt.Errorf("failed to encrypt refresh token: %w", err)
		}
	}
	rawSettings, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	if _, err := s.repo.Deactivate(ctx, userID, system); err != nil {
		return err
	}
	return s.repo.Insert(ctx, &models.IntegrationCredential{
		UserID:           userID,
		System:           system,
		SecretEncrypted:  encSecret,
		RefreshEncrypted: encRefresh,
		Settings:         rawSettings,
	})
}

// Load returns the decrypted active credential.
func (s *CredentialStore) Load(ctx context.Context, userID uuid.UUID, system models.Integration) (*Credential, error) {
	row, err := s.repo.GetActive(ctx, userID, system)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNoCredentials, system)
	}
	if err != nil {
		return nil, err
	}

	secret, err := s.cipher.Decrypt(row.SecretEncrypted)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt %s credential: %w", system, err)
	}
	cred := &Credential{System: system, Secret: secret, Settings: row.Settings}
	if row.RefreshEncrypted != "" {
		if cred.Refresh, err = s.cipher.Decrypt(row.RefreshEncrypted); err != nil {
			return nil, fmt.Errorf("failed to decrypt %s refresh token: %w", system, err)
		}
	}
	return cred, nil
}

// Disconnect deactivates the active credential. It reports false when
// nothing was connected.
func (s *CredentialStore) Disconnect(ctx context.Context, userID uuid.UUID, system models.Integration) (bool, error) {
	n, err := s.repo.Deactivate(ctx, userID, system)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Connected lists the systems the user has an active credential for.
func (s *CredentialStore) Connected(ctx context.Context, userID uuid.UUID) ([]models.IntegrationCredential, error) {
	rows, err := s.repo.ListActive(ctx, userID)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []models.IntegrationCredential{}
	}
	return rows, nil
}

// decodeSettings unmarshals system settings, tolerating an empty blob.
func decodeSettings(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to decode settings: %w", err)
	}
	return nil
}
