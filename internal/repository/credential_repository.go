package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"gitlab.com/billit/billit-api/internal/database"
	"gitlab.com/billit/billit-api/internal/models"
)

const credentialColumns = `id, user_id, system, secret_encrypted, refresh_encrypted, settings, is_active, created_at`

// CredentialRepository handles integration credential database operations.
// Secrets arrive and leave encrypted; this layer never sees plaintext.
type CredentialRepository struct {
	db database.PGXDB
}

// NewCredentialRepository creates a new CredentialRepository.
func NewCredentialRepository(db database.PGXDB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

// GetActive returns the active credential for a user and system.
func (r *CredentialRepository) GetActive(
	ctx context.Context,
	userID uuid.UUID,
	system models.Integration,
) (*models.IntegrationCredential, error) {
	cred, err := scanCredential(r.db.QueryRow(ctx, `
		SELECT `+credentialColumns+`
		FROM integration_credentials
		WHERE user_id = $1 AND system = $2 AND is_active
		ORDER BY created_at DESC
		LIMIT 1
	`, userID, system))
	if err != nil {
		return nil, wrapNotFound(err, "credential")
	}
	return cred, nil
}

// Deactivate supersedes every active credential of a user and system.
func (r *CredentialRepository) Deactivate(ctx context.Context, userID uuid.UUID, system models.Integration) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE integration_credentials SET is_active = FALSE
		WHERE user_id = $1 AND system = $2 AND is_active
	`, userID, system)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate credentials: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Insert stores a new active credential. Callers deactivate the previous
// one first; the two statements are not atomic.
func (r *CredentialRepository) Insert(ctx context.Context, cred *models.IntegrationCredential) error {
	settings := cred.Settings
	if len(settings) == 0 {
		settings = []byte("{}")
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO integration_credentials (user_id, system, secret_encrypted, refresh_encrypted, settings, is_active)
		VALUES ($1, $2, $3, $4, $5, TRUE)
		RETURNING id, is_active, created_at
	`, cred.UserID, cred.System, cred.SecretEncrypted, cred.RefreshEncrypted, string(settings),
	).Scan(&cred.ID, &cred.IsActive, &cred.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert credential: %w", err)
	}
	return nil
}

// ListActive returns every active credential of a user.
func (r *CredentialRepository) ListActive(ctx context.Context, userID uuid.UUID) ([]models.IntegrationCredential, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+credentialColumns+`
		FROM integration_credentials
		WHERE user_id = $1 AND is_active
		ORDER BY system
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query credentials: %w", err)
	}
	defer rows.Close()

	var out []models.IntegrationCredential
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan credential: %w", err)
		}
		out = append(out, *cred)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate credentials: %w", err)
	}
	return out, nil
}

func scanCredential(row pgx.Row) (*models.IntegrationCredential, error) {
	var c models.IntegrationCredential
	var settings []byte
	err := row.Scan(&c.ID, &c.UserID, &c.System, &c.SecretEncrypted, &c.RefreshEncrypted,
		&settings, &c.IsActive, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	c.Settings = settings
	return &c, nil
}
