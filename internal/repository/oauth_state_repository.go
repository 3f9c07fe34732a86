package repository

import (
	"context"
	"fmt"

	"gitlab.com/billit/billit-api/internal/database"
	"gitlab.com/billit/billit-api/internal/models"
)

// OAuthStateRepository stores pending OAuth authorizations.
type OAuthStateRepository struct {
	db database.PGXDB
}

// NewOAuthStateRepository creates a new OAuthStateRepository.
func NewOAuthStateRepository(db database.PGXDB) *OAuthStateRepository {
	return &OAuthStateRepository{db: db}
}

// Create stores a pending state.
func (r *OAuthStateRepository) Create(ctx context.Context, s *models.OAuthState) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO oauth_states (state, user_id, system, code_verifier, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, s.State, s.UserID, s.System, s.CodeVerifier, s.ExpiresAt).Scan(&s.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create oauth state: %w", err)
	}
	return nil
}

// Get returns a pending state by its value.
func (r *OAuthStateRepository) Get(ctx context.Context, state string) (*models.OAuthState, error) {
	var s models.OAuthState
	err := r.db.QueryRow(ctx, `
		SELECT state, user_id, system, code_verifier, expires_at, created_at
		FROM oauth_states WHERE state = $1
	`, state).Scan(&s.State, &s.UserID, &s.System, &s.CodeVerifier, &s.ExpiresAt, &s.CreatedAt)
	if err != nil {
		return nil, wrapNotFound(err, "oauth state")
	}
	return &s, nil
}

// Delete removes a state row.
func (r *OAuthStateRepository) Delete(ctx context.Context, state string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM oauth_states WHERE state = $1`, state); err != nil {
		return fmt.Errorf("failed to delete oauth state: %w", err)
	}
	return nil
}
