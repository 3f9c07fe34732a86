package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"gitlab.com/billit/billit-api/internal/database"
	"gitlab.com/billit/billit-api/internal/models"
)

// ProfileRepository handles profile database operations.
type ProfileRepository struct {
	db database.PGXDB
}

// NewProfileRepository creates a new ProfileRepository.
func NewProfileRepository(db database.PGXDB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// Upsert creates or updates a profile.
func (r *ProfileRepository) Upsert(ctx context.Context, p *models.Profile) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO profiles (id, phone_number, email, telegram_chat_id, stripe_customer_id)
		VALUES ($1, NULLIF($2, ''), $3, $4, NULLIF($5, ''))
		ON CONFLICT (id) DO UPDATE SET
			phone_number = EXCLUDED.phone_number,
			email = EXCLUDED.email,
			telegram_chat_id = EXCLUDED.telegram_chat_id,
			stripe_customer_id = COALESCE(EXCLUDED.stripe_customer_id, profiles.stripe_customer_id)
		RETURNING created_at
	`, p.ID, p.PhoneNumber, p.Email, p.TelegramChatID, p.StripeCustomerID).Scan(&p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	return nil
}

// GetByID retrieves a profile by user ID.
func (r *ProfileRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	p, err := scanProfile(r.db.QueryRow(ctx, `
		SELECT id, phone_number, email, telegram_chat_id, stripe_customer_id, created_at
		FROM profiles WHERE id = $1
	`, id))
	if err != nil {
		return nil, wrapNotFound(err, "profile")
	}
	return p, nil
}

// GetByPhone retrieves a profile by its normalized phone number.
func (r *ProfileRepository) GetByPhone(ctx context.Context, phone string) (*models.Profile, error) {
	p, err := scanProfile(r.db.QueryRow(ctx, `
		SELECT id, phone_number, email, telegram_chat_id, stripe_customer_id, created_at
		FROM profiles WHERE phone_number = $1
	`, phone))
	if err != nil {
		return nil, wrapNotFound(err, "profile")
	}
	return p, nil
}

// SetStripeCustomer records the Stripe customer of a user.
func (r *ProfileRepository) SetStripeCustomer(ctx context.Context, id uuid.UUID, customerID string) error {
	tag, err := r.db.Exec(ctx, `UPDATE profiles SET stripe_customer_id = $2 WHERE id = $1`, id, customerID)
	if err != nil {
		return fmt.Errorf("failed to set stripe customer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("profile: %w", ErrNotFound)
	}
	return nil
}

func scanProfile(row pgx.Row) (*models.Profile, error) {
	var p models.Profile
	var phone, email, customer *string
	if err := row.Scan(&p.ID, &phone, &email, &p.TelegramChatID, &customer, &p.CreatedAt); err != nil {
		return nil, err
	}
	if phone != nil {
		p.PhoneNumber = *phone
	}
	if email != nil {
		p.Email = *email
	}
	if customer != nil {
		p.StripeCustomerID = *customer
	}
	return &p, nil
}
