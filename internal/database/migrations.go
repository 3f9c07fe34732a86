package database

import (
	"context"
	"fmt"
)

// RunMigrations creates the database schema.
func RunMigrations(ctx context.Context, db PGXDB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS profiles (
			id UUID PRIMARY KEY,
			phone_number TEXT UNIQUE,
			email TEXT,
			telegram_chat_id BIGINT,
			stripe_customer_id TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS folders (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			user_id UUID NOT NULL,
			name TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS receipts (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			user_id UUID NOT NULL,
			supplier TEXT NOT NULL DEFAULT '',
			total DECIMAL(12, 2) NOT NULL DEFAULT 0,
			currency TEXT NOT NULL DEFAULT 'EUR',
			issue_date DATE,
			invoice_number TEXT NOT NULL DEFAULT '',
			metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
			folder_id UUID REFERENCES folders(id) ON DELETE SET NULL,
			duplicate_of UUID REFERENCES receipts(id) ON DELETE SET NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE INDEX IF NOT EXISTS idx_receipts_user_id ON receipts(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_receipts_issue_date ON receipts(issue_date)`,

		`CREATE TABLE IF NOT EXISTS duplicate_detections (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			user_id UUID NOT NULL,
			receipt_id UUID REFERENCES receipts(id) ON DELETE SET NULL,
			duplicate_ids UUID[] NOT NULL,
			similarity_scores DOUBLE PRECISION[] NOT NULL,
			action TEXT NOT NULL DEFAULT 'pending'
				CHECK (action IN ('pending', 'marked_duplicate', 'ignored')),
			detected_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE INDEX IF NOT EXISTS idx_duplicate_detections_user ON duplicate_detections(user_id, detected_at DESC)`,

		`CREATE TABLE IF NOT EXISTS integration_credentials (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			user_id UUID NOT NULL,
			system TEXT NOT NULL CHECK (system IN ('holded', 'odoo', 'xero')),
			secret_encrypted TEXT NOT NULL,
			refresh_encrypted TEXT NOT NULL DEFAULT '',
			settings JSONB NOT NULL DEFAULT '{}'::jsonb,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		// At most one active credential per user and system.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_integration_credentials_active
			ON integration_credentials(user_id, system) WHERE is_active`,

		`CREATE TABLE IF NOT EXISTS oauth_states (
			state TEXT PRIMARY KEY,
			user_id UUID NOT NULL,
			system TEXT NOT NULL,
			code_verifier TEXT NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS notifications (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			user_id UUID NOT NULL,
			type TEXT NOT NULL,
			title TEXT NOT NULL,
			message TEXT NOT NULL DEFAULT '',
			data JSONB NOT NULL DEFAULT '{}'::jsonb,
			read BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, created_at DESC)`,
	}

	for i, migration := range migrations {
		if _, err := db.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	return nil
}

// InstallProcedures creates reference versions of the stored procedures the
// service calls. Hosted deployments ship their own; this is for local
// databases and integration tests.
func InstallProcedures(ctx context.Context, db PGXDB) error {
	procedures := []string{
		`CREATE OR REPLACE FUNCTION find_potential_duplicates(
			p_user_id UUID,
			p_supplier TEXT,
			p_total NUMERIC,
			p_issue_date DATE,
			p_threshold_days INTEGER DEFAULT 7,
			p_threshold_amount NUMERIC DEFAULT 5.0
		) RETURNS TABLE (receipt_id UUID, similarity_score DOUBLE PRECISION)
		LANGUAGE sql STABLE AS $$
			SELECT r.id,
				1.0
				- 0.5 * (abs(r.total - p_total) / GREATEST(p_threshold_amount, 0.01))::double precision
				- 0.5 * (abs(r.issue_date - p_issue_date)::double precision / GREATEST(p_threshold_days, 1))
			FROM receipts r
			WHERE r.user_id = p_user_id
				AND r.duplicate_of IS NULL
				AND lower(trim(r.supplier)) = lower(trim(p_supplier))
				AND abs(r.total - p_total) <= p_threshold_amount
				AND abs(r.issue_date - p_issue_date) <= p_threshold_days
			ORDER BY 2 DESC
		$$`,

		`CREATE OR REPLACE FUNCTION mark_as_duplicate(
			p_receipt_id UUID,
			p_duplicate_of_id UUID,
			p_user_id UUID
		) RETURNS BOOLEAN
		LANGUAGE plpgsql AS $$
		DECLARE
			affected INTEGER;
		BEGIN
			UPDATE receipts
			SET duplicate_of = p_duplicate_of_id, updated_at = NOW()
			WHERE id = p_receipt_id
				AND user_id = p_user_id
				AND id <> p_duplicate_of_id
				AND duplicate_of IS DISTINCT FROM p_duplicate_of_id;
			GET DIAGNOSTICS affected = ROW_COUNT;
			RETURN affected > 0;
		END
		$$`,

		`CREATE OR REPLACE FUNCTION unmark_as_duplicate(
			p_receipt_id UUID,
			p_user_id UUID
		) RETURNS BOOLEAN
		LANGUAGE plpgsql AS $$
		DECLARE
			affected INTEGER;
		BEGIN
			UPDATE receipts
			SET duplicate_of = NULL, updated_at = NOW()
			WHERE id = p_receipt_id
				AND user_id = p_user_id
				AND duplicate_of IS NOT NULL;
			GET DIAGNOSTICS affected = ROW_COUNT;
			RETURN affected > 0;
		END
		$$`,

		`CREATE OR REPLACE FUNCTION move_tickets_to_folder(
			p_receipt_ids UUID[],
			p_folder_id UUID,
			p_user_id UUID
		) RETURNS INTEGER
		LANGUAGE plpgsql AS $$
		DECLARE
			affected INTEGER;
		BEGIN
			UPDATE receipts
			SET folder_id = p_folder_id, updated_at = NOW()
			WHERE id = ANY(p_receipt_ids) AND user_id = p_user_id;
			GET DIAGNOSTICS affected = ROW_COUNT;
			RETURN affected;
		END
		$$`,

		`CREATE OR REPLACE FUNCTION create_notification(
			p_user_id UUID,
			p_type TEXT,
			p_title TEXT,
			p_message TEXT,
			p_data JSONB DEFAULT '{}'::jsonb
		) RETURNS UUID
		LANGUAGE sql AS $$
			INSERT INTO notifications (user_id, type, title, message, data)
			VALUES (p_user_id, p_type, p_title, COALESCE(p_message, ''), COALESCE(p_data, '{}'::jsonb))
			RETURNING id
		$$`,
	}

	for i, proc := range procedures {
		if _, err := db.Exec(ctx, proc); err != nil {
			return fmt.Errorf("procedure %d failed: %w", i+1, err)
		}
	}

	return nil
}
