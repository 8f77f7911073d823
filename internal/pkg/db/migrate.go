package db

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

type migration struct {
	name string
	sql  string
}

var migrations = []migration{
	{
		name: "panel_users table",
		sql: `
		CREATE TABLE IF NOT EXISTS panel_users (
			id BIGSERIAL PRIMARY KEY,
			name VARCHAR(190) NOT NULL DEFAULT '',
			email VARCHAR(190) NOT NULL DEFAULT '',
			code VARCHAR(64) NOT NULL DEFAULT '',
			role VARCHAR(16) NOT NULL DEFAULT 'user',
			telegram_user_id BIGINT,
			credit BIGINT NOT NULL DEFAULT 0 CHECK (credit >= 0),
			referred_by_id BIGINT REFERENCES panel_users(id) ON DELETE SET NULL,
			ref_commission_rate NUMERIC(5,2) CHECK (ref_commission_rate BETWEEN 0 AND 100),
			enable_personalized_price BOOLEAN NOT NULL DEFAULT FALSE,
			personalized_price_test BIGINT,
			personalized_price_1 BIGINT,
			personalized_price_3 BIGINT,
			personalized_price_6 BIGINT,
			personalized_price_12 BIGINT,
			traffic_price BIGINT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_panel_users_referred_by ON panel_users(referred_by_id);
		CREATE INDEX IF NOT EXISTS idx_panel_users_telegram ON panel_users(telegram_user_id);
		`,
	},
	{
		name: "panel_plan table",
		sql: `
		CREATE TABLE IF NOT EXISTS panel_plan (
			id BIGSERIAL PRIMARY KEY,
			name VARCHAR(190) NOT NULL DEFAULT '',
			plan_key VARCHAR(20) NOT NULL UNIQUE,
			enable BOOLEAN NOT NULL DEFAULT TRUE,
			default_price TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		INSERT INTO panel_plan (name, plan_key) VALUES
			('test account', 'test'),
			('1 month', '1m'),
			('3 months', '3m'),
			('6 months', '6m'),
			('12 months', '12m'),
			('traffic per GB', 'gig')
		ON CONFLICT (plan_key) DO NOTHING;
		`,
	},
	{
		name: "panel_transactions table",
		sql: `
		CREATE TABLE IF NOT EXISTS panel_transactions (
			id BIGSERIAL PRIMARY KEY,
			panel_user_id BIGINT NOT NULL REFERENCES panel_users(id) ON DELETE CASCADE,
			type VARCHAR(32) NOT NULL,
			direction VARCHAR(10) NOT NULL,
			amount BIGINT NOT NULL CHECK (amount >= 0),
			balance_before BIGINT NOT NULL,
			balance_after BIGINT NOT NULL,
			reference_type VARCHAR(50),
			reference_id BIGINT,
			plan_key_before VARCHAR(20),
			plan_key_after VARCHAR(20),
			quantity INT NOT NULL DEFAULT 1,
			performed_by_id BIGINT,
			performed_by_role VARCHAR(16),
			currency VARCHAR(8) NOT NULL DEFAULT 'IRT',
			status VARCHAR(16) NOT NULL DEFAULT 'pending',
			idempotency_key VARCHAR(100),
			meta JSONB NOT NULL DEFAULT '{}'::jsonb,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT panel_transactions_idempotency_key_unique UNIQUE (idempotency_key)
		);
		CREATE INDEX IF NOT EXISTS idx_panel_transactions_user_time ON panel_transactions(panel_user_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_panel_transactions_reference ON panel_transactions(reference_type, reference_id);
		CREATE INDEX IF NOT EXISTS idx_panel_transactions_type ON panel_transactions(type);
		`,
	},
	{
		name: "panel_wallet_receipts table",
		sql: `
		CREATE TABLE IF NOT EXISTS panel_wallet_receipts (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT REFERENCES panel_users(id) ON DELETE SET NULL,
			amount BIGINT CHECK (amount >= 0),
			method VARCHAR(24) NOT NULL DEFAULT 'card',
			disk VARCHAR(32) NOT NULL DEFAULT 'public',
			path VARCHAR(255) NOT NULL DEFAULT '',
			original_name VARCHAR(255),
			mime VARCHAR(64),
			size BIGINT,
			status VARCHAR(24) NOT NULL DEFAULT 'uploaded',
			commission_paid BOOLEAN NOT NULL DEFAULT FALSE,
			commission_tx_id BIGINT REFERENCES panel_transactions(id) ON DELETE SET NULL,
			commission_notified_at TIMESTAMPTZ,
			notified_at TIMESTAMPTZ,
			meta JSONB NOT NULL DEFAULT '{}'::jsonb,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_wallet_receipts_user_status ON panel_wallet_receipts(user_id, status);
		`,
	},
}

// Migrate creates the ledger schema. Every statement is idempotent.
func Migrate(ctx context.Context, q Querier) error {
	log.Info().Msg("Running database migrations...")

	for i, m := range migrations {
		if _, err := q.Exec(ctx, m.sql); err != nil {
			return fmt.Errorf("failed to apply migration %d (%s): %w", i+1, m.name, err)
		}
		log.Info().Int("step", i+1).Str("name", m.name).Msg("Migration applied")
	}

	log.Info().Msg("All migrations completed successfully")
	return nil
}
