package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"
)

// Execer is the subset of pgxpool.Pool used by migrations.
type Execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

type migration struct {
	name string
	sql  string
}

// migrations are applied in order; every statement is idempotent.
var migrations = []migration{
	{
		name: "games table",
		sql: `
		CREATE TABLE IF NOT EXISTS games (
			id BIGSERIAL PRIMARY KEY,
			external_id VARCHAR(64) NOT NULL UNIQUE,
			title TEXT NOT NULL,
			image_url TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_games_title ON games(title);
	`,
	},
	{
		name: "deals table",
		sql: `
		CREATE TABLE IF NOT EXISTS deals (
			id BIGSERIAL PRIMARY KEY,
			game_id BIGINT NOT NULL REFERENCES games(id) ON DELETE CASCADE,
			deal_id VARCHAR(255) NOT NULL,
			store_id VARCHAR(32),
			store_name VARCHAR(255),
			current_price DOUBLE PRECISION NOT NULL,
			original_price DOUBLE PRECISION,
			discount_percentage DOUBLE PRECISION NOT NULL DEFAULT 0,
			is_on_sale BOOLEAN NOT NULL DEFAULT FALSE,
			url TEXT,
			last_checked_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT uq_deal_deal_id UNIQUE (deal_id)
		);
		CREATE INDEX IF NOT EXISTS idx_deals_game ON deals(game_id);
		CREATE INDEX IF NOT EXISTS idx_deals_on_sale ON deals(is_on_sale) WHERE is_on_sale;
	`,
	},
	{
		name: "price_history table",
		sql: `
		CREATE TABLE IF NOT EXISTS price_history (
			id BIGSERIAL PRIMARY KEY,
			deal_id BIGINT NOT NULL REFERENCES deals(id) ON DELETE CASCADE,
			price DOUBLE PRECISION NOT NULL,
			discount_percent DOUBLE PRECISION NOT NULL DEFAULT 0,
			checked_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_price_history_deal_time ON price_history(deal_id, checked_at DESC, id DESC);
	`,
	},
	{
		name: "price_alerts table",
		sql: `
		CREATE TABLE IF NOT EXISTS price_alerts (
			id BIGSERIAL PRIMARY KEY,
			deal_id BIGINT NOT NULL REFERENCES deals(id) ON DELETE CASCADE,
			alert_type VARCHAR(32) NOT NULL,
			previous_price DOUBLE PRECISION,
			new_price DOUBLE PRECISION NOT NULL,
			discount_percentage DOUBLE PRECISION,
			message TEXT NOT NULL DEFAULT '',
			is_read BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_price_alerts_deal ON price_alerts(deal_id);
		CREATE INDEX IF NOT EXISTS idx_price_alerts_unread ON price_alerts(created_at DESC) WHERE NOT is_read;
	`,
	},
}

// Migrate creates the tracker schema.
func Migrate(ctx context.Context, db Execer) error {
	log.Info().Int("count", len(migrations)).Msg("Running database migrations...")

	for i, m := range migrations {
		if _, err := db.Exec(ctx, m.sql); err != nil {
			return fmt.Errorf("migration %d (%s): %w", i+1, m.name, err)
		}
		log.Info().Int("step", i+1).Str("name", m.name).Msg("Migration applied")
	}

	log.Info().Msg("All migrations completed successfully")
	return nil
}
