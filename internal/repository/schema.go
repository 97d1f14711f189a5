package repository

import (
	"context"
	"fmt"
)

// schemaStatements creates the relay tables on first start. Templates are
// append-only; the partial unique index guarantees a single active row.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		telegram_id   BIGINT PRIMARY KEY,
		phone_number  TEXT NOT NULL UNIQUE,
		registered_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS user_bindings (
		id              SERIAL PRIMARY KEY,
		user_phone      TEXT NOT NULL REFERENCES users (phone_number),
		bot_id          TEXT NOT NULL,
		api_key         TEXT NOT NULL,
		trunk_id        TEXT NOT NULL,
		last_checked_at TIMESTAMPTZ,
		UNIQUE (bot_id, api_key, trunk_id)
	)`,
	`CREATE TABLE IF NOT EXISTS notification_templates (
		id            SERIAL PRIMARY KEY,
		template_text TEXT NOT NULL,
		is_active     BOOLEAN NOT NULL DEFAULT TRUE,
		updated_by    BIGINT NOT NULL,
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS notification_templates_active_idx
		ON notification_templates (is_active) WHERE is_active`,
}

// InitSchema creates the application tables if they do not exist yet.
func (r *Repository) InitSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := r.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}

	return nil
}
