package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/Houeta/callrelay-bot/internal/models"
	"github.com/jackc/pgx/v5"
)

// ErrNoActiveTemplate is returned when no notification template is active.
// Nothing can be delivered without a template, so callers abort their cycle
// or reject the request when they see this.
var ErrNoActiveTemplate = errors.New("no active notification template")

// GetActiveTemplate returns the single active notification template.
func (r *Repository) GetActiveTemplate(ctx context.Context) (models.Template, error) {
	var tmpl models.Template

	err := r.db.QueryRow(
		ctx,
		"SELECT id, template_text, updated_by, updated_at FROM notification_templates WHERE is_active = TRUE",
	).Scan(&tmpl.ID, &tmpl.Text, &tmpl.UpdatedBy, &tmpl.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Template{}, ErrNoActiveTemplate
		}
		return models.Template{}, fmt.Errorf("failed to get active template: %w", err)
	}

	return tmpl, nil
}

// SetActiveTemplate deactivates the current active template and inserts the
// new one in a single transaction, keeping the history of edits. The
// transaction guarantees there is never more than one active row even when
// two admins edit concurrently.
func (r *Repository) SetActiveTemplate(ctx context.Context, text string, adminID int64) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // omitted because checking for errors will not affect the function

	_, err = tx.Exec(ctx, "UPDATE notification_templates SET is_active = FALSE WHERE is_active = TRUE")
	if err != nil {
		return fmt.Errorf("failed to deactivate old template: %w", err)
	}

	_, err = tx.Exec(
		ctx,
		"INSERT INTO notification_templates (template_text, is_active, updated_by) VALUES ($1, TRUE, $2)",
		text, adminID,
	)
	if err != nil {
		return fmt.Errorf("failed to insert new template: %w", err)
	}

	return tx.Commit(ctx)
}
