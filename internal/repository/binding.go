package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Houeta/callrelay-bot/internal/models"
	"github.com/jackc/pgx/v5"
)

var (
	// ErrBindingNotFound is returned when no binding matches the supplied credentials.
	ErrBindingNotFound = errors.New("no binding matches the given credentials")
	// ErrBindingExists is returned when an identical credential triple is already assigned.
	ErrBindingExists = errors.New("this credential triple is already assigned")
)

// CreateBinding assigns a (bot_id, api_key, trunk_id) triple to the user
// owning the given phone number. The owning user must exist; the triple must
// not be assigned yet, so webhook resolution stays unambiguous.
func (r *Repository) CreateBinding(ctx context.Context, phone, botID, apiKey, trunkID string) error {
	var exists bool
	err := r.db.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM users WHERE phone_number = $1)", phone).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check binding owner: %w", err)
	}
	if !exists {
		return ErrUserNotFound
	}

	cmdTag, err := r.db.Exec(
		ctx,
		`INSERT INTO user_bindings (user_phone, bot_id, api_key, trunk_id)
		 VALUES ($1, $2, $3, $4) ON CONFLICT (bot_id, api_key, trunk_id) DO NOTHING`,
		phone, botID, apiKey, trunkID,
	)
	if err != nil {
		return fmt.Errorf("failed to insert binding: %w", err)
	}

	if cmdTag.RowsAffected() == 0 {
		return ErrBindingExists
	}

	return nil
}

// ListActiveBindings returns every binding joined with its owner's chat ID,
// in assignment order. The scheduler iterates this list once per cycle.
func (r *Repository) ListActiveBindings(ctx context.Context) ([]models.ActiveBinding, error) {
	rows, err := r.db.Query(ctx, listActiveBindingsSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to query active bindings: %w", err)
	}
	defer rows.Close()

	var bindings []models.ActiveBinding
	for rows.Next() {
		var binding models.ActiveBinding
		if errScan := rows.Scan(
			&binding.TelegramID, &binding.APIKey, &binding.BotID, &binding.LastCheckedAt,
		); errScan != nil {
			return nil, fmt.Errorf("failed to scan binding row: %w", errScan)
		}
		bindings = append(bindings, binding)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read binding rows: %w", err)
	}

	return bindings, nil
}

// UpdateWatermark stores the last-checked timestamp for the binding
// identified by (api_key, bot_id). A missing binding is not an error: it was
// deleted by an admin between the list and the update.
func (r *Repository) UpdateWatermark(ctx context.Context, apiKey, botID string, checkedAt time.Time) error {
	_, err := r.db.Exec(
		ctx,
		"UPDATE user_bindings SET last_checked_at = $3 WHERE api_key = $1 AND bot_id = $2",
		apiKey, botID, checkedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update watermark for bot %s: %w", botID, err)
	}

	return nil
}

// ResolveUserByBinding finds the user owning the binding that matches all
// three credential fields exactly. The triple acts as the webhook's
// shared-secret capability token; a partial match yields ErrBindingNotFound.
func (r *Repository) ResolveUserByBinding(ctx context.Context, botID, trunkID, apiKey string) (models.User, error) {
	var user models.User

	err := r.db.QueryRow(ctx, resolveUserByBindingSQL, botID, trunkID, apiKey).
		Scan(&user.TelegramID, &user.Phone, &user.RegisteredAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrBindingNotFound
		}
		return models.User{}, fmt.Errorf("failed to resolve user by binding: %w", err)
	}

	return user, nil
}
