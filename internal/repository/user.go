package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/Houeta/callrelay-bot/internal/models"
	"github.com/jackc/pgx/v5"
)

var (
	// ErrUserExists is returned when the telegram ID is already registered.
	ErrUserExists = errors.New("this telegram ID is already registered")
	// ErrPhoneExists is returned when the phone number is already used by another user.
	ErrPhoneExists = errors.New("this phone number is already used by another user")
	// ErrUserNotFound is returned when no user matches the given identifier.
	ErrUserNotFound = errors.New("user not found")
)

// CreateUser registers a new user with the given Telegram ID and normalized
// phone number. It begins a transaction, verifies that neither the Telegram ID
// nor the phone number is taken, and inserts the new row. ErrUserExists or
// ErrPhoneExists is returned for the respective conflict; the transaction is
// committed only on a successful insert.
func (r *Repository) CreateUser(ctx context.Context, telegramID int64, phone string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // omitted because checking for errors will not affect the function

	var exists bool
	err = tx.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM users WHERE telegram_id = $1)", telegramID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check telegram ID: %w", err)
	}
	if exists {
		return ErrUserExists
	}

	err = tx.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM users WHERE phone_number = $1)", phone).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check phone number: %w", err)
	}
	if exists {
		return ErrPhoneExists
	}

	_, err = tx.Exec(ctx, "INSERT INTO users (telegram_id, phone_number) VALUES ($1, $2)", telegramID, phone)
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}

	return tx.Commit(ctx)
}

// GetUserByTelegramID retrieves a user by their Telegram ID.
// ErrUserNotFound is returned when no such user is registered.
func (r *Repository) GetUserByTelegramID(ctx context.Context, telegramID int64) (models.User, error) {
	var user models.User

	err := r.db.QueryRow(
		ctx,
		"SELECT telegram_id, phone_number, registered_at FROM users WHERE telegram_id = $1",
		telegramID,
	).Scan(&user.TelegramID, &user.Phone, &user.RegisteredAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrUserNotFound
		}
		return models.User{}, fmt.Errorf("failed to get user by telegram ID: %w", err)
	}

	return user, nil
}

// GetUserByPhone retrieves a user by their normalized phone number.
// ErrUserNotFound is returned when no such user is registered.
func (r *Repository) GetUserByPhone(ctx context.Context, phone string) (models.User, error) {
	var user models.User

	err := r.db.QueryRow(
		ctx,
		"SELECT telegram_id, phone_number, registered_at FROM users WHERE phone_number = $1",
		phone,
	).Scan(&user.TelegramID, &user.Phone, &user.RegisteredAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrUserNotFound
		}
		return models.User{}, fmt.Errorf("failed to get user by phone: %w", err)
	}

	return user, nil
}

// ListUsers returns all registered users, newest first.
func (r *Repository) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := r.db.Query(
		ctx,
		"SELECT telegram_id, phone_number, registered_at FROM users ORDER BY registered_at DESC",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var user models.User
		if errScan := rows.Scan(&user.TelegramID, &user.Phone, &user.RegisteredAt); errScan != nil {
			return nil, fmt.Errorf("failed to scan user row: %w", errScan)
		}
		users = append(users, user)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read user rows: %w", err)
	}

	return users, nil
}

// ListUsersWithBindings returns the joined user+binding view used by the
// export command. Users without a binding are included with empty
// credential fields.
func (r *Repository) ListUsersWithBindings(ctx context.Context) ([]models.BindingRow, error) {
	rows, err := r.db.Query(ctx, listUsersWithBindingsSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to query users with bindings: %w", err)
	}
	defer rows.Close()

	var result []models.BindingRow
	for rows.Next() {
		var row models.BindingRow
		if errScan := rows.Scan(&row.TelegramID, &row.Phone, &row.BotID, &row.TrunkID, &row.APIKey); errScan != nil {
			return nil, fmt.Errorf("failed to scan export row: %w", errScan)
		}
		result = append(result, row)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read export rows: %w", err)
	}

	return result, nil
}
