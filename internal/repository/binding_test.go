package repository_test

import (
	"regexp"
	"testing"
	"time"

	"github.com/Houeta/callrelay-bot/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const insertIntoBindings = `INSERT INTO user_bindings (user_phone, bot_id, api_key, trunk_id)
			 VALUES ($1, $2, $3, $4) ON CONFLICT (bot_id, api_key, trunk_id) DO NOTHING`

const updateWatermark = "UPDATE user_bindings SET last_checked_at = \\$3 WHERE api_key = \\$1 AND bot_id = \\$2"

func TestCreateBinding(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	phone := "+79123456789"
	botID := "bot-1"
	apiKey := "key-1"
	trunkID := "trunk-1"

	t.Run("error - owner not found", func(t *testing.T) {
		t.Parallel()
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := repository.NewRepository(mock)

		mock.ExpectQuery(selectExistsPhone).
			WithArgs(phone).
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

		err = repo.CreateBinding(ctx, phone, botID, apiKey, trunkID)

		require.Error(t, err)
		require.ErrorIs(t, err, repository.ErrUserNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("error - failed to check owner", func(t *testing.T) {
		t.Parallel()
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := repository.NewRepository(mock)

		mock.ExpectQuery(selectExistsPhone).WithArgs(phone).WillReturnError(assert.AnError)

		err = repo.CreateBinding(ctx, phone, botID, apiKey, trunkID)

		require.Error(t, err)
		require.ErrorIs(t, err, assert.AnError)
		require.ErrorContains(t, err, "failed to check binding owner")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("error - binding exists", func(t *testing.T) {
		t.Parallel()
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := repository.NewRepository(mock)

		mock.ExpectQuery(selectExistsPhone).
			WithArgs(phone).
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectExec(regexp.QuoteMeta(insertIntoBindings)).
			WithArgs(phone, botID, apiKey, trunkID).
			WillReturnResult(pgxmock.NewResult("INSERT", 0))

		err = repo.CreateBinding(ctx, phone, botID, apiKey, trunkID)

		require.Error(t, err)
		require.ErrorIs(t, err, repository.ErrBindingExists)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("success - create binding", func(t *testing.T) {
		t.Parallel()
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := repository.NewRepository(mock)

		mock.ExpectQuery(selectExistsPhone).
			WithArgs(phone).
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectExec(regexp.QuoteMeta(insertIntoBindings)).
			WithArgs(phone, botID, apiKey, trunkID).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		err = repo.CreateBinding(ctx, phone, botID, apiKey, trunkID)

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestListActiveBindings(t *testing.T) {
	t.Parallel()
	ctx := t.Context()

	t.Run("error - query failed", func(t *testing.T) {
		t.Parallel()
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := repository.NewRepository(mock)

		mock.ExpectQuery("SELECT(.|\\s)*FROM(.|\\s)*user_bindings b(.|\\s)*JOIN").WillReturnError(assert.AnError)

		_, err = repo.ListActiveBindings(ctx)

		require.Error(t, err)
		require.ErrorIs(t, err, assert.AnError)
		require.ErrorContains(t, err, "failed to query active bindings")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("success - bindings with and without watermark", func(t *testing.T) {
		t.Parallel()
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := repository.NewRepository(mock)

		checkedAt := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
		mock.ExpectQuery("SELECT(.|\\s)*FROM(.|\\s)*user_bindings b(.|\\s)*JOIN").
			WillReturnRows(
				pgxmock.NewRows([]string{"telegram_id", "api_key", "bot_id", "last_checked_at"}).
					AddRow(int64(100), "key-1", "bot-1", &checkedAt).
					AddRow(int64(200), "key-2", "bot-2", nil),
			)

		bindings, err := repo.ListActiveBindings(ctx)

		require.NoError(t, err)
		require.Len(t, bindings, 2)
		assert.Equal(t, int64(100), bindings[0].TelegramID)
		require.NotNil(t, bindings[0].LastCheckedAt)
		assert.Equal(t, checkedAt, *bindings[0].LastCheckedAt)
		assert.Nil(t, bindings[1].LastCheckedAt, "a never-polled binding has no watermark")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUpdateWatermark(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	checkedAt := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	t.Run("error - update failed", func(t *testing.T) {
		t.Parallel()
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := repository.NewRepository(mock)

		mock.ExpectExec(updateWatermark).
			WithArgs("key-1", "bot-1", checkedAt).
			WillReturnError(assert.AnError)

		err = repo.UpdateWatermark(ctx, "key-1", "bot-1", checkedAt)

		require.Error(t, err)
		require.ErrorIs(t, err, assert.AnError)
		require.ErrorContains(t, err, "failed to update watermark")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("success - missing binding is not an error", func(t *testing.T) {
		t.Parallel()
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := repository.NewRepository(mock)

		mock.ExpectExec(updateWatermark).
			WithArgs("key-1", "bot-1", checkedAt).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err = repo.UpdateWatermark(ctx, "key-1", "bot-1", checkedAt)

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestResolveUserByBinding(t *testing.T) {
	t.Parallel()
	ctx := t.Context()

	t.Run("error - binding not found", func(t *testing.T) {
		t.Parallel()
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := repository.NewRepository(mock)

		mock.ExpectQuery("SELECT(.|\\s)*FROM(.|\\s)*users u(.|\\s)*JOIN").
			WithArgs("bot-1", "trunk-1", "wrong-key").
			WillReturnError(pgx.ErrNoRows)

		_, err = repo.ResolveUserByBinding(ctx, "bot-1", "trunk-1", "wrong-key")

		require.Error(t, err)
		require.ErrorIs(t, err, repository.ErrBindingNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("error - query failed", func(t *testing.T) {
		t.Parallel()
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := repository.NewRepository(mock)

		mock.ExpectQuery("SELECT(.|\\s)*FROM(.|\\s)*users u(.|\\s)*JOIN").
			WithArgs("bot-1", "trunk-1", "key-1").
			WillReturnError(assert.AnError)

		_, err = repo.ResolveUserByBinding(ctx, "bot-1", "trunk-1", "key-1")

		require.Error(t, err)
		require.ErrorIs(t, err, assert.AnError)
		require.ErrorContains(t, err, "failed to resolve user by binding")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("success - resolve user", func(t *testing.T) {
		t.Parallel()
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := repository.NewRepository(mock)

		mock.ExpectQuery("SELECT(.|\\s)*FROM(.|\\s)*users u(.|\\s)*JOIN").
			WithArgs("bot-1", "trunk-1", "key-1").
			WillReturnRows(
				pgxmock.NewRows([]string{"telegram_id", "phone_number", "registered_at"}).
					AddRow(int64(12345), "+79123456789", time.Now()),
			)

		user, err := repo.ResolveUserByBinding(ctx, "bot-1", "trunk-1", "key-1")

		require.NoError(t, err)
		assert.Equal(t, int64(12345), user.TelegramID)
		assert.Equal(t, "+79123456789", user.Phone)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
