package repository

import (
	"context"
	"time"

	"github.com/Houeta/callrelay-bot/internal/models"
)

type Repository struct {
	db Database
}

// UserManager defines repository operations for user registration and lookup.
type UserManager interface {
	CreateUser(ctx context.Context, telegramID int64, phone string) error
	GetUserByTelegramID(ctx context.Context, telegramID int64) (models.User, error)
	GetUserByPhone(ctx context.Context, phone string) (models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	ListUsersWithBindings(ctx context.Context) ([]models.BindingRow, error)
}

// BindingManager defines repository operations over bindings: assignment,
// watermark maintenance for the polling loop, and webhook resolution.
type BindingManager interface {
	CreateBinding(ctx context.Context, phone, botID, apiKey, trunkID string) error
	ListActiveBindings(ctx context.Context) ([]models.ActiveBinding, error)
	UpdateWatermark(ctx context.Context, apiKey, botID string, checkedAt time.Time) error
	ResolveUserByBinding(ctx context.Context, botID, trunkID, apiKey string) (models.User, error)
}

// TemplateManager defines repository operations over notification templates.
// At most one template is active; setting a new one deactivates the old row
// in the same transaction.
type TemplateManager interface {
	GetActiveTemplate(ctx context.Context) (models.Template, error)
	SetActiveTemplate(ctx context.Context, text string, adminID int64) error
}

// Interface combines all repository capabilities used by the bot.
type Interface interface {
	UserManager
	BindingManager
	TemplateManager
}

// NewRepository creates a new instance of Repository with the provided Database.
// It returns a pointer to the newly created Repository.
func NewRepository(db Database) *Repository {
	return &Repository{db: db}
}
