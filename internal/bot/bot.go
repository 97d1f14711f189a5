package bot

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/Houeta/callrelay-bot/internal/metrics"
	"github.com/Houeta/callrelay-bot/internal/repository"
	"gopkg.in/telebot.v4"
)

// Bot contains the bot API instance and other information.
type Bot struct {
	bot          *telebot.Bot
	log          *slog.Logger
	repo         repository.Interface
	metrics      *metrics.Metrics
	admins       map[int64]bool
	stateManager *StateManager

	adminMenu *telebot.ReplyMarkup
}

// NewBot creates a new bot with the given token.
func NewBot(
	log *slog.Logger,
	repo repository.Interface,
	appMetrics *metrics.Metrics,
	token string,
	adminIDs []int64,
	poller time.Duration,
) (*Bot, error) {
	tgBot, err := telebot.NewBot(telebot.Settings{
		Token:  token,
		Poller: &telebot.LongPoller{Timeout: poller},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Telegram bot: %w", err)
	}
	log.Info("Authorized on account", "account", tgBot.Me.Username)

	admins := make(map[int64]bool, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = true
	}

	botInstance := &Bot{
		bot:          tgBot,
		log:          log,
		repo:         repo,
		metrics:      appMetrics,
		admins:       admins,
		stateManager: NewStateManager(),
	}

	botInstance.registerRoutes()

	return botInstance, nil
}

// Start launches the bot to listen for updates.
func (b *Bot) Start() {
	b.log.Info("Telegram bot is starting...")
	b.bot.Start()
}

// Stop gracefully stops the Telegram bot and logs the action.
func (b *Bot) Stop() {
	b.log.Info("Telegram bot is stopped...")
	b.bot.Stop()
}

// registerRoutes configures all routes (commands).
func (b *Bot) registerRoutes() {
	// Public routes.
	b.bot.Handle("/start", b.startHandler)
	b.bot.Handle("/help", b.helpHandler)
	b.bot.Handle("/cancel", b.cancelHandler)
	b.bot.Handle(telebot.OnText, b.textHandler)

	// Admin menu and commands.
	adminMenu := &telebot.ReplyMarkup{ResizeKeyboard: true}
	btnUsers := adminMenu.Text("👥 User list")
	btnAssign := adminMenu.Text("📎 Assign binding")
	btnShowTemplate := adminMenu.Text("📄 Show template")
	btnEditTemplate := adminMenu.Text("✏️ Edit template")
	btnTestBroadcast := adminMenu.Text("📢 Test broadcast")
	btnExport := adminMenu.Text("📈 Export bindings")
	adminMenu.Reply(
		adminMenu.Row(btnUsers, btnAssign),
		adminMenu.Row(btnShowTemplate, btnEditTemplate),
		adminMenu.Row(btnTestBroadcast, btnExport),
	)
	b.adminMenu = adminMenu

	b.bot.Handle("/admin", b.AdminOnly(b.adminHandler))
	b.bot.Handle("/users", b.AdminOnly(b.listUsersHandler))
	b.bot.Handle("/assign", b.AdminOnly(b.assignHandler))
	b.bot.Handle("/template", b.AdminOnly(b.showTemplateHandler))
	b.bot.Handle("/edit_template", b.AdminOnly(b.editTemplateHandler))
	b.bot.Handle("/test_broadcast", b.AdminOnly(b.testBroadcastHandler))
	b.bot.Handle("/export", b.AdminOnly(b.exportHandler))

	b.bot.Handle(&btnUsers, b.AdminOnly(b.listUsersHandler))
	b.bot.Handle(&btnAssign, b.AdminOnly(b.assignHandler))
	b.bot.Handle(&btnShowTemplate, b.AdminOnly(b.showTemplateHandler))
	b.bot.Handle(&btnEditTemplate, b.AdminOnly(b.editTemplateHandler))
	b.bot.Handle(&btnTestBroadcast, b.AdminOnly(b.testBroadcastHandler))
	b.bot.Handle(&btnExport, b.AdminOnly(b.exportHandler))
}

// isAdmin reports whether the Telegram ID belongs to a configured admin.
func (b *Bot) isAdmin(userID int64) bool {
	return b.admins[userID]
}
