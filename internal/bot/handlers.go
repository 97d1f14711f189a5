package bot

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/Houeta/callrelay-bot/internal/repository"
	"gopkg.in/telebot.v4"
	"gopkg.in/telebot.v4/react"
)

const (
	// stateAwaitingPhone indicates that the bot is waiting for the user's phone number.
	stateAwaitingPhone = "awaiting_phone"
	// stateAwaitingTemplate indicates that the bot is waiting for a new template text from an admin.
	stateAwaitingTemplate = "awaiting_template"
	// assign flow states, one per credential of the binding being collected.
	stateAssignPhone   = "assign_phone"
	stateAssignBotID   = "assign_bot_id"
	stateAssignAPIKey  = "assign_api_key"
	stateAssignTrunkID = "assign_trunk_id"
)

const internalErrorMsg = "🚫 Internal server error, please try again later"

const dbTimeout = 3 * time.Second

// ErrInvalidPhone is returned when the entered text cannot be normalized
// to a Russian mobile number in the +7XXXXXXXXXX form.
var ErrInvalidPhone = errors.New("invalid phone number")

var phoneCleanupRe = regexp.MustCompile(`[^0-9+]`)

// normalizePhone strips formatting characters and converts the 8-prefixed
// national form to +7. Anything that does not end up as +7 followed by
// ten digits is rejected.
func normalizePhone(raw string) (string, error) {
	phone := phoneCleanupRe.ReplaceAllString(raw, "")

	if len(phone) == 11 && strings.HasPrefix(phone, "8") {
		phone = "+7" + phone[1:]
	}
	if len(phone) == 11 && strings.HasPrefix(phone, "7") {
		phone = "+" + phone
	}

	if len(phone) != 12 || !strings.HasPrefix(phone, "+7") {
		return "", ErrInvalidPhone
	}
	for _, symbol := range phone[1:] {
		if symbol < '0' || symbol > '9' {
			return "", ErrInvalidPhone
		}
	}

	return phone, nil
}

// startHandler process command /start.
func (b *Bot) startHandler(ctx telebot.Context) error {
	b.metrics.CommandReceived.WithLabelValues("/start").Inc()
	timeoutCtx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	userID := ctx.Sender().ID
	b.log.Info("User started the bot", "id", userID, "username", ctx.Sender().Username)

	user, err := b.repo.GetUserByTelegramID(timeoutCtx, userID)
	if err == nil {
		responseText := "👋 You are already registered with phone " + user.Phone +
			".\nCall notifications will arrive here as soon as they appear."
		if b.isAdmin(userID) {
			return ctx.Send(responseText, b.adminMenu)
		}
		return ctx.Send(responseText)
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		b.log.Error("Failed to look up user", "id", userID, "error", err)
		return ctx.Send(internalErrorMsg)
	}

	b.stateManager.Set(userID, UserState{WaitingFor: stateAwaitingPhone})
	return ctx.Send(
		"📞 Welcome! To receive call notifications, send me your phone number in the format +79XXXXXXXXX.",
	)
}

// helpHandler process command /help.
func (b *Bot) helpHandler(ctx telebot.Context) error {
	b.metrics.CommandReceived.WithLabelValues("/help").Inc()

	responseText := "ℹ️ Available commands:\n" +
		"/start - register your phone number\n" +
		"/cancel - abort the current operation\n" +
		"/help - show this message"
	if b.isAdmin(ctx.Sender().ID) {
		responseText += "\n\nAdmin commands:\n" +
			"/admin - open the admin menu\n" +
			"/users - list registered users\n" +
			"/assign - bind platform credentials to a user\n" +
			"/template - show the active notification template\n" +
			"/edit_template - replace the notification template\n" +
			"/test_broadcast - send a test notification to yourself\n" +
			"/export - download all bindings as a spreadsheet"
	}

	return ctx.Send(responseText)
}

// cancelHandler drops whatever state the user accumulated.
func (b *Bot) cancelHandler(ctx telebot.Context) error {
	b.metrics.CommandReceived.WithLabelValues("/cancel").Inc()

	userID := ctx.Sender().ID
	if _, ok := b.stateManager.Get(userID); !ok {
		return ctx.Send("Nothing to cancel.")
	}

	b.log.Info("User canceled the current operation", "id", userID)
	return ctx.Send("❎ Operation canceled.")
}

// textHandler processes incoming text messages from users. It dispatches on
// the state accumulated by the previous step of the conversation: phone
// registration for regular users, the assign flow and template editing for
// admins. Messages arriving with no pending state are rejected.
func (b *Bot) textHandler(ctx telebot.Context) error {
	userID := ctx.Sender().ID

	state, ok := b.stateManager.Get(userID)
	if !ok {
		return ctx.Reply("🤷 I was not expecting a message. Use /start or /help.")
	}

	switch state.WaitingFor {
	case stateAwaitingPhone:
		return b.registerPhone(ctx)
	case stateAssignPhone:
		return b.assignPhoneStep(ctx)
	case stateAssignBotID:
		return b.assignBotIDStep(ctx, state)
	case stateAssignAPIKey:
		return b.assignAPIKeyStep(ctx, state)
	case stateAssignTrunkID:
		return b.assignTrunkIDStep(ctx, state)
	case stateAwaitingTemplate:
		return b.saveTemplate(ctx)
	default:
		return ctx.Reply("🤷 I was not expecting a message. Use /start or /help.")
	}
}

// registerPhone validates the entered phone and creates the user record.
func (b *Bot) registerPhone(ctx telebot.Context) error {
	userID := ctx.Sender().ID
	timeoutCtx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	phone, err := normalizePhone(ctx.Text())
	if err != nil {
		b.stateManager.Set(userID, UserState{WaitingFor: stateAwaitingPhone})
		_ = ctx.Bot().React(ctx.Recipient(), ctx.Message(), react.React(react.ThumbDown))
		return ctx.Send("❌ That does not look like a phone number. Expected format: +79XXXXXXXXX. Try again:")
	}

	start := time.Now()
	err = b.repo.CreateUser(timeoutCtx, userID, phone)
	b.metrics.DBQueryDuration.WithLabelValues("create_user").Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			b.log.Info("Telegram ID already registered", "user", userID)
			return ctx.Send("❌ This Telegram account is already registered.")
		}
		if errors.Is(err, repository.ErrPhoneExists) {
			b.log.Info("Phone already registered to another account", "user", userID, "phone", phone)
			b.stateManager.Set(userID, UserState{WaitingFor: stateAwaitingPhone})
			return ctx.Send("❌ This phone number is already linked to another account. Try a different one:")
		}
		b.log.Error("Failed to register user", "user", userID, "error", err)
		return ctx.Send(internalErrorMsg)
	}

	b.metrics.NewUsers.Inc()
	b.log.Info("User registered", "user", userID, "phone", phone)
	_ = ctx.Bot().React(ctx.Recipient(), ctx.Message(), react.React(react.ThumbUp))
	return ctx.Send("✅ Registration successful! You will receive call notifications here.")
}
