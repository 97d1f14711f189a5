package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Houeta/callrelay-bot/internal/export"
	"github.com/Houeta/callrelay-bot/internal/render"
	"github.com/Houeta/callrelay-bot/internal/repository"
	"gopkg.in/telebot.v4"
)

// defaultTemplate is installed when an admin opens the template view and no
// template exists yet. It references the webhook variable set.
const defaultTemplate = `📞 <b>New call</b>

🗓 Date and time: {datetime}
🎧 Recording: {audioLink}
✅ Relevance: {var_is_actual}
📋 Result: {var_result}

📝 Transcription:
{transcription}`

// sampleVars covers every placeholder the delivery paths can supply. Template
// validation and the test broadcast both render against it, so a template
// referencing an unknown placeholder is caught before it reaches users.
var sampleVars = map[string]string{
	"datetime":           "01.06.2025 10:30",
	"audioLink":          "https://client.za-bota.com/calls/storage/1/abc/rec.mp3",
	"transcription":      "Client: Hello!\nAssistant: Good afternoon.",
	"var_is_actual":      "yes",
	"var_result":         "callback scheduled",
	"call_time":          "2025-06-01T10:30:00",
	"audio_link":         "https://client.za-bota.com/calls/storage/1/abc/rec.mp3",
	"summarizing_pretty": `{"result": "callback scheduled"}`,
}

// maxListedUsers caps the user list to stay under Telegram's message size limit.
const maxListedUsers = 50

// adminHandler opens the admin reply keyboard.
func (b *Bot) adminHandler(ctx telebot.Context) error {
	b.metrics.CommandReceived.WithLabelValues("/admin").Inc()
	return ctx.Send("🛠 Admin menu:", b.adminMenu)
}

// listUsersHandler prints registered users with their assigned bot IDs.
func (b *Bot) listUsersHandler(ctx telebot.Context) error {
	b.metrics.CommandReceived.WithLabelValues("/users").Inc()
	timeoutCtx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	b.log.Info("Admin requested user list", "user", ctx.Sender().ID)

	rows, err := b.repo.ListUsersWithBindings(timeoutCtx)
	if err != nil {
		b.log.Error("Failed to list users", "error", err)
		return ctx.Send(internalErrorMsg)
	}
	if len(rows) == 0 {
		return ctx.Send("📭 No registered users yet.")
	}

	truncated := false
	if len(rows) > maxListedUsers {
		rows = rows[:maxListedUsers]
		truncated = true
	}

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("👥 Registered users (%d):\n\n", len(rows)))
	for idx, row := range rows {
		botLabel := row.BotID
		if botLabel == "" {
			botLabel = "no binding"
		}
		builder.WriteString(fmt.Sprintf(
			"%d. %s | tg %d | bot: %s\n",
			idx+1, export.MaskPhone(row.Phone), row.TelegramID, botLabel,
		))
	}
	if truncated {
		builder.WriteString("\n…list truncated, use /export for the full table.")
	}

	return ctx.Send(builder.String())
}

// assignHandler starts the four-step credential assignment dialog.
func (b *Bot) assignHandler(ctx telebot.Context) error {
	b.metrics.CommandReceived.WithLabelValues("/assign").Inc()

	userID := ctx.Sender().ID
	b.log.Info("Admin started binding assignment", "user", userID)

	b.stateManager.Set(userID, UserState{WaitingFor: stateAssignPhone})
	return ctx.Send("📎 Enter the phone number of the user to bind (+79XXXXXXXXX), or /cancel:")
}

// assignPhoneStep validates the target phone and asks for the bot ID.
func (b *Bot) assignPhoneStep(ctx telebot.Context) error {
	userID := ctx.Sender().ID
	timeoutCtx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	phone, err := normalizePhone(ctx.Text())
	if err != nil {
		b.stateManager.Set(userID, UserState{WaitingFor: stateAssignPhone})
		return ctx.Send("❌ That does not look like a phone number. Expected format: +79XXXXXXXXX. Try again:")
	}

	if _, err = b.repo.GetUserByPhone(timeoutCtx, phone); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			b.stateManager.Set(userID, UserState{WaitingFor: stateAssignPhone})
			return ctx.Send("❌ No registered user with this phone. The user must /start first. Try again:")
		}
		b.log.Error("Failed to look up user by phone", "error", err)
		return ctx.Send(internalErrorMsg)
	}

	b.stateManager.Set(userID, UserState{WaitingFor: stateAssignBotID, DraftPhone: phone})
	return ctx.Send("🤖 Enter the bot ID:")
}

// assignBotIDStep stores the bot ID and asks for the API key.
func (b *Bot) assignBotIDStep(ctx telebot.Context, state UserState) error {
	userID := ctx.Sender().ID

	botID := strings.TrimSpace(ctx.Text())
	if botID == "" {
		b.stateManager.Set(userID, state)
		return ctx.Send("❌ Bot ID must not be empty. Try again:")
	}

	state.WaitingFor = stateAssignAPIKey
	state.DraftBotID = botID
	b.stateManager.Set(userID, state)
	return ctx.Send("🔑 Enter the API key:")
}

// assignAPIKeyStep stores the API key and asks for the trunk ID.
func (b *Bot) assignAPIKeyStep(ctx telebot.Context, state UserState) error {
	userID := ctx.Sender().ID

	apiKey := strings.TrimSpace(ctx.Text())
	if apiKey == "" {
		b.stateManager.Set(userID, state)
		return ctx.Send("❌ API key must not be empty. Try again:")
	}

	state.WaitingFor = stateAssignTrunkID
	state.DraftAPIKey = apiKey
	b.stateManager.Set(userID, state)
	return ctx.Send("📡 Enter the trunk ID:")
}

// assignTrunkIDStep finishes the dialog and persists the binding.
func (b *Bot) assignTrunkIDStep(ctx telebot.Context, state UserState) error {
	userID := ctx.Sender().ID
	timeoutCtx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	trunkID := strings.TrimSpace(ctx.Text())
	if trunkID == "" {
		b.stateManager.Set(userID, state)
		return ctx.Send("❌ Trunk ID must not be empty. Try again:")
	}

	start := time.Now()
	err := b.repo.CreateBinding(timeoutCtx, state.DraftPhone, state.DraftBotID, state.DraftAPIKey, trunkID)
	b.metrics.DBQueryDuration.WithLabelValues("create_binding").Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ctx.Send("❌ The user was removed while the dialog was open. Start over with /assign.")
		}
		if errors.Is(err, repository.ErrBindingExists) {
			return ctx.Send("❌ These credentials are already assigned. Nothing changed.")
		}
		b.log.Error("Failed to create binding", "error", err)
		return ctx.Send(internalErrorMsg)
	}

	b.log.Info("Binding assigned",
		"admin", userID, "phone", state.DraftPhone, "bot_id", state.DraftBotID)
	return ctx.Send(fmt.Sprintf(
		"✅ Binding saved: %s ← bot %s. Polling will pick it up on the next cycle.",
		export.MaskPhone(state.DraftPhone), state.DraftBotID,
	))
}

// showTemplateHandler displays the active template, installing the default
// one on first use.
func (b *Bot) showTemplateHandler(ctx telebot.Context) error {
	b.metrics.CommandReceived.WithLabelValues("/template").Inc()
	timeoutCtx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	userID := ctx.Sender().ID

	tmpl, err := b.repo.GetActiveTemplate(timeoutCtx)
	if err != nil {
		if !errors.Is(err, repository.ErrNoActiveTemplate) {
			b.log.Error("Failed to load active template", "error", err)
			return ctx.Send(internalErrorMsg)
		}

		if err = b.repo.SetActiveTemplate(timeoutCtx, defaultTemplate, userID); err != nil {
			b.log.Error("Failed to install default template", "error", err)
			return ctx.Send(internalErrorMsg)
		}
		b.log.Info("Default template installed", "admin", userID)
		return ctx.Send("📄 No template existed, the default one is now active:\n\n" + defaultTemplate)
	}

	return ctx.Send(fmt.Sprintf(
		"📄 Active template (updated %s):\n\n%s",
		tmpl.UpdatedAt.Format("02.01.2006 15:04"), tmpl.Text,
	))
}

// editTemplateHandler asks the admin for a new template text.
func (b *Bot) editTemplateHandler(ctx telebot.Context) error {
	b.metrics.CommandReceived.WithLabelValues("/edit_template").Inc()

	userID := ctx.Sender().ID
	b.stateManager.Set(userID, UserState{WaitingFor: stateAwaitingTemplate})

	placeholders := make([]string, 0, len(sampleVars))
	for name := range sampleVars {
		placeholders = append(placeholders, "{"+name+"}")
	}

	return ctx.Send(
		"✏️ Send the new template text. Available placeholders:\n" +
			strings.Join(placeholders, ", ") +
			"\n\nOr /cancel to keep the current one.",
	)
}

// saveTemplate validates the new template against the known placeholder set
// and activates it.
func (b *Bot) saveTemplate(ctx telebot.Context) error {
	userID := ctx.Sender().ID
	timeoutCtx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	text := ctx.Text()
	if _, err := render.Render(text, sampleVars); err != nil {
		b.stateManager.Set(userID, UserState{WaitingFor: stateAwaitingTemplate})
		return ctx.Send("❌ " + err.Error() + ". Fix the template and send it again:")
	}

	if err := b.repo.SetActiveTemplate(timeoutCtx, text, userID); err != nil {
		b.log.Error("Failed to save template", "error", err)
		return ctx.Send(internalErrorMsg)
	}

	b.log.Info("Template updated", "admin", userID)
	return ctx.Send("✅ Template saved and activated.")
}

// testBroadcastHandler renders the active template with sample data and sends
// the result to the requesting admin only.
func (b *Bot) testBroadcastHandler(ctx telebot.Context) error {
	b.metrics.CommandReceived.WithLabelValues("/test_broadcast").Inc()
	timeoutCtx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	userID := ctx.Sender().ID
	b.log.Info("Admin requested a test broadcast", "user", userID)

	tmpl, err := b.repo.GetActiveTemplate(timeoutCtx)
	if err != nil {
		if errors.Is(err, repository.ErrNoActiveTemplate) {
			return ctx.Send("❌ No active template. Open /template to install the default one.")
		}
		b.log.Error("Failed to load active template", "error", err)
		return ctx.Send(internalErrorMsg)
	}

	rendered, err := render.Render(tmpl.Text, sampleVars)
	if err != nil {
		return ctx.Send("❌ The active template fails to render: " + err.Error())
	}

	if err = ctx.Send(rendered, telebot.ModeHTML); err != nil {
		b.log.Error("Failed to deliver test broadcast", "error", err)
		return ctx.Send(internalErrorMsg)
	}
	return ctx.Send("☝️ This is how users see a notification.")
}

// exportHandler generates the bindings spreadsheet and sends it as a document.
func (b *Bot) exportHandler(ctx telebot.Context) error {
	b.metrics.CommandReceived.WithLabelValues("/export").Inc()
	timeoutCtx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	userID := ctx.Sender().ID
	b.log.Info("Admin requested bindings export", "user", userID)

	rows, err := b.repo.ListUsersWithBindings(timeoutCtx)
	if err != nil {
		b.log.Error("Failed to list bindings for export", "error", err)
		return ctx.Send(internalErrorMsg)
	}

	buffer, err := export.GenerateBindingsWorkbook(rows)
	if err != nil {
		if errors.Is(err, export.ErrNoRows) {
			return ctx.Send("📭 Nothing to export yet.")
		}
		b.log.Error("Failed to generate bindings workbook", "error", err)
		return ctx.Send(internalErrorMsg)
	}

	document := &telebot.Document{
		File:     telebot.FromReader(buffer),
		FileName: fmt.Sprintf("bindings_%s.xlsx", time.Now().Format("2006-01-02")),
		Caption:  "📈 Registered users and their platform bindings.",
	}
	return ctx.Send(document)
}
