// Package webhook implements the push-notification path: the platform posts
// call results to /api/notify and the handler relays them to the bound chat
// immediately, without touching the polling watermark.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Houeta/callrelay-bot/internal/metrics"
	"github.com/Houeta/callrelay-bot/internal/models"
	"github.com/Houeta/callrelay-bot/internal/render"
	"github.com/Houeta/callrelay-bot/internal/repository"
)

// displayTimeLayout is the format call datetimes are normalized to before
// substitution into the template.
const displayTimeLayout = "02.01.2006 15:04"

// requiredFields lists the mandatory payload fields in reporting order.
var requiredFields = []string{
	"bot_id", "trunk_id", "api_key", "datetime",
	"recording_url", "transcription", "relevance", "call_result",
}

// BindingResolver is the slice of the repository the webhook path needs:
// credential-triple resolution and the active template.
type BindingResolver interface {
	ResolveUserByBinding(ctx context.Context, botID, trunkID, apiKey string) (models.User, error)
	GetActiveTemplate(ctx context.Context) (models.Template, error)
}

// TextSender delivers one rendered notification as an HTML text message.
type TextSender interface {
	SendText(chatID int64, text string) error
}

// Handler processes inbound platform push notifications.
type Handler struct {
	log     *slog.Logger
	store   BindingResolver
	sender  TextSender
	metrics *metrics.Metrics
}

// NewHandler creates the webhook handler.
func NewHandler(log *slog.Logger, store BindingResolver, sender TextSender, appMetrics *metrics.Metrics) *Handler {
	return &Handler{log: log, store: store, sender: sender, metrics: appMetrics}
}

type response struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

func (h *Handler) ServeHTTP(writer http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(writer, "Only POST requests are accepted", http.StatusMethodNotAllowed)
		return
	}

	ctx := req.Context()

	var payload map[string]string
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		h.log.WarnContext(ctx, "Failed to decode webhook payload", "error", err)
		h.writeJSON(writer, http.StatusBadRequest, response{Status: "error", Message: "Failed to decode payload"})
		return
	}

	// Field validation happens before any store lookup; a malformed request
	// must not cost a database roundtrip.
	var missing []string
	for _, field := range requiredFields {
		if _, ok := payload[field]; !ok {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		h.log.WarnContext(ctx, "Webhook payload misses required fields", "fields", strings.Join(missing, ", "))
		h.writeJSON(writer, http.StatusBadRequest, response{
			Status:  "error",
			Message: "Missing required fields: " + strings.Join(missing, ", "),
		})
		return
	}

	botID := payload["bot_id"]
	h.log.InfoContext(ctx, "Processing webhook notification", "bot_id", botID)

	user, err := h.store.ResolveUserByBinding(ctx, botID, payload["trunk_id"], payload["api_key"])
	if err != nil {
		if errors.Is(err, repository.ErrBindingNotFound) {
			h.log.WarnContext(ctx, "No binding for webhook credentials",
				"bot_id", botID, "trunk_id", payload["trunk_id"])
			h.writeJSON(writer, http.StatusNotFound, response{Status: "error", Message: "User config not found"})
			return
		}
		h.log.ErrorContext(ctx, "Failed to resolve binding", "bot_id", botID, "error", err)
		h.writeJSON(writer, http.StatusInternalServerError, response{Status: "error", Message: "Internal server error"})
		return
	}

	template, err := h.store.GetActiveTemplate(ctx)
	if err != nil {
		if errors.Is(err, repository.ErrNoActiveTemplate) {
			h.log.ErrorContext(ctx, "No active template, webhook notification dropped")
			h.writeJSON(writer, http.StatusInternalServerError,
				response{Status: "error", Message: "Active template not found"})
			return
		}
		h.log.ErrorContext(ctx, "Failed to load active template", "error", err)
		h.writeJSON(writer, http.StatusInternalServerError, response{Status: "error", Message: "Internal server error"})
		return
	}

	// Platform-supplied text goes into an HTML-rendered message; escape
	// everything a caller could use to inject markup. The recording URL is
	// substituted as-is.
	vars := map[string]string{
		"datetime":      h.formatDatetime(ctx, payload["datetime"]),
		"audioLink":     payload["recording_url"],
		"transcription": html.EscapeString(payload["transcription"]),
		"var_is_actual": html.EscapeString(payload["relevance"]),
		"var_result":    html.EscapeString(payload["call_result"]),
	}

	text, err := render.Render(template.Text, vars)
	if err != nil {
		h.log.ErrorContext(ctx, "Failed to render webhook notification", "bot_id", botID, "error", err)
		h.writeJSON(writer, http.StatusInternalServerError, response{Status: "error", Message: "Internal server error"})
		return
	}

	if err = h.sender.SendText(user.TelegramID, text); err != nil {
		h.log.ErrorContext(ctx, "Failed to deliver webhook notification",
			"bot_id", botID, "chat_id", user.TelegramID, "error", err)
		h.writeJSON(writer, http.StatusInternalServerError, response{Status: "error", Message: "Internal server error"})
		return
	}

	h.metrics.SentMessages.WithLabelValues("webhook").Inc()
	h.log.InfoContext(ctx, "Webhook notification delivered", "bot_id", botID, "chat_id", user.TelegramID)
	h.writeJSON(writer, http.StatusOK, response{Status: "success"})
}

// formatDatetime normalizes the platform timestamp to the display format.
// An unparseable value falls back to the raw string, a wrong-looking date is
// better than a dropped notification.
func (h *Handler) formatDatetime(ctx context.Context, raw string) string {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05"} {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed.Format(displayTimeLayout)
		}
	}

	h.log.WarnContext(ctx, "Failed to parse webhook datetime, using raw value", "datetime", raw)
	return raw
}

func (h *Handler) writeJSON(writer http.ResponseWriter, status int, resp response) {
	h.metrics.WebhookRequests.WithLabelValues(strconv.Itoa(status)).Inc()

	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	if err := json.NewEncoder(writer).Encode(resp); err != nil {
		h.log.Error(fmt.Sprintf("Failed to write webhook response: %v", err))
	}
}
