package bot

import (
	"gopkg.in/telebot.v4"
)

// AdminOnly rejects the update unless the sender is a configured admin.
func (b *Bot) AdminOnly(next telebot.HandlerFunc) telebot.HandlerFunc {
	return func(ctx telebot.Context) error {
		userID := ctx.Sender().ID

		if !b.isAdmin(userID) {
			b.log.Info("Admin access denied", "username", ctx.Sender().Username, "id", userID)
			return ctx.Send("⛔ This command is available to administrators only.")
		}

		return next(ctx)
	}
}
