package bot

import (
	"bytes"
	"fmt"
	"path/filepath"

	"gopkg.in/telebot.v4"
)

// SendText delivers a rendered notification to the given chat as HTML.
func (b *Bot) SendText(chatID int64, text string) error {
	_, err := b.bot.Send(telebot.ChatID(chatID), text, telebot.ModeHTML)
	if err != nil {
		return fmt.Errorf("failed to send message to chat %d: %w", chatID, err)
	}

	return nil
}

// SendCallReport delivers the transcript as an attached text file with the
// rendered notification as its caption.
func (b *Bot) SendCallReport(chatID int64, caption string, transcript []byte, filename string) error {
	document := &telebot.Document{
		File:     telebot.FromReader(bytes.NewReader(transcript)),
		FileName: filepath.Base(filename),
		Caption:  caption,
	}

	_, err := b.bot.Send(telebot.ChatID(chatID), document, telebot.ModeHTML)
	if err != nil {
		return fmt.Errorf("failed to send call report to chat %d: %w", chatID, err)
	}

	return nil
}
