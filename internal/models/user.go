package models

import "time"

// User represents a registered Telegram user identified by a normalized
// phone number. The phone number is unique across all users.
type User struct {
	TelegramID   int64     `json:"telegram_id"`   // TelegramID is the chat identifier used for delivery.
	Phone        string    `json:"phone"`         // Phone is the normalized phone number in E.164 format.
	RegisteredAt time.Time `json:"registered_at"` // RegisteredAt is the registration timestamp.
}

// Binding associates a user's phone number with the credentials of one
// voice bot on the call platform. A user may own several bindings; each
// binding is polled independently.
type Binding struct {
	ID            int        `json:"id"`
	UserPhone     string     `json:"user_phone"`      // UserPhone references User.Phone.
	BotID         string     `json:"bot_id"`          // BotID is the platform bot identifier.
	APIKey        string     `json:"api_key"`         // APIKey is the platform API key.
	TrunkID       string     `json:"trunk_id"`        // TrunkID is the platform trunk identifier.
	LastCheckedAt *time.Time `json:"last_checked_at"` // LastCheckedAt is nil until the first poll completes.
}

// ActiveBinding is the flattened view the scheduler iterates over:
// the delivery chat plus the credentials and watermark of one binding.
type ActiveBinding struct {
	TelegramID    int64
	APIKey        string
	BotID         string
	LastCheckedAt *time.Time
}

// BindingRow is the joined user+binding view used by the export command.
// Binding fields are empty for users without an assigned binding.
type BindingRow struct {
	TelegramID int64
	Phone      string
	BotID      string
	TrunkID    string
	APIKey     string
}
