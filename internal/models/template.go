package models

import "time"

// Template is one notification template. Templates are append-only:
// setting a new one deactivates the previous active row, so the history
// of edits is retained together with the editor and timestamp.
type Template struct {
	ID        int       `json:"id"`
	Text      string    `json:"text"`       // Text contains {name} placeholders.
	UpdatedBy int64     `json:"updated_by"` // UpdatedBy is the Telegram ID of the admin who set it.
	UpdatedAt time.Time `json:"updated_at"`
}
