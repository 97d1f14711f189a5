package models

// CallRecord is the normalized form of one call fetched from the platform.
// Records live for a single reconciliation cycle and are never persisted.
type CallRecord struct {
	ID                 int64  // ID is the platform call identifier.
	Time               string // Time is the raw creation timestamp as reported by the platform.
	AudioLink          string // AudioLink is the synthesized recording URL, or a sentinel when unavailable.
	Summary            string // Summary is the pretty-printed summarizing blob.
	Transcript         string // Transcript is the reconstructed dialog text.
	TranscriptFilename string // TranscriptFilename names the attachment sent with the notification.
}
