// Package note implements user notes: text or voice capture, caps by tier,
// and conversion into tasks (which archives the note).
package note

import "time"

// TranscriptionStatus tracks voice note processing.
type TranscriptionStatus string

const (
	TranscriptionPending   TranscriptionStatus = "pending"
	TranscriptionCompleted TranscriptionStatus = "completed"
	TranscriptionFailed    TranscriptionStatus = "failed"
)

// Note is a user-owned capture.
type Note struct {
	ID                  string
	UserID              string
	Body                string
	VoiceURL            *string
	VoiceSeconds        *int
	TranscriptionStatus *TranscriptionStatus
	Archived            bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

const (
	bodyMax         = 2000
	voiceSecondsMax = 300
)
