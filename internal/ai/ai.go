// Package ai orchestrates the vendor-backed assistant features: chat with
// action suggestions, subtask generation, note-to-task conversion, and voice
// transcription. Every operation is credit-metered; vendor failures refund.
package ai

import "time"

// Action kinds the confirm-action endpoint knows how to execute.
const (
	ActionCreateTask  = "create_task"
	ActionAddSubtasks = "add_subtasks"
	ActionConvertNote = "convert_note"
)

// Credit costs per operation.
const (
	costChat                = 1
	costSubtasks            = 1
	costConvert             = 1
	costTranscribePerMinute = 5
)

const (
	chatInputMax       = 2000
	warnAtRequests     = 5
	maxRequestsPerTask = 10
	transcribeMaxSecs  = 300
)

// ActionSuggestion is a vendor-proposed action. Suggestions are returned to
// the client verbatim and executed only through ConfirmAction.
type ActionSuggestion struct {
	Kind        string         `json:"kind"`
	TargetID    string         `json:"target_id,omitempty"`
	Description string         `json:"description"`
	Params      map[string]any `json:"params,omitempty"`
	Confidence  float64        `json:"confidence"`
}

// ChatResult is the chat endpoint payload.
type ChatResult struct {
	Message       string             `json:"message"`
	Suggestions   []ActionSuggestion `json:"suggestions,omitempty"`
	CreditsUsed   int64              `json:"credits_used"`
	Balance       int64              `json:"balance"`
	UsageWarning  bool               `json:"usage_warning,omitempty"`
	RequestsSoFar int                `json:"-"`
}

// SubtaskSuggestions is the subtask-generation payload.
type SubtaskSuggestions struct {
	Understanding string   `json:"understanding"`
	Titles        []string `json:"titles"`
	CreditsUsed   int64    `json:"credits_used"`
	Balance       int64    `json:"balance"`
	UsageWarning  bool     `json:"usage_warning,omitempty"`
}

// TaskSuggestion is the note-conversion proposal.
type TaskSuggestion struct {
	Title            string     `json:"title"`
	Description      string     `json:"description,omitempty"`
	Priority         string     `json:"priority,omitempty"`
	DueDate          *time.Time `json:"due_date,omitempty"`
	EstimatedMinutes *int       `json:"estimated_minutes,omitempty"`
	Subtasks         []string   `json:"subtasks,omitempty"`
	Confidence       float64    `json:"confidence"`
}

// ConversionResult is the note-conversion payload.
type ConversionResult struct {
	Suggestion  TaskSuggestion `json:"suggestion"`
	CreditsUsed int64          `json:"credits_used"`
	Balance     int64          `json:"balance"`
}

// TranscriptResult is the transcription payload. Partial is set when the
// stream hit the hard duration cutoff; Signal then carries the
// MAX_DURATION_EXCEEDED code for the client.
type TranscriptResult struct {
	Text        string `json:"text"`
	Partial     bool   `json:"partial,omitempty"`
	Signal      string `json:"signal,omitempty"`
	CreditsUsed int64  `json:"credits_used"`
	Balance     int64  `json:"balance"`
}

// transcriptionCost is 5 credits per started minute.
func transcriptionCost(seconds int) int64 {
	minutes := (seconds + 59) / 60
	if minutes < 1 {
		minutes = 1
	}
	return int64(minutes) * costTranscribePerMinute
}
