// Package task implements the task domain: instances, subtasks, recurring
// templates, optimistic locking, cascade delete with tombstones, and
// recovery.
package task

import "time"

// Priority of a task.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// CompletedBy records how a task reached the completed state.
type CompletedBy string

const (
	CompletedManual CompletedBy = "manual"
	CompletedAuto   CompletedBy = "auto"
	CompletedForce  CompletedBy = "force"
)

// SubtaskSource records who created a subtask.
type SubtaskSource string

const (
	SubtaskSourceUser SubtaskSource = "user"
	SubtaskSourceAI   SubtaskSource = "ai"
)

// Task is a concrete user-owned task instance. Version is the optimistic
// lock counter; every successful update increments it.
type Task struct {
	ID               string
	UserID           string
	TemplateID       *string
	Title            string
	Description      string
	Priority         Priority
	DueDate          *time.Time
	EstimatedMinutes *int
	FocusSeconds     int64
	Completed        bool
	CompletedAt      *time.Time
	CompletedBy      *CompletedBy
	Hidden           bool
	Archived         bool
	Version          int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Subtask is a child of a Task. Sibling order indices always form the
// gapless sequence 0..N-1.
type Subtask struct {
	ID          string
	TaskID      string
	Title       string
	Completed   bool
	CompletedAt *time.Time
	OrderIndex  int
	Source      SubtaskSource
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Template is a recurring-task definition with an RFC 5545 recurrence rule.
type Template struct {
	ID             string
	UserID         string
	Title          string
	Description    string
	Priority       Priority
	RecurrenceRule string
	NextDue        *time.Time
	Active         bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

const (
	titleMax           = 200
	descriptionMaxFree = 1000
	descriptionMaxPro  = 2000
	estimatedMinMin    = 1
	estimatedMinMax    = 720
	dueDateHorizon     = 365 * 24 * time.Hour
	reminderMaxPerTask = 5
	tombstoneMaxPerUser = 3
	recoveryWindow     = 14 * 24 * time.Hour
)

func validPriority(p Priority) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}
