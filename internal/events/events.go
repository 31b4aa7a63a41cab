// Package events provides the in-process domain event bus.
//
// Dispatch is synchronous and runs inside the emitting operation's database
// transaction, so handler writes commit or roll back together with the domain
// change. Handler failures are collected, never propagated to the emitter.
package events

import "time"

// Type identifies a domain event.
type Type string

const (
	TaskCreated   Type = "task.created"
	TaskUpdated   Type = "task.updated"
	TaskCompleted Type = "task.completed"
	TaskDeleted   Type = "task.deleted"

	SubtaskCreated   Type = "subtask.created"
	SubtaskCompleted Type = "subtask.completed"
	SubtaskDeleted   Type = "subtask.deleted"

	NoteCreated   Type = "note.created"
	NoteConverted Type = "note.converted"
	NoteDeleted   Type = "note.deleted"

	ReminderFired Type = "reminder.fired"

	AchievementUnlocked Type = "achievement.unlocked"

	SubscriptionCreated   Type = "subscription.created"
	SubscriptionCancelled Type = "subscription.cancelled"

	AIChat              Type = "ai.chat"
	AISubtasksGenerated Type = "ai.subtasks_generated"

	RecurringInstanceGenerated Type = "recurring.instance_generated"

	FocusCompleted Type = "focus.completed"
)

// Source tags who caused the event.
type Source string

const (
	SourceUser   Source = "user"
	SourceAI     Source = "ai"
	SourceSystem Source = "system"
)

// Event is the payload handed to every subscribed handler.
type Event struct {
	Type       Type
	UserID     string
	EntityID   string
	EntityType string
	Source     Source
	OccurredAt time.Time
	RequestID  string

	// Recovered marks events produced by tombstone recovery. The
	// achievement engine ignores those.
	Recovered bool

	// Extra carries event-specific detail, serialized into the activity
	// log as-is.
	Extra map[string]any
}
