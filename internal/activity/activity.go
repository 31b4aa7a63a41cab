// Package activity is the durable audit trail. A bus handler records every
// domain event; a daily job prunes rows past the 30-day retention window.
package activity

import "time"

// RetentionDays is how long activity rows are kept.
const RetentionDays = 30

// Record is one audit row.
type Record struct {
	ID         string
	UserID     string
	EntityType string
	EntityID   string
	Action     string
	Source     string
	Extra      map[string]any
	RequestID  string
	CreatedAt  time.Time
}
