package http

import (
	"time"

	"taskhive/internal/achievement"
	"taskhive/internal/activity"
	"taskhive/internal/billing"
	"taskhive/internal/note"
	"taskhive/internal/notify"
	"taskhive/internal/task"
	"taskhive/internal/user"
)

// Views are the wire shapes of the domain types. Domain structs stay free
// of json tags so the API contract lives in one place.

type userView struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	Timezone    string    `json:"timezone"`
	Tier        string    `json:"tier"`
	CreatedAt   time.Time `json:"created_at"`
}

func viewUser(u *user.User) userView {
	return userView{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		AvatarURL:   u.AvatarURL,
		Timezone:    u.Timezone,
		Tier:        string(u.Tier),
		CreatedAt:   u.CreatedAt,
	}
}

type taskView struct {
	ID               string     `json:"id"`
	TemplateID       *string    `json:"template_id,omitempty"`
	Title            string     `json:"title"`
	Description      string     `json:"description,omitempty"`
	Priority         string     `json:"priority"`
	DueDate          *time.Time `json:"due_date,omitempty"`
	EstimatedMinutes *int       `json:"estimated_minutes,omitempty"`
	FocusSeconds     int64      `json:"focus_seconds"`
	Completed        bool       `json:"completed"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	CompletedBy      *string    `json:"completed_by,omitempty"`
	Hidden           bool       `json:"hidden"`
	Archived         bool       `json:"archived"`
	Version          int64      `json:"version"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func viewTask(t *task.Task) taskView {
	v := taskView{
		ID:               t.ID,
		TemplateID:       t.TemplateID,
		Title:            t.Title,
		Description:      t.Description,
		Priority:         string(t.Priority),
		DueDate:          t.DueDate,
		EstimatedMinutes: t.EstimatedMinutes,
		FocusSeconds:     t.FocusSeconds,
		Completed:        t.Completed,
		CompletedAt:      t.CompletedAt,
		Hidden:           t.Hidden,
		Archived:         t.Archived,
		Version:          t.Version,
		CreatedAt:        t.CreatedAt,
		UpdatedAt:        t.UpdatedAt,
	}
	if t.CompletedBy != nil {
		by := string(*t.CompletedBy)
		v.CompletedBy = &by
	}
	return v
}

func viewTasks(tasks []*task.Task) []taskView {
	out := make([]taskView, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, viewTask(t))
	}
	return out
}

type subtaskView struct {
	ID          string     `json:"id"`
	TaskID      string     `json:"task_id"`
	Title       string     `json:"title"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	OrderIndex  int        `json:"order_index"`
	Source      string     `json:"source"`
	CreatedAt   time.Time  `json:"created_at"`
}

func viewSubtask(s *task.Subtask) subtaskView {
	return subtaskView{
		ID:          s.ID,
		TaskID:      s.TaskID,
		Title:       s.Title,
		Completed:   s.Completed,
		CompletedAt: s.CompletedAt,
		OrderIndex:  s.OrderIndex,
		Source:      string(s.Source),
		CreatedAt:   s.CreatedAt,
	}
}

func viewSubtasks(subs []*task.Subtask) []subtaskView {
	out := make([]subtaskView, 0, len(subs))
	for _, s := range subs {
		out = append(out, viewSubtask(s))
	}
	return out
}

type templateView struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	Description    string     `json:"description,omitempty"`
	Priority       string     `json:"priority"`
	RecurrenceRule string     `json:"recurrence_rule"`
	NextDue        *time.Time `json:"next_due,omitempty"`
	Active         bool       `json:"active"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func viewTemplate(t *task.Template) templateView {
	return templateView{
		ID:             t.ID,
		Title:          t.Title,
		Description:    t.Description,
		Priority:       string(t.Priority),
		RecurrenceRule: t.RecurrenceRule,
		NextDue:        t.NextDue,
		Active:         t.Active,
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      t.UpdatedAt,
	}
}

type noteView struct {
	ID                  string    `json:"id"`
	Body                string    `json:"body"`
	VoiceURL            *string   `json:"voice_url,omitempty"`
	VoiceSeconds        *int      `json:"voice_seconds,omitempty"`
	TranscriptionStatus *string   `json:"transcription_status,omitempty"`
	Archived            bool      `json:"archived"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

func viewNote(n *note.Note) noteView {
	v := noteView{
		ID:           n.ID,
		Body:         n.Body,
		VoiceURL:     n.VoiceURL,
		VoiceSeconds: n.VoiceSeconds,
		Archived:     n.Archived,
		CreatedAt:    n.CreatedAt,
		UpdatedAt:    n.UpdatedAt,
	}
	if n.TranscriptionStatus != nil {
		status := string(*n.TranscriptionStatus)
		v.TranscriptionStatus = &status
	}
	return v
}

type reminderView struct {
	ID            string     `json:"id"`
	TaskID        string     `json:"task_id"`
	Kind          string     `json:"kind"`
	OffsetMinutes *int       `json:"offset_minutes,omitempty"`
	ScheduledAt   time.Time  `json:"scheduled_at"`
	Method        string     `json:"method"`
	Fired         bool       `json:"fired"`
	FiredAt       *time.Time `json:"fired_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func viewReminder(r *notify.Reminder) reminderView {
	return reminderView{
		ID:            r.ID,
		TaskID:        r.TaskID,
		Kind:          string(r.Kind),
		OffsetMinutes: r.OffsetMinutes,
		ScheduledAt:   r.ScheduledAt,
		Method:        string(r.Method),
		Fired:         r.Fired,
		FiredAt:       r.FiredAt,
		CreatedAt:     r.CreatedAt,
	}
}

type notificationView struct {
	ID        string     `json:"id"`
	Kind      string     `json:"kind"`
	Title     string     `json:"title"`
	Body      string     `json:"body,omitempty"`
	ActionURL string     `json:"action_url,omitempty"`
	Read      bool       `json:"read"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

func viewNotification(n *notify.Notification) notificationView {
	return notificationView{
		ID:        n.ID,
		Kind:      n.Kind,
		Title:     n.Title,
		Body:      n.Body,
		ActionURL: n.ActionURL,
		Read:      n.Read,
		ReadAt:    n.ReadAt,
		CreatedAt: n.CreatedAt,
	}
}

type tombstoneView struct {
	ID            string    `json:"id"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	TaskTitle     string    `json:"task_title"`
	SubtaskCount  int       `json:"subtask_count"`
	ReminderCount int       `json:"reminder_count"`
	DeletedAt     time.Time `json:"deleted_at"`
	RecoverableTo time.Time `json:"recoverable_until"`
}

func viewTombstone(ts *task.Tombstone) tombstoneView {
	return tombstoneView{
		ID:            ts.ID,
		EntityType:    ts.EntityType,
		EntityID:      ts.EntityID,
		TaskTitle:     ts.Payload.Task.Title,
		SubtaskCount:  len(ts.Payload.Subtasks),
		ReminderCount: len(ts.Payload.Reminders),
		DeletedAt:     ts.DeletedAt,
		RecoverableTo: ts.DeletedAt.Add(14 * 24 * time.Hour),
	}
}

type focusView struct {
	ID        string     `json:"id"`
	TaskID    string     `json:"task_id"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Seconds   int64      `json:"seconds"`
}

func viewFocus(fs *task.FocusSession) focusView {
	return focusView{
		ID:        fs.ID,
		TaskID:    fs.TaskID,
		StartedAt: fs.StartedAt,
		EndedAt:   fs.EndedAt,
		Seconds:   fs.Seconds,
	}
}

type subscriptionView struct {
	Status         string     `json:"status"`
	PeriodStart    *time.Time `json:"period_start,omitempty"`
	PeriodEnd      *time.Time `json:"period_end,omitempty"`
	GraceEnd       *time.Time `json:"grace_end,omitempty"`
	FailedPayments int        `json:"failed_payments"`
	CancelledAt    *time.Time `json:"cancelled_at,omitempty"`
}

func viewSubscription(sub *billing.Subscription) subscriptionView {
	return subscriptionView{
		Status:         string(sub.Status),
		PeriodStart:    sub.PeriodStart,
		PeriodEnd:      sub.PeriodEnd,
		GraceEnd:       sub.GraceEnd,
		FailedPayments: sub.FailedPayments,
		CancelledAt:    sub.CancelledAt,
	}
}

type activityView struct {
	ID         string         `json:"id"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Action     string         `json:"action"`
	Source     string         `json:"source"`
	Extra      map[string]any `json:"extra,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

func viewActivity(rec *activity.Record) activityView {
	return activityView{
		ID:         rec.ID,
		EntityType: rec.EntityType,
		EntityID:   rec.EntityID,
		Action:     rec.Action,
		Source:     rec.Source,
		Extra:      rec.Extra,
		CreatedAt:  rec.CreatedAt,
	}
}

type achievementDefView struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Category  string `json:"category"`
	Threshold int64  `json:"threshold"`
	PerkType  string `json:"perk_type"`
	PerkValue int64  `json:"perk_value"`
	Unlocked  bool   `json:"unlocked"`
}

type achievementsView struct {
	TasksCompleted   int64               `json:"tasks_completed"`
	CurrentStreak    int                 `json:"current_streak"`
	LongestStreak    int                 `json:"longest_streak"`
	FocusCompletions int64               `json:"focus_completions"`
	NotesConverted   int64               `json:"notes_converted"`
	Achievements     []achievementDefView `json:"achievements"`
}

func viewAchievements(state *achievement.State, defs []achievement.Definition) achievementsView {
	v := achievementsView{
		TasksCompleted:   state.TasksCompleted,
		CurrentStreak:    state.CurrentStreak,
		LongestStreak:    state.LongestStreak,
		FocusCompletions: state.FocusCompletions,
		NotesConverted:   state.NotesConverted,
		Achievements:     make([]achievementDefView, 0, len(defs)),
	}
	for _, def := range defs {
		v.Achievements = append(v.Achievements, achievementDefView{
			ID:        def.ID,
			Name:      def.Name,
			Category:  string(def.Category),
			Threshold: def.Threshold,
			PerkType:  string(def.PerkType),
			PerkValue: def.PerkValue,
			Unlocked:  state.HasUnlocked(def.ID),
		})
	}
	return v
}

type achievementStatsView struct {
	TasksCompleted     int64   `json:"tasks_completed"`
	CurrentStreak      int     `json:"current_streak"`
	LongestStreak      int     `json:"longest_streak"`
	LastCompletionDate *string `json:"last_completion_date"`
	FocusCompletions   int64   `json:"focus_completions"`
	NotesConverted     int64   `json:"notes_converted"`
	UnlockedCount      int     `json:"unlocked_count"`
}

func viewAchievementStats(state *achievement.State) achievementStatsView {
	v := achievementStatsView{
		TasksCompleted:   state.TasksCompleted,
		CurrentStreak:    state.CurrentStreak,
		LongestStreak:    state.LongestStreak,
		FocusCompletions: state.FocusCompletions,
		NotesConverted:   state.NotesConverted,
		UnlockedCount:    len(state.Unlocked),
	}
	if state.LastCompletionDate != nil {
		day := state.LastCompletionDate.UTC().Format("2006-01-02")
		v.LastCompletionDate = &day
	}
	return v
}

type limitsView struct {
	TaskMax      int   `json:"task_max"`
	NoteMax      int   `json:"note_max"`
	SubtaskMax   int   `json:"subtask_max"`
	DailyCredits int64 `json:"daily_credits"`
}

func viewLimits(l achievement.Limits) limitsView {
	return limitsView{
		TaskMax:      l.TaskMax,
		NoteMax:      l.NoteMax,
		SubtaskMax:   l.SubtaskMax,
		DailyCredits: l.DailyCredits,
	}
}
