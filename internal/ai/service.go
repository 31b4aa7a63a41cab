package ai

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"taskhive/internal/activity"
	"taskhive/internal/apperr"
	"taskhive/internal/credit"
	"taskhive/internal/events"
	"taskhive/internal/logging"
	"taskhive/internal/note"
	"taskhive/internal/observability"
	"taskhive/internal/postgres"
	"taskhive/internal/task"
	"taskhive/internal/user"
)

// Service meters, orchestrates, and executes assistant operations.
type Service struct {
	db      postgres.DB
	vendor  Vendor
	credits *credit.Service
	tasks   *task.Service
	notes   *note.Service
	users   *user.Store
	bus     *events.Bus
	counter *taskCounter
	logger  logging.Logger

	now func() time.Time
}

// NewService wires the assistant service.
func NewService(db postgres.DB, vendor Vendor, credits *credit.Service, tasks *task.Service, notes *note.Service, users *user.Store, activityStore *activity.Store, bus *events.Bus, logger logging.Logger) (*Service, error) {
	if db == nil || vendor == nil || credits == nil || tasks == nil || notes == nil || users == nil || bus == nil {
		return nil, errors.New("ai service requires db, vendor, credits, tasks, notes, users, and bus")
	}
	counter, err := newTaskCounter(activityStore, 4096)
	if err != nil {
		return nil, err
	}
	return &Service{
		db:      db,
		vendor:  vendor,
		credits: credits,
		tasks:   tasks,
		notes:   notes,
		users:   users,
		bus:     bus,
		counter: counter,
		logger:  logging.OrNop(logger),
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// WithNow overrides the clock. Test hook.
func (s *Service) WithNow(now func() time.Time) *Service {
	s.now = now
	return s
}

// ChatParams is the chat endpoint input.
type ChatParams struct {
	Message      string
	IncludeTasks bool
	TargetTaskID string
}

// Chat runs one metered chat exchange. When emit is non-nil the vendor call
// streams and deltas are forwarded as they arrive. Suggestions are never
// executed here; the client must confirm each one.
func (s *Service) Chat(ctx context.Context, userID string, params ChatParams, emit StreamFunc) (*ChatResult, error) {
	msg := strings.TrimSpace(params.Message)
	if msg == "" {
		return nil, apperr.Validation("message is required")
	}
	if len([]rune(msg)) > chatInputMax {
		return nil, apperr.Validation("message exceeds %d characters", chatInputMax)
	}

	warning, err := s.checkTaskBudget(ctx, userID, params.TargetTaskID)
	if err != nil {
		return nil, err
	}

	in := ChatInput{Message: msg}
	if params.IncludeTasks {
		in.Tasks, err = s.taskContext(ctx, userID)
		if err != nil {
			return nil, err
		}
	}

	consumed, err := s.credits.Consume(ctx, userID, costChat, "ai_chat")
	if err != nil {
		return nil, err
	}

	var out *ChatOutput
	if emit != nil {
		out, err = s.vendor.ChatStream(ctx, in, emit)
	} else {
		out, err = s.vendor.Chat(ctx, in)
	}
	if err != nil {
		return nil, s.refundAndWrap(ctx, userID, consumed, "ai_chat", err)
	}

	if err := s.recordOperation(ctx, userID, params.TargetTaskID, events.AIChat, map[string]any{
		"suggestions": len(out.Suggestions),
	}); err != nil {
		return nil, err
	}

	return &ChatResult{
		Message:      out.Message,
		Suggestions:  out.Suggestions,
		CreditsUsed:  costChat,
		Balance:      consumed.Balance,
		UsageWarning: warning,
	}, nil
}

// GenerateSubtasks asks the assistant to break a task down, capped at the
// user's effective subtask limit minus existing children.
func (s *Service) GenerateSubtasks(ctx context.Context, userID, taskID string) (*SubtaskSuggestions, error) {
	warning, err := s.checkTaskBudget(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}
	owner, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	t, err := s.tasks.Get(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}
	if t.Archived {
		return nil, apperr.TaskArchived()
	}
	existing, err := s.tasks.ListSubtasks(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}
	limits, err := s.tasks.EffectiveLimits(ctx, userID, owner.Tier)
	if err != nil {
		return nil, err
	}
	room := limits.SubtaskMax - len(existing)
	if room <= 0 {
		return nil, apperr.LimitExceeded("subtask", limits.SubtaskMax)
	}

	consumed, err := s.credits.Consume(ctx, userID, costSubtasks, "ai_subtasks:"+taskID)
	if err != nil {
		return nil, err
	}
	out, err := s.vendor.GenerateSubtasks(ctx, SubtaskInput{
		Title:       t.Title,
		Description: t.Description,
		MaxCount:    room,
	})
	if err != nil {
		return nil, s.refundAndWrap(ctx, userID, consumed, "ai_subtasks", err)
	}

	if err := s.recordOperation(ctx, userID, taskID, events.AISubtasksGenerated, map[string]any{
		"suggested": len(out.Titles),
	}); err != nil {
		return nil, err
	}

	return &SubtaskSuggestions{
		Understanding: out.Understanding,
		Titles:        out.Titles,
		CreditsUsed:   costSubtasks,
		Balance:       consumed.Balance,
		UsageWarning:  warning,
	}, nil
}

// SuggestNoteConversion asks the assistant to propose a task for a note.
// The proposal is only a suggestion; ConfirmAction performs the conversion.
func (s *Service) SuggestNoteConversion(ctx context.Context, userID, noteID string) (*ConversionResult, error) {
	owner, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	n, err := s.notes.Get(ctx, userID, noteID)
	if err != nil {
		return nil, err
	}
	if n.Archived {
		return nil, apperr.Conflict("note already converted")
	}
	if strings.TrimSpace(n.Body) == "" {
		return nil, apperr.Validation("note has no text to convert")
	}
	limits, err := s.tasks.EffectiveLimits(ctx, userID, owner.Tier)
	if err != nil {
		return nil, err
	}

	consumed, err := s.credits.Consume(ctx, userID, costConvert, "ai_convert:"+noteID)
	if err != nil {
		return nil, err
	}
	suggestion, err := s.vendor.SuggestTask(ctx, n.Body, limits.SubtaskMax)
	if err != nil {
		return nil, s.refundAndWrap(ctx, userID, consumed, "ai_convert", err)
	}

	return &ConversionResult{
		Suggestion:  *suggestion,
		CreditsUsed: costConvert,
		Balance:     consumed.Balance,
	}, nil
}

// refundAndWrap compensates a consume after a vendor failure and maps the
// failure onto the 503 contract.
func (s *Service) refundAndWrap(ctx context.Context, userID string, consumed *credit.ConsumeResult, ref string, cause error) error {
	// refund on a fresh context so request cancellation cannot skip it
	refundCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.credits.Refund(refundCtx, userID, consumed, ref); err != nil {
		s.logger.Error("credit refund failed: user=%s ref=%s err=%v", userID, ref, err)
	}
	if apperr.IsCode(cause, apperr.CodeAIServiceUnavailable) {
		return cause
	}
	if errors.Is(cause, context.Canceled) {
		return cause
	}
	return apperr.AIUnavailable("assistant request failed").WithCause(cause)
}

// checkTaskBudget enforces the per-task operation cap: warn at 5, refuse at
// 10. taskID may be empty for untargeted chat.
func (s *Service) checkTaskBudget(ctx context.Context, userID, taskID string) (bool, error) {
	if taskID == "" {
		return false, nil
	}
	n, err := s.counter.count(ctx, userID, taskID)
	if err != nil {
		return false, err
	}
	if n >= maxRequestsPerTask {
		return false, apperr.AILimitExceeded(taskID)
	}
	return n >= warnAtRequests, nil
}

// recordOperation commits the operation's event (and through the activity
// writer its durable counter row) and bumps the in-memory tally.
func (s *Service) recordOperation(ctx context.Context, userID, taskID string, evtType events.Type, extra map[string]any) error {
	err := postgres.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		s.bus.Dispatch(ctx, tx, events.Event{
			Type:       evtType,
			UserID:     userID,
			EntityID:   taskID,
			EntityType: "task",
			Source:     events.SourceAI,
			OccurredAt: s.now(),
			RequestID:  observability.RequestIDFromContext(ctx),
			Extra:      extra,
		})
		return nil
	})
	if err != nil {
		return err
	}
	if taskID != "" {
		if _, err := s.counter.increment(ctx, userID, taskID); err != nil {
			s.logger.Warn("ai counter increment failed: %v", err)
		}
	}
	return nil
}

// taskContext summarizes the user's visible tasks for context-aware chat.
func (s *Service) taskContext(ctx context.Context, userID string) ([]TaskContext, error) {
	tasks, _, err := s.tasks.List(ctx, userID, task.ListFilter{Limit: 50})
	if err != nil {
		return nil, err
	}
	out := make([]TaskContext, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, TaskContext{
			ID:       t.ID,
			Title:    t.Title,
			Priority: string(t.Priority),
			DueDate:  t.DueDate,
			Done:     t.Completed,
		})
	}
	return out, nil
}

func subtaskTitles(params map[string]any, key string) ([]string, error) {
	raw, ok := params[key].([]any)
	if !ok || len(raw) == 0 {
		return nil, apperr.Validation("action requires a %s list", key)
	}
	titles := make([]string, 0, len(raw))
	for _, v := range raw {
		title, ok := v.(string)
		if !ok || strings.TrimSpace(title) == "" {
			return nil, apperr.Validation("subtask titles must be non-empty strings")
		}
		titles = append(titles, title)
	}
	return titles, nil
}

func stringParam(params map[string]any, key string) string {
	v, _ := params[key].(string)
	return v
}

func intParam(params map[string]any, key string) *int {
	switch v := params[key].(type) {
	case float64:
		n := int(v)
		return &n
	case int:
		return &v
	}
	return nil
}

func timeParam(params map[string]any, key string) (*time.Time, error) {
	raw, ok := params[key].(string)
	if !ok || raw == "" {
		return nil, nil
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, apperr.Validation("%s must be RFC 3339", key)
	}
	return &ts, nil
}
