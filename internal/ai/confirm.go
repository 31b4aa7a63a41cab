package ai

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"

	"taskhive/internal/apperr"
	"taskhive/internal/events"
	"taskhive/internal/postgres"
	"taskhive/internal/task"
)

// ConfirmResult reports what a confirmed action produced.
type ConfirmResult struct {
	Kind       string   `json:"kind"`
	TaskID     string   `json:"task_id,omitempty"`
	SubtaskIDs []string `json:"subtask_ids,omitempty"`
	NoteID     string   `json:"note_id,omitempty"`
}

// ConfirmAction validates and executes a previously suggested action. This
// is the only path from a suggestion to a write; confirmation costs no
// credits.
func (s *Service) ConfirmAction(ctx context.Context, userID string, suggestion ActionSuggestion) (*ConfirmResult, error) {
	switch suggestion.Kind {
	case ActionCreateTask:
		return s.confirmCreateTask(ctx, userID, suggestion.Params)
	case ActionAddSubtasks:
		return s.confirmAddSubtasks(ctx, userID, suggestion.TargetID, suggestion.Params)
	case ActionConvertNote:
		return s.confirmConvertNote(ctx, userID, suggestion.TargetID, suggestion.Params)
	default:
		return nil, apperr.Validation("unknown action kind %q", suggestion.Kind)
	}
}

func (s *Service) confirmCreateTask(ctx context.Context, userID string, params map[string]any) (*ConfirmResult, error) {
	created, err := s.createTaskFromParams(ctx, userID, params)
	if err != nil {
		return nil, err
	}
	return &ConfirmResult{Kind: ActionCreateTask, TaskID: created.ID}, nil
}

func (s *Service) confirmAddSubtasks(ctx context.Context, userID, taskID string, params map[string]any) (*ConfirmResult, error) {
	if taskID == "" {
		return nil, apperr.Validation("add_subtasks action requires a target task")
	}
	titles, err := subtaskTitles(params, "titles")
	if err != nil {
		return nil, err
	}
	// ownership and archived state are validated by the task service; the
	// subtask cap applies per insert so a stale suggestion cannot overflow
	ids := make([]string, 0, len(titles))
	for _, title := range titles {
		sub, err := s.tasks.AddSubtask(ctx, userID, taskID, title, task.SubtaskSourceAI)
		if err != nil {
			return nil, err
		}
		ids = append(ids, sub.ID)
	}
	return &ConfirmResult{Kind: ActionAddSubtasks, TaskID: taskID, SubtaskIDs: ids}, nil
}

func (s *Service) confirmConvertNote(ctx context.Context, userID, noteID string, params map[string]any) (*ConfirmResult, error) {
	if noteID == "" {
		return nil, apperr.Validation("convert_note action requires a target note")
	}
	n, err := s.notes.Get(ctx, userID, noteID)
	if err != nil {
		return nil, err
	}
	if n.Archived {
		return nil, apperr.Conflict("note already converted")
	}

	created, err := s.createTaskFromParams(ctx, userID, params)
	if err != nil {
		return nil, err
	}
	err = postgres.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		return s.notes.MarkConverted(ctx, tx, userID, noteID, created.ID)
	})
	if err != nil {
		return nil, err
	}

	if titles, terr := subtaskTitles(params, "subtasks"); terr == nil {
		for _, title := range titles {
			if _, err := s.tasks.AddSubtask(ctx, userID, created.ID, title, task.SubtaskSourceAI); err != nil {
				// the task exists either way; a cap hit on suggested
				// subtasks is not worth failing the conversion
				s.logger.Warn("suggested subtask dropped during conversion: %v", err)
				break
			}
		}
	}
	return &ConfirmResult{Kind: ActionConvertNote, TaskID: created.ID, NoteID: noteID}, nil
}

func (s *Service) createTaskFromParams(ctx context.Context, userID string, params map[string]any) (*task.Task, error) {
	title := strings.TrimSpace(stringParam(params, "title"))
	if title == "" {
		return nil, apperr.Validation("action requires a title")
	}
	dueDate, err := timeParam(params, "due_date")
	if err != nil {
		return nil, err
	}
	return s.tasks.Create(ctx, userID, task.CreateParams{
		Title:            title,
		Description:      stringParam(params, "description"),
		Priority:         task.Priority(stringParam(params, "priority")),
		DueDate:          dueDate,
		EstimatedMinutes: intParam(params, "estimated_minutes"),
		Source:           events.SourceAI,
	})
}
