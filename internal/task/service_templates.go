package task

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"taskhive/internal/apperr"
	"taskhive/internal/events"
	"taskhive/internal/observability"
	"taskhive/internal/postgres"
)

// TemplateParams is the input of CreateTemplate and UpdateTemplate.
type TemplateParams struct {
	Title          string
	Description    string
	Priority       Priority
	RecurrenceRule string
	Active         *bool
}

// CreateTemplate validates the recurrence rule and stores the template with
// its first cached next_due.
func (s *Service) CreateTemplate(ctx context.Context, userID string, params TemplateParams) (*Template, error) {
	if params.Priority == "" {
		params.Priority = PriorityMedium
	}
	title := strings.TrimSpace(params.Title)
	if title == "" || len(title) > titleMax {
		return nil, apperr.Validation("title must be 1-%d characters", titleMax)
	}
	if !validPriority(params.Priority) {
		return nil, apperr.Validation("priority must be low, medium, or high")
	}

	now := s.now()
	next, err := nextOccurrence(params.RecurrenceRule, now, now)
	if err != nil {
		return nil, err
	}

	tpl := &Template{
		ID:             uuid.NewString(),
		UserID:         userID,
		Title:          title,
		Description:    params.Description,
		Priority:       params.Priority,
		RecurrenceRule: params.RecurrenceRule,
		NextDue:        next,
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	err = postgres.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		if err := s.store.InsertTemplate(ctx, tx, tpl); err != nil {
			return err
		}
		if s.jobs != nil && next != nil {
			return s.jobs.Enqueue(ctx, tx, JobTypeRecurringGenerate,
				RecurringGeneratePayload{TemplateID: tpl.ID}, *next)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tpl, nil
}

// ListTemplates returns the user's templates.
func (s *Service) ListTemplates(ctx context.Context, userID string) ([]*Template, error) {
	return s.store.ListTemplates(ctx, userID)
}

// UpdateTemplate applies a partial template update, revalidating the rule
// and refreshing next_due when it changes.
func (s *Service) UpdateTemplate(ctx context.Context, userID, templateID string, params TemplateParams) (*Template, error) {
	var tpl *Template
	err := postgres.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		var err error
		tpl, err = s.store.GetTemplate(ctx, tx, userID, templateID)
		if err != nil {
			return err
		}
		if title := strings.TrimSpace(params.Title); title != "" {
			if len(title) > titleMax {
				return apperr.Validation("title must be 1-%d characters", titleMax)
			}
			tpl.Title = title
		}
		if params.Description != "" {
			tpl.Description = params.Description
		}
		if params.Priority != "" {
			if !validPriority(params.Priority) {
				return apperr.Validation("priority must be low, medium, or high")
			}
			tpl.Priority = params.Priority
		}
		if params.RecurrenceRule != "" && params.RecurrenceRule != tpl.RecurrenceRule {
			next, err := nextOccurrence(params.RecurrenceRule, s.now(), s.now())
			if err != nil {
				return err
			}
			tpl.RecurrenceRule = params.RecurrenceRule
			tpl.NextDue = next
		}
		if params.Active != nil {
			tpl.Active = *params.Active
		}
		return s.store.UpdateTemplate(ctx, tx, tpl)
	})
	if err != nil {
		return nil, err
	}
	return tpl, nil
}

// DeleteTemplate removes the template. Instances survive with template_id
// nulled by the schema.
func (s *Service) DeleteTemplate(ctx context.Context, userID, templateID string) error {
	return postgres.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		return s.store.DeleteTemplate(ctx, tx, userID, templateID)
	})
}

// GenerateInstance materializes the next due instance of a template and
// advances its cached next_due. Job handler entry point; returns false when
// the template is inactive, exhausted, or not yet due.
func (s *Service) GenerateInstance(ctx context.Context, templateID string) (bool, error) {
	generated := false
	err := postgres.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		tpl, err := s.store.GetTemplateAnyUser(ctx, tx, templateID)
		if err != nil {
			return err
		}
		if !tpl.Active || tpl.NextDue == nil {
			return nil
		}
		now := s.now()
		if tpl.NextDue.After(now) {
			return nil
		}

		due := *tpl.NextDue
		t := &Task{
			ID:         uuid.NewString(),
			UserID:     tpl.UserID,
			TemplateID: &tpl.ID,
			Title:      tpl.Title,
			Description: tpl.Description,
			Priority:   tpl.Priority,
			DueDate:    &due,
			Version:    1,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := s.store.Insert(ctx, tx, t); err != nil {
			return err
		}

		next, err := nextOccurrence(tpl.RecurrenceRule, tpl.CreatedAt, due)
		if err != nil {
			return err
		}
		tpl.NextDue = next
		if err := s.store.UpdateTemplate(ctx, tx, tpl); err != nil {
			return err
		}
		if s.jobs != nil && next != nil {
			if err := s.jobs.Enqueue(ctx, tx, JobTypeRecurringGenerate,
				RecurringGeneratePayload{TemplateID: tpl.ID}, *next); err != nil {
				return err
			}
		}

		s.bus.Dispatch(ctx, tx, events.Event{
			Type:       events.RecurringInstanceGenerated,
			UserID:     tpl.UserID,
			EntityID:   t.ID,
			EntityType: "task",
			Source:     events.SourceSystem,
			OccurredAt: now,
			RequestID:  observability.RequestIDFromContext(ctx),
			Extra:      map[string]any{"template_id": tpl.ID},
		})
		generated = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return generated, nil
}
