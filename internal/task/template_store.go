package task

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"taskhive/internal/apperr"
	"taskhive/internal/postgres"
)

const templateColumns = `id, user_id, title, description, priority, recurrence_rule, next_due, active, created_at, updated_at`

// InsertTemplate writes a recurring-task definition.
func (s *Store) InsertTemplate(ctx context.Context, q postgres.Querier, tpl *Template) error {
	_, err := q.Exec(ctx, `
INSERT INTO task_templates (`+templateColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		tpl.ID, tpl.UserID, tpl.Title, tpl.Description, string(tpl.Priority),
		tpl.RecurrenceRule, tpl.NextDue, tpl.Active, tpl.CreatedAt, tpl.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert template: %w", err)
	}
	return nil
}

// GetTemplate loads one template confined to the owner.
func (s *Store) GetTemplate(ctx context.Context, q postgres.Querier, userID, templateID string) (*Template, error) {
	row := q.QueryRow(ctx, `SELECT `+templateColumns+` FROM task_templates WHERE id = $1 AND user_id = $2`,
		templateID, userID)
	return scanTemplate(row)
}

// GetTemplateAnyUser loads a template by id without an ownership filter. Job
// handlers use it; the owning user id comes from the row itself.
func (s *Store) GetTemplateAnyUser(ctx context.Context, q postgres.Querier, templateID string) (*Template, error) {
	row := q.QueryRow(ctx, `SELECT `+templateColumns+` FROM task_templates WHERE id = $1`, templateID)
	return scanTemplate(row)
}

// ListTemplates returns the user's templates, active first.
func (s *Store) ListTemplates(ctx context.Context, userID string) ([]*Template, error) {
	rows, err := s.db.Query(ctx, `
SELECT `+templateColumns+` FROM task_templates
WHERE user_id = $1 ORDER BY active DESC, created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query templates: %w", err)
	}
	defer rows.Close()

	var out []*Template
	for rows.Next() {
		tpl, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tpl)
	}
	return out, rows.Err()
}

// UpdateTemplate writes back mutable template fields.
func (s *Store) UpdateTemplate(ctx context.Context, q postgres.Querier, tpl *Template) error {
	tag, err := q.Exec(ctx, `
UPDATE task_templates SET
    title           = $3,
    description     = $4,
    priority        = $5,
    recurrence_rule = $6,
    next_due        = $7,
    active          = $8,
    updated_at      = NOW()
WHERE id = $1 AND user_id = $2`,
		tpl.ID, tpl.UserID, tpl.Title, tpl.Description, string(tpl.Priority),
		tpl.RecurrenceRule, tpl.NextDue, tpl.Active)
	if err != nil {
		return fmt.Errorf("update template: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("template")
	}
	return nil
}

// DeleteTemplate removes the template; existing instances keep living with
// template_id set to null by the foreign key.
func (s *Store) DeleteTemplate(ctx context.Context, q postgres.Querier, userID, templateID string) error {
	tag, err := q.Exec(ctx, `DELETE FROM task_templates WHERE id = $1 AND user_id = $2`, templateID, userID)
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("template")
	}
	return nil
}

func scanTemplate(row pgx.Row) (*Template, error) {
	var tpl Template
	var priority string
	err := row.Scan(&tpl.ID, &tpl.UserID, &tpl.Title, &tpl.Description, &priority,
		&tpl.RecurrenceRule, &tpl.NextDue, &tpl.Active, &tpl.CreatedAt, &tpl.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("template")
	}
	if err != nil {
		return nil, fmt.Errorf("scan template: %w", err)
	}
	tpl.Priority = Priority(priority)
	return &tpl, nil
}
