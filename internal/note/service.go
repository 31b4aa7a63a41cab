package note

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"taskhive/internal/achievement"
	"taskhive/internal/apperr"
	"taskhive/internal/events"
	"taskhive/internal/observability"
	"taskhive/internal/postgres"
	"taskhive/internal/user"
)

// Service enforces note caps and tier rules and emits note events.
type Service struct {
	db     postgres.DB
	store  *Store
	users  *user.Store
	engine *achievement.Engine
	bus    *events.Bus

	now func() time.Time
}

// NewService wires the note service.
func NewService(db postgres.DB, store *Store, users *user.Store, engine *achievement.Engine, bus *events.Bus) (*Service, error) {
	if db == nil || store == nil || users == nil || engine == nil || bus == nil {
		return nil, errors.New("note service requires db, store, users, engine, and bus")
	}
	return &Service{
		db:     db,
		store:  store,
		users:  users,
		engine: engine,
		bus:    bus,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// CreateParams is the input of Create. Voice fields require pro tier.
type CreateParams struct {
	Body         string
	VoiceURL     *string
	VoiceSeconds *int
}

// Create validates and inserts a note under the effective note cap.
func (s *Service) Create(ctx context.Context, userID string, params CreateParams) (*Note, error) {
	owner, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	body := strings.TrimSpace(params.Body)
	if body == "" && params.VoiceURL == nil {
		return nil, apperr.Validation("note body is required")
	}
	if len(body) > bodyMax {
		return nil, apperr.Validation("note body must be at most %d characters", bodyMax)
	}

	n := &Note{
		ID:     uuid.NewString(),
		UserID: userID,
		Body:   body,
	}
	if params.VoiceURL != nil {
		if owner.Tier != user.TierPro {
			return nil, apperr.TierRequired("voice notes")
		}
		if params.VoiceSeconds == nil || *params.VoiceSeconds < 1 || *params.VoiceSeconds > voiceSecondsMax {
			return nil, apperr.Validation("voice duration must be 1-%d seconds", voiceSecondsMax)
		}
		pending := TranscriptionPending
		n.VoiceURL = params.VoiceURL
		n.VoiceSeconds = params.VoiceSeconds
		n.TranscriptionStatus = &pending
	}
	now := s.now()
	n.CreatedAt = now
	n.UpdatedAt = now

	err = postgres.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		limits, err := s.engine.EffectiveLimits(ctx, tx, userID, owner.Tier)
		if err != nil {
			return err
		}
		active, err := s.store.CountActive(ctx, tx, userID)
		if err != nil {
			return err
		}
		if active >= limits.NoteMax {
			return apperr.LimitExceeded("note", limits.NoteMax)
		}
		if err := s.store.Insert(ctx, tx, n); err != nil {
			return err
		}
		s.bus.Dispatch(ctx, tx, s.event(ctx, events.NoteCreated, n, nil))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return n, nil
}

// Get returns one note with ownership confinement.
func (s *Service) Get(ctx context.Context, userID, noteID string) (*Note, error) {
	return s.store.Get(ctx, s.db, userID, noteID)
}

// List returns a page of unarchived notes.
func (s *Service) List(ctx context.Context, userID string, offset, limit int) ([]*Note, int, error) {
	return s.store.List(ctx, userID, offset, limit)
}

// UpdateBody rewrites the note text.
func (s *Service) UpdateBody(ctx context.Context, userID, noteID, body string) (*Note, error) {
	body = strings.TrimSpace(body)
	if body == "" || len(body) > bodyMax {
		return nil, apperr.Validation("note body must be 1-%d characters", bodyMax)
	}
	var n *Note
	err := postgres.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		var err error
		n, err = s.store.UpdateBody(ctx, tx, userID, noteID, body)
		return err
	})
	if err != nil {
		return nil, err
	}
	return n, nil
}

// Delete removes a note.
func (s *Service) Delete(ctx context.Context, userID, noteID string) error {
	return postgres.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		n, err := s.store.Get(ctx, tx, userID, noteID)
		if err != nil {
			return err
		}
		if err := s.store.Delete(ctx, tx, userID, noteID); err != nil {
			return err
		}
		s.bus.Dispatch(ctx, tx, s.event(ctx, events.NoteDeleted, n, nil))
		return nil
	})
}

// MarkConverted archives the note after its task was created and emits
// NoteConverted. Runs on the conversion's transaction.
func (s *Service) MarkConverted(ctx context.Context, tx pgx.Tx, userID, noteID, taskID string) error {
	n, err := s.store.Get(ctx, tx, userID, noteID)
	if err != nil {
		return err
	}
	if n.Archived {
		return apperr.Conflict("note already converted")
	}
	if err := s.store.Archive(ctx, tx, userID, noteID); err != nil {
		return err
	}
	s.bus.Dispatch(ctx, tx, s.event(ctx, events.NoteConverted, n, map[string]any{"task_id": taskID}))
	return nil
}

// SetTranscription records a transcription outcome on the caller's
// transaction.
func (s *Service) SetTranscription(ctx context.Context, q postgres.Querier, userID, noteID string, status TranscriptionStatus, body string) error {
	return s.store.SetTranscription(ctx, q, userID, noteID, status, body)
}

func (s *Service) event(ctx context.Context, typ events.Type, n *Note, extra map[string]any) events.Event {
	return events.Event{
		Type:       typ,
		UserID:     n.UserID,
		EntityID:   n.ID,
		EntityType: "note",
		Source:     events.SourceUser,
		OccurredAt: s.now(),
		RequestID:  observability.RequestIDFromContext(ctx),
		Extra:      extra,
	}
}
