package http

import (
	"errors"

	"github.com/go-playground/validator/v10"

	"taskhive/internal/achievement"
	"taskhive/internal/activity"
	"taskhive/internal/ai"
	"taskhive/internal/apperr"
	"taskhive/internal/auth"
	"taskhive/internal/billing"
	"taskhive/internal/credit"
	"taskhive/internal/logging"
	"taskhive/internal/note"
	"taskhive/internal/notify"
	"taskhive/internal/postgres"
	"taskhive/internal/task"
	"taskhive/internal/user"
)

// Handlers bundles every service the route table needs.
type Handlers struct {
	db           postgres.DB
	auth         *auth.Service
	users        *user.Store
	tasks        *task.Service
	notes        *note.Service
	notify       *notify.Service
	notifyStore  *notify.Store
	credits      *credit.Service
	billing      *billing.Service
	assistant    *ai.Service
	achievements *achievement.Engine
	activity     *activity.Store
	logger       logging.Logger
}

// HandlerDeps is the constructor input for Handlers.
type HandlerDeps struct {
	DB           postgres.DB
	Auth         *auth.Service
	Users        *user.Store
	Tasks        *task.Service
	Notes        *note.Service
	Notify       *notify.Service
	NotifyStore  *notify.Store
	Credits      *credit.Service
	Billing      *billing.Service
	Assistant    *ai.Service
	Achievements *achievement.Engine
	Activity     *activity.Store
	Logger       logging.Logger
}

// NewHandlers wires the resource handlers.
func NewHandlers(deps HandlerDeps) (*Handlers, error) {
	switch {
	case deps.DB == nil:
		return nil, errors.New("handlers require db")
	case deps.Auth == nil:
		return nil, errors.New("handlers require auth service")
	case deps.Tasks == nil:
		return nil, errors.New("handlers require task service")
	}
	return &Handlers{
		db:           deps.DB,
		auth:         deps.Auth,
		users:        deps.Users,
		tasks:        deps.Tasks,
		notes:        deps.Notes,
		notify:       deps.Notify,
		notifyStore:  deps.NotifyStore,
		credits:      deps.Credits,
		billing:      deps.Billing,
		assistant:    deps.Assistant,
		achievements: deps.Achievements,
		activity:     deps.Activity,
		logger:       logging.OrNop(deps.Logger),
	}, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// validateStruct runs the request struct's validation tags and folds
// failures into one VALIDATION error with per-field details.
func validateStruct(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Validation("invalid request").WithCause(err)
	}
	details := make(map[string]any, len(verrs))
	for _, fe := range verrs {
		details[fe.Field()] = fe.Tag()
	}
	return apperr.Validation("invalid request").WithDetails(details)
}
