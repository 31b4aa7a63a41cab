package http

import (
	"net/http"

	"taskhive/internal/auth"
	"taskhive/internal/config"
	"taskhive/internal/logging"
	"taskhive/internal/observability"
)

// RouterDeps holds everything Router needs beyond the handlers.
type RouterDeps struct {
	Handlers    *Handlers
	Auth        *auth.Service
	Idempotency *IdempotencyStore
	Metrics     *observability.MetricsCollector
	Config      config.Config
	Logger      logging.Logger
}

// Router assembles the /api/v1 route table behind the full middleware
// chain.
func Router(deps RouterDeps) http.Handler {
	mux := routes(deps)

	mws := []Middleware{
		RequestIDMiddleware(),
		SecurityHeadersMiddleware(),
		LoggingMiddleware(deps.Logger),
	}
	if deps.Config.MetricsEnabled && deps.Metrics != nil {
		mws = append(mws, MetricsMiddleware(deps.Metrics))
	}
	mws = append(mws,
		CORSMiddleware(deps.Config.AllowedOrigins),
		AuthMiddleware(deps.Auth, deps.Logger),
		RateLimitMiddleware(deps.Config.Rates, deps.Logger),
		IdempotencyMiddleware(deps.Idempotency, deps.Logger),
	)
	return chain(mux, mws...)
}

func routes(deps RouterDeps) *http.ServeMux {
	h := deps.Handlers
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health/live", h.healthLive)
	mux.HandleFunc("GET /health/ready", h.healthReady)
	if deps.Config.MetricsEnabled && deps.Metrics != nil {
		mux.Handle("GET /metrics", deps.Metrics.Handler())
	}

	mux.HandleFunc("POST /api/v1/auth/google/callback", h.googleCallback)
	mux.HandleFunc("POST /api/v1/auth/refresh", h.refreshToken)
	mux.HandleFunc("POST /api/v1/auth/logout", h.logout)
	mux.HandleFunc("GET /api/v1/.well-known/jwks.json", h.jwks)

	mux.HandleFunc("GET /api/v1/users/me", h.getMe)
	mux.HandleFunc("PATCH /api/v1/users/me", h.updateMe)

	mux.HandleFunc("POST /api/v1/tasks", h.createTask)
	mux.HandleFunc("GET /api/v1/tasks", h.listTasks)
	mux.HandleFunc("GET /api/v1/tasks/{id}", h.getTask)
	mux.HandleFunc("PATCH /api/v1/tasks/{id}", h.updateTask)
	mux.HandleFunc("DELETE /api/v1/tasks/{id}", h.deleteTask)
	mux.HandleFunc("POST /api/v1/tasks/{id}/force-complete", h.forceCompleteTask)

	mux.HandleFunc("GET /api/v1/tasks/{id}/subtasks", h.listSubtasks)
	mux.HandleFunc("POST /api/v1/tasks/{id}/subtasks", h.addSubtask)
	mux.HandleFunc("POST /api/v1/tasks/{id}/subtasks/reorder", h.reorderSubtasks)
	mux.HandleFunc("PATCH /api/v1/subtasks/{id}", h.updateSubtask)
	mux.HandleFunc("DELETE /api/v1/subtasks/{id}", h.deleteSubtask)

	mux.HandleFunc("GET /api/v1/tasks/{id}/reminders", h.listReminders)
	mux.HandleFunc("POST /api/v1/tasks/{id}/reminders", h.createReminder)
	mux.HandleFunc("DELETE /api/v1/reminders/{id}", h.deleteReminder)

	mux.HandleFunc("GET /api/v1/templates", h.listTemplates)
	mux.HandleFunc("POST /api/v1/templates", h.createTemplate)
	mux.HandleFunc("PATCH /api/v1/templates/{id}", h.updateTemplate)
	mux.HandleFunc("DELETE /api/v1/templates/{id}", h.deleteTemplate)

	mux.HandleFunc("GET /api/v1/notes", h.listNotes)
	mux.HandleFunc("POST /api/v1/notes", h.createNote)
	mux.HandleFunc("GET /api/v1/notes/{id}", h.getNote)
	mux.HandleFunc("PATCH /api/v1/notes/{id}", h.updateNote)
	mux.HandleFunc("DELETE /api/v1/notes/{id}", h.deleteNote)

	mux.HandleFunc("POST /api/v1/ai/chat", h.aiChat)
	mux.HandleFunc("POST /api/v1/ai/confirm-action", h.aiConfirmAction)
	mux.HandleFunc("GET /api/v1/ai/credits", h.getCredits)
	mux.HandleFunc("POST /api/v1/ai/tasks/{id}/subtasks", h.aiGenerateSubtasks)
	mux.HandleFunc("POST /api/v1/notes/{id}/convert", h.aiConvertNote)
	mux.HandleFunc("POST /api/v1/notes/{id}/transcribe", h.aiTranscribeNote)

	mux.HandleFunc("GET /api/v1/credits", h.getCredits)
	mux.HandleFunc("GET /api/v1/achievements", h.getAchievements)
	mux.HandleFunc("GET /api/v1/achievements/stats", h.getAchievementStats)
	mux.HandleFunc("GET /api/v1/achievements/limits", h.getLimits)
	mux.HandleFunc("GET /api/v1/activity", h.listActivity)

	mux.HandleFunc("POST /api/v1/focus/start", h.startFocus)
	mux.HandleFunc("POST /api/v1/focus/end", h.endFocus)

	mux.HandleFunc("GET /api/v1/tombstones", h.listTombstones)
	mux.HandleFunc("POST /api/v1/tasks/recover/{tombstone_id}", h.recoverTask)

	mux.HandleFunc("GET /api/v1/subscription", h.getSubscription)
	mux.HandleFunc("POST /api/v1/subscription/checkout", h.checkoutSubscription)
	mux.HandleFunc("POST /api/v1/subscription/cancel", h.cancelSubscription)
	mux.HandleFunc("POST /api/v1/webhooks/checkout", h.checkoutWebhook)

	mux.HandleFunc("GET /api/v1/notifications", h.listNotifications)
	mux.HandleFunc("POST /api/v1/notifications/{id}/read", h.markNotificationRead)
	mux.HandleFunc("POST /api/v1/notifications/read-all", h.markAllNotificationsRead)
	mux.HandleFunc("POST /api/v1/notifications/push-subscription", h.upsertPushSubscription)
	mux.HandleFunc("DELETE /api/v1/notifications/push-subscription", h.deletePushSubscription)

	return mux
}
