package http

import (
	"net/http"
	"time"

	"taskhive/internal/notify"
)

type createReminderRequest struct {
	Kind          string     `json:"kind" validate:"required,oneof=before after absolute"`
	OffsetMinutes *int       `json:"offset_minutes" validate:"omitempty,min=1,max=10080"`
	ScheduledAt   *time.Time `json:"scheduled_at"`
	Method        string     `json:"method" validate:"omitempty,oneof=push in_app"`
}

func (h *Handlers) createReminder(w http.ResponseWriter, r *http.Request) {
	var req createReminderRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	if err := validateStruct(req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	rem, err := h.notify.CreateReminder(r.Context(), currentUserID(r.Context()), r.PathValue("id"), notify.ReminderParams{
		Kind:          notify.ReminderKind(req.Kind),
		OffsetMinutes: req.OffsetMinutes,
		ScheduledAt:   req.ScheduledAt,
		Method:        notify.ReminderMethod(req.Method),
	})
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondData(w, http.StatusCreated, viewReminder(rem))
}

func (h *Handlers) listReminders(w http.ResponseWriter, r *http.Request) {
	reminders, err := h.notify.ListForTask(r.Context(), currentUserID(r.Context()), r.PathValue("id"))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	out := make([]reminderView, 0, len(reminders))
	for _, rem := range reminders {
		out = append(out, viewReminder(rem))
	}
	respondData(w, http.StatusOK, out)
}

func (h *Handlers) deleteReminder(w http.ResponseWriter, r *http.Request) {
	if err := h.notify.DeleteReminder(r.Context(), currentUserID(r.Context()), r.PathValue("id")); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondNoContent(w)
}
