package http

import (
	"net/http"

	"taskhive/internal/task"
)

type templateRequest struct {
	Title          string `json:"title" validate:"required,max=200"`
	Description    string `json:"description" validate:"max=2000"`
	Priority       string `json:"priority" validate:"omitempty,oneof=low medium high"`
	RecurrenceRule string `json:"recurrence_rule" validate:"required"`
	Active         *bool  `json:"active"`
}

func (params templateRequest) toParams() task.TemplateParams {
	return task.TemplateParams{
		Title:          params.Title,
		Description:    params.Description,
		Priority:       task.Priority(params.Priority),
		RecurrenceRule: params.RecurrenceRule,
		Active:         params.Active,
	}
}

func (h *Handlers) createTemplate(w http.ResponseWriter, r *http.Request) {
	var req templateRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	if err := validateStruct(req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	tpl, err := h.tasks.CreateTemplate(r.Context(), currentUserID(r.Context()), req.toParams())
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondData(w, http.StatusCreated, viewTemplate(tpl))
}

func (h *Handlers) listTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.tasks.ListTemplates(r.Context(), currentUserID(r.Context()))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	out := make([]templateView, 0, len(templates))
	for _, tpl := range templates {
		out = append(out, viewTemplate(tpl))
	}
	respondData(w, http.StatusOK, out)
}

func (h *Handlers) updateTemplate(w http.ResponseWriter, r *http.Request) {
	var req templateRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	if err := validateStruct(req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	tpl, err := h.tasks.UpdateTemplate(r.Context(), currentUserID(r.Context()), r.PathValue("id"), req.toParams())
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondData(w, http.StatusOK, viewTemplate(tpl))
}

func (h *Handlers) deleteTemplate(w http.ResponseWriter, r *http.Request) {
	if err := h.tasks.DeleteTemplate(r.Context(), currentUserID(r.Context()), r.PathValue("id")); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondNoContent(w)
}
