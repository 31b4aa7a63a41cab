package http

import (
	"net/http"
	"time"

	"taskhive/internal/apperr"
	"taskhive/internal/events"
	"taskhive/internal/task"
)

type createTaskRequest struct {
	Title            string     `json:"title" validate:"required,max=200"`
	Description      string     `json:"description" validate:"max=2000"`
	Priority         string     `json:"priority" validate:"omitempty,oneof=low medium high"`
	DueDate          *time.Time `json:"due_date"`
	EstimatedMinutes *int       `json:"estimated_minutes" validate:"omitempty,min=1,max=720"`
	TemplateID       *string    `json:"template_id" validate:"omitempty,uuid"`
}

func (h *Handlers) createTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	if err := validateStruct(req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	t, err := h.tasks.Create(r.Context(), currentUserID(r.Context()), task.CreateParams{
		Title:            req.Title,
		Description:      req.Description,
		Priority:         task.Priority(req.Priority),
		DueDate:          req.DueDate,
		EstimatedMinutes: req.EstimatedMinutes,
		TemplateID:       req.TemplateID,
		Source:           events.SourceUser,
	})
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondData(w, http.StatusCreated, viewTask(t))
}

func (h *Handlers) listTasks(w http.ResponseWriter, r *http.Request) {
	filter := task.ListFilter{
		Offset: queryInt(r, "offset", 0, 0, 1<<30),
		Limit:  queryInt(r, "limit", 50, 1, 100),
	}
	completed, err := completedQuery(r.URL.Query().Get("completed"))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	filter.Completed = completed
	if raw := r.URL.Query().Get("priority"); raw != "" {
		p := task.Priority(raw)
		filter.Priority = &p
	}

	tasks, total, err := h.tasks.List(r.Context(), currentUserID(r.Context()), filter)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondList(w, viewTasks(tasks), Pagination{
		Offset:  filter.Offset,
		Limit:   filter.Limit,
		Total:   total,
		HasMore: filter.Offset+len(tasks) < total,
	})
}

func (h *Handlers) getTask(w http.ResponseWriter, r *http.Request) {
	t, err := h.tasks.Get(r.Context(), currentUserID(r.Context()), r.PathValue("id"))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondData(w, http.StatusOK, viewTask(t))
}

type updateTaskRequest struct {
	Version          *int64     `json:"version" validate:"required"`
	Title            *string    `json:"title" validate:"omitempty,max=200"`
	Description      *string    `json:"description" validate:"omitempty,max=2000"`
	Priority         *string    `json:"priority" validate:"omitempty,oneof=low medium high"`
	DueDate          *time.Time `json:"due_date"`
	ClearDueDate     bool       `json:"clear_due_date"`
	EstimatedMinutes *int       `json:"estimated_minutes" validate:"omitempty,min=1,max=720"`
	Completed        *bool      `json:"completed"`
	Hidden           *bool      `json:"hidden"`
	Archived         *bool      `json:"archived"`
}

func (h *Handlers) updateTask(w http.ResponseWriter, r *http.Request) {
	var req updateTaskRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	if err := validateStruct(req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	params := task.UpdateParams{
		Version:          *req.Version,
		Title:            req.Title,
		Description:      req.Description,
		DueDate:          req.DueDate,
		ClearDueDate:     req.ClearDueDate,
		EstimatedMinutes: req.EstimatedMinutes,
		Completed:        req.Completed,
		Hidden:           req.Hidden,
		Archived:         req.Archived,
		Source:           events.SourceUser,
	}
	if req.Priority != nil {
		p := task.Priority(*req.Priority)
		params.Priority = &p
	}

	t, err := h.tasks.Update(r.Context(), currentUserID(r.Context()), r.PathValue("id"), params)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondData(w, http.StatusOK, viewTask(t))
}

type forceCompleteRequest struct {
	Version *int64 `json:"version" validate:"required"`
}

func (h *Handlers) forceCompleteTask(w http.ResponseWriter, r *http.Request) {
	var req forceCompleteRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	if err := validateStruct(req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	t, err := h.tasks.ForceComplete(r.Context(), currentUserID(r.Context()), r.PathValue("id"), *req.Version)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondData(w, http.StatusOK, viewTask(t))
}

func (h *Handlers) deleteTask(w http.ResponseWriter, r *http.Request) {
	ts, err := h.tasks.Delete(r.Context(), currentUserID(r.Context()), r.PathValue("id"))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondData(w, http.StatusOK, viewTombstone(ts))
}

func (h *Handlers) listTombstones(w http.ResponseWriter, r *http.Request) {
	tombstones, err := h.tasks.ListTombstones(r.Context(), currentUserID(r.Context()))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	out := make([]tombstoneView, 0, len(tombstones))
	for _, ts := range tombstones {
		out = append(out, viewTombstone(ts))
	}
	respondData(w, http.StatusOK, out)
}

func (h *Handlers) recoverTask(w http.ResponseWriter, r *http.Request) {
	t, err := h.tasks.Recover(r.Context(), currentUserID(r.Context()), r.PathValue("tombstone_id"))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondData(w, http.StatusCreated, viewTask(t))
}

type startFocusRequest struct {
	TaskID string `json:"task_id" validate:"required,uuid"`
}

func (h *Handlers) startFocus(w http.ResponseWriter, r *http.Request) {
	var req startFocusRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	if err := validateStruct(req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	session, err := h.tasks.StartFocus(r.Context(), currentUserID(r.Context()), req.TaskID)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondData(w, http.StatusCreated, viewFocus(session))
}

func (h *Handlers) endFocus(w http.ResponseWriter, r *http.Request) {
	session, err := h.tasks.EndFocus(r.Context(), currentUserID(r.Context()))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondData(w, http.StatusOK, viewFocus(session))
}

// completedQuery rejects anything but the two boolean literals so typos do
// not silently filter to false.
func completedQuery(raw string) (*bool, error) {
	switch raw {
	case "":
		return nil, nil
	case "true", "false":
		v := raw == "true"
		return &v, nil
	default:
		return nil, apperr.Validation("completed must be true or false")
	}
}
