package http

import (
	"net/http"

	"taskhive/internal/apperr"
	"taskhive/internal/task"
)

type addSubtaskRequest struct {
	Title string `json:"title" validate:"required,max=200"`
}

func (h *Handlers) addSubtask(w http.ResponseWriter, r *http.Request) {
	var req addSubtaskRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	if err := validateStruct(req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	sub, err := h.tasks.AddSubtask(r.Context(), currentUserID(r.Context()), r.PathValue("id"), req.Title, task.SubtaskSourceUser)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondData(w, http.StatusCreated, viewSubtask(sub))
}

func (h *Handlers) listSubtasks(w http.ResponseWriter, r *http.Request) {
	subs, err := h.tasks.ListSubtasks(r.Context(), currentUserID(r.Context()), r.PathValue("id"))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondData(w, http.StatusOK, viewSubtasks(subs))
}

type updateSubtaskRequest struct {
	Title     *string `json:"title" validate:"omitempty,max=200"`
	Completed *bool   `json:"completed"`
}

func (h *Handlers) updateSubtask(w http.ResponseWriter, r *http.Request) {
	var req updateSubtaskRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	if err := validateStruct(req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	if req.Title == nil && req.Completed == nil {
		respondError(w, r, h.logger, apperr.Validation("no fields to update"))
		return
	}

	ctx := r.Context()
	userID := currentUserID(ctx)
	subtaskID := r.PathValue("id")

	var sub *task.Subtask
	var err error
	if req.Title != nil {
		sub, err = h.tasks.RenameSubtask(ctx, userID, subtaskID, *req.Title)
		if err != nil {
			respondError(w, r, h.logger, err)
			return
		}
	}
	if req.Completed != nil {
		if *req.Completed {
			sub, err = h.tasks.CompleteSubtask(ctx, userID, subtaskID)
		} else {
			sub, err = h.tasks.ReopenSubtask(ctx, userID, subtaskID)
		}
		if err != nil {
			respondError(w, r, h.logger, err)
			return
		}
	}
	respondData(w, http.StatusOK, viewSubtask(sub))
}

func (h *Handlers) deleteSubtask(w http.ResponseWriter, r *http.Request) {
	if err := h.tasks.DeleteSubtask(r.Context(), currentUserID(r.Context()), r.PathValue("id")); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondNoContent(w)
}

type reorderSubtasksRequest struct {
	SubtaskIDs []string `json:"subtask_ids" validate:"required,min=1,dive,uuid"`
}

func (h *Handlers) reorderSubtasks(w http.ResponseWriter, r *http.Request) {
	var req reorderSubtasksRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	if err := validateStruct(req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	subs, err := h.tasks.ReorderSubtasks(r.Context(), currentUserID(r.Context()), r.PathValue("id"), req.SubtaskIDs)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondData(w, http.StatusOK, viewSubtasks(subs))
}
