package http

import (
	"net/http"

	"taskhive/internal/note"
)

type createNoteRequest struct {
	Body         string  `json:"body" validate:"max=2000"`
	VoiceURL     *string `json:"voice_url" validate:"omitempty,url"`
	VoiceSeconds *int    `json:"voice_seconds" validate:"omitempty,min=1,max=300"`
}

func (h *Handlers) createNote(w http.ResponseWriter, r *http.Request) {
	var req createNoteRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	if err := validateStruct(req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	n, err := h.notes.Create(r.Context(), currentUserID(r.Context()), note.CreateParams{
		Body:         req.Body,
		VoiceURL:     req.VoiceURL,
		VoiceSeconds: req.VoiceSeconds,
	})
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondData(w, http.StatusCreated, viewNote(n))
}

func (h *Handlers) listNotes(w http.ResponseWriter, r *http.Request) {
	offset := queryInt(r, "offset", 0, 0, 1<<30)
	limit := queryInt(r, "limit", 50, 1, 100)

	notes, total, err := h.notes.List(r.Context(), currentUserID(r.Context()), offset, limit)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	out := make([]noteView, 0, len(notes))
	for _, n := range notes {
		out = append(out, viewNote(n))
	}
	respondList(w, out, Pagination{
		Offset:  offset,
		Limit:   limit,
		Total:   total,
		HasMore: offset+len(notes) < total,
	})
}

func (h *Handlers) getNote(w http.ResponseWriter, r *http.Request) {
	n, err := h.notes.Get(r.Context(), currentUserID(r.Context()), r.PathValue("id"))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondData(w, http.StatusOK, viewNote(n))
}

type updateNoteRequest struct {
	Body string `json:"body" validate:"required,max=2000"`
}

func (h *Handlers) updateNote(w http.ResponseWriter, r *http.Request) {
	var req updateNoteRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	if err := validateStruct(req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	n, err := h.notes.UpdateBody(r.Context(), currentUserID(r.Context()), r.PathValue("id"), req.Body)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondData(w, http.StatusOK, viewNote(n))
}

func (h *Handlers) deleteNote(w http.ResponseWriter, r *http.Request) {
	if err := h.notes.Delete(r.Context(), currentUserID(r.Context()), r.PathValue("id")); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondNoContent(w)
}
