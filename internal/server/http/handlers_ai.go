package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"taskhive/internal/ai"
	"taskhive/internal/apperr"
)

type chatRequest struct {
	Message      string `json:"message" validate:"required,max=2000"`
	IncludeTasks bool   `json:"include_tasks"`
	TargetTaskID string `json:"target_task_id" validate:"omitempty,uuid"`
}

func (h *Handlers) aiChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	if err := validateStruct(req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	params := ai.ChatParams{
		Message:      req.Message,
		IncludeTasks: req.IncludeTasks,
		TargetTaskID: req.TargetTaskID,
	}
	userID := currentUserID(r.Context())

	if !wantsEventStream(r) {
		result, err := h.assistant.Chat(r.Context(), userID, params, nil)
		if err != nil {
			respondError(w, r, h.logger, err)
			return
		}
		respondData(w, http.StatusOK, result)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, r, h.logger, apperr.Internal(fmt.Errorf("streaming unsupported by connection")))
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Headers are committed once the first delta flushes, so errors after
	// that point travel as an error event rather than a status code.
	streaming := false
	result, err := h.assistant.Chat(r.Context(), userID, params, func(delta string) error {
		streaming = true
		writeSSE(w, "delta", map[string]string{"text": delta})
		flusher.Flush()
		return nil
	})
	if err != nil {
		if !streaming {
			w.Header().Del("Content-Type")
			respondError(w, r, h.logger, err)
			return
		}
		appErr, ok := apperr.As(err)
		if !ok {
			h.logger.Error("chat stream failed: %v", err)
			appErr = apperr.Internal(err)
		}
		writeSSE(w, "error", map[string]string{"code": string(appErr.Code), "message": appErr.Message})
		flusher.Flush()
		return
	}
	writeSSE(w, "done", result)
	flusher.Flush()
}

func wantsEventStream(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}

func writeSSE(w http.ResponseWriter, event string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, raw)
}

type confirmActionRequest struct {
	Kind        string         `json:"kind" validate:"required,oneof=create_task add_subtasks convert_note"`
	TargetID    string         `json:"target_id" validate:"omitempty,uuid"`
	Description string         `json:"description"`
	Params      map[string]any `json:"params"`
	Confidence  float64        `json:"confidence"`
}

func (h *Handlers) aiConfirmAction(w http.ResponseWriter, r *http.Request) {
	var req confirmActionRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	if err := validateStruct(req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	result, err := h.assistant.ConfirmAction(r.Context(), currentUserID(r.Context()), ai.ActionSuggestion{
		Kind:        req.Kind,
		TargetID:    req.TargetID,
		Description: req.Description,
		Params:      req.Params,
		Confidence:  req.Confidence,
	})
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondData(w, http.StatusOK, result)
}

func (h *Handlers) aiGenerateSubtasks(w http.ResponseWriter, r *http.Request) {
	result, err := h.assistant.GenerateSubtasks(r.Context(), currentUserID(r.Context()), r.PathValue("id"))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondData(w, http.StatusOK, result)
}

func (h *Handlers) aiConvertNote(w http.ResponseWriter, r *http.Request) {
	result, err := h.assistant.SuggestNoteConversion(r.Context(), currentUserID(r.Context()), r.PathValue("id"))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondData(w, http.StatusOK, result)
}

func (h *Handlers) aiTranscribeNote(w http.ResponseWriter, r *http.Request) {
	result, err := h.assistant.Transcribe(r.Context(), currentUserID(r.Context()), r.PathValue("id"))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondData(w, http.StatusOK, result)
}

type creditBalanceView struct {
	Daily        int64 `json:"daily"`
	Subscription int64 `json:"subscription"`
	Purchased    int64 `json:"purchased"`
	Kickstart    int64 `json:"kickstart"`
	Total        int64 `json:"total"`
}

func (h *Handlers) getCredits(w http.ResponseWriter, r *http.Request) {
	balance, err := h.credits.BalanceFor(r.Context(), currentUserID(r.Context()))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondData(w, http.StatusOK, creditBalanceView{
		Daily:        balance.Daily,
		Subscription: balance.Subscription,
		Purchased:    balance.Purchased,
		Kickstart:    balance.Kickstart,
		Total:        balance.Total(),
	})
}
