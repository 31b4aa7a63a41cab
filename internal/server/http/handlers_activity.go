package http

import (
	"net/http"
)

func (h *Handlers) listActivity(w http.ResponseWriter, r *http.Request) {
	offset := queryInt(r, "offset", 0, 0, 1<<30)
	limit := queryInt(r, "limit", 50, 1, 100)

	records, total, err := h.activity.List(r.Context(), currentUserID(r.Context()), offset, limit)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	out := make([]activityView, 0, len(records))
	for _, rec := range records {
		out = append(out, viewActivity(rec))
	}
	respondList(w, out, Pagination{
		Offset:  offset,
		Limit:   limit,
		Total:   total,
		HasMore: offset+len(records) < total,
	})
}

func (h *Handlers) getAchievements(w http.ResponseWriter, r *http.Request) {
	state, err := h.achievements.State(r.Context(), h.db, currentUserID(r.Context()))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondData(w, http.StatusOK, viewAchievements(state, h.achievements.Definitions()))
}

func (h *Handlers) getAchievementStats(w http.ResponseWriter, r *http.Request) {
	state, err := h.achievements.State(r.Context(), h.db, currentUserID(r.Context()))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondData(w, http.StatusOK, viewAchievementStats(state))
}
