package http

import (
	"net/http"
)

type notificationListView struct {
	Notifications []notificationView `json:"notifications"`
	UnreadCount   int                `json:"unread_count"`
}

func (h *Handlers) listNotifications(w http.ResponseWriter, r *http.Request) {
	offset := queryInt(r, "offset", 0, 0, 1<<30)
	limit := queryInt(r, "limit", 50, 1, 100)

	notifications, unread, err := h.notifyStore.ListNotifications(r.Context(), currentUserID(r.Context()), offset, limit)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	out := make([]notificationView, 0, len(notifications))
	for _, n := range notifications {
		out = append(out, viewNotification(n))
	}
	respondData(w, http.StatusOK, notificationListView{Notifications: out, UnreadCount: unread})
}

func (h *Handlers) markNotificationRead(w http.ResponseWriter, r *http.Request) {
	if err := h.notifyStore.MarkRead(r.Context(), currentUserID(r.Context()), r.PathValue("id")); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondNoContent(w)
}

func (h *Handlers) markAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	count, err := h.notifyStore.MarkAllRead(r.Context(), currentUserID(r.Context()))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondData(w, http.StatusOK, map[string]int64{"marked_read": count})
}

type pushSubscriptionRequest struct {
	Endpoint string `json:"endpoint" validate:"required,url"`
	P256DH   string `json:"p256dh" validate:"required"`
	Auth     string `json:"auth" validate:"required"`
}

func (h *Handlers) upsertPushSubscription(w http.ResponseWriter, r *http.Request) {
	var req pushSubscriptionRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	if err := validateStruct(req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	sub, err := h.notifyStore.UpsertPushSubscription(r.Context(), currentUserID(r.Context()), req.Endpoint, req.P256DH, req.Auth)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondData(w, http.StatusCreated, map[string]any{
		"id":       sub.ID,
		"endpoint": sub.Endpoint,
		"active":   sub.Active,
	})
}

type deletePushSubscriptionRequest struct {
	Endpoint string `json:"endpoint" validate:"required,url"`
}

func (h *Handlers) deletePushSubscription(w http.ResponseWriter, r *http.Request) {
	var req deletePushSubscriptionRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	if err := validateStruct(req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	if err := h.notifyStore.DeletePushSubscription(r.Context(), currentUserID(r.Context()), req.Endpoint); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondNoContent(w)
}
