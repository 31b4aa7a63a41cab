package http

import (
	"encoding/json"
	"io"
	"net/http"

	"taskhive/internal/apperr"
	"taskhive/internal/billing"
)

func (h *Handlers) getSubscription(w http.ResponseWriter, r *http.Request) {
	sub, err := h.billing.Get(r.Context(), currentUserID(r.Context()))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondData(w, http.StatusOK, viewSubscription(sub))
}

func (h *Handlers) checkoutSubscription(w http.ResponseWriter, r *http.Request) {
	url, err := h.billing.Checkout(r.Context(), currentUserID(r.Context()))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondData(w, http.StatusOK, map[string]string{"checkout_url": url})
}

func (h *Handlers) cancelSubscription(w http.ResponseWriter, r *http.Request) {
	if err := h.billing.Cancel(r.Context(), currentUserID(r.Context())); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondNoContent(w)
}

// checkoutWebhook is the payment provider's entry point. Signature failures
// are 401s; everything the provider should retry is a 5xx, everything it
// should not is a 2xx.
func (h *Handlers) checkoutWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		respondError(w, r, h.logger, apperr.Validation("unreadable webhook body"))
		return
	}
	if !h.billing.VerifySignature(body, r.Header.Get("Cko-Signature")) {
		respondError(w, r, h.logger, apperr.Unauthorized("invalid webhook signature"))
		return
	}

	var payload billing.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		respondError(w, r, h.logger, apperr.Validation("malformed webhook payload"))
		return
	}
	if err := h.billing.ProcessWebhook(r.Context(), payload); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondData(w, http.StatusOK, map[string]string{"status": "processed"})
}
