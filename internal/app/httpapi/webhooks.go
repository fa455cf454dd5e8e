package httpapi

import "net/http"

type createWebhookSubscriptionRequest struct {
	CallbackURL string   `json:"callbackUrl"`
	EventTypes  []string `json:"eventTypes"`
}

func (h *Handler) createWebhookSubscription(w http.ResponseWriter, r *http.Request) {
	var req createWebhookSubscriptionRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sub, err := h.webhooks.CreateSubscription(r.Context(), workspaceFromCtx(r.Context()), userFromCtx(r.Context()), req.CallbackURL, req.EventTypes)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}
