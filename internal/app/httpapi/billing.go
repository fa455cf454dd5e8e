package httpapi

import "net/http"

func (h *Handler) getBilling(w http.ResponseWriter, r *http.Request) {
	billing, err := h.credits.GetBilling(r.Context(), workspaceFromCtx(r.Context()))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, billing)
}

type addCreditsRequest struct {
	Amount      int    `json:"amount"`
	Description string `json:"description"`
}

func (h *Handler) addCredits(w http.ResponseWriter, r *http.Request) {
	var req addCreditsRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	txn, err := h.credits.AddCredits(r.Context(), workspaceFromCtx(r.Context()), req.Amount, req.Description)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, txn)
}

func (h *Handler) listTransactions(w http.ResponseWriter, r *http.Request) {
	page, limit := pagingParams(r)
	txns, err := h.credits.GetTransactions(r.Context(), workspaceFromCtx(r.Context()), page, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pagedResponse{Items: txns.Transactions, Total: txns.Total, Page: page, Limit: limit})
}
