package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type storeCredentialRequest struct {
	ProviderName string `json:"providerName"`
	Key          string `json:"key"`
	Secret       string `json:"secret"`
}

type credentialResponse struct {
	ID           string `json:"id"`
	WorkspaceID  string `json:"workspaceId"`
	ProviderName string `json:"providerName"`
}

// storeCredential never returns the stored key/secret ciphertext back to
// the caller; the only safe post-write read is credentialResponse's id,
// matching the vault package's own List()/MaskedCredential stance that
// credential material is write-only once stored.
func (h *Handler) storeCredential(w http.ResponseWriter, r *http.Request) {
	var req storeCredentialRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	cred, err := h.creds.Store(r.Context(), h.masterKey, workspaceFromCtx(r.Context()), req.ProviderName, req.Key, req.Secret, userFromCtx(r.Context()))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, credentialResponse{ID: cred.ID, WorkspaceID: cred.WorkspaceID, ProviderName: cred.ProviderName})
}

func (h *Handler) listCredentials(w http.ResponseWriter, r *http.Request) {
	creds, err := h.creds.List(r.Context(), h.masterKey, workspaceFromCtx(r.Context()))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, creds)
}

func (h *Handler) deleteCredential(w http.ResponseWriter, r *http.Request) {
	if err := h.creds.Delete(r.Context(), chi.URLParam(r, "credentialID")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type rotateCredentialRequest struct {
	Key    string `json:"key"`
	Secret string `json:"secret"`
}

func (h *Handler) rotateCredential(w http.ResponseWriter, r *http.Request) {
	var req rotateCredentialRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	cred, err := h.creds.RotateCredential(r.Context(), h.masterKey, chi.URLParam(r, "credentialID"), req.Key, req.Secret)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, credentialResponse{ID: cred.ID, WorkspaceID: cred.WorkspaceID, ProviderName: cred.ProviderName})
}
