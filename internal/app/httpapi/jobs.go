package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/enrichlayer/core/internal/app/core/service"
	domainenrichment "github.com/enrichlayer/core/internal/app/domain/enrichment"
	"github.com/enrichlayer/core/internal/app/domain/provider"
	"github.com/enrichlayer/core/internal/app/enrichment"
)

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createJobRequest struct {
	Records         []domainenrichment.Record `json:"records"`
	Fields          []provider.Field          `json:"fields"`
	WaterfallConfig provider.WaterfallConfig  `json:"waterfallConfig"`
}

func (h *Handler) createJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	job, err := h.enrichment.CreateJob(r.Context(), enrichment.CreateJobInput{
		WorkspaceID:     workspaceFromCtx(r.Context()),
		UserID:          userFromCtx(r.Context()),
		Records:         req.Records,
		Fields:          req.Fields,
		WaterfallConfig: req.WaterfallConfig,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

func (h *Handler) getJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.enrichment.GetJob(r.Context(), workspaceFromCtx(r.Context()), chi.URLParam(r, "jobID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *Handler) cancelJob(w http.ResponseWriter, r *http.Request) {
	if err := h.enrichment.CancelJob(r.Context(), workspaceFromCtx(r.Context()), chi.URLParam(r, "jobID")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listJobs(w http.ResponseWriter, r *http.Request) {
	page, limit := pagingParams(r)
	jobs, total, err := h.enrichment.ListJobs(r.Context(), workspaceFromCtx(r.Context()), page, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pagedResponse{Items: jobs, Total: total, Page: page, Limit: limit})
}

func (h *Handler) getRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := h.enrichment.GetRecord(r.Context(), workspaceFromCtx(r.Context()), chi.URLParam(r, "recordID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) listRecords(w http.ResponseWriter, r *http.Request) {
	page, limit := pagingParams(r)
	recs, total, err := h.enrichment.ListRecords(r.Context(), workspaceFromCtx(r.Context()), chi.URLParam(r, "jobID"), page, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pagedResponse{Items: recs, Total: total, Page: page, Limit: limit})
}

type pagedResponse struct {
	Items interface{} `json:"items"`
	Total int         `json:"total"`
	Page  int         `json:"page"`
	Limit int         `json:"limit"`
}

// pagingParams mirrors the teacher's parseLimitParam (page defaults to 1,
// limit clamped via service.ClampLimit) but tolerates a bad query value by
// falling back to the default instead of failing the request, since
// paging here is a convenience, not a contract the client depends on.
func pagingParams(r *http.Request) (page, limit int) {
	page = 1
	if v, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && v > 0 {
		page = v
	}
	rawLimit := 0
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil {
		rawLimit = v
	}
	limit = service.ClampLimit(rawLimit, service.DefaultListLimit, service.MaxListLimit)
	return page, limit
}
