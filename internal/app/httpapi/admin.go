package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// adminAudit is adapted from the teacher's handler.go adminAudit: same
// limit/offset/filter-by-field shape, filtering on workspace instead of
// tenant and dropping the role filter since this module has no role
// system.
func (h *Handler) adminAudit(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		writeJSON(w, http.StatusOK, []auditEntry{})
		return
	}
	limit, err := parseLimitParam(r.URL.Query().Get("limit"), 200)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	offset := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("offset")); raw != "" {
		val, convErr := strconv.Atoi(raw)
		if convErr != nil || val < 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("offset must be a non-negative integer"))
			return
		}
		offset = val
	}

	entries := h.audit.listLimit(limit + offset)
	q := r.URL.Query()
	workspace := strings.ToLower(strings.TrimSpace(q.Get("workspace")))
	method := strings.ToLower(strings.TrimSpace(q.Get("method")))
	pathContains := strings.ToLower(strings.TrimSpace(q.Get("contains")))
	statusStr := strings.TrimSpace(q.Get("status"))
	var statusFilter *int
	if statusStr != "" {
		if v, convErr := strconv.Atoi(statusStr); convErr == nil && v > 0 {
			statusFilter = &v
		} else {
			writeError(w, http.StatusBadRequest, fmt.Errorf("status must be a positive integer"))
			return
		}
	}

	var filtered []auditEntry
	for _, e := range entries {
		if workspace != "" && strings.ToLower(e.Workspace) != workspace {
			continue
		}
		if method != "" && strings.ToLower(e.Method) != method {
			continue
		}
		if pathContains != "" && !strings.Contains(strings.ToLower(e.Path), pathContains) {
			continue
		}
		if statusFilter != nil && e.Status != *statusFilter {
			continue
		}
		filtered = append(filtered, e)
	}
	if offset > 0 && offset < len(filtered) {
		filtered = filtered[offset:]
	} else if offset >= len(filtered) {
		filtered = []auditEntry{}
	}
	if len(filtered) > limit {
		filtered = filtered[:limit]
	}
	writeJSON(w, http.StatusOK, filtered)
}

func parseLimitParam(raw string, defaultLimit int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return defaultLimit, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return 0, fmt.Errorf("limit must be a positive integer")
	}
	if parsed > 1000 {
		parsed = 1000
	}
	return parsed, nil
}
