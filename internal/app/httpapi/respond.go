package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/enrichlayer/core/internal/app/apierr"
)

var errMissingWorkspace = errors.New("X-Workspace-ID header is required")

// decodeJSON mirrors the teacher's handler.go decodeJSON: reject unknown
// fields so a typo in a request body fails loudly instead of silently
// dropping data.
func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

// writeDomainError maps an apierr.Code to its HTTP status, the transport
// boundary apierr.go's doc comment anticipates every caller needing.
func writeDomainError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch apierr.CodeOf(err) {
	case apierr.CodeValidation:
		status = http.StatusBadRequest
	case apierr.CodeAuthentication:
		status = http.StatusUnauthorized
	case apierr.CodeAuthorization:
		status = http.StatusForbidden
	case apierr.CodeNotFound:
		status = http.StatusNotFound
	case apierr.CodeConflict:
		status = http.StatusConflict
	case apierr.CodeInsufficientCredits:
		status = http.StatusPaymentRequired
	case apierr.CodeRateLimitExceeded:
		status = http.StatusTooManyRequests
	case apierr.CodeInternal:
		status = http.StatusInternalServerError
	}
	writeError(w, status, err)
}
