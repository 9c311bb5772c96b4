// Package api implements the node-local Query API of spec §6: read-only
// credibility/drift/correlation/sync endpoints plus the packet
// generate/seal write path, fronting pkg/scoring, pkg/memorygraph,
// pkg/replication, and pkg/seal for dashboards and CLI tooling.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/distributed-credibility/mesh/core/pkg/meshrr"
)

// ErrorBody is the API's error envelope, fixed by spec §7: "API returns
// JSON {error: kind, detail, correlation_id}".
type ErrorBody struct {
	Error         meshrr.Kind `json:"error"`
	Detail        string      `json:"detail,omitempty"`
	CorrelationID string      `json:"correlation_id,omitempty"`
}

// WriteError writes an ErrorBody response with the given HTTP status and
// meshrr.Kind.
func WriteError(w http.ResponseWriter, status int, kind meshrr.Kind, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorBody{Error: kind, Detail: detail})
}

// WriteErrorR writes an ErrorBody response enriched with a correlation ID
// taken from the X-Request-ID header, if present.
func WriteErrorR(w http.ResponseWriter, r *http.Request, status int, kind meshrr.Kind, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorBody{
		Error:         kind,
		Detail:        detail,
		CorrelationID: r.Header.Get("X-Request-ID"),
	})
}

// WriteBadRequest writes a 400 error response.
func WriteBadRequest(w http.ResponseWriter, detail string) {
	WriteError(w, http.StatusBadRequest, meshrr.KindInputInvalid, detail)
}

// WriteUnauthorized writes a 401 error response.
func WriteUnauthorized(w http.ResponseWriter, detail string) {
	if detail == "" {
		detail = "authentication required"
	}
	WriteError(w, http.StatusUnauthorized, meshrr.KindAuthorityDeny, detail)
}

// WriteForbidden writes a 403 error response, used for role-gated
// endpoints like POST .../packet/seal.
func WriteForbidden(w http.ResponseWriter, detail string) {
	if detail == "" {
		detail = "insufficient role"
	}
	WriteError(w, http.StatusForbidden, meshrr.KindAuthorityDeny, detail)
}

// WriteNotFound writes a 404 error response.
func WriteNotFound(w http.ResponseWriter, detail string) {
	WriteError(w, http.StatusNotFound, meshrr.KindInputInvalid, detail)
}

// WriteMethodNotAllowed writes a 405 error response.
func WriteMethodNotAllowed(w http.ResponseWriter) {
	WriteError(w, http.StatusMethodNotAllowed, meshrr.KindInputInvalid, "method not supported for this endpoint")
}

// WriteConflict writes a 409 error response (used for idempotency replay).
func WriteConflict(w http.ResponseWriter, detail string) {
	WriteError(w, http.StatusConflict, meshrr.KindInputInvalid, detail)
}

// WriteTooManyRequests writes a 429 error response with a Retry-After
// header.
func WriteTooManyRequests(w http.ResponseWriter, retryAfterSecs int) {
	w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfterSecs))
	WriteError(w, http.StatusTooManyRequests, meshrr.KindInputInvalid, "rate limit exceeded")
}

// WriteInternal writes a 500 error response. err is logged but never
// exposed to the client.
func WriteInternal(w http.ResponseWriter, err error) {
	slog.Error("internal server error", "error", err)
	WriteError(w, http.StatusInternalServerError, meshrr.KindFilesystem, "an unexpected error occurred")
}
