// Package httpapi implements the HTTP surface of spec.md §6: a thin
// net/http.ServeMux router over the in-process component set, mirroring
// the teacher's bare-ServeMux style in internal/rpc/http_server.go.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/habitatcp/controlplane/internal/cperrors"
)

// writeJSON encodes v as the response body with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err to a status code via its cperrors.Kind and writes
// a {"error": "..."} body, per spec.md §7 / SPEC_FULL.md §7:
// Validation->400, NotFound->404, TransientBus->502, DurableStoreFailure
// and Unrecoverable->500 (a durable-store failure never reaches this
// layer in practice — every write path logs and keeps the in-memory
// mutation instead of returning the error — but the mapping is defined
// for completeness).
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch cperrors.KindOf(err) {
	case cperrors.KindValidation:
		status = http.StatusBadRequest
	case cperrors.KindNotFound:
		status = http.StatusNotFound
	case cperrors.KindTransientBus:
		status = http.StatusBadGateway
	case cperrors.KindDurableStoreFailure, cperrors.KindUnrecoverable:
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// decodeJSON reads and unmarshals the request body into v, returning a
// Validation error on failure so the caller can just `return` it.
func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return cperrors.Wrap(cperrors.KindValidation, "decode request body", err)
	}
	return nil
}
