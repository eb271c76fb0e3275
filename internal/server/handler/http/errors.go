package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/covaultio/covault/internal/models"
)

// writeError maps the protocol error taxonomy onto HTTP status codes.
// Authorization failures are 403, unknown handles 404, proof failures
// 422, lifecycle violations 409, everything else 500.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrAuthorization):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, models.ErrUnknownHandle):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, models.ErrProofVerification):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, models.ErrState):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// writeJSON writes v as the JSON response body.
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
