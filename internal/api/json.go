package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"cflp/internal/model"
	"cflp/internal/opt"
	"cflp/internal/store"
)

// Problem represents an RFC7807 problem details response body.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, title, detail, instance string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Problem{
		Type:     "about:blank",
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	})
}

// writeError maps engine errors onto problem responses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, model.ErrValidation):
		log.Error().Err(err).Str("path", r.URL.Path).Msg("invalid scenario")
		writeProblem(w, http.StatusUnprocessableEntity, "Invalid scenario", err.Error(), r.URL.Path)
	case errors.Is(err, opt.ErrParams):
		writeProblem(w, http.StatusBadRequest, "Invalid solver options", err.Error(), r.URL.Path)
	case errors.Is(err, store.ErrInvalidKey):
		writeProblem(w, http.StatusBadRequest, "Invalid scenario key", err.Error(), r.URL.Path)
	case errors.Is(err, store.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Not Found", err.Error(), r.URL.Path)
	case errors.Is(err, store.ErrCorrupt):
		writeProblem(w, http.StatusConflict, "Corrupt record", err.Error(), r.URL.Path)
	case errors.Is(err, store.ErrLockTimeout):
		writeProblem(w, http.StatusServiceUnavailable, "Scenario busy", err.Error(), r.URL.Path)
	default:
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeProblem(w, http.StatusInternalServerError, "Internal error", err.Error(), r.URL.Path)
	}
}
