package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/otcheredev/ris-db-connector/internal/query"
	"github.com/otcheredev/ris-db-connector/internal/services"
	"github.com/rs/zerolog"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// statusFor maps service errors to HTTP status codes. A joined error takes
// the most severe status of its parts.
func statusFor(err error) int {
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		status := 0
		for _, e := range joined.Unwrap() {
			if s := statusFor(e); s > status {
				status = s
			}
		}
		if status != 0 {
			return status
		}
	}
	switch {
	case errors.Is(err, services.ErrArchiveNotFound),
		errors.Is(err, services.ErrManifestNotFound):
		return http.StatusNotFound
	case errors.Is(err, query.ErrNoSearchKeys),
		errors.Is(err, query.ErrKeyKindNotConfigured),
		errors.Is(err, services.ErrUnsupportedFormat):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	status := statusFor(err)
	l := zerolog.Ctx(r.Context())
	if status == http.StatusInternalServerError {
		l.Error().Err(err).Msg(msg)
		writeJSON(w, status, errorResponse{Error: msg})
		return
	}
	l.Warn().Err(err).Msg(msg)
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
