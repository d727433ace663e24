package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/otcheredev/ris-db-connector/internal/models"
	"github.com/otcheredev/ris-db-connector/internal/services"
	"github.com/rs/zerolog"
)

// AuditReader lists the audit trail of an archive
type AuditReader interface {
	GetByArchive(ctx context.Context, archive string, limit, offset int) ([]models.AuditLog, error)
}

type ArchiveHandler struct {
	registry *services.ArchiveRegistry
	audit    AuditReader
}

// NewArchiveHandler creates the archive management handler. audit may be nil
// when auditing is disabled.
func NewArchiveHandler(registry *services.ArchiveRegistry, audit AuditReader) *ArchiveHandler {
	return &ArchiveHandler{
		registry: registry,
		audit:    audit,
	}
}

// ListArchives returns every configured archive
func (h *ArchiveHandler) ListArchives(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.registry.List())
}

// TestConnection pings an archive database
func (h *ArchiveHandler) TestConnection(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	status, err := h.registry.TestConnection(r.Context(), name)
	if status == nil {
		writeError(w, r, err, "Failed to test archive connection")
		return
	}
	if err != nil {
		// Still return the status with error info
		zerolog.Ctx(r.Context()).Warn().Err(err).Str("archive", name).Msg("Connection test failed")
	}

	writeJSON(w, http.StatusOK, status)
}

// GetAuditLogs returns the most recent audit entries of an archive
func (h *ArchiveHandler) GetAuditLogs(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "Auditing is disabled"})
		return
	}

	name := chi.URLParam(r, "name")
	if _, err := h.registry.Engine(name); err != nil {
		writeError(w, r, err, "Failed to get audit logs")
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	logs, err := h.audit.GetByArchive(r.Context(), name, limit, offset)
	if err != nil {
		writeError(w, r, err, "Failed to get audit logs")
		return
	}
	writeJSON(w, http.StatusOK, logs)
}
