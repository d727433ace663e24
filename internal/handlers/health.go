package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/otcheredev/ris-db-connector/internal/database"
	"github.com/otcheredev/ris-db-connector/internal/services"
)

const checkTimeout = 5 * time.Second

type HealthHandler struct {
	registry *services.ArchiveRegistry
	// pingAudit is nil when the audit database is disabled
	pingAudit func() error
}

func NewHealthHandler(registry *services.ArchiveRegistry, auditEnabled bool) *HealthHandler {
	h := &HealthHandler{registry: registry}
	if auditEnabled {
		h.pingAudit = database.Ping
	}
	return h
}

type healthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]string `json:"services"`
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
	defer cancel()

	response := healthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Services:  make(map[string]string),
	}

	// Check audit database
	if h.pingAudit != nil {
		if err := h.pingAudit(); err != nil {
			response.Services["audit_database"] = "unhealthy"
			response.Status = "degraded"
		} else {
			response.Services["audit_database"] = "healthy"
		}
	}

	// Check archives
	failures := h.registry.TestAll(ctx)
	for _, a := range h.registry.List() {
		if _, failed := failures[a.Name]; failed {
			response.Services["archive:"+a.Name] = "unhealthy"
			response.Status = "degraded"
		} else {
			response.Services["archive:"+a.Name] = "healthy"
		}
	}

	status := http.StatusOK
	if response.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, response)
}

func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.registry.Len() == 0 {
		http.Error(w, "No archive configured", http.StatusServiceUnavailable)
		return
	}
	if h.pingAudit != nil && h.pingAudit() != nil {
		http.Error(w, "Service not ready", http.StatusServiceUnavailable)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
