package handlers

import (
	"github.com/go-chi/chi/v5"
	"github.com/otcheredev/ris-db-connector/internal/middleware"
)

// Mount registers the health checks, the viewer manifest endpoint and the
// management API on r
func Mount(r chi.Router, health *HealthHandler, manifests *ManifestHandler, archives *ArchiveHandler) {
	r.Get("/health", health.Health)
	r.Get("/ready", health.Ready)

	// Viewer endpoint
	r.With(middleware.Archive).Get("/manifest", manifests.GetManifest)

	// Management API
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/archives", archives.ListArchives)
		r.Post("/archives/{name}/test", archives.TestConnection)
		r.Get("/archives/{name}/audit", archives.GetAuditLogs)

		r.With(middleware.Archive).Post("/manifests", manifests.CreateManifest)
		r.Delete("/manifests", manifests.PurgeManifests)
		r.Get("/manifests/{id}", manifests.FetchManifest)
		r.Delete("/manifests/{id}", manifests.DeleteManifest)
	})
}
