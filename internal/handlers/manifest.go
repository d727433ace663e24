package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/otcheredev/ris-db-connector/internal/middleware"
	"github.com/otcheredev/ris-db-connector/internal/models"
	"github.com/otcheredev/ris-db-connector/internal/services"
	"github.com/rs/zerolog"
)

// PartialHeader is set on manifests built while some queries failed
const PartialHeader = "X-Manifest-Partial"

type ManifestHandler struct {
	manifestService *services.ManifestService
}

func NewManifestHandler(manifestService *services.ManifestService) *ManifestHandler {
	return &ManifestHandler{
		manifestService: manifestService,
	}
}

type createManifestRequest struct {
	models.QueryParams
	Format string `json:"format,omitempty"`
}

// GetManifest builds a manifest from the query string and writes it directly
func (h *ManifestHandler) GetManifest(w http.ResponseWriter, r *http.Request) {
	format, err := services.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, r, err, "Invalid manifest format")
		return
	}

	params := paramsFromQuery(r.URL.Query())
	params.Archive, _ = middleware.GetArchive(r.Context())
	ctx := services.WithRemoteAddr(r.Context(), r.RemoteAddr)

	result, err := h.manifestService.Build(ctx, params)
	if err != nil {
		writeError(w, r, err, "Failed to build manifest")
		return
	}

	var body bytes.Buffer
	if err := h.manifestService.Render(&body, result, format); err != nil {
		writeError(w, r, err, "Failed to render manifest")
		return
	}

	if result.Partial != nil {
		zerolog.Ctx(ctx).Warn().Err(result.Partial).
			Str("archive", result.Archive).
			Msg("Manifest is missing results of failed queries")
		w.Header().Set(PartialHeader, "true")
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Write(body.Bytes())
}

// CreateManifest builds and stores a manifest for a later viewer fetch
func (h *ManifestHandler) CreateManifest(w http.ResponseWriter, r *http.Request) {
	var req createManifestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
		return
	}

	format, err := services.ParseFormat(req.Format)
	if err != nil {
		writeError(w, r, err, "Invalid manifest format")
		return
	}
	if req.Archive == "" {
		req.Archive, _ = middleware.GetArchive(r.Context())
	}
	req.QueryParams = cleanParams(req.QueryParams)

	ctx := services.WithRemoteAddr(r.Context(), r.RemoteAddr)
	ref, result, err := h.manifestService.Store(ctx, req.QueryParams, format)
	if err != nil {
		writeError(w, r, err, "Failed to create manifest")
		return
	}

	ref.URL = manifestURL(r, ref.ID)
	if result.Partial != nil {
		w.Header().Set(PartialHeader, "true")
	}
	writeJSON(w, http.StatusCreated, ref)
}

// FetchManifest returns a stored manifest
func (h *ManifestHandler) FetchManifest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	stored, err := h.manifestService.Fetch(r.Context(), id)
	if err != nil {
		writeError(w, r, err, "Failed to fetch manifest")
		return
	}

	w.Header().Set("Content-Type", stored.ContentType)
	w.Write(stored.Body)
}

// DeleteManifest drops a stored manifest
func (h *ManifestHandler) DeleteManifest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.manifestService.Delete(r.Context(), id); err != nil {
		writeError(w, r, err, "Failed to delete manifest")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PurgeManifests drops every stored manifest
func (h *ManifestHandler) PurgeManifests(w http.ResponseWriter, r *http.Request) {
	if err := h.manifestService.Purge(r.Context()); err != nil {
		writeError(w, r, err, "Failed to purge manifests")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func paramsFromQuery(q url.Values) models.QueryParams {
	return models.QueryParams{
		PatientIDs:       trimValues(q["patientID"]),
		StudyUIDs:        splitValues(q["studyUID"]),
		AccessionNumbers: trimValues(q["accessionNumber"]),
		SeriesUIDs:       splitValues(q["seriesUID"]),
		SOPInstanceUIDs:  splitValues(q["objectUID"]),
	}
}

func cleanParams(p models.QueryParams) models.QueryParams {
	p.PatientIDs = trimValues(p.PatientIDs)
	p.StudyUIDs = splitValues(p.StudyUIDs)
	p.AccessionNumbers = trimValues(p.AccessionNumbers)
	p.SeriesUIDs = splitValues(p.SeriesUIDs)
	p.SOPInstanceUIDs = splitValues(p.SOPInstanceUIDs)
	return p
}

// splitValues accepts repeated and comma separated UIDs, dropping blanks
func splitValues(values []string) []string {
	var out []string
	for _, v := range values {
		out = append(out, trimValues(strings.Split(v, ","))...)
	}
	return out
}

// trimValues keeps each value whole. Patient IDs and accession numbers may
// contain commas.
func trimValues(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func manifestURL(r *http.Request, id string) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return fmt.Sprintf("%s://%s/api/v1/manifests/%s", scheme, r.Host, id)
}
