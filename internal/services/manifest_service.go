package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/otcheredev/ris-db-connector/internal/cache"
	"github.com/otcheredev/ris-db-connector/internal/manifest"
	"github.com/otcheredev/ris-db-connector/internal/models"
	"github.com/otcheredev/ris-db-connector/internal/query"
	"github.com/otcheredev/ris-db-connector/internal/repository"
	"github.com/rs/zerolog"
)

// Format selects the manifest rendering
type Format string

const (
	FormatXML  Format = "xml"
	FormatJSON Format = "json"
)

// ParseFormat resolves a format name; empty means XML
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatXML:
		return FormatXML, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, s)
	}
}

// ContentType returns the media type of f
func (f Format) ContentType() string {
	if f == FormatJSON {
		return manifest.ContentTypeDICOMJSON
	}
	return manifest.ContentTypeXML
}

// ManifestObserver is told about every rendered manifest
type ManifestObserver interface {
	ManifestServed(archive, format string)
}

// Result is the outcome of one manifest build
type Result struct {
	Archive  string
	Patients []*models.Patient
	Counts   query.Counts
	// Partial is set when some queries failed but others produced patients
	Partial error
}

// StoredManifest is a rendered manifest kept for a later viewer fetch
type StoredManifest struct {
	ID          string    `json:"id"`
	Archive     string    `json:"archive"`
	ContentType string    `json:"content_type"`
	Body        []byte    `json:"body"`
	CreatedAt   time.Time `json:"created_at"`
}

// ManifestService builds viewer manifests from archive databases
type ManifestService struct {
	registry *ArchiveRegistry
	audit    repository.AuditStore
	cache    cache.Cache
	ttl      time.Duration
	baseURL  string
	observer ManifestObserver
}

// ManifestOption configures a ManifestService
type ManifestOption func(*ManifestService)

// WithManifestObserver reports rendered manifests to o
func WithManifestObserver(o ManifestObserver) ManifestOption {
	return func(s *ManifestService) { s.observer = o }
}

// WithBaseURL sets the WADO base URL written into XML manifests
func WithBaseURL(url string) ManifestOption {
	return func(s *ManifestService) { s.baseURL = url }
}

// NewManifestService creates a new manifest service
func NewManifestService(
	registry *ArchiveRegistry,
	audit repository.AuditStore,
	cache cache.Cache,
	ttl time.Duration,
	opts ...ManifestOption,
) *ManifestService {
	if audit == nil {
		audit = repository.NopAuditStore{}
	}
	s := &ManifestService{
		registry: registry,
		audit:    audit,
		cache:    cache,
		ttl:      ttl,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry returns the archive registry
func (s *ManifestService) Registry() *ArchiveRegistry {
	return s.registry
}

// Build runs every search key of params against the selected archive.
// When some queries fail but patients were found, the result is returned
// with Partial set instead of an error.
func (s *ManifestService) Build(ctx context.Context, params models.QueryParams) (*Result, error) {
	engine, err := s.registry.Engine(params.Archive)
	if err != nil {
		return nil, err
	}
	if params.IsEmpty() {
		return nil, query.ErrNoSearchKeys
	}

	start := time.Now()
	session := engine.NewSession()
	buildErr := session.BuildFromParams(ctx, params)

	result := &Result{
		Archive:  engine.Name(),
		Patients: session.Patients(),
		Counts:   session.Counts(),
	}

	s.record(ctx, engine.Name(), params, result, buildErr, time.Since(start))

	if buildErr != nil {
		if len(result.Patients) == 0 {
			return nil, buildErr
		}
		result.Partial = buildErr
	}
	return result, nil
}

// Render writes result in format f
func (s *ManifestService) Render(w io.Writer, result *Result, f Format) error {
	var err error
	switch f {
	case FormatJSON:
		err = manifest.WriteDICOMJSON(w, result.Patients)
	case FormatXML:
		err = manifest.WriteXML(w, manifest.Manifest{
			ArchiveID: result.Archive,
			BaseURL:   s.baseURL,
			Patients:  result.Patients,
		})
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, f)
	}
	if err != nil {
		return err
	}
	if s.observer != nil {
		s.observer.ManifestServed(result.Archive, string(f))
	}
	return nil
}

// Store builds and renders a manifest and keeps it for the configured TTL
func (s *ManifestService) Store(ctx context.Context, params models.QueryParams, f Format) (*models.ManifestRef, *Result, error) {
	result, err := s.Build(ctx, params)
	if err != nil {
		return nil, nil, err
	}

	var body bytes.Buffer
	if err := s.Render(&body, result, f); err != nil {
		return nil, nil, err
	}

	stored := StoredManifest{
		ID:          uuid.NewString(),
		Archive:     result.Archive,
		ContentType: f.ContentType(),
		Body:        body.Bytes(),
		CreatedAt:   time.Now().UTC(),
	}
	data, err := json.Marshal(stored)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := s.cache.Set(ctx, cache.ManifestKey(stored.ID), data, s.ttl); err != nil {
		return nil, nil, fmt.Errorf("failed to store manifest: %w", err)
	}

	zerolog.Ctx(ctx).Info().
		Str("manifest_id", stored.ID).
		Str("archive", stored.Archive).
		Int("patients", result.Counts.Patients).
		Int("instances", result.Counts.Instances).
		Msg("Manifest stored")

	return &models.ManifestRef{
		ID:        stored.ID,
		Archive:   stored.Archive,
		ExpiresAt: stored.CreatedAt.Add(s.ttl),
	}, result, nil
}

// Fetch returns a stored manifest
func (s *ManifestService) Fetch(ctx context.Context, id string) (*StoredManifest, error) {
	data, err := s.cache.Get(ctx, cache.ManifestKey(id))
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil, fmt.Errorf("%w: %s", ErrManifestNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	var stored StoredManifest
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("failed to decode manifest %s: %w", id, err)
	}
	return &stored, nil
}

// Delete drops a stored manifest
func (s *ManifestService) Delete(ctx context.Context, id string) error {
	exists, err := s.cache.Exists(ctx, cache.ManifestKey(id))
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrManifestNotFound, id)
	}
	return s.cache.Delete(ctx, cache.ManifestKey(id))
}

// Purge drops every stored manifest
func (s *ManifestService) Purge(ctx context.Context) error {
	return s.cache.Clear(ctx, cache.ManifestPattern())
}

func (s *ManifestService) record(ctx context.Context, archive string, params models.QueryParams, result *Result, buildErr error, elapsed time.Duration) {
	entry := &models.AuditLog{
		Archive:       archive,
		Action:        "build_manifest",
		KeyKind:       strings.Join(keyKinds(params), ","),
		SearchKeys:    describeKeys(params),
		RemoteAddr:    RemoteAddr(ctx),
		Status:        models.AuditStatusSuccess,
		PatientCount:  result.Counts.Patients,
		InstanceCount: result.Counts.Instances,
		Duration:      elapsed.Milliseconds(),
	}
	if buildErr != nil {
		entry.ErrorMessage = buildErr.Error()
		entry.Status = models.AuditStatusFailure
		if len(result.Patients) > 0 {
			entry.Status = models.AuditStatusPartial
		}
	}

	if err := s.audit.Create(ctx, entry); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("archive", archive).Msg("Failed to write audit log")
	}
}

type searchKeys struct {
	kind query.KeyKind
	keys []string
}

func paramKeys(p models.QueryParams) []searchKeys {
	return []searchKeys{
		{query.KeyPatientID, p.PatientIDs},
		{query.KeyStudyInstanceUID, p.StudyUIDs},
		{query.KeyAccessionNumber, p.AccessionNumbers},
		{query.KeySeriesInstanceUID, p.SeriesUIDs},
		{query.KeySOPInstanceUID, p.SOPInstanceUIDs},
	}
}

func keyKinds(p models.QueryParams) []string {
	var kinds []string
	for _, pk := range paramKeys(p) {
		if len(pk.keys) > 0 {
			kinds = append(kinds, pk.kind.String())
		}
	}
	return kinds
}

func describeKeys(p models.QueryParams) string {
	var parts []string
	for _, pk := range paramKeys(p) {
		if list := query.ValueList(pk.keys); list != "" {
			parts = append(parts, pk.kind.String()+"="+list)
		}
	}
	return strings.Join(parts, ";")
}

type remoteAddrKey struct{}

// WithRemoteAddr attaches the requesting address for the audit trail
func WithRemoteAddr(ctx context.Context, addr string) context.Context {
	return context.WithValue(ctx, remoteAddrKey{}, addr)
}

// RemoteAddr returns the address set by WithRemoteAddr
func RemoteAddr(ctx context.Context) string {
	addr, _ := ctx.Value(remoteAddrKey{}).(string)
	return addr
}
