package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/magiconair/properties"
	"github.com/otcheredev/ris-db-connector/internal/adapters"
	"github.com/otcheredev/ris-db-connector/internal/cache"
	"github.com/otcheredev/ris-db-connector/internal/manifest"
	"github.com/otcheredev/ris-db-connector/internal/models"
	"github.com/otcheredev/ris-db-connector/internal/query"
	"github.com/otcheredev/ris-db-connector/internal/services"
)

const archiveProps = `
arc.name=main
arc.db.uri=postgres://viewer@localhost/pacs
arc.db.query.select=select * from v_dicom
arc.db.query.studies.where=study_iuid in (%studies%)
arc.db.query.series.where=series_iuid in (%series%)
arc.db.query.patientid=pat_id
arc.db.query.setpatientname=pat_name
arc.db.query.studyinstanceuid=study_iuid
arc.db.query.seriesinstanceuid=series_iuid
arc.db.query.sopinstanceuid=sop_iuid
`

type sliceCursor struct {
	rows []query.Row
	pos  int
}

func (c *sliceCursor) Next() bool {
	c.pos++
	return c.pos <= len(c.rows)
}

func (c *sliceCursor) Row() (query.Row, error) { return c.rows[c.pos-1], nil }
func (c *sliceCursor) Err() error              { return nil }
func (c *sliceCursor) Close() error            { return nil }

type fakeAdapter struct {
	rows    map[query.KeyKind][]query.Row
	fail    map[query.KeyKind]error
	pingErr error
	keys    [][]any
}

func (a *fakeAdapter) Name() string { return "main" }

func (a *fakeAdapter) Driver() models.ArchiveDriver { return models.ArchiveDriverPostgres }

func (a *fakeAdapter) Query(ctx context.Context, stmt query.Statement) (query.Cursor, error) {
	a.keys = append(a.keys, stmt.Args)
	if err := a.fail[stmt.Kind]; err != nil {
		return nil, err
	}
	return &sliceCursor{rows: a.rows[stmt.Kind]}, nil
}

func (a *fakeAdapter) Placeholder() query.Placeholder { return query.PlaceholderQuestion }

func (a *fakeAdapter) TestConnection(ctx context.Context) (*models.ConnectionStatus, error) {
	status := &models.ConnectionStatus{LastChecked: time.Now(), IsConnected: a.pingErr == nil}
	if a.pingErr != nil {
		status.ErrorMessage = a.pingErr.Error()
	}
	return status, a.pingErr
}

func (a *fakeAdapter) Close() error { return nil }

type fakeAudit struct {
	logs []models.AuditLog
}

func (f *fakeAudit) GetByArchive(ctx context.Context, archive string, limit, offset int) ([]models.AuditLog, error) {
	return f.logs, nil
}

func row(patientID, studyUID, seriesUID, sopUID string) query.Row {
	return query.Row{
		"pat_id":      patientID,
		"pat_name":    "DOE^JANE",
		"study_iuid":  studyUID,
		"series_iuid": seriesUID,
		"sop_iuid":    sopUID,
	}
}

func newTestRouter(t *testing.T, adapter *fakeAdapter, audit AuditReader) http.Handler {
	t.Helper()
	props, err := properties.LoadString(archiveProps)
	if err != nil {
		t.Fatalf("failed to parse properties: %v", err)
	}
	settings, err := adapters.SettingsFromProperties(props, "")
	if err != nil {
		t.Fatalf("SettingsFromProperties failed: %v", err)
	}
	registry := services.NewArchiveRegistry(adapters.NewAdapterFactory(), nil)
	if err := registry.Add(settings, props, adapter); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	mc := cache.NewMemoryCache()
	t.Cleanup(func() { mc.Close() })
	svc := services.NewManifestService(registry, nil, mc, time.Minute)

	r := chi.NewRouter()
	Mount(r, NewHealthHandler(registry, false), NewManifestHandler(svc), NewArchiveHandler(registry, audit))
	return r
}

func serve(h http.Handler, method, target string, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestGetManifest(t *testing.T) {
	adapter := &fakeAdapter{rows: map[query.KeyKind][]query.Row{
		query.KeyStudyInstanceUID: {
			row("P1", "1.1", "1.1.1", "1.1.1.1"),
			row("P1", "1.2", "1.2.1", "1.2.1.1"),
		},
	}}
	h := newTestRouter(t, adapter, nil)

	rec := serve(h, http.MethodGet, "/manifest?studyUID=1.1,1.2&studyUID=%201.3%20", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != manifest.ContentTypeXML {
		t.Errorf("unexpected content type %q", ct)
	}
	if rec.Header().Get(PartialHeader) != "" {
		t.Error("complete manifest must not be flagged as partial")
	}
	if !strings.Contains(rec.Body.String(), `StudyInstanceUID="1.2"`) {
		t.Errorf("unexpected manifest:\n%s", rec.Body.String())
	}
	if len(adapter.keys) != 1 || len(adapter.keys[0]) != 3 || adapter.keys[0][2] != "1.3" {
		t.Errorf("expected three bound study keys, got %v", adapter.keys)
	}

	rec = serve(h, http.MethodGet, "/manifest?studyUID=1.1&format=json", "")
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != manifest.ContentTypeDICOMJSON {
		t.Errorf("expected a DICOM JSON manifest, got %d %q", rec.Code, rec.Header().Get("Content-Type"))
	}
}

func TestGetManifest_Errors(t *testing.T) {
	h := newTestRouter(t, &fakeAdapter{}, nil)

	tests := []struct {
		name   string
		target string
		want   int
	}{
		{"no keys", "/manifest", http.StatusBadRequest},
		{"blank keys", "/manifest?studyUID=,%20", http.StatusBadRequest},
		{"unconfigured kind", "/manifest?patientID=P1", http.StatusBadRequest},
		{"bad format", "/manifest?studyUID=1.1&format=pdf", http.StatusBadRequest},
		{"unknown archive", "/manifest?studyUID=1.1&archive=other", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := serve(h, http.MethodGet, tt.target, ""); rec.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestGetManifest_Partial(t *testing.T) {
	adapter := &fakeAdapter{
		rows: map[query.KeyKind][]query.Row{query.KeyStudyInstanceUID: {row("P1", "1.1", "1.1.1", "1.1.1.1")}},
		fail: map[query.KeyKind]error{query.KeySeriesInstanceUID: errors.New("timeout")},
	}
	h := newTestRouter(t, adapter, nil)

	rec := serve(h, http.MethodGet, "/manifest?studyUID=1.1&seriesUID=9.9", "")
	if rec.Code != http.StatusOK || rec.Header().Get(PartialHeader) != "true" {
		t.Errorf("expected a partial manifest, got %d %v", rec.Code, rec.Header())
	}

	rec = serve(h, http.MethodGet, "/manifest?seriesUID=9.9", "")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500 when nothing was found, got %d", rec.Code)
	}
}

func TestGetManifest_MixedFailuresReportServerError(t *testing.T) {
	adapter := &fakeAdapter{
		fail: map[query.KeyKind]error{query.KeySeriesInstanceUID: errors.New("timeout")},
	}
	h := newTestRouter(t, adapter, nil)

	rec := serve(h, http.MethodGet, "/manifest?patientID=P1&seriesUID=9.9", "")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500 when a query failed, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not configured", query.ErrKeyKindNotConfigured, http.StatusBadRequest},
		{"wrapped not found", fmt.Errorf("lookup: %w", services.ErrArchiveNotFound), http.StatusNotFound},
		{"generic", errors.New("boom"), http.StatusInternalServerError},
		{"joined client errors", errors.Join(query.ErrKeyKindNotConfigured, query.ErrNoSearchKeys), http.StatusBadRequest},
		{"joined with server error", errors.Join(fmt.Errorf("patient: %w", query.ErrKeyKindNotConfigured), errors.New("timeout")), http.StatusInternalServerError},
		{"wrapped join", fmt.Errorf("build: %w", errors.Join(services.ErrManifestNotFound, query.ErrNoSearchKeys)), http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := statusFor(tt.err); got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestStoredManifestLifecycle(t *testing.T) {
	adapter := &fakeAdapter{rows: map[query.KeyKind][]query.Row{
		query.KeySeriesInstanceUID: {row("P1", "1.1", "1.1.1", "1.1.1.1")},
	}}
	h := newTestRouter(t, adapter, nil)

	rec := serve(h, http.MethodPost, "/api/v1/manifests", `{"series_uids":["1.1.1"],"format":"json"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var ref models.ManifestRef
	if err := json.NewDecoder(rec.Body).Decode(&ref); err != nil {
		t.Fatalf("failed to decode ref: %v", err)
	}
	if ref.ID == "" || ref.URL != "http://example.com/api/v1/manifests/"+ref.ID {
		t.Errorf("unexpected ref %+v", ref)
	}

	rec = serve(h, http.MethodGet, "/api/v1/manifests/"+ref.ID, "")
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != manifest.ContentTypeDICOMJSON {
		t.Fatalf("expected the stored manifest, got %d %q", rec.Code, rec.Header().Get("Content-Type"))
	}
	if !strings.Contains(rec.Body.String(), "1.1.1.1") {
		t.Errorf("unexpected stored body %s", rec.Body.String())
	}

	if rec = serve(h, http.MethodDelete, "/api/v1/manifests/"+ref.ID, ""); rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
	if rec = serve(h, http.MethodGet, "/api/v1/manifests/"+ref.ID, ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", rec.Code)
	}
	if rec = serve(h, http.MethodDelete, "/api/v1/manifests", ""); rec.Code != http.StatusNoContent {
		t.Errorf("expected 204 on purge, got %d", rec.Code)
	}
	if rec = serve(h, http.MethodPost, "/api/v1/manifests", `{`); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a broken body, got %d", rec.Code)
	}
}

func TestArchiveEndpoints(t *testing.T) {
	audit := &fakeAudit{logs: []models.AuditLog{{Archive: "main", Status: models.AuditStatusSuccess}}}
	h := newTestRouter(t, &fakeAdapter{pingErr: errors.New("connection refused")}, audit)

	rec := serve(h, http.MethodGet, "/api/v1/archives", "")
	var archives []models.Archive
	if err := json.NewDecoder(rec.Body).Decode(&archives); err != nil {
		t.Fatalf("failed to decode archives: %v", err)
	}
	if len(archives) != 1 || archives[0].Name != "main" {
		t.Errorf("unexpected archives %+v", archives)
	}

	rec = serve(h, http.MethodPost, "/api/v1/archives/main/test", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("a failed test still answers 200, got %d", rec.Code)
	}
	var status models.ConnectionStatus
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatalf("failed to decode status: %v", err)
	}
	if status.IsConnected || status.ErrorMessage != "connection refused" {
		t.Errorf("unexpected status %+v", status)
	}

	if rec = serve(h, http.MethodPost, "/api/v1/archives/other/test", ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for an unknown archive, got %d", rec.Code)
	}

	rec = serve(h, http.MethodGet, "/api/v1/archives/main/audit", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"status":"success"`) {
		t.Errorf("unexpected audit response %d %s", rec.Code, rec.Body.String())
	}
}

func TestAuditDisabled(t *testing.T) {
	h := newTestRouter(t, &fakeAdapter{}, nil)
	if rec := serve(h, http.MethodGet, "/api/v1/archives/main/audit", ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 when auditing is disabled, got %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	adapter := &fakeAdapter{}
	h := newTestRouter(t, adapter, nil)

	rec := serve(h, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"archive:main":"healthy"`) {
		t.Errorf("unexpected health %d %s", rec.Code, rec.Body.String())
	}
	if rec = serve(h, http.MethodGet, "/ready", ""); rec.Code != http.StatusOK {
		t.Errorf("expected ready, got %d", rec.Code)
	}

	adapter.pingErr = errors.New("down")
	rec = serve(h, http.MethodGet, "/health", "")
	if rec.Code != http.StatusServiceUnavailable || !strings.Contains(rec.Body.String(), `"degraded"`) {
		t.Errorf("unexpected degraded health %d %s", rec.Code, rec.Body.String())
	}
}

func TestReady_AuditDatabase(t *testing.T) {
	registry := services.NewArchiveRegistry(adapters.NewAdapterFactory(), nil)
	h := &HealthHandler{registry: registry}

	rec := httptest.NewRecorder()
	h.Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 without archives, got %d", rec.Code)
	}

	h.pingAudit = func() error { return errors.New("no db") }
	rec = httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable || !strings.Contains(rec.Body.String(), `"audit_database":"unhealthy"`) {
		t.Errorf("unexpected health %d %s", rec.Code, rec.Body.String())
	}
}

func TestSplitValues(t *testing.T) {
	got := splitValues([]string{"a, b", "", " c ", ",,"})
	if strings.Join(got, "|") != "a|b|c" {
		t.Errorf("unexpected split %v", got)
	}
	if splitValues(nil) != nil {
		t.Error("no values must stay nil")
	}
}

func TestParamsFromQuery_CommaOnlySplitsUIDs(t *testing.T) {
	q := url.Values{
		"patientID":       {"DOE, JOHN", " ", "P2 "},
		"accessionNumber": {"A1,2024"},
		"studyUID":        {"1.1,1.2"},
		"seriesUID":       {"2.1, 2.2"},
		"objectUID":       {"3.1,"},
	}
	p := paramsFromQuery(q)
	if strings.Join(p.PatientIDs, "|") != "DOE, JOHN|P2" {
		t.Errorf("patient IDs must stay whole, got %q", p.PatientIDs)
	}
	if len(p.AccessionNumbers) != 1 || p.AccessionNumbers[0] != "A1,2024" {
		t.Errorf("accession numbers must stay whole, got %q", p.AccessionNumbers)
	}
	if len(p.StudyUIDs) != 2 || len(p.SeriesUIDs) != 2 || len(p.SOPInstanceUIDs) != 1 {
		t.Errorf("unexpected UID split %v %v %v", p.StudyUIDs, p.SeriesUIDs, p.SOPInstanceUIDs)
	}

	cleaned := cleanParams(models.QueryParams{PatientIDs: []string{"DOE, JOHN"}, StudyUIDs: []string{"1.1,1.2"}})
	if len(cleaned.PatientIDs) != 1 || len(cleaned.StudyUIDs) != 2 {
		t.Errorf("unexpected cleaned params %+v", cleaned)
	}
}
