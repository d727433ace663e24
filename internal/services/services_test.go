package services

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/magiconair/properties"
	"github.com/otcheredev/ris-db-connector/internal/adapters"
	"github.com/otcheredev/ris-db-connector/internal/cache"
	"github.com/otcheredev/ris-db-connector/internal/models"
	"github.com/otcheredev/ris-db-connector/internal/query"
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
arc.db.query.modality=modality
wado.request.tsuid=1.2.840.10008.1.2.4.50:75
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

// fakeAdapter answers by key kind
type fakeAdapter struct {
	name    string
	results map[query.KeyKind][]query.Row
	fail    map[query.KeyKind]error
	pingErr error
}

func (a *fakeAdapter) Name() string { return a.name }

func (a *fakeAdapter) Driver() models.ArchiveDriver { return models.ArchiveDriverPostgres }

func (a *fakeAdapter) Query(ctx context.Context, stmt query.Statement) (query.Cursor, error) {
	if err := a.fail[stmt.Kind]; err != nil {
		return nil, err
	}
	return &sliceCursor{rows: a.results[stmt.Kind]}, nil
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

type recordingAudit struct {
	mu      sync.Mutex
	entries []*models.AuditLog
}

func (r *recordingAudit) Create(ctx context.Context, log *models.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, log)
	return nil
}

type servedCounter struct{ served map[string]int }

func (c *servedCounter) ManifestServed(archive, format string) {
	c.served[archive+":"+format]++
}

func row(patientID, studyUID, seriesUID, sopUID string) query.Row {
	return query.Row{
		"pat_id":      patientID,
		"pat_name":    "DOE^JANE",
		"study_iuid":  studyUID,
		"series_iuid": seriesUID,
		"sop_iuid":    sopUID,
		"modality":    "CT",
	}
}

func newTestService(t *testing.T, adapter *fakeAdapter) (*ManifestService, *recordingAudit, *cache.MemoryCache) {
	t.Helper()
	props, err := properties.LoadString(archiveProps)
	if err != nil {
		t.Fatalf("failed to parse properties: %v", err)
	}
	settings, err := adapters.SettingsFromProperties(props, "")
	if err != nil {
		t.Fatalf("SettingsFromProperties failed: %v", err)
	}

	registry := NewArchiveRegistry(adapters.NewAdapterFactory(), nil)
	if err := registry.Add(settings, props, adapter); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	audit := &recordingAudit{}
	mc := cache.NewMemoryCache()
	t.Cleanup(func() { mc.Close() })
	svc := NewManifestService(registry, audit, mc, time.Minute, WithBaseURL("http://pacs/wado"))
	return svc, audit, mc
}

func TestManifestService_Build(t *testing.T) {
	adapter := &fakeAdapter{name: "main", results: map[query.KeyKind][]query.Row{
		query.KeyStudyInstanceUID: {
			row("P1", "1.1", "1.1.1", "1.1.1.1"),
			row("P1", "1.1", "1.1.1", "1.1.1.2"),
		},
		query.KeySeriesInstanceUID: {
			row("P1", "1.2", "1.2.1", "1.2.1.1"),
		},
	}}
	svc, audit, _ := newTestService(t, adapter)

	ctx := WithRemoteAddr(context.Background(), "10.0.0.7")
	result, err := svc.Build(ctx, models.QueryParams{
		StudyUIDs:  []string{"1.1"},
		SeriesUIDs: []string{"1.2.1"},
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if result.Archive != "main" || result.Partial != nil {
		t.Errorf("unexpected result %+v", result)
	}
	if c := result.Counts; c.Patients != 1 || c.Studies != 2 || c.Instances != 3 {
		t.Errorf("unexpected counts %+v", c)
	}
	if ts := result.Patients[0].Studies[0].Series[0].TransferSyntaxUID; ts != "1.2.840.10008.1.2.4.50" {
		t.Errorf("expected the archive transfer syntax, got %q", ts)
	}

	if len(audit.entries) != 1 {
		t.Fatalf("expected one audit entry, got %d", len(audit.entries))
	}
	entry := audit.entries[0]
	if entry.Status != models.AuditStatusSuccess || entry.RemoteAddr != "10.0.0.7" {
		t.Errorf("unexpected audit entry %+v", entry)
	}
	if entry.KeyKind != "study_uid,series_uid" {
		t.Errorf("unexpected key kinds %q", entry.KeyKind)
	}
	if entry.SearchKeys != "study_uid='1.1';series_uid='1.2.1'" {
		t.Errorf("unexpected search keys %q", entry.SearchKeys)
	}
}

func TestManifestService_BuildPartial(t *testing.T) {
	dbErr := errors.New("relation does not exist")
	adapter := &fakeAdapter{
		name: "main",
		results: map[query.KeyKind][]query.Row{
			query.KeyStudyInstanceUID: {row("P1", "1.1", "1.1.1", "1.1.1.1")},
		},
		fail: map[query.KeyKind]error{query.KeySeriesInstanceUID: dbErr},
	}
	svc, audit, _ := newTestService(t, adapter)

	result, err := svc.Build(context.Background(), models.QueryParams{
		StudyUIDs:  []string{"1.1"},
		SeriesUIDs: []string{"9.9"},
	})
	if err != nil {
		t.Fatalf("expected a partial result, got %v", err)
	}
	if !errors.Is(result.Partial, dbErr) {
		t.Errorf("expected the series failure to be reported, got %v", result.Partial)
	}
	if audit.entries[0].Status != models.AuditStatusPartial {
		t.Errorf("expected partial audit status, got %q", audit.entries[0].Status)
	}

	_, err = svc.Build(context.Background(), models.QueryParams{SeriesUIDs: []string{"9.9"}})
	if !errors.Is(err, dbErr) {
		t.Errorf("expected the failure when nothing was found, got %v", err)
	}
	if audit.entries[1].Status != models.AuditStatusFailure {
		t.Errorf("expected failure audit status, got %q", audit.entries[1].Status)
	}
}

func TestManifestService_BuildErrors(t *testing.T) {
	svc, _, _ := newTestService(t, &fakeAdapter{name: "main"})

	if _, err := svc.Build(context.Background(), models.QueryParams{Archive: "other", StudyUIDs: []string{"1"}}); !errors.Is(err, ErrArchiveNotFound) {
		t.Errorf("expected ErrArchiveNotFound, got %v", err)
	}
	if _, err := svc.Build(context.Background(), models.QueryParams{}); !errors.Is(err, query.ErrNoSearchKeys) {
		t.Errorf("expected ErrNoSearchKeys, got %v", err)
	}
	if _, err := svc.Build(context.Background(), models.QueryParams{PatientIDs: []string{"P1"}}); !errors.Is(err, query.ErrKeyKindNotConfigured) {
		t.Errorf("expected ErrKeyKindNotConfigured, got %v", err)
	}
}

func TestManifestService_StoreAndFetch(t *testing.T) {
	adapter := &fakeAdapter{name: "main", results: map[query.KeyKind][]query.Row{
		query.KeyStudyInstanceUID: {row("P1", "1.1", "1.1.1", "1.1.1.1")},
	}}
	svc, _, _ := newTestService(t, adapter)
	counter := &servedCounter{served: map[string]int{}}
	svc.observer = counter
	ctx := context.Background()

	ref, _, err := svc.Store(ctx, models.QueryParams{StudyUIDs: []string{"1.1"}}, FormatXML)
	if err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if ref.ID == "" || ref.Archive != "main" || !ref.ExpiresAt.After(time.Now()) {
		t.Errorf("unexpected ref %+v", ref)
	}

	stored, err := svc.Fetch(ctx, ref.ID)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if stored.ContentType != FormatXML.ContentType() {
		t.Errorf("unexpected content type %q", stored.ContentType)
	}
	body := string(stored.Body)
	if !strings.Contains(body, `baseUrl="http://pacs/wado"`) || !strings.Contains(body, `SOPInstanceUID="1.1.1.1"`) {
		t.Errorf("unexpected manifest body:\n%s", body)
	}
	if counter.served["main:xml"] != 1 {
		t.Errorf("expected one served manifest, got %v", counter.served)
	}

	if err := svc.Delete(ctx, ref.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := svc.Fetch(ctx, ref.ID); !errors.Is(err, ErrManifestNotFound) {
		t.Errorf("expected ErrManifestNotFound, got %v", err)
	}
	if err := svc.Delete(ctx, ref.ID); !errors.Is(err, ErrManifestNotFound) {
		t.Errorf("expected ErrManifestNotFound on second delete, got %v", err)
	}
}

func TestManifestService_RenderJSON(t *testing.T) {
	adapter := &fakeAdapter{name: "main", results: map[query.KeyKind][]query.Row{
		query.KeyStudyInstanceUID: {row("P1", "1.1", "1.1.1", "1.1.1.1")},
	}}
	svc, _, _ := newTestService(t, adapter)

	result, err := svc.Build(context.Background(), models.QueryParams{StudyUIDs: []string{"1.1"}})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	var buf bytes.Buffer
	if err := svc.Render(&buf, result, FormatJSON); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !strings.Contains(buf.String(), `"00080018"`) {
		t.Errorf("expected SOP instance UID tag in %s", buf.String())
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatXML, "XML": FormatXML, "json": FormatJSON} {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseFormat("dicom"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestArchiveRegistry(t *testing.T) {
	svc, _, _ := newTestService(t, &fakeAdapter{name: "main", pingErr: errors.New("connection refused")})
	reg := svc.Registry()

	archives := reg.List()
	if len(archives) != 1 || archives[0].Name != "main" {
		t.Fatalf("unexpected archives %+v", archives)
	}
	if strings.Join(archives[0].KeyKinds, ",") != "study_uid,series_uid" {
		t.Errorf("unexpected key kinds %v", archives[0].KeyKinds)
	}

	if _, err := reg.Engine(""); err != nil {
		t.Errorf("empty name must select the default archive: %v", err)
	}
	if err := reg.SetDefault("missing"); !errors.Is(err, ErrArchiveNotFound) {
		t.Errorf("expected ErrArchiveNotFound, got %v", err)
	}

	status, err := reg.TestConnection(context.Background(), "main")
	if err == nil || status.IsConnected {
		t.Errorf("expected a failed ping, got %+v", status)
	}
	if got := reg.List()[0]; got.LastConnectionStatus || got.LastError != "connection refused" {
		t.Errorf("connection outcome not recorded: %+v", got)
	}
	if failures := reg.TestAll(context.Background()); len(failures) != 1 {
		t.Errorf("expected one failing archive, got %v", failures)
	}
}

func TestArchiveRegistry_LoadDirReportsBrokenFiles(t *testing.T) {
	dir := t.TempDir()
	broken := "arc.name=broken\narc.db.uri=postgres://localhost/x\narc.db.query.select=select 1\n"
	if err := os.WriteFile(filepath.Join(dir, "broken.properties"), []byte(broken), 0o600); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	reg := NewArchiveRegistry(adapters.NewAdapterFactory(), nil)
	err := reg.LoadDir(context.Background(), dir)
	var cfgErr *query.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected a configuration error, got %v", err)
	}
	if reg.Len() != 0 {
		t.Errorf("broken archive must not be registered")
	}

	if err := reg.LoadDir(context.Background(), t.TempDir()); err == nil {
		t.Error("expected an error for an empty directory")
	}
}

func TestValidateArchive(t *testing.T) {
	props, _ := properties.LoadString(archiveProps + "arc.db.query.patient.where=pat_id in (%patientid%)\n")
	kinds, err := ValidateArchive(adapters.Settings{Name: "main", Driver: models.ArchiveDriverPgx}, props)
	if err != nil {
		t.Fatalf("ValidateArchive failed: %v", err)
	}
	if len(kinds) != 3 || kinds[0] != query.KeyPatientID {
		t.Errorf("unexpected key kinds %v", kinds)
	}
}
