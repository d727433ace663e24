package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/magiconair/properties"
	"github.com/otcheredev/ris-db-connector/internal/adapters"
	"github.com/otcheredev/ris-db-connector/internal/models"
	"github.com/otcheredev/ris-db-connector/internal/query"
	"github.com/otcheredev/ris-db-connector/pkg/logger"
	"github.com/rs/zerolog/log"
)

type archiveEntry struct {
	info    models.Archive
	engine  *query.Engine
	adapter adapters.ArchiveAdapter
}

// ArchiveRegistry owns one engine per configured archive
type ArchiveRegistry struct {
	mu          sync.RWMutex
	archives    map[string]*archiveEntry
	defaultName string
	factory     *adapters.AdapterFactory
	observer    query.Observer
}

// NewArchiveRegistry creates an empty registry. observer may be nil.
func NewArchiveRegistry(factory *adapters.AdapterFactory, observer query.Observer) *ArchiveRegistry {
	return &ArchiveRegistry{
		archives: make(map[string]*archiveEntry),
		factory:  factory,
		observer: observer,
	}
}

// LoadDir loads every *.properties file in dir. A broken file does not
// prevent the others from loading; all failures are returned together.
func (r *ArchiveRegistry) LoadDir(ctx context.Context, dir string) error {
	files, err := filepath.Glob(filepath.Join(dir, "*.properties"))
	if err != nil {
		return fmt.Errorf("failed to list archive files: %w", err)
	}
	if len(files) == 0 {
		return fmt.Errorf("no archive property files in %s", dir)
	}
	sort.Strings(files)

	var errs []error
	for _, file := range files {
		if err := r.LoadFile(ctx, file); err != nil {
			log.Error().Err(err).Str("file", file).Msg("Failed to load archive")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LoadFile loads one archive property file and opens its adapter
func (r *ArchiveRegistry) LoadFile(ctx context.Context, path string) error {
	props, err := query.LoadProperties(path)
	if err != nil {
		return err
	}
	settings, err := adapters.SettingsFromProperties(props, path)
	if err != nil {
		return err
	}

	// validate before a connection is opened
	if _, err := ValidateArchive(settings, props); err != nil {
		return err
	}

	adapter, err := r.factory.GetAdapter(ctx, settings)
	if err != nil {
		return fmt.Errorf("archive %s: %w", settings.Name, err)
	}
	return r.Add(settings, props, adapter)
}

// Add registers an archive served by adapter
func (r *ArchiveRegistry) Add(settings adapters.Settings, props *properties.Properties, adapter adapters.ArchiveAdapter) error {
	opts := []query.Option{query.WithLogger(log.Logger)}
	if r.observer != nil {
		opts = append(opts, query.WithObserver(r.observer))
	}
	engine, err := query.NewEngine(settings.Name, props, adapter, opts...)
	if err != nil {
		return fmt.Errorf("archive %s: %w", settings.Name, err)
	}

	kinds := engine.KeyKinds()
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = k.String()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.archives[settings.Name]; exists {
		return fmt.Errorf("archive %s is configured twice", settings.Name)
	}
	r.archives[settings.Name] = &archiveEntry{
		info: models.Archive{
			Name:     settings.Name,
			Driver:   settings.Driver,
			Source:   settings.Source,
			KeyKinds: names,
			IsActive: true,
		},
		engine:  engine,
		adapter: adapter,
	}
	if r.defaultName == "" {
		r.defaultName = settings.Name
	}

	log.Info().
		Str("archive", settings.Name).
		Str("driver", string(settings.Driver)).
		Strs("key_kinds", names).
		Msg("Archive registered")
	return nil
}

// SetDefault selects the archive used when a request names none
func (r *ArchiveRegistry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.archives[name]; !exists {
		return fmt.Errorf("%w: %s", ErrArchiveNotFound, name)
	}
	r.defaultName = name
	return nil
}

// Engine returns the engine of an archive; an empty name selects the default
func (r *ArchiveRegistry) Engine(name string) (*query.Engine, error) {
	entry, err := r.entry(name)
	if err != nil {
		return nil, err
	}
	return entry.engine, nil
}

func (r *ArchiveRegistry) entry(name string) (*archiveEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if name == "" {
		name = r.defaultName
	}
	entry, exists := r.archives[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrArchiveNotFound, name)
	}
	return entry, nil
}

// List returns the registered archives sorted by name
func (r *ArchiveRegistry) List() []models.Archive {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Archive, 0, len(r.archives))
	for _, entry := range r.archives {
		out = append(out, entry.info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of registered archives
func (r *ArchiveRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.archives)
}

// TestConnection pings an archive and records the outcome
func (r *ArchiveRegistry) TestConnection(ctx context.Context, name string) (*models.ConnectionStatus, error) {
	entry, err := r.entry(name)
	if err != nil {
		return nil, err
	}

	status, err := entry.adapter.TestConnection(ctx)
	if status == nil {
		status = &models.ConnectionStatus{LastChecked: time.Now()}
	}
	if err != nil {
		l := logger.ForArchive(entry.info.Name)
		l.Warn().Err(err).Msg("Archive connection test failed")
	}

	r.mu.Lock()
	entry.info.LastConnectionTest = status.LastChecked
	entry.info.LastConnectionStatus = err == nil && status.IsConnected
	entry.info.LastError = status.ErrorMessage
	r.mu.Unlock()

	return status, err
}

// TestAll pings every archive and returns the failures keyed by name
func (r *ArchiveRegistry) TestAll(ctx context.Context) map[string]error {
	failures := make(map[string]error)
	for _, a := range r.List() {
		if _, err := r.TestConnection(ctx, a.Name); err != nil {
			failures[a.Name] = err
		}
	}
	return failures
}

// offlineExecutor satisfies query.Executor for configuration checks
type offlineExecutor struct {
	placeholder query.Placeholder
}

func (e offlineExecutor) Query(context.Context, query.Statement) (query.Cursor, error) {
	return nil, errors.New("archive is not connected")
}

func (e offlineExecutor) Placeholder() query.Placeholder {
	return e.placeholder
}

// ValidateArchive checks an archive property set without connecting to it
// and returns the key kinds it can serve.
func ValidateArchive(settings adapters.Settings, props *properties.Properties) ([]query.KeyKind, error) {
	ph := query.PlaceholderQuestion
	if settings.Driver == models.ArchiveDriverPgx {
		ph = query.PlaceholderDollar
	}
	engine, err := query.NewEngine(settings.Name, props, offlineExecutor{placeholder: ph})
	if err != nil {
		return nil, fmt.Errorf("archive %s: %w", settings.Name, err)
	}
	return engine.KeyKinds(), nil
}
