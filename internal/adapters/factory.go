package adapters

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/otcheredev/ris-db-connector/internal/models"
)

// AdapterFactory manages archive adapter instances
type AdapterFactory struct {
	mu       sync.RWMutex
	adapters map[string]ArchiveAdapter // keyed by archive name
}

// NewAdapterFactory creates a new adapter factory
func NewAdapterFactory() *AdapterFactory {
	return &AdapterFactory{
		adapters: make(map[string]ArchiveAdapter),
	}
}

// GetAdapter gets or creates the adapter for an archive
func (f *AdapterFactory) GetAdapter(ctx context.Context, settings Settings) (ArchiveAdapter, error) {
	f.mu.RLock()
	adapter, exists := f.adapters[settings.Name]
	f.mu.RUnlock()

	if exists {
		return adapter, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	// Double-check after acquiring write lock
	if adapter, exists := f.adapters[settings.Name]; exists {
		return adapter, nil
	}

	var err error
	switch settings.Driver {
	case models.ArchiveDriverPostgres, "":
		adapter, err = NewGormAdapter(settings)
	case models.ArchiveDriverPgx:
		adapter, err = NewPgxAdapter(ctx, settings)
	default:
		return nil, fmt.Errorf("unsupported archive driver: %s", settings.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create adapter: %w", err)
	}

	f.adapters[settings.Name] = adapter
	return adapter, nil
}

// Register adds an already opened adapter
func (f *AdapterFactory) Register(adapter ArchiveAdapter) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.adapters[adapter.Name()]; exists {
		return fmt.Errorf("adapter for archive %s already registered", adapter.Name())
	}
	f.adapters[adapter.Name()] = adapter
	return nil
}

// Lookup returns the adapter of an archive, if one was created
func (f *AdapterFactory) Lookup(name string) (ArchiveAdapter, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	adapter, exists := f.adapters[name]
	return adapter, exists
}

// CloseAll closes all adapters
func (f *AdapterFactory) CloseAll() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var errs []error
	for name, adapter := range f.adapters {
		if err := adapter.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close adapter for archive %s: %w", name, err))
		}
		delete(f.adapters, name)
	}

	return errors.Join(errs...)
}
