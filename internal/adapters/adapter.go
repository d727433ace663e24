package adapters

import (
	"context"

	"github.com/otcheredev/ris-db-connector/internal/models"
	"github.com/otcheredev/ris-db-connector/internal/query"
)

// ArchiveAdapter defines the interface that all archive database adapters must implement
type ArchiveAdapter interface {
	// Query operations
	query.Executor

	// Connection management
	TestConnection(ctx context.Context) (*models.ConnectionStatus, error)
	Close() error

	// Adapter info
	Name() string
	Driver() models.ArchiveDriver
}

// BaseAdapter provides common functionality for all adapters
type BaseAdapter struct {
	settings Settings
}

func (b *BaseAdapter) Name() string {
	return b.settings.Name
}

func (b *BaseAdapter) Driver() models.ArchiveDriver {
	return b.settings.Driver
}
