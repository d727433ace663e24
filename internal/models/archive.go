package models

import (
	"time"
)

// ArchiveDriver selects the query executor used for an archive database
type ArchiveDriver string

const (
	ArchiveDriverPostgres ArchiveDriver = "postgres"
	ArchiveDriverPgx      ArchiveDriver = "pgx"
)

// Archive describes a configured archive database. Connection secrets are never exposed.
type Archive struct {
	Name     string        `json:"name"`
	Driver   ArchiveDriver `json:"driver"`
	Source   string        `json:"source"` // property file path
	KeyKinds []string      `json:"key_kinds"`
	IsActive bool          `json:"is_active"`

	// Connection status tracking
	LastConnectionTest   time.Time `json:"last_connection_test,omitempty"`
	LastConnectionStatus bool      `json:"last_connection_status,omitempty"`
	LastError            string    `json:"last_error,omitempty"`
}

// ConnectionStatus represents the status of an archive connection
type ConnectionStatus struct {
	IsConnected  bool      `json:"is_connected"`
	LastChecked  time.Time `json:"last_checked"`
	ResponseTime int64     `json:"response_time_ms"`
	ErrorMessage string    `json:"error_message,omitempty"`
}

// ManifestRef points to a stored manifest that a viewer can fetch later
type ManifestRef struct {
	ID        string    `json:"id"`
	Archive   string    `json:"archive"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}
