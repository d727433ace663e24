package services

import "errors"

var (
	// ErrArchiveNotFound is returned for an unknown archive name
	ErrArchiveNotFound = errors.New("archive not found")
	// ErrManifestNotFound is returned for an unknown or expired manifest ID
	ErrManifestNotFound = errors.New("manifest not found")
	// ErrUnsupportedFormat is returned for an unknown manifest format
	ErrUnsupportedFormat = errors.New("unsupported manifest format")
)
