package cache

import (
	"context"
	"errors"
	"time"
)

// Cache defines the cache interface
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Clear(ctx context.Context, pattern string) error
}

// ErrCacheMiss is returned when a key is not found in cache
var ErrCacheMiss = errors.New("cache miss")

const manifestPrefix = "manifest:"

// ManifestKey generates the key of a stored manifest
func ManifestKey(id string) string {
	return manifestPrefix + id
}

// ManifestPattern matches every stored manifest
func ManifestPattern() string {
	return manifestPrefix + "*"
}
