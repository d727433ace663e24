package query

import (
	"errors"
	"fmt"
)

var (
	// ErrNoSearchKeys is returned when every supplied key is blank
	ErrNoSearchKeys = errors.New("no search keys")
	// ErrKeyKindNotConfigured is returned for a key kind without a where template
	ErrKeyKindNotConfigured = errors.New("search key kind not configured")

	ErrMissingProperty    = errors.New("missing property")
	ErrInvalidTemplate    = errors.New("invalid where template")
	ErrUnknownEncoding    = errors.New("unknown column encoding")
	ErrUnsupportedPattern = errors.New("unsupported date pattern")
)

// ConfigError reports a problem with an archive property set
type ConfigError struct {
	Key string
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid archive configuration %q: %v", e.Key, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

func configErr(key string, err error) error {
	return &ConfigError{Key: key, Err: err}
}
