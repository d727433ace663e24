package adapters

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/magiconair/properties"
	"github.com/otcheredev/ris-db-connector/internal/models"
)

// Archive connection property keys
const (
	PropName     = "arc.name"
	PropDriver   = "arc.db.driver"
	PropURI      = "arc.db.uri"
	PropMaxConns = "arc.db.maxconns"
)

const defaultMaxConns = 10

// Settings holds the connection side of an archive property file
type Settings struct {
	Name     string
	Driver   models.ArchiveDriver
	URI      string
	MaxConns int
	Source   string
}

// SettingsFromProperties reads the arc.* connection keys. The archive name
// defaults to the property file name without its extension.
func SettingsFromProperties(p *properties.Properties, source string) (Settings, error) {
	s := Settings{
		Name:     get(p, PropName),
		Driver:   models.ArchiveDriver(strings.ToLower(get(p, PropDriver))),
		URI:      get(p, PropURI),
		MaxConns: defaultMaxConns,
		Source:   source,
	}

	if s.Name == "" && source != "" {
		s.Name = strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	}
	if s.Name == "" {
		return s, fmt.Errorf("%s is required", PropName)
	}

	switch s.Driver {
	case "":
		s.Driver = models.ArchiveDriverPostgres
	case models.ArchiveDriverPostgres, models.ArchiveDriverPgx:
	default:
		return s, fmt.Errorf("archive %s: unsupported %s %q", s.Name, PropDriver, s.Driver)
	}

	if s.URI == "" {
		return s, fmt.Errorf("archive %s: %s is required", s.Name, PropURI)
	}

	if v := get(p, PropMaxConns); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return s, fmt.Errorf("archive %s: invalid %s %q", s.Name, PropMaxConns, v)
		}
		s.MaxConns = n
	}

	return s, nil
}

func get(p *properties.Properties, key string) string {
	v, _ := p.Get(key)
	return strings.TrimSpace(v)
}
