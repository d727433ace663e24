package query

import (
	"fmt"
	"strings"

	"github.com/magiconair/properties"
)

// Property keys shared by every archive configuration
const (
	PropSelect    = "arc.db.query.select"
	PropAnd       = "arc.db.query.and"
	PropTransport = "wado.request.tsuid"
)

// LoadProperties reads an archive property file. ${key} references are expanded.
func LoadProperties(path string) (*properties.Properties, error) {
	p, err := properties.LoadFile(path, properties.UTF8)
	if err != nil {
		return nil, fmt.Errorf("failed to load archive properties %s: %w", path, err)
	}
	return p, nil
}

// ParseProperties reads an archive property set from a string
func ParseProperties(s string) (*properties.Properties, error) {
	p, err := properties.LoadString(s)
	if err != nil {
		return nil, fmt.Errorf("failed to parse archive properties: %w", err)
	}
	return p, nil
}

// lookup returns the trimmed value of key and whether it has text
func lookup(p *properties.Properties, key string) (string, bool) {
	v, ok := p.Get(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}
