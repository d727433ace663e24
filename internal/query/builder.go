package query

import (
	"strconv"
	"strings"

	"github.com/magiconair/properties"
)

// KeyKind is the kind of search key a manifest request is driven by
type KeyKind int

const (
	KeyPatientID KeyKind = iota
	KeyStudyInstanceUID
	KeyAccessionNumber
	KeySeriesInstanceUID
	KeySOPInstanceUID
)

var keyKindNames = map[KeyKind]string{
	KeyPatientID:         "patient_id",
	KeyStudyInstanceUID:  "study_uid",
	KeyAccessionNumber:   "accession_number",
	KeySeriesInstanceUID: "series_uid",
	KeySOPInstanceUID:    "sop_instance_uid",
}

func (k KeyKind) String() string {
	if name, ok := keyKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// AllKeyKinds lists key kinds in dispatch order
var AllKeyKinds = []KeyKind{
	KeyPatientID,
	KeyStudyInstanceUID,
	KeyAccessionNumber,
	KeySeriesInstanceUID,
	KeySOPInstanceUID,
}

type whereTemplate struct {
	property    string
	placeholder string
}

var whereTemplates = map[KeyKind]whereTemplate{
	KeyPatientID:         {property: "arc.db.query.patient.where", placeholder: "%patientid%"},
	KeyStudyInstanceUID:  {property: "arc.db.query.studies.where", placeholder: "%studies%"},
	KeyAccessionNumber:   {property: "arc.db.query.accessionnum.where", placeholder: "%accessionnum%"},
	KeySeriesInstanceUID: {property: "arc.db.query.series.where", placeholder: "%series%"},
	KeySOPInstanceUID:    {property: "arc.db.query.sopinstance.where", placeholder: "%sopinstanceuid%"},
}

// Placeholder is the bind parameter syntax of an executor
type Placeholder int

const (
	// PlaceholderQuestion renders ?,?,?
	PlaceholderQuestion Placeholder = iota
	// PlaceholderDollar renders $1,$2,$3
	PlaceholderDollar
)

// Statement is a parameterized search query
type Statement struct {
	Kind KeyKind
	SQL  string
	Args []any
	// ValueList is the quoted literal form of Args, for diagnostics only
	ValueList string
}

// Builder assembles search statements from configured SQL fragments
type Builder struct {
	selectClause string
	andClause    string
	where        map[KeyKind]string
	placeholder  Placeholder
}

// NewBuilder reads the select, and and where fragments. At least one where
// template must be configured and each must hold its placeholder exactly once.
func NewBuilder(p *properties.Properties, placeholder Placeholder) (*Builder, error) {
	sel, ok := lookup(p, PropSelect)
	if !ok {
		return nil, configErr(PropSelect, ErrMissingProperty)
	}
	and, _ := lookup(p, PropAnd)

	b := &Builder{
		selectClause: sel,
		andClause:    and,
		where:        make(map[KeyKind]string),
		placeholder:  placeholder,
	}
	for _, kind := range AllKeyKinds {
		tpl := whereTemplates[kind]
		where, ok := lookup(p, tpl.property)
		if !ok {
			continue
		}
		if strings.Count(where, tpl.placeholder) != 1 {
			return nil, configErr(tpl.property, ErrInvalidTemplate)
		}
		b.where[kind] = where
	}
	if len(b.where) == 0 {
		return nil, configErr("arc.db.query.*.where", ErrMissingProperty)
	}
	return b, nil
}

// Supports reports whether kind has a where template
func (b *Builder) Supports(kind KeyKind) bool {
	_, ok := b.where[kind]
	return ok
}

// KeyKinds returns the configured key kinds
func (b *Builder) KeyKinds() []KeyKind {
	kinds := make([]KeyKind, 0, len(b.where))
	for _, kind := range AllKeyKinds {
		if b.Supports(kind) {
			kinds = append(kinds, kind)
		}
	}
	return kinds
}

// BuildSearchQuery binds the non-blank keys into the where template of kind
// and wraps it with the select and and fragments.
func (b *Builder) BuildSearchQuery(kind KeyKind, keys []string) (Statement, error) {
	where, ok := b.where[kind]
	if !ok {
		return Statement{}, ErrKeyKindNotConfigured
	}

	values := searchValues(keys)
	if len(values) == 0 {
		return Statement{}, ErrNoSearchKeys
	}

	args := make([]any, len(values))
	params := make([]string, len(values))
	for i, v := range values {
		args[i] = v
		params[i] = b.param(i + 1)
	}

	where = strings.Replace(where, whereTemplates[kind].placeholder, strings.Join(params, ","), 1)

	var sql strings.Builder
	sql.WriteString(b.selectClause)
	sql.WriteString(" where ")
	sql.WriteString(where)
	if b.andClause != "" {
		sql.WriteString(" ")
		sql.WriteString(b.andClause)
	}

	return Statement{
		Kind:      kind,
		SQL:       sql.String(),
		Args:      args,
		ValueList: ValueList(keys),
	}, nil
}

func (b *Builder) param(n int) string {
	if b.placeholder == PlaceholderDollar {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// ValueList renders keys as a comma separated list of quoted literals.
// Blank keys are skipped; embedded quotes are doubled.
func ValueList(keys []string) string {
	values := searchValues(keys)
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = "'" + strings.ReplaceAll(v, "'", "''") + "'"
	}
	return strings.Join(quoted, ",")
}

func searchValues(keys []string) []string {
	values := make([]string, 0, len(keys))
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			values = append(values, k)
		}
	}
	return values
}
