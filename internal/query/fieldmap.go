package query

import (
	"fmt"
	"strings"

	"github.com/magiconair/properties"
)

// Field is a logical entity attribute
type Field string

const (
	FieldPatientID          Field = "patient.id"
	FieldPatientName        Field = "patient.name"
	FieldPatientBirthDate   Field = "patient.birthdate"
	FieldPatientBirthTime   Field = "patient.birthtime"
	FieldPatientSex         Field = "patient.sex"
	FieldStudyInstanceUID   Field = "study.uid"
	FieldStudyDate          Field = "study.date"
	FieldAccessionNumber    Field = "study.accessionnumber"
	FieldStudyID            Field = "study.id"
	FieldReferringPhysician Field = "study.referringphysician"
	FieldStudyDescription   Field = "study.description"
	FieldSeriesInstanceUID  Field = "series.uid"
	FieldSeriesDescription  Field = "series.description"
	FieldModality           Field = "series.modality"
	FieldSeriesNumber       Field = "series.number"
	FieldSOPInstanceUID     Field = "instance.uid"
	FieldInstanceNumber     Field = "instance.number"
)

type fieldDef struct {
	field    Field
	property string
	temporal bool
	required bool
}

var fieldDefs = []fieldDef{
	{field: FieldPatientID, property: "arc.db.query.patientid", required: true},
	{field: FieldPatientName, property: "arc.db.query.setpatientname"},
	{field: FieldPatientBirthDate, property: "arc.db.query.patientbirthdate", temporal: true},
	{field: FieldPatientBirthTime, property: "arc.db.query.patientbirthtime", temporal: true},
	{field: FieldPatientSex, property: "arc.db.query.patientsex"},
	{field: FieldStudyInstanceUID, property: "arc.db.query.studyinstanceuid", required: true},
	{field: FieldStudyDate, property: "arc.db.query.studydate", temporal: true},
	{field: FieldAccessionNumber, property: "arc.db.query.accessionnumber"},
	{field: FieldStudyID, property: "arc.db.query.studyid"},
	{field: FieldReferringPhysician, property: "arc.db.query.referringphysicianname"},
	{field: FieldStudyDescription, property: "arc.db.query.studydescription"},
	{field: FieldSeriesInstanceUID, property: "arc.db.query.seriesinstanceuid", required: true},
	{field: FieldSeriesDescription, property: "arc.db.query.seriesdescription"},
	{field: FieldModality, property: "arc.db.query.modality"},
	{field: FieldSeriesNumber, property: "arc.db.query.seriesnumber"},
	{field: FieldSOPInstanceUID, property: "arc.db.query.sopinstanceuid", required: true},
	{field: FieldInstanceNumber, property: "arc.db.query.instancenumber"},
}

// Encoding tells the decoder how a column stores its value
type Encoding int

const (
	// EncodingString is a plain text column
	EncodingString Encoding = iota
	// EncodingDate is an SQL DATE; the time of day is dropped
	EncodingDate
	// EncodingTimestamp is an SQL TIMESTAMP
	EncodingTimestamp
	// EncodingVarchar is a date stored as text in a configured pattern
	EncodingVarchar
)

func (e Encoding) String() string {
	switch e {
	case EncodingDate:
		return "DATE"
	case EncodingTimestamp:
		return "TIMESTAMP"
	case EncodingVarchar:
		return "VARCHAR"
	default:
		return "STRING"
	}
}

// ParseEncoding resolves a configured type hint. An empty hint means TIMESTAMP.
func ParseEncoding(hint string) (Encoding, error) {
	switch strings.ToUpper(strings.TrimSpace(hint)) {
	case "", "TIMESTAMP":
		return EncodingTimestamp, nil
	case "DATE":
		return EncodingDate, nil
	case "VARCHAR", "VARCHAR2", "CHAR", "TEXT":
		return EncodingVarchar, nil
	default:
		return EncodingString, fmt.Errorf("%w: %s", ErrUnknownEncoding, hint)
	}
}

// Column is the database side of a mapped field
type Column struct {
	Name     string
	Encoding Encoding
	// Pattern is the source pattern of an EncodingVarchar column, in
	// yyyy/MM/dd notation. Empty means free-form parsing.
	Pattern string

	layout string
}

// FieldMap maps logical fields to database columns
type FieldMap struct {
	columns map[Field]Column
}

// NewFieldMap validates columns and resolves date patterns
func NewFieldMap(columns map[Field]Column) (*FieldMap, error) {
	m := &FieldMap{columns: make(map[Field]Column, len(columns))}
	for _, def := range fieldDefs {
		col, ok := columns[def.field]
		if !ok || strings.TrimSpace(col.Name) == "" {
			if def.required {
				return nil, configErr(def.property, ErrMissingProperty)
			}
			continue
		}
		col.Name = strings.TrimSpace(col.Name)
		if !def.temporal {
			col.Encoding = EncodingString
			col.Pattern = ""
		}
		if col.Encoding == EncodingVarchar && col.Pattern != "" {
			layout, err := javaLayout(col.Pattern)
			if err != nil {
				return nil, configErr(def.property+".format", err)
			}
			col.layout = layout
		}
		m.columns[def.field] = col
	}
	return m, nil
}

// LoadFieldMap builds the field map from arc.db.query.* properties
func LoadFieldMap(p *properties.Properties) (*FieldMap, error) {
	columns := make(map[Field]Column)
	for _, def := range fieldDefs {
		name, ok := lookup(p, def.property)
		if !ok {
			continue
		}
		col := Column{Name: name}
		if def.temporal {
			hint, _ := lookup(p, def.property+".type")
			enc, err := ParseEncoding(hint)
			if err != nil {
				return nil, configErr(def.property+".type", err)
			}
			col.Encoding = enc
			col.Pattern, _ = lookup(p, def.property+".format")
		}
		columns[def.field] = col
	}
	return NewFieldMap(columns)
}

// Column returns the column mapped to f
func (m *FieldMap) Column(f Field) (Column, bool) {
	col, ok := m.columns[f]
	return col, ok
}

// Fields returns the mapped fields in declaration order
func (m *FieldMap) Fields() []Field {
	fields := make([]Field, 0, len(m.columns))
	for _, def := range fieldDefs {
		if _, ok := m.columns[def.field]; ok {
			fields = append(fields, def.field)
		}
	}
	return fields
}
