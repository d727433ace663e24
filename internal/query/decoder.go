package query

import (
	"bytes"
	"database/sql/driver"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Row is one result row keyed by column label. Rows built by NewRow use
// lower-cased labels.
type Row map[string]any

// NewRow pairs column labels with values
func NewRow(columns []string, values []any) Row {
	row := make(Row, len(columns))
	for i, col := range columns {
		if i < len(values) {
			row[strings.ToLower(col)] = values[i]
		}
	}
	return row
}

// Lookup finds a column value, ignoring label case
func (r Row) Lookup(column string) (any, bool) {
	if v, ok := r[column]; ok {
		return v, true
	}
	if v, ok := r[strings.ToLower(column)]; ok {
		return v, true
	}
	for k, v := range r {
		if strings.EqualFold(k, column) {
			return v, true
		}
	}
	return nil, false
}

// Decoder turns row values into normalized strings using a FieldMap.
// Failures never surface to the caller: the field decodes to no value.
type Decoder struct {
	archive  string
	fields   *FieldMap
	escape   bool
	observer Observer
	log      zerolog.Logger
}

// DecoderOption configures a Decoder
type DecoderOption func(*Decoder)

// WithoutEscaping leaves text values as read
func WithoutEscaping() DecoderOption {
	return func(d *Decoder) { d.escape = false }
}

// WithDecoderObserver reports decode failures to o
func WithDecoderObserver(archive string, o Observer) DecoderOption {
	return func(d *Decoder) {
		d.archive = archive
		d.observer = o
	}
}

// NewDecoder creates a decoder that XML-escapes text values by default
func NewDecoder(fields *FieldMap, logger zerolog.Logger, opts ...DecoderOption) *Decoder {
	d := &Decoder{
		fields:   fields,
		escape:   true,
		observer: nopObserver{},
		log:      logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DecodeField decodes f with its natural output: dates as yyyyMMdd, the
// birth time as HHmmss, everything else as text.
func (d *Decoder) DecodeField(row Row, f Field) (string, bool) {
	switch f {
	case FieldPatientBirthTime:
		return d.Time(row, f)
	case FieldPatientBirthDate, FieldStudyDate:
		return d.Date(row, f)
	default:
		return d.String(row, f)
	}
}

// String decodes a text field
func (d *Decoder) String(row Row, f Field) (string, bool) {
	v, ok := d.value(row, f)
	if !ok {
		return "", false
	}
	s, ok := textValue(v)
	if !ok || s == "" {
		return "", false
	}
	if d.escape {
		s = escapeXML(s)
	}
	return s, true
}

// Date decodes a temporal field as yyyyMMdd
func (d *Decoder) Date(row Row, f Field) (string, bool) {
	t, ok := d.temporal(row, f)
	if !ok {
		return "", false
	}
	return t.Format(DateLayout), true
}

// Time decodes a temporal field as HHmmss
func (d *Decoder) Time(row Row, f Field) (string, bool) {
	t, ok := d.temporal(row, f)
	if !ok {
		return "", false
	}
	return t.Format(TimeLayout), true
}

// DateTime splits one temporal column into its date and time parts
func (d *Decoder) DateTime(row Row, f Field) (string, string, bool) {
	t, ok := d.temporal(row, f)
	if !ok {
		return "", "", false
	}
	return t.Format(DateLayout), t.Format(TimeLayout), true
}

func (d *Decoder) value(row Row, f Field) (any, bool) {
	col, ok := d.fields.Column(f)
	if !ok {
		return nil, false
	}
	v, ok := row.Lookup(col.Name)
	if !ok {
		d.log.Debug().Str("field", string(f)).Str("column", col.Name).Msg("Mapped column missing from row")
		return nil, false
	}
	if v == nil {
		return nil, false
	}
	return v, true
}

func (d *Decoder) temporal(row Row, f Field) (time.Time, bool) {
	v, ok := d.value(row, f)
	if !ok {
		return time.Time{}, false
	}
	col, _ := d.fields.Column(f)

	var t time.Time
	switch tv := v.(type) {
	case time.Time:
		t = tv
	default:
		s, ok := textValue(v)
		s = strings.TrimSpace(s)
		if !ok || s == "" {
			return time.Time{}, false
		}
		var err error
		if col.Encoding == EncodingVarchar && col.layout != "" {
			t, err = time.Parse(col.layout, s)
		} else {
			t, err = parseFreeText(s)
		}
		if err != nil {
			d.log.Warn().
				Err(err).
				Str("field", string(f)).
				Str("column", col.Name).
				Str("pattern", col.Pattern).
				Msg("Format error: cannot parse date field")
			d.observer.DecodeFailed(d.archive, string(f))
			return time.Time{}, false
		}
	}

	if col.Encoding == EncodingDate {
		t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	}
	return t, true
}

// textValue converts a driver value to text
func textValue(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	case []byte:
		return string(t), true
	case time.Time:
		return t.Format("2006-01-02 15:04:05"), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case int32:
		return strconv.FormatInt(int64(t), 10), true
	case int:
		return strconv.Itoa(t), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(t), true
	case driver.Valuer:
		dv, err := t.Value()
		if err != nil {
			return "", false
		}
		return textValue(dv)
	case fmt.Stringer:
		return t.String(), true
	default:
		return fmt.Sprint(t), true
	}
}

func escapeXML(s string) string {
	var buf bytes.Buffer
	// writes to a bytes.Buffer do not fail
	_ = xml.EscapeText(&buf, []byte(s))
	return buf.String()
}
