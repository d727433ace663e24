package query

import (
	"context"
	"errors"
	"testing"

	"github.com/magiconair/properties"
)

const testProperties = `
arc.name=test-archive
arc.db.query.select=select * from v_dicom
arc.db.query.studies.where=study_iuid in (%studies%)
arc.db.query.accessionnum.where=accession_no in (%accessionnum%)
arc.db.query.series.where=series_iuid in (%series%)
arc.db.query.and=order by study_iuid, series_no, inst_no

arc.db.query.patientid=pat_id
arc.db.query.setpatientname=pat_name
arc.db.query.patientbirthdate=pat_birthdate
arc.db.query.patientbirthdate.type=VARCHAR2
arc.db.query.patientbirthdate.format=dd/MM/yyyy
arc.db.query.patientsex=pat_sex

arc.db.query.studyinstanceuid=study_iuid
arc.db.query.studydate=study_datetime
arc.db.query.studydate.type=TIMESTAMP
arc.db.query.accessionnumber=accession_no
arc.db.query.studyid=study_id
arc.db.query.referringphysicianname=ref_physician
arc.db.query.studydescription=study_desc

arc.db.query.seriesinstanceuid=series_iuid
arc.db.query.seriesdescription=series_desc
arc.db.query.modality=modality
arc.db.query.seriesnumber=series_no

arc.db.query.sopinstanceuid=sop_iuid
arc.db.query.instancenumber=inst_no

wado.request.tsuid=1.2.840.10008.1.2.1:gzip
`

func mustProperties(t *testing.T, s string) *properties.Properties {
	t.Helper()
	p, err := ParseProperties(s)
	if err != nil {
		t.Fatalf("failed to parse properties: %v", err)
	}
	return p
}

// fakeCursor replays rows, optionally failing after failAfter rows
type fakeCursor struct {
	rows      []Row
	pos       int
	failAfter int
	err       error
	closed    bool
}

func newFakeCursor(rows ...Row) *fakeCursor {
	return &fakeCursor{rows: rows, pos: -1, failAfter: -1}
}

func (c *fakeCursor) Next() bool {
	if c.failAfter >= 0 && c.pos+1 >= c.failAfter {
		return false
	}
	c.pos++
	return c.pos < len(c.rows)
}

func (c *fakeCursor) Row() (Row, error) {
	return c.rows[c.pos], nil
}

func (c *fakeCursor) Err() error {
	if c.failAfter >= 0 {
		return c.err
	}
	return nil
}

func (c *fakeCursor) Close() error {
	c.closed = true
	return nil
}

// fakeExecutor hands out a prepared cursor and records statements
type fakeExecutor struct {
	cursor     *fakeCursor
	err        error
	statements []Statement
}

func (e *fakeExecutor) Query(ctx context.Context, stmt Statement) (Cursor, error) {
	e.statements = append(e.statements, stmt)
	if e.err != nil {
		return nil, e.err
	}
	return e.cursor, nil
}

func (e *fakeExecutor) Placeholder() Placeholder {
	return PlaceholderQuestion
}

var errConnectionLost = errors.New("connection lost")

func instanceRow(patientID, studyUID, seriesUID, sopUID string) Row {
	return Row{
		"pat_id":      patientID,
		"pat_name":    "DOE^JANE",
		"pat_sex":     "F",
		"study_iuid":  studyUID,
		"series_iuid": seriesUID,
		"sop_iuid":    sopUID,
		"modality":    "CT",
		"inst_no":     int64(1),
	}
}
