package query

import (
	"fmt"

	"github.com/otcheredev/ris-db-connector/internal/models"
	"github.com/rs/zerolog"
)

// Cursor is a forward-only row stream returned by an executor.
// The owner must Close it.
type Cursor interface {
	Next() bool
	Row() (Row, error)
	Err() error
	Close() error
}

// Stats summarizes one aggregation pass
type Stats struct {
	Rows      int
	Skipped   int
	Patients  int
	Studies   int
	Series    int
	Instances int
}

// Aggregator folds rows into the Patient/Study/Series/Instance hierarchy
type Aggregator struct {
	archive   string
	decoder   *Decoder
	transport Transport
	observer  Observer
	log       zerolog.Logger
}

// NewAggregator creates an aggregator. transport is attached to every new series.
func NewAggregator(archive string, decoder *Decoder, transport Transport, observer Observer, logger zerolog.Logger) *Aggregator {
	if observer == nil {
		observer = nopObserver{}
	}
	return &Aggregator{
		archive:   archive,
		decoder:   decoder,
		transport: transport,
		observer:  observer,
		log:       logger,
	}
}

// Aggregate consumes cur until it is exhausted. A cursor error stops the
// pass; nodes already added to sink are kept.
func (a *Aggregator) Aggregate(cur Cursor, sink *Sink) (Stats, error) {
	var stats Stats
	for cur.Next() {
		row, err := cur.Row()
		if err != nil {
			return stats, fmt.Errorf("failed to read row %d: %w", stats.Rows+1, err)
		}
		stats.Rows++
		if !a.apply(row, sink, &stats) {
			stats.Skipped++
			a.observer.RowSkipped(a.archive)
			continue
		}
		a.observer.RowProcessed(a.archive)
	}
	if err := cur.Err(); err != nil {
		return stats, fmt.Errorf("failed to iterate rows: %w", err)
	}
	return stats, nil
}

func (a *Aggregator) apply(row Row, sink *Sink, stats *Stats) bool {
	d := a.decoder

	patientID, ok1 := d.String(row, FieldPatientID)
	studyUID, ok2 := d.String(row, FieldStudyInstanceUID)
	seriesUID, ok3 := d.String(row, FieldSeriesInstanceUID)
	sopUID, ok4 := d.String(row, FieldSOPInstanceUID)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		a.log.Warn().
			Str("patient_id", patientID).
			Str("study_uid", studyUID).
			Str("series_uid", seriesUID).
			Str("sop_instance_uid", sopUID).
			Msg("Row without a complete set of identifiers skipped")
		return false
	}

	patient := sink.Find(patientID)
	if patient == nil {
		patient = sink.Add(a.newPatient(row, patientID))
		stats.Patients++
	}

	study := patient.FindStudy(studyUID)
	if study == nil {
		study = patient.AddStudy(a.newStudy(row, studyUID))
		stats.Studies++
	}

	series := study.FindSeries(seriesUID)
	if series == nil {
		series = study.AddSeries(a.newSeries(row, seriesUID))
		stats.Series++
	}

	instance := &models.Instance{SOPInstanceUID: sopUID}
	instance.InstanceNumber, _ = d.String(row, FieldInstanceNumber)
	series.AddInstance(instance)
	stats.Instances++

	return true
}

func (a *Aggregator) newPatient(row Row, patientID string) *models.Patient {
	d := a.decoder
	p := models.NewPatient(patientID)
	p.PatientName, _ = d.String(row, FieldPatientName)
	p.PatientBirthDate, _ = d.Date(row, FieldPatientBirthDate)
	p.PatientBirthTime, _ = d.Time(row, FieldPatientBirthTime)
	p.PatientSex, _ = d.String(row, FieldPatientSex)
	return p
}

func (a *Aggregator) newStudy(row Row, studyUID string) *models.Study {
	d := a.decoder
	s := models.NewStudy(studyUID)
	s.StudyDate, s.StudyTime, _ = d.DateTime(row, FieldStudyDate)
	s.AccessionNumber, _ = d.String(row, FieldAccessionNumber)
	s.StudyID, _ = d.String(row, FieldStudyID)
	s.ReferringPhysicianName, _ = d.String(row, FieldReferringPhysician)
	s.StudyDescription, _ = d.String(row, FieldStudyDescription)
	return s
}

func (a *Aggregator) newSeries(row Row, seriesUID string) *models.Series {
	d := a.decoder
	s := models.NewSeries(seriesUID)
	s.SeriesDescription, _ = d.String(row, FieldSeriesDescription)
	s.Modality, _ = d.String(row, FieldModality)
	s.SeriesNumber, _ = d.String(row, FieldSeriesNumber)
	s.TransferSyntaxUID = a.transport.TransferSyntaxUID
	s.Compression = a.transport.Compression
	return s
}
