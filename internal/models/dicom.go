package models

// QueryParams carries the search keys of one manifest request
type QueryParams struct {
	Archive          string   `json:"archive,omitempty"`
	PatientIDs       []string `json:"patient_ids,omitempty"`
	StudyUIDs        []string `json:"study_uids,omitempty"`
	AccessionNumbers []string `json:"accession_numbers,omitempty"`
	SeriesUIDs       []string `json:"series_uids,omitempty"`
	SOPInstanceUIDs  []string `json:"sop_instance_uids,omitempty"`
}

// IsEmpty reports whether no search key of any kind was supplied
func (p QueryParams) IsEmpty() bool {
	return len(p.PatientIDs) == 0 &&
		len(p.StudyUIDs) == 0 &&
		len(p.AccessionNumbers) == 0 &&
		len(p.SeriesUIDs) == 0 &&
		len(p.SOPInstanceUIDs) == 0
}

// Patient is the root of the manifest hierarchy.
// Attributes are written once, when the patient is first seen.
type Patient struct {
	PatientID        string   `json:"patient_id"`
	PatientName      string   `json:"patient_name,omitempty"`
	PatientBirthDate string   `json:"patient_birth_date,omitempty"`
	PatientBirthTime string   `json:"patient_birth_time,omitempty"`
	PatientSex       string   `json:"patient_sex,omitempty"`
	Studies          []*Study `json:"studies"`

	studyIndex map[string]*Study
}

// NewPatient creates a patient with no studies
func NewPatient(patientID string) *Patient {
	return &Patient{
		PatientID:  patientID,
		Studies:    make([]*Study, 0),
		studyIndex: make(map[string]*Study),
	}
}

// FindStudy returns the study with the given instance UID, or nil
func (p *Patient) FindStudy(studyInstanceUID string) *Study {
	return p.studyIndex[studyInstanceUID]
}

// AddStudy appends a study. If a study with the same UID is already
// attached, the existing one is returned and s is discarded.
func (p *Patient) AddStudy(s *Study) *Study {
	if existing, ok := p.studyIndex[s.StudyInstanceUID]; ok {
		return existing
	}
	if p.studyIndex == nil {
		p.studyIndex = make(map[string]*Study)
	}
	p.studyIndex[s.StudyInstanceUID] = s
	p.Studies = append(p.Studies, s)
	return s
}

// Study represents a DICOM study
type Study struct {
	StudyInstanceUID       string    `json:"study_instance_uid"`
	StudyDate              string    `json:"study_date,omitempty"`
	StudyTime              string    `json:"study_time,omitempty"`
	AccessionNumber        string    `json:"accession_number,omitempty"`
	StudyID                string    `json:"study_id,omitempty"`
	ReferringPhysicianName string    `json:"referring_physician_name,omitempty"`
	StudyDescription       string    `json:"study_description,omitempty"`
	Series                 []*Series `json:"series"`

	seriesIndex map[string]*Series
}

// NewStudy creates a study with no series
func NewStudy(studyInstanceUID string) *Study {
	return &Study{
		StudyInstanceUID: studyInstanceUID,
		Series:           make([]*Series, 0),
		seriesIndex:      make(map[string]*Series),
	}
}

// FindSeries returns the series with the given instance UID, or nil
func (s *Study) FindSeries(seriesInstanceUID string) *Series {
	return s.seriesIndex[seriesInstanceUID]
}

// AddSeries appends a series, keeping the first one attached for a UID.
func (s *Study) AddSeries(se *Series) *Series {
	if existing, ok := s.seriesIndex[se.SeriesInstanceUID]; ok {
		return existing
	}
	if s.seriesIndex == nil {
		s.seriesIndex = make(map[string]*Series)
	}
	s.seriesIndex[se.SeriesInstanceUID] = se
	s.Series = append(s.Series, se)
	return se
}

// Series represents a DICOM series
type Series struct {
	SeriesInstanceUID string      `json:"series_instance_uid"`
	SeriesDescription string      `json:"series_description,omitempty"`
	Modality          string      `json:"modality,omitempty"`
	SeriesNumber      string      `json:"series_number,omitempty"`
	TransferSyntaxUID string      `json:"transfer_syntax_uid,omitempty"`
	Compression       string      `json:"compression,omitempty"`
	Instances         []*Instance `json:"instances"`
}

// NewSeries creates a series with no instances
func NewSeries(seriesInstanceUID string) *Series {
	return &Series{
		SeriesInstanceUID: seriesInstanceUID,
		Instances:         make([]*Instance, 0),
	}
}

// AddInstance appends an instance. Instances are not deduplicated.
func (s *Series) AddInstance(i *Instance) {
	s.Instances = append(s.Instances, i)
}

// Instance represents a DICOM instance
type Instance struct {
	SOPInstanceUID string `json:"sop_instance_uid"`
	InstanceNumber string `json:"instance_number,omitempty"`
}
