package query

import (
	"github.com/otcheredev/ris-db-connector/internal/models"
)

// Sink collects the patients built by one or more aggregation passes
type Sink struct {
	patients []*models.Patient
	index    map[string]*models.Patient
}

// NewSink creates an empty sink
func NewSink() *Sink {
	return &Sink{
		patients: make([]*models.Patient, 0),
		index:    make(map[string]*models.Patient),
	}
}

// Find returns the patient with the given ID, or nil
func (s *Sink) Find(patientID string) *models.Patient {
	return s.index[patientID]
}

// Add appends p unless a patient with the same ID is already present,
// in which case the existing patient is returned.
func (s *Sink) Add(p *models.Patient) *models.Patient {
	if existing, ok := s.index[p.PatientID]; ok {
		return existing
	}
	s.index[p.PatientID] = p
	s.patients = append(s.patients, p)
	return p
}

// Patients returns the patients in insertion order
func (s *Sink) Patients() []*models.Patient {
	out := make([]*models.Patient, len(s.patients))
	copy(out, s.patients)
	return out
}

// Len returns the number of patients
func (s *Sink) Len() int {
	return len(s.patients)
}

// Counts totals the nodes at every level
type Counts struct {
	Patients  int `json:"patients"`
	Studies   int `json:"studies"`
	Series    int `json:"series"`
	Instances int `json:"instances"`
}

// Counts walks the hierarchy
func (s *Sink) Counts() Counts {
	c := Counts{Patients: len(s.patients)}
	for _, p := range s.patients {
		c.Studies += len(p.Studies)
		for _, st := range p.Studies {
			c.Series += len(st.Series)
			for _, se := range st.Series {
				c.Instances += len(se.Instances)
			}
		}
	}
	return c
}
