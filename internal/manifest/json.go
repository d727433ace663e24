package manifest

import (
	"encoding/json"
	"fmt"
	"html"
	"io"
	"strconv"

	"github.com/otcheredev/ris-db-connector/internal/models"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// ContentTypeDICOMJSON is the media type of the instance listing
const ContentTypeDICOMJSON = "application/dicom+json"

// Value representations of the attributes the connector emits
const (
	vrCS = "CS"
	vrDA = "DA"
	vrTM = "TM"
	vrPN = "PN"
	vrLO = "LO"
	vrSH = "SH"
	vrUI = "UI"
	vrIS = "IS"
)

type personName struct {
	Alphabetic string `json:",omitempty"`
}

// Attribute is one DICOM JSON attribute
type Attribute struct {
	VR    string `json:"vr"`
	Value []any  `json:"Value,omitempty"`
}

// Object is a DICOM JSON dataset keyed by tag
type Object map[string]Attribute

func tagKey(t tag.Tag) string {
	return fmt.Sprintf("%04X%04X", t.Group, t.Element)
}

// set adds t unless value is empty. Values are unescaped back to plain text.
func (o Object) set(t tag.Tag, vr, value string) {
	if value == "" {
		return
	}
	value = html.UnescapeString(value)

	var v any = value
	switch vr {
	case vrPN:
		v = personName{Alphabetic: value}
	case vrIS:
		if n, err := strconv.Atoi(value); err == nil {
			v = n
		}
	}
	o[tagKey(t)] = Attribute{VR: vr, Value: []any{v}}
}

// Instances flattens the hierarchy into one DICOM JSON object per instance,
// each carrying the attributes of its series, study and patient.
func Instances(patients []*models.Patient) []Object {
	out := make([]Object, 0)
	for _, p := range patients {
		for _, st := range p.Studies {
			for _, se := range st.Series {
				for _, in := range se.Instances {
					o := Object{}
					o.set(tag.PatientID, vrLO, p.PatientID)
					o.set(tag.PatientName, vrPN, p.PatientName)
					o.set(tag.PatientBirthDate, vrDA, p.PatientBirthDate)
					o.set(tag.PatientBirthTime, vrTM, p.PatientBirthTime)
					o.set(tag.PatientSex, vrCS, p.PatientSex)

					o.set(tag.StudyInstanceUID, vrUI, st.StudyInstanceUID)
					o.set(tag.StudyDate, vrDA, st.StudyDate)
					o.set(tag.StudyTime, vrTM, st.StudyTime)
					o.set(tag.AccessionNumber, vrSH, st.AccessionNumber)
					o.set(tag.StudyID, vrSH, st.StudyID)
					o.set(tag.ReferringPhysicianName, vrPN, st.ReferringPhysicianName)
					o.set(tag.StudyDescription, vrLO, st.StudyDescription)

					o.set(tag.SeriesInstanceUID, vrUI, se.SeriesInstanceUID)
					o.set(tag.SeriesDescription, vrLO, se.SeriesDescription)
					o.set(tag.Modality, vrCS, se.Modality)
					o.set(tag.SeriesNumber, vrIS, se.SeriesNumber)
					o.set(tag.TransferSyntaxUID, vrUI, se.TransferSyntaxUID)

					o.set(tag.SOPInstanceUID, vrUI, in.SOPInstanceUID)
					o.set(tag.InstanceNumber, vrIS, in.InstanceNumber)

					out = append(out, o)
				}
			}
		}
	}
	return out
}

// WriteDICOMJSON renders the instances of patients as a DICOM JSON array
func WriteDICOMJSON(w io.Writer, patients []*models.Patient) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(Instances(patients)); err != nil {
		return fmt.Errorf("failed to encode DICOM JSON: %w", err)
	}
	return nil
}
