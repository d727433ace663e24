package manifest

import (
	"bufio"
	"io"

	"github.com/otcheredev/ris-db-connector/internal/models"
)

// Viewer manifest namespaces
const (
	Namespace    = "http://www.weasis.org/xsd/2.5"
	xsiNamespace = "http://www.w3.org/2001/XMLSchema-instance"
)

// ContentTypeXML is the media type of the viewer manifest
const ContentTypeXML = "application/xml; charset=UTF-8"

// Manifest is what a viewer needs to fetch the images of one archive query
type Manifest struct {
	// ArchiveID identifies the archive in the arcQuery element
	ArchiveID string
	// BaseURL is the WADO endpoint the viewer retrieves instances from
	BaseURL string
	// AdditionalParameters is appended to every WADO request
	AdditionalParameters string
	Patients             []*models.Patient
}

// WriteXML renders m as a viewer manifest. Attribute values are written
// as stored: they must already be XML-escaped.
func WriteXML(w io.Writer, m Manifest) error {
	x := &xmlWriter{w: bufio.NewWriter(w)}

	x.raw(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	x.raw(`<manifest xmlns="` + Namespace + `" xmlns:xsi="` + xsiNamespace + `">` + "\n")

	x.raw(`  <arcQuery`)
	x.attr("arcId", m.ArchiveID)
	x.attr("baseUrl", m.BaseURL)
	x.attr("additionnalParameters", m.AdditionalParameters)
	x.raw(">\n")

	for _, p := range m.Patients {
		writePatient(x, p)
	}

	x.raw("  </arcQuery>\n")
	x.raw("</manifest>\n")

	return x.flush()
}

func writePatient(x *xmlWriter, p *models.Patient) {
	x.raw("    <Patient")
	x.attr("PatientID", p.PatientID)
	x.attr("PatientName", p.PatientName)
	x.attr("PatientBirthDate", p.PatientBirthDate)
	x.attr("PatientBirthTime", p.PatientBirthTime)
	x.attr("PatientSex", p.PatientSex)
	x.raw(">\n")

	for _, st := range p.Studies {
		x.raw("      <Study")
		x.attr("StudyInstanceUID", st.StudyInstanceUID)
		x.attr("StudyDescription", st.StudyDescription)
		x.attr("StudyDate", st.StudyDate)
		x.attr("StudyTime", st.StudyTime)
		x.attr("AccessionNumber", st.AccessionNumber)
		x.attr("StudyID", st.StudyID)
		x.attr("ReferringPhysicianName", st.ReferringPhysicianName)
		x.raw(">\n")

		for _, se := range st.Series {
			x.raw("        <Series")
			x.attr("SeriesInstanceUID", se.SeriesInstanceUID)
			x.attr("SeriesDescription", se.SeriesDescription)
			x.attr("SeriesNumber", se.SeriesNumber)
			x.attr("Modality", se.Modality)
			x.attr("WadoTransferSyntaxUID", se.TransferSyntaxUID)
			x.attr("WadoCompressionRate", se.Compression)
			x.raw(">\n")

			for _, in := range se.Instances {
				x.raw("          <Instance")
				x.attr("SOPInstanceUID", in.SOPInstanceUID)
				x.attr("InstanceNumber", in.InstanceNumber)
				x.raw("/>\n")
			}
			x.raw("        </Series>\n")
		}
		x.raw("      </Study>\n")
	}
	x.raw("    </Patient>\n")
}

// xmlWriter keeps the first write error
type xmlWriter struct {
	w   *bufio.Writer
	err error
}

func (x *xmlWriter) raw(s string) {
	if x.err != nil {
		return
	}
	_, x.err = x.w.WriteString(s)
}

// attr writes name="value" when value is set
func (x *xmlWriter) attr(name, value string) {
	if value == "" {
		return
	}
	x.raw(" " + name + `="` + value + `"`)
}

func (x *xmlWriter) flush() error {
	if x.err != nil {
		return x.err
	}
	return x.w.Flush()
}
