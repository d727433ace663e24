package manifest

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/otcheredev/ris-db-connector/internal/models"
)

func samplePatients() []*models.Patient {
	p := models.NewPatient("P1")
	p.PatientName = "DOE^JANE"
	p.PatientBirthDate = "19800315"
	p.PatientSex = "F"

	st := p.AddStudy(models.NewStudy("1.2.3"))
	st.StudyDate = "20240315"
	st.StudyTime = "090500"
	st.StudyDescription = "CT &lt;head&gt; &amp; neck"

	se := st.AddSeries(models.NewSeries("1.2.3.4"))
	se.Modality = "CT"
	se.SeriesNumber = "2"
	se.TransferSyntaxUID = "1.2.840.10008.1.2.4.50"
	se.Compression = "75"

	se.AddInstance(&models.Instance{SOPInstanceUID: "1.2.3.4.1", InstanceNumber: "1"})
	se.AddInstance(&models.Instance{SOPInstanceUID: "1.2.3.4.2"})
	return []*models.Patient{p}
}

func TestWriteXML(t *testing.T) {
	var buf bytes.Buffer
	err := WriteXML(&buf, Manifest{
		ArchiveID: "main",
		BaseURL:   "http://pacs:8080/wado",
		Patients:  samplePatients(),
	})
	if err != nil {
		t.Fatalf("WriteXML failed: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		`<?xml version="1.0" encoding="UTF-8"?>`,
		`<manifest xmlns="http://www.weasis.org/xsd/2.5"`,
		`<arcQuery arcId="main" baseUrl="http://pacs:8080/wado">`,
		`<Patient PatientID="P1" PatientName="DOE^JANE" PatientBirthDate="19800315" PatientSex="F">`,
		`StudyDescription="CT &lt;head&gt; &amp; neck"`,
		`WadoTransferSyntaxUID="1.2.840.10008.1.2.4.50" WadoCompressionRate="75"`,
		`<Instance SOPInstanceUID="1.2.3.4.1" InstanceNumber="1"/>`,
		`<Instance SOPInstanceUID="1.2.3.4.2"/>`,
		`</manifest>`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in manifest:\n%s", want, out)
		}
	}

	if strings.Contains(out, "PatientBirthTime") || strings.Contains(out, "AccessionNumber") {
		t.Errorf("unset attributes must be omitted:\n%s", out)
	}
	if strings.Contains(out, "&amp;lt;") {
		t.Errorf("values must not be escaped twice:\n%s", out)
	}
}

func TestWriteXML_NoPatients(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteXML(&buf, Manifest{ArchiveID: "main"}); err != nil {
		t.Fatalf("WriteXML failed: %v", err)
	}
	if strings.Contains(buf.String(), "<Patient") {
		t.Errorf("expected an empty arcQuery, got:\n%s", buf.String())
	}
}

func TestWriteDICOMJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteDICOMJSON(&buf, samplePatients()); err != nil {
		t.Fatalf("WriteDICOMJSON failed: %v", err)
	}

	var objects []map[string]struct {
		VR    string            `json:"vr"`
		Value []json.RawMessage `json:"Value"`
	}
	if err := json.Unmarshal(buf.Bytes(), &objects); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, buf.String())
	}
	if len(objects) != 2 {
		t.Fatalf("expected one object per instance, got %d", len(objects))
	}

	first := objects[0]
	if a := first["00080018"]; a.VR != "UI" || string(a.Value[0]) != `"1.2.3.4.1"` {
		t.Errorf("unexpected SOP instance UID %+v", a)
	}
	if a := first["00100010"]; a.VR != "PN" || string(a.Value[0]) != `{"Alphabetic":"DOE^JANE"}` {
		t.Errorf("unexpected patient name %+v", a)
	}
	if a := first["00200011"]; a.VR != "IS" || string(a.Value[0]) != "2" {
		t.Errorf("unexpected series number %+v", a)
	}
	if a := first["00081030"]; string(a.Value[0]) != `"CT <head> & neck"` {
		t.Errorf("expected unescaped description, got %s", a.Value[0])
	}
	if _, ok := first["00100032"]; ok {
		t.Error("unset birth time must be omitted")
	}
	if _, ok := objects[1]["00200013"]; ok {
		t.Error("second instance has no instance number")
	}
}

func TestWriteDICOMJSON_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteDICOMJSON(&buf, nil); err != nil {
		t.Fatalf("WriteDICOMJSON failed: %v", err)
	}
	if strings.TrimSpace(buf.String()) != "[]" {
		t.Errorf("expected an empty array, got %q", buf.String())
	}
}
