// Package ingest loads incident records from external sources (Excel
// exports, PDF reports) and prepares them for extraction: each record becomes
// a structured text document that is then split into chunks.
package ingest

import (
	"fmt"
	"strings"
)

// FaultRecord is one incident record as exported by the plant's incident
// management system. Only AccidentCode is required; every other field is
// optional and simply omitted from the generated text when empty.
type FaultRecord struct {
	AccidentCode      string  `json:"accident_code"`
	DeviceName        string  `json:"device_name"`
	OccurrenceTime    string  `json:"occurrence_time"`
	AreaName          string  `json:"area_name"`
	AccidentLevel     string  `json:"accident_level"`
	DurationMinutes   int     `json:"total_duration"`
	Description       string  `json:"accident_description"`
	SurfacePhenomenon string  `json:"surface_phenomenon"`
	FaultLocation     string  `json:"fault_location"`
	CauseType         string  `json:"cause_type"`
	RootCause         string  `json:"root_cause"`
	RootSummary       string  `json:"root_summary"`
	Measures          string  `json:"treatment_measures"`
	Handler           string  `json:"handler"`
	FiveWhys          string  `json:"five_whys"`
	Investigation     string  `json:"investigation"`
	DirectLoss        float64 `json:"direct_loss"`
	IndirectLoss      float64 `json:"indirect_loss"`
	ProductionLoss    float64 `json:"production_loss"`
	AssessmentAmount  float64 `json:"assessment_amount"`
}

// Text renders the record as a sectioned plain-text incident description,
// the document form handed to chunking and extraction.
func (r FaultRecord) Text() string {
	var b strings.Builder

	b.WriteString("[Incident Overview]\n")
	writeField(&b, "Accident code", r.AccidentCode)
	writeField(&b, "Device", r.DeviceName)
	writeField(&b, "Occurrence time", r.OccurrenceTime)
	writeField(&b, "Area", r.AreaName)
	writeField(&b, "Level", r.AccidentLevel)
	if r.DurationMinutes > 0 {
		fmt.Fprintf(&b, "Downtime: %d minutes\n", r.DurationMinutes)
	}

	b.WriteString("\n[Fault Description]\n")
	writeField(&b, "Description", r.Description)
	writeField(&b, "Surface phenomenon", r.SurfacePhenomenon)

	b.WriteString("\n[Cause Analysis]\n")
	writeField(&b, "Fault location", r.FaultLocation)
	writeField(&b, "Cause type", r.CauseType)
	writeField(&b, "Root cause", r.RootCause)
	writeField(&b, "Root cause summary", r.RootSummary)

	b.WriteString("\n[Treatment]\n")
	writeField(&b, "Measures", r.Measures)
	writeField(&b, "Handler", r.Handler)

	if r.FiveWhys != "" {
		b.WriteString("\n[Five Whys]\n")
		b.WriteString(r.FiveWhys)
		b.WriteByte('\n')
	}
	if r.Investigation != "" {
		b.WriteString("\n[Investigation]\n")
		b.WriteString(r.Investigation)
		b.WriteByte('\n')
	}

	if r.DirectLoss > 0 || r.IndirectLoss > 0 || r.ProductionLoss > 0 || r.AssessmentAmount > 0 {
		b.WriteString("\n[Loss Assessment]\n")
		writeAmount(&b, "Direct loss", r.DirectLoss)
		writeAmount(&b, "Indirect loss", r.IndirectLoss)
		writeAmount(&b, "Production loss", r.ProductionLoss)
		writeAmount(&b, "Assessment amount", r.AssessmentAmount)
	}

	return strings.TrimRight(b.String(), "\n")
}

// SourceID is the provenance identifier stamped on extracted mentions.
func (r FaultRecord) SourceID() string {
	return r.AccidentCode
}

func writeField(b *strings.Builder, label, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	b.WriteString(label)
	b.WriteString(": ")
	b.WriteString(value)
	b.WriteByte('\n')
}

func writeAmount(b *strings.Builder, label string, v float64) {
	if v <= 0 {
		return
	}
	fmt.Fprintf(b, "%s: %.2f\n", label, v)
}
