package ingest

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// LoadExcel reads incident records from the first sheet of an Excel export.
// The first row is the header; columns are matched by normalised name
// (lowercased, spaces collapsed to underscores), so "Accident Code" and
// "accident_code" both resolve. Rows without an accident code are skipped.
func LoadExcel(path string) ([]FaultRecord, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets in workbook")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("reading sheet %q: %w", sheets[0], err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("sheet %q has no data rows", sheets[0])
	}

	col := make(map[string]int, len(rows[0]))
	for i, h := range rows[0] {
		col[normalizeHeader(h)] = i
	}
	if _, ok := col["accident_code"]; !ok {
		return nil, fmt.Errorf("sheet %q missing accident_code column", sheets[0])
	}

	var records []FaultRecord
	for _, row := range rows[1:] {
		cell := func(name string) string {
			i, ok := col[name]
			if !ok || i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}

		code := cell("accident_code")
		if code == "" {
			continue
		}

		records = append(records, FaultRecord{
			AccidentCode:      code,
			DeviceName:        cell("device_name"),
			OccurrenceTime:    cell("occurrence_time"),
			AreaName:          cell("area_name"),
			AccidentLevel:     cell("accident_level"),
			DurationMinutes:   parseInt(cell("total_duration")),
			Description:       cell("accident_description"),
			SurfacePhenomenon: cell("surface_phenomenon"),
			FaultLocation:     cell("fault_location"),
			CauseType:         cell("cause_type"),
			RootCause:         cell("root_cause"),
			RootSummary:       cell("root_summary"),
			Measures:          cell("treatment_measures"),
			Handler:           cell("handler"),
			FiveWhys:          cell("five_whys"),
			Investigation:     cell("investigation"),
			DirectLoss:        parseFloat(cell("direct_loss")),
			IndirectLoss:      parseFloat(cell("indirect_loss")),
			ProductionLoss:    parseFloat(cell("production_loss")),
			AssessmentAmount:  parseFloat(cell("assessment_amount")),
		})
	}

	return records, nil
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	return strings.ReplaceAll(h, " ", "_")
}

func parseInt(s string) int {
	if s == "" {
		return 0
	}
	// Exports sometimes carry durations as "123.0".
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int(f)
	}
	return 0
}

func parseFloat(s string) float64 {
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
