package ingest

import (
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"
)

func writeWorkbook(t *testing.T, rows [][]interface{}) string {
	t.Helper()

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatalf("writing row %d: %v", i, err)
		}
	}

	path := filepath.Join(t.TempDir(), "records.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("saving workbook: %v", err)
	}
	return path
}

func TestLoadExcel(t *testing.T) {
	path := writeWorkbook(t, [][]interface{}{
		{"Accident Code", "Device Name", "Total Duration", "Direct Loss", "Root Cause"},
		{"ACC-001", "No.2 Rolling Mill", "145.0", "12000.5", "Lubrication blockage"},
		{"ACC-002", "Crane 7", "30", "", ""},
	})

	records, err := LoadExcel(path)
	if err != nil {
		t.Fatalf("LoadExcel: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}

	r := records[0]
	if r.AccidentCode != "ACC-001" || r.DeviceName != "No.2 Rolling Mill" {
		t.Errorf("record = %+v", r)
	}
	if r.DurationMinutes != 145 {
		t.Errorf("DurationMinutes = %d, want 145 (parsed from \"145.0\")", r.DurationMinutes)
	}
	if r.DirectLoss != 12000.5 {
		t.Errorf("DirectLoss = %v, want 12000.5", r.DirectLoss)
	}
	if r.RootCause != "Lubrication blockage" {
		t.Errorf("RootCause = %q", r.RootCause)
	}
}

func TestLoadExcelSkipsRowsWithoutCode(t *testing.T) {
	path := writeWorkbook(t, [][]interface{}{
		{"accident_code", "device_name"},
		{"", "orphan device"},
		{"ACC-003", "Pump"},
	})

	records, err := LoadExcel(path)
	if err != nil {
		t.Fatalf("LoadExcel: %v", err)
	}
	if len(records) != 1 || records[0].AccidentCode != "ACC-003" {
		t.Errorf("records = %+v, want only ACC-003", records)
	}
}

func TestLoadExcelMissingCodeColumn(t *testing.T) {
	path := writeWorkbook(t, [][]interface{}{
		{"device_name", "area_name"},
		{"Mill", "Cold Rolling"},
	})

	if _, err := LoadExcel(path); err == nil {
		t.Fatal("expected error for sheet without accident_code column")
	}
}

func TestLoadExcelNoDataRows(t *testing.T) {
	path := writeWorkbook(t, [][]interface{}{
		{"accident_code"},
	})

	if _, err := LoadExcel(path); err == nil {
		t.Fatal("expected error for sheet with header only")
	}
}
