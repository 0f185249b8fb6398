package corpusfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/career-case-rag/internal/core/domain"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func TestLoadJSONArray(t *testing.T) {
	path := writeFile(t, "cases.json", `[
		{"id": "c1", "content": "PM to analyst", "role": "PM", "year": 2022},
		{"id": "c2", "document": "Course on SQL", "partition": "course_catalog"},
		{"content": "no id"}
	]`)

	records, err := NewLoader(path).LoadRecords(context.Background(), domain.PartitionCareerCases)
	if err != nil {
		t.Fatalf("LoadRecords() error = %v", err)
	}
	if len(records) != 1 || records[0].ID != "c1" {
		t.Fatalf("expected only c1 in career_cases, got %+v", records)
	}
	if records[0].Metadata["role"] != "PM" || records[0].Metadata["year"] != 2022.0 {
		t.Fatalf("unexpected metadata: %+v", records[0].Metadata)
	}
}

func TestLoadJSONEnvelope(t *testing.T) {
	path := writeFile(t, "cases.json", `{"records": [{"id": "c1", "content": "x"}, {"id": "c2", "text": "y"}]}`)

	records, err := NewLoader(path).LoadRecords(context.Background(), "")
	if err != nil {
		t.Fatalf("LoadRecords() error = %v", err)
	}
	if len(records) != 2 || records[1].Content != "y" {
		t.Fatalf("unexpected records: %+v", records)
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "cases.yaml", `
- id: c1
  content: 디자이너에서 PM으로 전환
  metadata:
    role: PM
    skills: [Figma, SQL]
- id: c2
  content: Backend to SRE
`)

	records, err := NewLoader(path).LoadRecords(context.Background(), domain.PartitionCareerCases)
	if err != nil {
		t.Fatalf("LoadRecords() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	skills, ok := records[0].Metadata["skills"].([]any)
	if !ok || len(skills) != 2 || skills[0] != "Figma" {
		t.Fatalf("unexpected skills: %#v", records[0].Metadata["skills"])
	}
}

func TestLoadXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cases.xlsx")
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	rows := [][]any{
		{"ID", "Content", "Role", "Skills"},
		{"c1", "QA to backend", "backend", "Go, SQL"},
		{"c2", "", "", ""},
		{"c3", "Analyst to PM", "PM", ""},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("cell name: %v", err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatalf("SetSheetRow() error = %v", err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("SaveAs() error = %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	records, err := NewLoader(path).LoadRecords(context.Background(), domain.PartitionCareerCases)
	if err != nil {
		t.Fatalf("LoadRecords() error = %v", err)
	}
	if len(records) != 2 || records[1].ID != "c3" {
		t.Fatalf("expected c1 and c3 with the empty row skipped, got %+v", records)
	}
	skills, ok := records[0].Metadata["skills"].([]any)
	if !ok || len(skills) != 2 || skills[1] != "SQL" {
		t.Fatalf("unexpected skills: %#v", records[0].Metadata["skills"])
	}
}

func TestLoadSkipsErrorTaggedAndPlaceholderDocuments(t *testing.T) {
	path := writeFile(t, "cases.json", `[
		{"id": "bad", "content": "backend developer timeout", "error": "upstream extraction failed"},
		{"id": "na", "content": "N/A"},
		{"id": "ok", "content": "backend developer moved to SRE", "error": false}
	]`)

	records, err := NewLoader(path).LoadRecords(context.Background(), domain.PartitionCareerCases)
	if err != nil {
		t.Fatalf("LoadRecords() error = %v", err)
	}
	if len(records) != 1 || records[0].ID != "ok" {
		t.Fatalf("expected only the clean document, got %+v", records)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := NewLoader(filepath.Join(t.TempDir(), "absent.json")).LoadRecords(context.Background(), "")
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := NewLoader("").LoadRecords(context.Background(), ""); !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for empty path, got %v", err)
	}
}

func TestLoadUnsupportedFormat(t *testing.T) {
	path := writeFile(t, "cases.csv", "id,content\n")
	if _, err := NewLoader(path).LoadRecords(context.Background(), ""); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestLoadMalformedJSON(t *testing.T) {
	path := writeFile(t, "cases.json", `{"records": "nope"`)
	if _, err := NewLoader(path).LoadRecords(context.Background(), ""); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}
