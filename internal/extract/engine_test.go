package extract

import (
	"testing"

	"github.com/lalitmahajn/BMR-OCR/internal/template"
)

func qcTemplate() *template.Template {
	return &template.Template{
		PageType: "QC_TEST_REPORT",
		Version:  "3",
		HeaderFields: []template.FieldSpec{
			{FieldID: "BATCH_NO", Label: "Batch No", Regex: `(\d{6,})`, ValueType: template.TypeString},
			{FieldID: "PRODUCT", Label: "Product", ValueType: template.TypeString},
			{FieldID: "MFG_DATE", Label: "Mfg Date", Regex: `(\d{1,2}[./-]\d{1,2}[./-]\d{2,4})`, ValueType: template.TypeDate},
		},
		FooterFields: []template.FieldSpec{
			{FieldID: "CHECKED_BY", Label: "Checked By", ValueType: template.TypeString},
		},
		Table: qcTableSpec(),
	}
}

const qcPage = `# Finished Good Q.C. Test Report

Batch No: 10012601674 | Product: Resin X
Mfg Date: 26.01.2024

| Sr. No | Parameter | Specification | Result |
| --- | --- | --- | --- |
| 1 | Appearance | Clear liquid | Complies |
| 2 | pH | 6.5 - 7.5 | 7.1 |

Checked By: QA Team
`

func TestEngineRun_FullPage(t *testing.T) {
	results, err := testEngine().Run(qcPage, qcTemplate())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 3 header fields + 1 footer field + 2 rows x 4 columns.
	if len(results) != 12 {
		t.Fatalf("expected 12 results, got %d: %+v", len(results), results)
	}

	byID := make(map[string]Result, len(results))
	for _, r := range results {
		byID[r.FieldID] = r
	}

	batch := byID["BATCH_NO"]
	if batch.RawValue != "10012601674" || batch.Method != MethodLabelRegex {
		t.Errorf("BATCH_NO: got %+v", batch)
	}
	if byID["PRODUCT"].RawValue != "Resin X" {
		t.Errorf("PRODUCT: got %+v", byID["PRODUCT"])
	}
	if byID["CHECKED_BY"].Section != SectionFooter {
		t.Errorf("CHECKED_BY: expected footer section, got %+v", byID["CHECKED_BY"])
	}

	// The date field has method label_regex and a perfect date format.
	date := byID["MFG_DATE"]
	if !almostEqual(date.Confidence, 0.975) {
		t.Errorf("MFG_DATE: expected confidence 0.975, got %v", date.Confidence)
	}

	for _, r := range results {
		if r.Confidence < 0 || r.Confidence > 1 {
			t.Errorf("%s: confidence %v out of bounds", r.FieldID, r.Confidence)
		}
		if r.RawValue != "" && r.Confidence == 0 {
			t.Errorf("%s: non-empty value scored 0", r.FieldID)
		}
	}
}

func TestEngineRun_Deterministic(t *testing.T) {
	e := testEngine()
	first, err := e.Run(qcPage, qcTemplate())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := e.Run(qcPage, qcTemplate())
		if err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		if len(again) != len(first) {
			t.Fatalf("run %d: result count changed", i)
		}
		for j := range first {
			if again[j] != first[j] {
				t.Fatalf("run %d: result %d changed: %+v vs %+v", i, j, again[j], first[j])
			}
		}
	}
}

func TestEngineRun_EmptyText(t *testing.T) {
	results, err := testEngine().Run("", qcTemplate())
	if err != nil {
		t.Fatalf("empty text must not fail: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results from empty text, got %d", len(results))
	}
}

func TestEngineRun_NilTemplate(t *testing.T) {
	if _, err := testEngine().Run("text", nil); err == nil {
		t.Fatal("expected error for nil template")
	}
}

func TestEngineRun_TableOnlyTemplate(t *testing.T) {
	tmpl := &template.Template{
		PageType: "PACKING_DETAILS",
		Version:  "1",
		Table:    qcTableSpec(),
	}
	results, err := testEngine().Run(qcPage, tmpl)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, r := range results {
		if r.Section != SectionTable {
			t.Errorf("expected only table results, got %+v", r)
		}
	}
	if len(results) != 8 {
		t.Errorf("expected 8 table cells, got %d", len(results))
	}
}
