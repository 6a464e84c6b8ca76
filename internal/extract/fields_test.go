package extract

import (
	"testing"

	"github.com/lalitmahajn/BMR-OCR/internal/template"
)

func testEngine() *Engine {
	return New(Options{})
}

func TestExtractFields_PipeBoundary(t *testing.T) {
	// Two labelled values on one line separated by a pipe: the first
	// value must stop at the pipe, not swallow the second label.
	text := "Batch No: 10012601674 | Product: Resin X"
	specs := []template.FieldSpec{
		{FieldID: "BATCH_NO", Label: "Batch No"},
		{FieldID: "PRODUCT", Label: "Product"},
	}

	results := testEngine().ExtractFields(text, SectionHeader, specs)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d: %+v", len(results), results)
	}
	if results[0].RawValue != "10012601674" {
		t.Errorf("BATCH_NO: expected %q, got %q", "10012601674", results[0].RawValue)
	}
	if results[1].RawValue != "Resin X" {
		t.Errorf("PRODUCT: expected %q, got %q", "Resin X", results[1].RawValue)
	}
	for _, r := range results {
		if r.Method != MethodLabelOnly {
			t.Errorf("%s: expected method %q, got %q", r.FieldID, MethodLabelOnly, r.Method)
		}
		if r.Section != SectionHeader {
			t.Errorf("%s: expected header section, got %q", r.FieldID, r.Section)
		}
	}
}

func TestExtractFields_NewlineBoundary(t *testing.T) {
	text := "Batch No: 10012601674\nDate: 26.01.2024\n"
	specs := []template.FieldSpec{
		{FieldID: "BATCH_NO", Label: "Batch No"},
	}
	results := testEngine().ExtractFields(text, SectionHeader, specs)
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].RawValue != "10012601674" {
		t.Errorf("expected %q, got %q", "10012601674", results[0].RawValue)
	}
}

func TestExtractFields_OtherLabelBoundary(t *testing.T) {
	// No pipe, no newline between the two fields.
	text := "Batch No: 10012601674 Product: Resin X"
	specs := []template.FieldSpec{
		{FieldID: "BATCH_NO", Label: "Batch No"},
		{FieldID: "PRODUCT", Label: "Product"},
	}
	results := testEngine().ExtractFields(text, SectionHeader, specs)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].RawValue != "10012601674" {
		t.Errorf("expected boundary at next label, got %q", results[0].RawValue)
	}
}

func TestExtractFields_UndeclaredLabelBoundary(t *testing.T) {
	// "Remarks" is not declared by any spec, but it still looks like a
	// label and must end the date value; otherwise the trailing text
	// rides along and degrades the format score.
	text := "Date: 12/01/2025 Remarks: ok"
	specs := []template.FieldSpec{
		{FieldID: "DATE", Label: "Date", Regex: `(\d{2}/\d{2}/\d{4})`},
	}
	results := testEngine().ExtractFields(text, SectionHeader, specs)
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d: %+v", len(results), results)
	}
	if results[0].RawValue != "12/01/2025" {
		t.Errorf("expected value cut at the undeclared label, got %q", results[0].RawValue)
	}
	if results[0].Method != MethodLabelRegex {
		t.Errorf("expected method %q, got %q", MethodLabelRegex, results[0].Method)
	}
}

func TestExtractFields_MultiwordValueNotSplit(t *testing.T) {
	// A capitalised word inside a value is not a boundary unless a
	// separator follows it.
	text := "Product: Resin X Grade A\nBatch No: 10012601674"
	specs := []template.FieldSpec{
		{FieldID: "PRODUCT", Label: "Product"},
	}
	results := testEngine().ExtractFields(text, SectionHeader, specs)
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].RawValue != "Resin X Grade A" {
		t.Errorf("expected whole value, got %q", results[0].RawValue)
	}
}

func TestExtractFields_LabelRegexValidated(t *testing.T) {
	text := "Batch No: 10012601674"
	specs := []template.FieldSpec{
		{FieldID: "BATCH_NO", Label: "Batch No", Regex: `(\d{6,})`},
	}
	results := testEngine().ExtractFields(text, SectionHeader, specs)
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Method != MethodLabelRegex {
		t.Errorf("expected method %q, got %q", MethodLabelRegex, results[0].Method)
	}
}

func TestExtractFields_ValidationFailureFallsBack(t *testing.T) {
	// The captured span after the label fails validation; the pattern
	// still matches elsewhere on the page, so the fallback fires.
	text := "Batch No: pending\nReference 10012601674 stamped below"
	specs := []template.FieldSpec{
		{FieldID: "BATCH_NO", Label: "Batch No", Regex: `(\d{6,})`},
	}
	results := testEngine().ExtractFields(text, SectionHeader, specs)
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Method != MethodRegexFallback {
		t.Errorf("expected method %q, got %q", MethodRegexFallback, results[0].Method)
	}
	if results[0].RawValue != "10012601674" {
		t.Errorf("expected capture group value, got %q", results[0].RawValue)
	}
}

func TestExtractFields_LabelMissingUsesFallback(t *testing.T) {
	text := "Document stamped 10012601674 without any label"
	specs := []template.FieldSpec{
		{FieldID: "BATCH_NO", Label: "Batch No", Regex: `(\d{6,})`},
	}
	results := testEngine().ExtractFields(text, SectionHeader, specs)
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Method != MethodRegexFallback {
		t.Errorf("expected fallback method, got %q", results[0].Method)
	}
}

func TestExtractFields_NoCaptureGroupNoFallback(t *testing.T) {
	// A regex with no capture group cannot be used standalone.
	text := "stamped 10012601674"
	specs := []template.FieldSpec{
		{FieldID: "BATCH_NO", Label: "Batch No", Regex: `\d{6,}`},
	}
	results := testEngine().ExtractFields(text, SectionHeader, specs)
	if len(results) != 0 {
		t.Fatalf("expected no results, got %+v", results)
	}
}

func TestExtractFields_MissingFieldOmitted(t *testing.T) {
	text := "Product: Resin X"
	specs := []template.FieldSpec{
		{FieldID: "BATCH_NO", Label: "Batch No"},
		{FieldID: "PRODUCT", Label: "Product"},
	}
	results := testEngine().ExtractFields(text, SectionHeader, specs)
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].FieldID != "PRODUCT" {
		t.Errorf("expected only PRODUCT, got %q", results[0].FieldID)
	}
}

func TestExtractFields_CaseInsensitiveByDefault(t *testing.T) {
	text := "BATCH NO: 10012601674"
	specs := []template.FieldSpec{
		{FieldID: "BATCH_NO", Label: "Batch No"},
	}
	results := testEngine().ExtractFields(text, SectionHeader, specs)
	if len(results) != 1 {
		t.Fatalf("expected 1 result with case-insensitive search, got %d", len(results))
	}

	strict := New(Options{CaseSensitiveLabels: true})
	results = strict.ExtractFields(text, SectionHeader, specs)
	if len(results) != 0 {
		t.Fatalf("expected no results with case-sensitive search, got %d", len(results))
	}
}

func TestExtractFields_InsensitiveSearchKeepsByteOffsets(t *testing.T) {
	// U+0130 lowercases to a two-rune sequence one byte longer than the
	// original, so a search over a lowercased copy of the page reports
	// offsets that mis-slice the value span.
	text := "İtem: İ5\nBatch No: 10012601674"
	specs := []template.FieldSpec{
		{FieldID: "BATCH_NO", Label: "Batch No"},
	}
	results := testEngine().ExtractFields(text, SectionHeader, specs)
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d: %+v", len(results), results)
	}
	if results[0].RawValue != "10012601674" {
		t.Errorf("expected %q, got %q", "10012601674", results[0].RawValue)
	}
}

func TestExtractFields_DuplicateLabelsConsumeInOrder(t *testing.T) {
	text := "Checked By: Alice\nChecked By: Bob"
	specs := []template.FieldSpec{
		{FieldID: "CHECKED_BY_1", Label: "Checked By"},
		{FieldID: "CHECKED_BY_2", Label: "Checked By"},
	}
	results := testEngine().ExtractFields(text, SectionFooter, specs)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].RawValue != "Alice" || results[1].RawValue != "Bob" {
		t.Errorf("expected occurrences consumed in reading order, got %q then %q",
			results[0].RawValue, results[1].RawValue)
	}
}

func TestExtractFields_EmptyAfterLabel(t *testing.T) {
	// Label immediately followed by the boundary: nothing to capture,
	// and no fallback regex configured.
	text := "Batch No: \nProduct: Resin X"
	specs := []template.FieldSpec{
		{FieldID: "BATCH_NO", Label: "Batch No"},
	}
	results := testEngine().ExtractFields(text, SectionHeader, specs)
	if len(results) != 0 {
		t.Fatalf("expected no results, got %+v", results)
	}
}

func TestExtractFields_Deterministic(t *testing.T) {
	text := "Batch No: 10012601674 | Product: Resin X\nDate: 26.01.2024\nChecked By: QA Team"
	specs := []template.FieldSpec{
		{FieldID: "BATCH_NO", Label: "Batch No", Regex: `(\d{6,})`},
		{FieldID: "PRODUCT", Label: "Product"},
		{FieldID: "MFG_DATE", Label: "Date", Regex: `(\d{1,2}[./-]\d{1,2}[./-]\d{2,4})`},
		{FieldID: "CHECKED_BY", Label: "Checked By"},
	}
	e := testEngine()
	first := e.ExtractFields(text, SectionHeader, specs)
	for i := 0; i < 10; i++ {
		again := e.ExtractFields(text, SectionHeader, specs)
		if len(again) != len(first) {
			t.Fatalf("run %d: result count changed: %d vs %d", i, len(again), len(first))
		}
		for j := range first {
			if again[j] != first[j] {
				t.Fatalf("run %d: result %d changed: %+v vs %+v", i, j, again[j], first[j])
			}
		}
	}
}

func TestTrimValue(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"  10012601674  ", "10012601674"},
		{": value :", "value"},
		{"**Resin X**", "Resin X"},
		{"---", ""},
		{"3.5", "3.5"},
	}
	for _, tc := range cases {
		if got := trimValue(tc.in); got != tc.want {
			t.Errorf("trimValue(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
