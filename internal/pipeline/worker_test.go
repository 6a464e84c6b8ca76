package pipeline

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lalitmahajn/BMR-OCR/internal/classify"
	"github.com/lalitmahajn/BMR-OCR/internal/extract"
	"github.com/lalitmahajn/BMR-OCR/internal/ocr"
	"github.com/lalitmahajn/BMR-OCR/internal/store"
	"github.com/lalitmahajn/BMR-OCR/internal/template"
)

const productionTemplate = `
page_type: PRODUCTION_REPORT
version: "1"
header_fields:
  - field_id: BATCH_NO
    label: "Batch No"
    regex: '(\d{6,})'
`

func testWorker(t *testing.T, templatesDir string) (*Worker, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	registry, err := template.NewRegistry(templatesDir, nil)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	// The OCR client is never reached for uploads with a text layer.
	client := ocr.NewClient("http://127.0.0.1:0", "unused", "unused", "", time.Second, nil)
	t.Cleanup(client.Close)

	classifier := classify.New(classify.DefaultCatalog(), 0.82, nil)
	w := NewWorker(client, classifier, registry, extract.New(extract.Options{}), st, slog.New(slog.DiscardHandler))
	return w, st
}

func testJob(t *testing.T, st *store.Store, filename string, data []byte) *Job {
	t.Helper()
	doc, err := st.CreateDocument(context.Background(), filename, ContentHashHex(data))
	if err != nil {
		t.Fatalf("create document: %v", err)
	}
	job := &Job{
		ID:         "job-1",
		DocumentID: doc.ID,
		Status:     StatusQueued,
		Filename:   filename,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	job.SetFileData(data)
	return job
}

func TestWorker_ProcessCompleted(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "PRODUCTION_REPORT.yaml"), []byte(productionTemplate), 0o644); err != nil {
		t.Fatal(err)
	}
	w, st := testWorker(t, dir)

	data := []byte("Production Report\nBatch No: 10012601674\n")
	job := testJob(t, st, "report.txt", data)
	w.Process(context.Background(), job)

	snap := job.Snapshot()
	if snap.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s (errors %v)", snap.Status, snap.Progress.Errors)
	}
	if snap.Progress.TotalPages != 1 || snap.Progress.PagesProcessed != 1 {
		t.Errorf("unexpected progress: %+v", snap.Progress)
	}
	if snap.Progress.FieldsExtracted == 0 {
		t.Error("expected extracted fields")
	}

	doc, err := st.GetDocument(context.Background(), job.DocumentID)
	if err != nil {
		t.Fatalf("get document: %v", err)
	}
	if doc.Status != store.DocCompleted {
		t.Errorf("expected document completed, got %s", doc.Status)
	}

	pages, err := st.ListPages(context.Background(), job.DocumentID)
	if err != nil || len(pages) != 1 {
		t.Fatalf("list pages: %v (%d)", err, len(pages))
	}
	if pages[0].Status != store.PageExtracted {
		t.Errorf("expected page extracted, got %s", pages[0].Status)
	}

	results, err := st.ListResults(context.Background(), pages[0].ID)
	if err != nil {
		t.Fatalf("list results: %v", err)
	}
	found := false
	for _, r := range results {
		if r.FieldID == "BATCH_NO" && r.RawValue == "10012601674" {
			found = true
		}
	}
	if !found {
		t.Errorf("BATCH_NO not extracted: %+v", results)
	}
}

func TestWorker_MissingTemplateEndsPartial(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "PRODUCTION_REPORT.yaml"), []byte(productionTemplate), 0o644); err != nil {
		t.Fatal(err)
	}
	w, st := testWorker(t, dir)

	// Page 2 classifies as PACKING_DETAILS, which has no template file.
	data := []byte("Production Report\nBatch No: 10012601674\n\fPacking Details\nNet Wt: 25 kg\n")
	job := testJob(t, st, "report.txt", data)
	w.Process(context.Background(), job)

	snap := job.Snapshot()
	if snap.Status != StatusPartial {
		t.Fatalf("expected partial, got %s (errors %v)", snap.Status, snap.Progress.Errors)
	}
	if snap.Progress.PagesSkipped != 1 {
		t.Errorf("expected 1 skipped page, got %d", snap.Progress.PagesSkipped)
	}
	if len(snap.Progress.Errors) != 0 {
		t.Errorf("a missing template is not an error: %v", snap.Progress.Errors)
	}

	pages, err := st.ListPages(context.Background(), job.DocumentID)
	if err != nil || len(pages) != 2 {
		t.Fatalf("list pages: %v (%d)", err, len(pages))
	}
	if pages[1].Status != store.PageUnprocessed {
		t.Errorf("expected unprocessed page, got %s", pages[1].Status)
	}

	doc, err := st.GetDocument(context.Background(), job.DocumentID)
	if err != nil {
		t.Fatalf("get document: %v", err)
	}
	if doc.Status != store.DocPartial {
		t.Errorf("expected document partial, got %s", doc.Status)
	}
}

func TestWorker_UnknownPageSkipped(t *testing.T) {
	w, st := testWorker(t, t.TempDir())

	data := []byte("nothing recognizable on this short page")
	job := testJob(t, st, "scrap.txt", data)
	w.Process(context.Background(), job)

	pages, err := st.ListPages(context.Background(), job.DocumentID)
	if err != nil || len(pages) != 1 {
		t.Fatalf("list pages: %v (%d)", err, len(pages))
	}
	if pages[0].Status != store.PageUnclassified {
		t.Errorf("expected unclassified page, got %s", pages[0].Status)
	}
	if job.Snapshot().Status != StatusPartial {
		t.Errorf("expected partial, got %s", job.Snapshot().Status)
	}
}
