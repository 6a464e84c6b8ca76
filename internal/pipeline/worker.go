package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/lalitmahajn/BMR-OCR/internal/classify"
	"github.com/lalitmahajn/BMR-OCR/internal/extract"
	"github.com/lalitmahajn/BMR-OCR/internal/ingest"
	"github.com/lalitmahajn/BMR-OCR/internal/ocr"
	"github.com/lalitmahajn/BMR-OCR/internal/store"
	"github.com/lalitmahajn/BMR-OCR/internal/template"
)

// minLocalText is the threshold below which a PDF's embedded text layer
// is considered absent and the document goes to the OCR provider whole.
const minLocalText = 32

// Worker processes one document at a time: recognize pages, classify
// each, load its template, run extraction, persist.
type Worker struct {
	ocrClient  *ocr.Client
	classifier *classify.Classifier
	registry   *template.Registry
	engine     *extract.Engine
	st         *store.Store
	log        *slog.Logger
}

func NewWorker(ocrClient *ocr.Client, classifier *classify.Classifier, registry *template.Registry, engine *extract.Engine, st *store.Store, log *slog.Logger) *Worker {
	return &Worker{
		ocrClient:  ocrClient,
		classifier: classifier,
		registry:   registry,
		engine:     engine,
		st:         st,
		log:        log,
	}
}

// Process runs the full pipeline for one job. A page whose type has no
// registered template is stored unprocessed and the job ends partial;
// only recognition failure fails the whole document.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "document_id", job.DocumentID, "filename", job.Filename)
	start := time.Now()

	// Phase 1: Recognize
	job.SetStatus(StatusRecognizing, "recognize")
	pages, err := w.recognize(ctx, job)
	if err != nil {
		log.Error("recognition failed", "error", err)
		job.AddError(fmt.Sprintf("recognize: %v", err))
		job.SetStatus(StatusFailed, "recognize")
		w.setDocStatus(ctx, job, store.DocFailed)
		return
	}
	job.SetTotalPages(len(pages))
	job.SetFileData(nil) // release upload bytes
	log.Info("document recognized", "pages", len(pages))

	// Phase 2: Classify, extract and persist page by page
	job.SetStatus(StatusExtracting, "extract")
	session := w.classifier.NewSession()
	for _, page := range pages {
		if ctx.Err() != nil {
			job.SetStatus(StatusFailed, "canceled")
			w.setDocStatus(ctx, job, store.DocFailed)
			return
		}
		w.processPage(ctx, job, session, page, log)
	}

	switch {
	case len(pages) > 0 && job.Skipped() == len(pages) && job.ErrorCount() > 0:
		job.SetStatus(StatusFailed, "done")
		w.setDocStatus(ctx, job, store.DocFailed)
	case job.Skipped() > 0 || job.ErrorCount() > 0:
		job.SetStatus(StatusPartial, "done")
		w.setDocStatus(ctx, job, store.DocPartial)
	default:
		job.SetStatus(StatusCompleted, "done")
		w.setDocStatus(ctx, job, store.DocCompleted)
	}
	log.Info("document processed",
		"status", string(job.Snapshot().Status),
		"duration_ms", time.Since(start).Milliseconds())
}

func (w *Worker) processPage(ctx context.Context, job *Job, session *classify.Session, page ingest.Page, log *slog.Logger) {
	cls := session.Classify(page.Text)
	feats, _ := classify.Analyze(page.Text)
	log = log.With("page", page.Number, "page_type", cls.PageType)
	log.Debug("page classified",
		"score", cls.Score, "tables", feats.Tables, "headings", feats.Headings)

	rec := &store.Page{
		DocumentID: job.DocumentID,
		Number:     page.Number,
		PageType:   cls.PageType,
		TypeScore:  cls.Score,
		PageNum:    cls.PageNum,
		TotalPages: cls.TotalPages,
		Status:     store.PageUnprocessed,
	}
	if cls.PageType == classify.Unknown {
		rec.Status = store.PageUnclassified
	}
	if err := w.st.CreatePage(ctx, rec, page.Text); err != nil {
		log.Error("store page", "error", err)
		job.AddError(fmt.Sprintf("page %d: store: %v", page.Number, err))
		job.PageSkipped()
		return
	}
	if cls.PageType == classify.Unknown {
		log.Warn("page type unknown, skipping extraction")
		job.PageSkipped()
		return
	}

	tmpl, err := w.registry.Load(cls.PageType)
	if errors.Is(err, template.ErrTemplateNotFound) {
		log.Warn("no template registered for page type")
		job.PageSkipped()
		return
	}
	if err != nil {
		log.Error("template load", "error", err)
		job.AddError(fmt.Sprintf("page %d: template: %v", page.Number, err))
		_ = w.st.SetPageStatus(ctx, rec.ID, store.PageError)
		job.PageSkipped()
		return
	}

	results, err := w.engine.Run(page.Text, tmpl)
	if err != nil {
		log.Error("extraction", "error", err)
		job.AddError(fmt.Sprintf("page %d: extract: %v", page.Number, err))
		_ = w.st.SetPageStatus(ctx, rec.ID, store.PageError)
		job.PageSkipped()
		return
	}
	issues := w.engine.Validate(results, tmpl)
	for _, is := range issues {
		log.Warn("validation issue",
			"field_id", is.FieldID,
			"section", string(is.Section),
			"rule", is.Rule,
			"severity", string(is.Severity),
			"message", is.Message)
	}

	if err := w.st.SaveResults(ctx, rec.ID, results); err != nil {
		log.Error("store results", "error", err)
		job.AddError(fmt.Sprintf("page %d: store results: %v", page.Number, err))
		_ = w.st.SetPageStatus(ctx, rec.ID, store.PageError)
		job.PageSkipped()
		return
	}
	_ = w.st.SetPageStatus(ctx, rec.ID, store.PageExtracted)
	job.PageDone(len(results))
	log.Info("page extracted", "fields", len(results), "validation_issues", len(issues))
}

// recognize produces per-page text: locally when the upload has a text
// layer, via the OCR provider for images and scanned PDFs.
func (w *Worker) recognize(ctx context.Context, job *Job) ([]ingest.Page, error) {
	data := job.FileData()
	name := job.Filename

	switch {
	case ingest.IsImage(name):
		return w.recognizeRemote(ctx, data, name)
	case strings.ToLower(filepath.Ext(name)) == ".pdf":
		src := &ingest.PDFSource{FallbackPdftotext: true}
		pages, err := src.Pages(bytes.NewReader(data), name)
		if err == nil && totalText(pages) >= minLocalText {
			return pages, nil
		}
		// Scanned PDF: no usable text layer.
		return w.recognizeRemote(ctx, data, name)
	default:
		src, err := ingest.ForFile(name)
		if err != nil {
			return nil, err
		}
		return src.Pages(bytes.NewReader(data), name)
	}
}

func (w *Worker) recognizeRemote(ctx context.Context, data []byte, name string) ([]ingest.Page, error) {
	var texts []string
	var err error
	for attempt := 0; ; attempt++ {
		texts, err = w.ocrClient.Recognize(ctx, data, name)
		if err == nil || !IsRetryable(err) || attempt >= MaxRetries {
			break
		}
		delay := Backoff(attempt)
		w.log.Warn("ocr call failed, retrying",
			"attempt", attempt+1, "delay_ms", delay.Milliseconds(), "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	if err != nil {
		return nil, err
	}
	pages := make([]ingest.Page, 0, len(texts))
	for i, t := range texts {
		pages = append(pages, ingest.Page{Number: i + 1, Text: t})
	}
	return pages, nil
}

func totalText(pages []ingest.Page) int {
	n := 0
	for _, p := range pages {
		n += len(strings.TrimSpace(p.Text))
	}
	return n
}

func (w *Worker) setDocStatus(ctx context.Context, job *Job, status string) {
	if job.DocumentID == "" {
		return
	}
	if err := w.st.SetDocumentStatus(ctx, job.DocumentID, status); err != nil {
		w.log.Error("set document status", "document_id", job.DocumentID, "error", err)
	}
}
