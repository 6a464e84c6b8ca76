// Package store persists documents, pages, extraction results, and
// verifications in SQLite. Extraction results are insert-only: a human
// correction is a new verification row, never an update of the result.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/lalitmahajn/BMR-OCR/internal/extract"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrVerifierRequired = errors.New("verification requires a verifier")
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id            TEXT PRIMARY KEY,
	filename      TEXT NOT NULL,
	content_hash  TEXT NOT NULL,
	status        TEXT NOT NULL,
	ingested_at   TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS pages (
	id           TEXT PRIMARY KEY,
	document_id  TEXT NOT NULL REFERENCES documents(id),
	page_number  INTEGER NOT NULL,
	page_type    TEXT NOT NULL,
	type_score   REAL NOT NULL,
	page_num     INTEGER NOT NULL DEFAULT 0,
	total_pages  INTEGER NOT NULL DEFAULT 0,
	status       TEXT NOT NULL,
	raw_text     TEXT NOT NULL,
	created_at   TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_pages_document ON pages(document_id);

CREATE TABLE IF NOT EXISTS extraction_results (
	id          TEXT PRIMARY KEY,
	page_id     TEXT NOT NULL REFERENCES pages(id),
	field_id    TEXT NOT NULL,
	section     TEXT NOT NULL,
	raw_value   TEXT NOT NULL,
	method      TEXT NOT NULL,
	confidence  REAL NOT NULL,
	row_index   INTEGER NOT NULL DEFAULT 0,
	column_role TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_results_page ON extraction_results(page_id);

CREATE TABLE IF NOT EXISTS verifications (
	id          TEXT PRIMARY KEY,
	result_id   TEXT NOT NULL REFERENCES extraction_results(id),
	value       TEXT NOT NULL,
	verified_by TEXT NOT NULL,
	reason      TEXT NOT NULL DEFAULT '',
	verified_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_verifications_result ON verifications(result_id);
`

// Document statuses.
const (
	DocProcessing = "processing"
	DocCompleted  = "completed"
	DocPartial    = "partial"
	DocFailed     = "failed"
)

// Page statuses.
const (
	PageExtracted    = "extracted"
	PageUnclassified = "unclassified"
	PageUnprocessed  = "unprocessed"
	PageError        = "error"
)

type Document struct {
	ID          string    `json:"id"`
	Filename    string    `json:"filename"`
	ContentHash string    `json:"content_hash"`
	Status      string    `json:"status"`
	IngestedAt  time.Time `json:"ingested_at"`
	PageCount   int       `json:"page_count"`
}

type Page struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	Number     int       `json:"page_number"`
	PageType   string    `json:"page_type"`
	TypeScore  float64   `json:"type_score"`
	PageNum    int       `json:"page_num,omitempty"`
	TotalPages int       `json:"total_pages,omitempty"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

// FieldResult is an extraction result joined with its latest
// verification, if any.
type FieldResult struct {
	ID            string     `json:"id"`
	PageID        string     `json:"page_id"`
	FieldID       string     `json:"field_id"`
	Section       string     `json:"section"`
	RawValue      string     `json:"raw_value"`
	Method        string     `json:"extraction_method"`
	Confidence    float64    `json:"confidence"`
	RowIndex      int        `json:"row_index,omitempty"`
	ColumnRole    string     `json:"column_role,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	VerifiedValue *string    `json:"verified_value,omitempty"`
	VerifiedBy    *string    `json:"verified_by,omitempty"`
	VerifiedAt    *time.Time `json:"verified_at,omitempty"`
}

type Verification struct {
	ID         string    `json:"id"`
	ResultID   string    `json:"result_id"`
	Value      string    `json:"value"`
	VerifiedBy string    `json:"verified_by"`
	Reason     string    `json:"reason,omitempty"`
	VerifiedAt time.Time `json:"verified_at"`
}

type Store struct {
	db  *sql.DB
	log *slog.Logger
}

func Open(path string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// modernc.org/sqlite serializes writes itself; one connection
	// avoids SQLITE_BUSY under the worker pool.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db, log: log}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) CreateDocument(ctx context.Context, filename, contentHash string) (*Document, error) {
	doc := &Document{
		ID:          uuid.NewString(),
		Filename:    filename,
		ContentHash: contentHash,
		Status:      DocProcessing,
		IngestedAt:  time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, filename, content_hash, status, ingested_at) VALUES (?, ?, ?, ?, ?)`,
		doc.ID, doc.Filename, doc.ContentHash, doc.Status, doc.IngestedAt)
	if err != nil {
		return nil, fmt.Errorf("insert document: %w", err)
	}
	return doc, nil
}

func (s *Store) SetDocumentStatus(ctx context.Context, id, status string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE documents SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *Store) GetDocument(ctx context.Context, id string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT d.id, d.filename, d.content_hash, d.status, d.ingested_at,
		       (SELECT COUNT(*) FROM pages p WHERE p.document_id = d.id)
		FROM documents d WHERE d.id = ?`, id)
	var doc Document
	err := row.Scan(&doc.ID, &doc.Filename, &doc.ContentHash, &doc.Status, &doc.IngestedAt, &doc.PageCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return &doc, nil
}

func (s *Store) ListDocuments(ctx context.Context) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, d.filename, d.content_hash, d.status, d.ingested_at,
		       (SELECT COUNT(*) FROM pages p WHERE p.document_id = d.id)
		FROM documents d ORDER BY d.ingested_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var doc Document
		if err := rows.Scan(&doc.ID, &doc.Filename, &doc.ContentHash, &doc.Status, &doc.IngestedAt, &doc.PageCount); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (s *Store) CreatePage(ctx context.Context, p *Page, rawText string) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.CreatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pages (id, document_id, page_number, page_type, type_score,
		                   page_num, total_pages, status, raw_text, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.DocumentID, p.Number, p.PageType, p.TypeScore,
		p.PageNum, p.TotalPages, p.Status, rawText, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert page: %w", err)
	}
	return nil
}

func (s *Store) SetPageStatus(ctx context.Context, id, status string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE pages SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("update page status: %w", err)
	}
	return nil
}

func (s *Store) ListPages(ctx context.Context, documentID string) ([]Page, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, page_number, page_type, type_score,
		       page_num, total_pages, status, created_at
		FROM pages WHERE document_id = ? ORDER BY page_number`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	defer rows.Close()

	var pages []Page
	for rows.Next() {
		var p Page
		if err := rows.Scan(&p.ID, &p.DocumentID, &p.Number, &p.PageType, &p.TypeScore,
			&p.PageNum, &p.TotalPages, &p.Status, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

// SaveResults writes one page's extraction results in a single
// transaction. Rows are immutable after this point.
func (s *Store) SaveResults(ctx context.Context, pageID string, results []extract.Result) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, r := range results {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO extraction_results (id, page_id, field_id, section, raw_value,
			                                method, confidence, row_index, column_role, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			uuid.NewString(), pageID, r.FieldID, string(r.Section), r.RawValue,
			string(r.Method), r.Confidence, r.RowIndex, string(r.ColumnRole), now)
		if err != nil {
			return fmt.Errorf("insert result %s: %w", r.FieldID, err)
		}
	}
	return tx.Commit()
}

const resultColumns = `
	r.id, r.page_id, r.field_id, r.section, r.raw_value, r.method,
	r.confidence, r.row_index, r.column_role, r.created_at,
	v.value, v.verified_by, v.verified_at`

// latest verification per result, joined via correlated subquery
const resultJoin = `
	FROM extraction_results r
	LEFT JOIN verifications v ON v.id = (
		SELECT v2.id FROM verifications v2
		WHERE v2.result_id = r.id
		ORDER BY v2.verified_at DESC, v2.id DESC LIMIT 1
	)`

func (s *Store) ListResults(ctx context.Context, pageID string) ([]FieldResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+resultColumns+resultJoin+` WHERE r.page_id = ? ORDER BY r.created_at, r.id`, pageID)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()
	return scanResults(rows)
}

// ListDocumentResults returns every result for a document keyed by
// page ID, for report building.
func (s *Store) ListDocumentResults(ctx context.Context, documentID string) (map[string][]FieldResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+resultColumns+resultJoin+`
		 WHERE r.page_id IN (SELECT id FROM pages WHERE document_id = ?)
		 ORDER BY r.created_at, r.id`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list document results: %w", err)
	}
	defer rows.Close()

	all, err := scanResults(rows)
	if err != nil {
		return nil, err
	}
	byPage := make(map[string][]FieldResult)
	for _, r := range all {
		byPage[r.PageID] = append(byPage[r.PageID], r)
	}
	return byPage, nil
}

func scanResults(rows *sql.Rows) ([]FieldResult, error) {
	var out []FieldResult
	for rows.Next() {
		var r FieldResult
		var vValue, vBy sql.NullString
		var vAt sql.NullTime
		if err := rows.Scan(&r.ID, &r.PageID, &r.FieldID, &r.Section, &r.RawValue, &r.Method,
			&r.Confidence, &r.RowIndex, &r.ColumnRole, &r.CreatedAt,
			&vValue, &vBy, &vAt); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		if vValue.Valid {
			r.VerifiedValue = &vValue.String
		}
		if vBy.Valid {
			r.VerifiedBy = &vBy.String
		}
		if vAt.Valid {
			r.VerifiedAt = &vAt.Time
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Verify records a human verification of one extraction result. The
// verifier is mandatory; the underlying result row is never touched.
func (s *Store) Verify(ctx context.Context, resultID, value, verifiedBy, reason string) (*Verification, error) {
	if verifiedBy == "" {
		return nil, ErrVerifierRequired
	}
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM extraction_results WHERE id = ?`, resultID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("result %s: %w", resultID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("check result: %w", err)
	}

	v := &Verification{
		ID:         uuid.NewString(),
		ResultID:   resultID,
		Value:      value,
		VerifiedBy: verifiedBy,
		Reason:     reason,
		VerifiedAt: time.Now().UTC(),
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO verifications (id, result_id, value, verified_by, reason, verified_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		v.ID, v.ResultID, v.Value, v.VerifiedBy, v.Reason, v.VerifiedAt)
	if err != nil {
		return nil, fmt.Errorf("insert verification: %w", err)
	}
	s.log.Info("verification recorded", "result_id", resultID, "verified_by", verifiedBy)
	return v, nil
}
