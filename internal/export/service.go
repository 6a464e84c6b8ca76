// Package export builds XLSX verification reports for processed
// documents.
package export

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xuri/excelize/v2"

	"github.com/lalitmahajn/BMR-OCR/internal/store"
)

type Service struct {
	st  *store.Store
	log *slog.Logger
}

func NewService(st *store.Store, log *slog.Logger) *Service {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Service{st: st, log: log}
}

var reportHeader = []string{
	"Page", "Page Type", "Field ID", "Section", "Extracted Value",
	"Method", "Confidence", "Row", "Column Role", "Verified Value", "Verified By",
}

// DocumentXLSX renders one document's extraction results as a workbook.
// Each row carries both the machine value and the verified value so the
// report is reviewable on its own.
func (s *Service) DocumentXLSX(ctx context.Context, documentID string) ([]byte, error) {
	doc, err := s.st.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	pages, err := s.st.ListPages(ctx, documentID)
	if err != nil {
		return nil, err
	}
	resultsByPage, err := s.st.ListDocumentResults(ctx, documentID)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Extraction"
	idx, err := f.NewSheet(sheet)
	if err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(idx)
	f.DeleteSheet("Sheet1")

	for col, title := range reportHeader {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := f.SetCellValue(sheet, cell, title); err != nil {
			return nil, fmt.Errorf("write header: %w", err)
		}
	}

	rowNum := 2
	for _, page := range pages {
		for _, r := range resultsByPage[page.ID] {
			verifiedValue, verifiedBy := "", ""
			if r.VerifiedValue != nil {
				verifiedValue = *r.VerifiedValue
			}
			if r.VerifiedBy != nil {
				verifiedBy = *r.VerifiedBy
			}
			cells := []any{
				page.Number, page.PageType, r.FieldID, r.Section, r.RawValue,
				r.Method, r.Confidence, r.RowIndex, r.ColumnRole, verifiedValue, verifiedBy,
			}
			for col, v := range cells {
				cell, _ := excelize.CoordinatesToCellName(col+1, rowNum)
				if err := f.SetCellValue(sheet, cell, v); err != nil {
					return nil, fmt.Errorf("write row %d: %w", rowNum, err)
				}
			}
			rowNum++
		}
	}

	_ = f.SetColWidth(sheet, "A", "B", 18)
	_ = f.SetColWidth(sheet, "C", "E", 28)
	_ = f.SetColWidth(sheet, "F", "K", 16)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("serialize workbook: %w", err)
	}

	s.log.Info("report built",
		"document_id", doc.ID, "filename", doc.Filename, "rows", rowNum-2)
	return buf.Bytes(), nil
}
