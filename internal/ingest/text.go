package ingest

import (
	"fmt"
	"io"
	"strings"
)

// TextSource handles plain-text and markdown OCR dumps. Form feed is
// the page separator; a dump without one is a single page. The text is
// passed through untouched — pipes and line breaks carry meaning for
// extraction downstream.
type TextSource struct{}

func (s *TextSource) Pages(r io.Reader, filename string) ([]Page, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filename, err)
	}
	return numberPages(strings.Split(string(data), "\f")), nil
}
