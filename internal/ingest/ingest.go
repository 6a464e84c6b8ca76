// Package ingest turns uploaded documents into ordered per-page raw
// text. Formats with a readable text layer are handled locally; scanned
// images (and PDFs without a text layer) are the OCR client's job.
package ingest

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// Page is one page of recognized or embedded text.
type Page struct {
	Number int
	Text   string
}

// Source converts raw document bytes into pages.
type Source interface {
	Pages(r io.Reader, filename string) ([]Page, error)
}

// SupportedExtensions lists uploads this service accepts. Image types
// are accepted but recognized externally, not parsed here.
var SupportedExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
	".hocr":     true,
	".html":     true,
	".htm":      true,
	".pdf":      true,
	".docx":     true,
	".png":      true,
	".jpg":      true,
	".jpeg":     true,
	".tiff":     true,
}

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".tiff": true,
}

// ForFile returns the local source for a filename, or an error for
// formats that have no text layer to read.
func ForFile(filename string) (Source, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".txt", ".md", ".markdown":
		return &TextSource{}, nil
	case ".hocr", ".html", ".htm":
		return &HOCRSource{}, nil
	case ".pdf":
		return &PDFSource{FallbackPdftotext: true}, nil
	case ".docx":
		return &DocxSource{}, nil
	default:
		return nil, fmt.Errorf("no local text source for extension %s", ext)
	}
}

// IsSupportedExtension checks if an upload's extension is accepted.
func IsSupportedExtension(filename string) bool {
	return SupportedExtensions[strings.ToLower(filepath.Ext(filename))]
}

// IsImage reports uploads that must go straight to the OCR provider.
func IsImage(filename string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(filename))]
}

// numberPages drops empty pages and assigns 1-based page numbers in
// input order.
func numberPages(texts []string) []Page {
	pages := make([]Page, 0, len(texts))
	for _, t := range texts {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		pages = append(pages, Page{Number: len(pages) + 1, Text: t})
	}
	return pages
}
