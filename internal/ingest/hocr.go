package ingest

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
)

// HOCRSource reads hOCR output from external OCR tools, one ocr_page
// element per page with line elements inside. Plain HTML without hOCR
// markup degrades to a single page of text content.
type HOCRSource struct{}

func (s *HOCRSource) Pages(r io.Reader, filename string) ([]Page, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filename, err)
	}

	var pageNodes []*html.Node
	findPages(doc, &pageNodes)
	if len(pageNodes) == 0 {
		return numberPages([]string{blockText(doc)}), nil
	}

	texts := make([]string, 0, len(pageNodes))
	for _, pn := range pageNodes {
		texts = append(texts, pageText(pn))
	}
	return numberPages(texts), nil
}

func findPages(n *html.Node, out *[]*html.Node) {
	if n.Type == html.ElementNode && hasClass(n, "ocr_page") {
		*out = append(*out, n)
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		findPages(c, out)
	}
}

// pageText joins the page's line elements with newlines so downstream
// boundary detection sees real line breaks. Words inside a line are
// joined with single spaces.
func pageText(page *html.Node) string {
	var lines []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode &&
			(hasClass(n, "ocr_line") || hasClass(n, "ocr_header") || hasClass(n, "ocr_caption")) {
			if t := textContent(n); t != "" {
				lines = append(lines, t)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(page)
	if len(lines) == 0 {
		return textContent(page)
	}
	return strings.Join(lines, "\n")
}

func hasClass(n *html.Node, class string) bool {
	for _, attr := range n.Attr {
		if attr.Key != "class" {
			continue
		}
		for _, c := range strings.Fields(attr.Val) {
			if c == class {
				return true
			}
		}
	}
	return false
}

// blockText extracts text from plain HTML, emitting newlines at block
// element boundaries so value boundaries survive.
func blockText(doc *html.Node) string {
	var lines []string
	var buf strings.Builder
	flush := func() {
		if t := strings.Join(strings.Fields(buf.String()), " "); t != "" {
			lines = append(lines, t)
		}
		buf.Reset()
	}
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
			buf.WriteByte(' ')
			return
		}
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style":
				return
			case "p", "div", "tr", "br", "li", "h1", "h2", "h3", "h4", "h5", "h6", "table":
				flush()
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	flush()
	return strings.Join(lines, "\n")
}

func textContent(n *html.Node) string {
	var buf strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(buf.String()), " ")
}
