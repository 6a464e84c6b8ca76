package classify

import (
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// Features summarizes the structural shape of a recognized page.
// The pipeline logs them per page so classification disputes can be
// audited without re-reading the raw text.
type Features struct {
	Headings   int `json:"headings"`
	Tables     int `json:"tables"`
	Lists      int `json:"lists"`
	Paragraphs int `json:"paragraphs"`
}

var featureMD = goldmark.New(goldmark.WithExtensions(extension.Table))

// Analyze parses the page text as markdown and returns structural
// counts plus the heading texts in document order.
func Analyze(source string) (Features, []string) {
	src := []byte(source)
	doc := featureMD.Parser().Parse(text.NewReader(src))

	var feats Features
	var headings []string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Heading:
			feats.Headings++
			headings = append(headings, string(node.Text(src)))
		case *east.Table:
			feats.Tables++
		case *ast.List:
			feats.Lists++
		case *ast.Paragraph:
			feats.Paragraphs++
		}
		return ast.WalkContinue, nil
	})
	return feats, headings
}
