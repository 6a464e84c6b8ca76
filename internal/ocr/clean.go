package ocr

import (
	"regexp"
	"strings"
)

var (
	imageRefRe   = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)
	blankRunRe   = regexp.MustCompile(`\n{3,}`)
	trailingWSRe = regexp.MustCompile(`[ \t]+\n`)
)

// CleanArtifacts removes recognizer leftovers that would pollute
// extraction: embedded image references, trailing whitespace, and runs
// of blank lines. Pipes and line structure are preserved.
func CleanArtifacts(markdown string) string {
	s := imageRefRe.ReplaceAllString(markdown, "")
	s = trailingWSRe.ReplaceAllString(s, "\n")
	s = blankRunRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
