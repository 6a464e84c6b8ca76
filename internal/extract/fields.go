package extract

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/lalitmahajn/BMR-OCR/internal/template"
)

// Options configures an Engine.
type Options struct {
	// CaseSensitiveLabels switches label search to exact case. The
	// default (false) matches labels case-insensitively, which is what
	// OCR output needs.
	CaseSensitiveLabels bool
	Logger              *slog.Logger
}

// Engine runs field and table extraction for one page at a time. It is
// stateless between calls and safe for concurrent use.
type Engine struct {
	caseSensitive bool
	log           *slog.Logger
}

// labelLikeRe matches a token shaped like a label the template did not
// declare: whitespace, a capitalised word of four or more characters,
// then a separator. Such a token ends the preceding value even when no
// newline or pipe intervenes.
var labelLikeRe = regexp.MustCompile(`\s+[A-Z][a-zA-Z0-9./()&._]{3,}\s*[:\-=]`)

func New(opts Options) *Engine {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Engine{caseSensitive: opts.CaseSensitiveLabels, log: log}
}

// ExtractFields runs every spec against the page text in order. Specs
// that match nothing produce no Result. Label occurrences are consumed
// left to right within one call, so two specs with the same label read
// different occurrences.
func (e *Engine) ExtractFields(text string, section Section, specs []template.FieldSpec) []Result {
	results := make([]Result, 0, len(specs))
	claimed := make(map[string]bool)
	for _, spec := range specs {
		if res, ok := e.extractField(text, section, spec, specs, claimed); ok {
			results = append(results, res)
		}
	}
	return results
}

func (e *Engine) extractField(text string, section Section, spec template.FieldSpec, all []template.FieldSpec, claimed map[string]bool) (Result, bool) {
	var re *regexp.Regexp
	if spec.Regex != "" {
		// Compile errors are impossible for loader-validated templates;
		// hand-built specs with bad patterns just skip the regex paths.
		re, _ = regexp.Compile(spec.Regex)
	}

	if spec.Label != "" {
		if res, ok := e.extractByLabel(text, section, spec, re, all, claimed); ok {
			return res, true
		}
	}
	if re != nil && re.NumSubexp() >= 1 {
		return e.extractByPattern(text, section, spec, re)
	}
	return Result{}, false
}

// extractByLabel finds the next unclaimed occurrence of the label,
// takes the text between the label and the nearest boundary (newline,
// pipe, or another spec's label), and validates it if a regex is set.
func (e *Engine) extractByLabel(text string, section Section, spec template.FieldSpec, re *regexp.Regexp, all []template.FieldSpec, claimed map[string]bool) (Result, bool) {
	pos, key := e.nextOccurrence(text, spec.Label, claimed)
	if pos < 0 {
		return Result{}, false
	}

	start := pos + len(spec.Label)
	for start < len(text) && isLabelSeparator(text[start]) {
		start++
	}
	end := e.boundary(text, start, spec, all)

	value := trimValue(text[start:end])
	if value == "" {
		e.log.Warn("label matched but no value before boundary",
			"section", string(section), "field_id", spec.FieldID, "label", spec.Label)
		return Result{}, false
	}
	if re != nil {
		if !re.MatchString(value) {
			e.log.Warn("label capture failed validation",
				"section", string(section), "field_id", spec.FieldID, "value", value)
			return Result{}, false
		}
		claimed[key] = true
		return Result{FieldID: spec.FieldID, Section: section, RawValue: value, Method: MethodLabelRegex}, true
	}
	claimed[key] = true
	return Result{FieldID: spec.FieldID, Section: section, RawValue: value, Method: MethodLabelOnly}, true
}

// boundary returns the end of the value span starting at start: the
// nearest of the next newline, the next pipe, the next occurrence of
// any other spec's label, or the next label-like token the template
// never declared. Falls back to end of text.
func (e *Engine) boundary(text string, start int, spec template.FieldSpec, all []template.FieldSpec) int {
	end := len(text)
	if i := strings.IndexByte(text[start:], '\n'); i >= 0 {
		end = min(end, start+i)
	}
	if i := strings.IndexByte(text[start:], '|'); i >= 0 {
		end = min(end, start+i)
	}
	for _, other := range all {
		if other.FieldID == spec.FieldID || other.Label == "" {
			continue
		}
		if i := e.indexLabel(text[start:], other.Label); i >= 0 {
			end = min(end, start+i)
		}
	}
	if loc := labelLikeRe.FindStringIndex(text[start:]); loc != nil {
		end = min(end, start+loc[0])
	}
	return end
}

// extractByPattern is the fallback: the regex runs against the whole
// page and the first capture group of the first match is taken. More
// than one match is ambiguous; the first still wins, logged.
func (e *Engine) extractByPattern(text string, section Section, spec template.FieldSpec, re *regexp.Regexp) (Result, bool) {
	matches := re.FindAllStringSubmatch(text, 2)
	if len(matches) == 0 {
		return Result{}, false
	}
	if len(matches) > 1 {
		e.log.Warn("fallback pattern matched more than once, using first",
			"section", string(section), "field_id", spec.FieldID)
	}
	value := trimValue(matches[0][1])
	if value == "" {
		return Result{}, false
	}
	return Result{FieldID: spec.FieldID, Section: section, RawValue: value, Method: MethodRegexFallback}, true
}

// nextOccurrence scans label occurrences in reading order and returns
// the first one not yet claimed in this call, with its claim key.
func (e *Engine) nextOccurrence(text, label string, claimed map[string]bool) (int, string) {
	norm := label
	if !e.caseSensitive {
		norm = strings.ToLower(label)
	}
	from := 0
	for from <= len(text) {
		i := e.indexLabel(text[from:], label)
		if i < 0 {
			return -1, ""
		}
		pos := from + i
		key := fmt.Sprintf("%s@%d", norm, pos)
		if !claimed[key] {
			return pos, key
		}
		from = pos + 1
	}
	return -1, ""
}

// indexLabel reports the byte offset of label in text. The insensitive
// search folds each candidate window in place, so the offset always
// refers to text itself; lowercasing the whole page up front can shift
// offsets when a case pair changes encoded length.
func (e *Engine) indexLabel(text, label string) int {
	if e.caseSensitive {
		return strings.Index(text, label)
	}
	for i := 0; i+len(label) <= len(text); i++ {
		if strings.EqualFold(text[i:i+len(label)], label) {
			return i
		}
	}
	return -1
}

// isLabelSeparator reports bytes skipped between a label and its value.
// Newline is not a separator: it is the value boundary.
func isLabelSeparator(b byte) bool {
	switch b {
	case ':', '-', '=', ' ', '\t':
		return true
	}
	return false
}

// trimValue strips surrounding whitespace and stray separator runs that
// OCR tends to leave around values.
func trimValue(s string) string {
	return strings.Trim(s, " \t\r\n:-=|.*_")
}
