package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/lalitmahajn/BMR-OCR/internal/template"
)

// IssueSeverity grades a rule breach. Errors mean the page needs a
// human before its data can be trusted; warnings mean a single value
// looks off.
type IssueSeverity string

const (
	SeverityError   IssueSeverity = "error"
	SeverityWarning IssueSeverity = "warning"
)

// Issue is one rule breach found while checking extraction results
// against the template. Issues never change or suppress results; they
// ride alongside them for review.
type Issue struct {
	FieldID  string        `json:"field_id"`
	Section  Section       `json:"section"`
	Rule     string        `json:"rule"`
	Severity IssueSeverity `json:"severity"`
	Message  string        `json:"message"`
}

// Validate checks field results against the template's review rules:
// required fields present, numeric values parsable and in range, enum
// values among the allowed options. Table cells carry no specs and are
// not checked.
func (e *Engine) Validate(results []Result, tmpl *template.Template) []Issue {
	if tmpl == nil {
		return nil
	}
	byKey := make(map[string]Result, len(results))
	for _, r := range results {
		byKey[string(r.Section)+"/"+r.FieldID] = r
	}

	var issues []Issue
	issues = appendSectionIssues(issues, SectionHeader, tmpl.HeaderFields, byKey)
	issues = appendSectionIssues(issues, SectionFooter, tmpl.FooterFields, byKey)

	if len(issues) > 0 {
		e.log.Debug("validation issues",
			"page_type", tmpl.PageType, "issues", len(issues))
	}
	return issues
}

func appendSectionIssues(issues []Issue, section Section, specs []template.FieldSpec, byKey map[string]Result) []Issue {
	for _, spec := range specs {
		res, ok := byKey[string(section)+"/"+spec.FieldID]
		if !ok {
			if spec.Required {
				issues = append(issues, Issue{
					FieldID:  spec.FieldID,
					Section:  section,
					Rule:     "required",
					Severity: SeverityError,
					Message:  "required field not extracted",
				})
			}
			continue
		}
		issues = append(issues, checkValue(section, spec, res.RawValue)...)
	}
	return issues
}

func checkValue(section Section, spec template.FieldSpec, value string) []Issue {
	var issues []Issue
	add := func(rule, format string, args ...any) {
		issues = append(issues, Issue{
			FieldID:  spec.FieldID,
			Section:  section,
			Rule:     rule,
			Severity: SeverityWarning,
			Message:  fmt.Sprintf(format, args...),
		})
	}

	switch spec.ValueType {
	case template.TypeInt, template.TypeFloat:
		num, ok := parseNumber(value)
		if !ok {
			add("numeric", "value %q is not numeric", value)
			return issues
		}
		if spec.MinValue != nil && num < *spec.MinValue {
			add("range", "value %v below minimum %v", num, *spec.MinValue)
		}
		if spec.MaxValue != nil && num > *spec.MaxValue {
			add("range", "value %v above maximum %v", num, *spec.MaxValue)
		}
	case template.TypeEnum:
		for _, opt := range spec.EnumOptions {
			if strings.EqualFold(strings.TrimSpace(value), strings.TrimSpace(opt)) {
				return issues
			}
		}
		add("allowed_values", "value %q not among allowed options", value)
	}
	return issues
}

var numberRe = regexp.MustCompile(`[0-9.]+`)

// ocrDigits undoes the substitutions OCR makes most often inside
// numbers before the numeric run is parsed.
var ocrDigits = strings.NewReplacer(",", ".", "O", "0", "l", "1", "I", "1")

// parseNumber reads the first numeric run out of a value, tolerating
// common OCR confusions and trailing units ("98 CPS" parses as 98).
// A value with no real digit at all is not a number: substitutions
// alone must not conjure one out of a word.
func parseNumber(value string) (float64, bool) {
	if !strings.ContainsAny(value, "0123456789") {
		return 0, false
	}
	cleaned := ocrDigits.Replace(strings.TrimSpace(value))
	run := numberRe.FindString(cleaned)
	if run == "" {
		return 0, false
	}
	n, err := strconv.ParseFloat(run, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
