package extract

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/lalitmahajn/BMR-OCR/internal/template"
)

// Composite confidence: method is the dominant term, format agreement
// second, noise a small deduction. Weights sum so a clean label+regex
// match on a well-formed value approaches but never reaches 1.0.
const (
	weightMethod = 0.5
	weightFormat = 0.3
	weightNoise  = 0.2
)

var (
	dateFullRe  = regexp.MustCompile(`^\d{1,2}[./-]\d{1,2}[./-]\d{2,4}$`)
	intFullRe   = regexp.MustCompile(`^[+-]?\d+$`)
	floatFullRe = regexp.MustCompile(`^[+-]?\d+(\.\d+)?$`)
	anyDigitRe  = regexp.MustCompile(`\d`)

	// OCR noise signatures: doubled pipes, leftover image markup,
	// dense symbol runs, and bare separator remnants.
	noiseRes = []*regexp.Regexp{
		regexp.MustCompile(`\|{2,}`),
		regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`),
		regexp.MustCompile(`[^\w\s]{6,}`),
		regexp.MustCompile(`^[-|:.\s]+$`),
	}
)

// Score computes the confidence for one extracted value. An empty value
// or missing method scores exactly 0. The result is clamped to [0,1].
func Score(res Result, valueType template.ValueType, enumOptions []string) float64 {
	value := strings.TrimSpace(res.RawValue)
	if value == "" || res.Method == "" {
		return 0
	}
	m, ok := methodScore(res)
	if !ok {
		return 0
	}
	f := formatScore(value, valueType, enumOptions)
	noise := 0.0
	if isNoisy(value) {
		noise = -0.3
	}
	s := weightMethod*m + weightFormat*f + weightNoise*(1+noise)
	return clamp01(s)
}

func methodScore(res Result) (float64, bool) {
	switch res.Method {
	case MethodLabelRegex:
		return 0.95, true
	case MethodLabelOnly:
		return 0.80, true
	case MethodRegexFallback:
		return 0.70, true
	case MethodTableCell:
		if res.ColumnRole != "" && res.ColumnRole != RoleUnclassified {
			return 0.85, true
		}
		return 0.60, true
	}
	return 0, false
}

func formatScore(value string, valueType template.ValueType, enumOptions []string) float64 {
	switch valueType {
	case template.TypeDate:
		return tieredScore(dateFullRe.MatchString(value), anyDigitRe.MatchString(value))
	case template.TypeInt:
		return tieredScore(intFullRe.MatchString(value), anyDigitRe.MatchString(value))
	case template.TypeFloat:
		return tieredScore(floatFullRe.MatchString(value), anyDigitRe.MatchString(value))
	case template.TypeEnum:
		return enumScore(value, enumOptions)
	default:
		return freeTextScore(value)
	}
}

func tieredScore(full, partial bool) float64 {
	switch {
	case full:
		return 1.0
	case partial:
		return 0.5
	default:
		return 0.2
	}
}

func enumScore(value string, options []string) float64 {
	lower := strings.ToLower(value)
	for _, opt := range options {
		if strings.EqualFold(value, strings.TrimSpace(opt)) {
			return 1.0
		}
	}
	for _, opt := range options {
		o := strings.ToLower(strings.TrimSpace(opt))
		if o != "" && (strings.Contains(lower, o) || strings.Contains(o, lower)) {
			return 0.5
		}
	}
	return 0.2
}

// freeTextScore judges plausibility of untyped text: short and mostly
// alphanumeric reads as a real field value, symbol soup does not.
func freeTextScore(value string) float64 {
	runes := []rune(value)
	alnum := 0
	for _, r := range runes {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			alnum++
		}
	}
	ratio := float64(alnum) / float64(len(runes))
	switch {
	case len(runes) <= 80 && ratio >= 0.5:
		return 1.0
	case ratio >= 0.2:
		return 0.5
	default:
		return 0.2
	}
}

func isNoisy(value string) bool {
	for _, re := range noiseRes {
		if re.MatchString(value) {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
