// Package classify assigns a page type to recognized page text by
// matching header lines against a catalog of known form titles. It is
// deterministic: scoring is exact containment plus token overlap, with
// no fuzzy-matching dependency.
package classify

import (
	"log/slog"
	"regexp"
	"strings"
)

// Unknown is the page type for pages no catalog entry matches.
const Unknown = "UNKNOWN"

// Entry maps a page type to the printed header title that identifies it.
type Entry struct {
	PageType string
	Title    string
}

// DefaultCatalog lists the form titles this deployment recognizes.
func DefaultCatalog() []Entry {
	return []Entry{
		{"QC_TEST_REPORT", "Finished Good Q.C. Test Report for Speciality Chemicals"},
		{"PRODUCTION_REPORT", "Production Report"},
		{"WORKSHEET_POLYMER", "Worksheet for Polymer Product"},
		{"DEVIATION_ACCEPTANCE", "Acceptance Under Deviation for Raw Material/ Finished Products/ Packing Material"},
		{"PRODUCT_SPEC", "View Product Specification"},
		{"STORES_REQUISITION", "Stores Requisition Slip Polymer Plant"},
		{"RM_PACKING_ISSUANCE", "Raw Material & Packing Material Issuance Record"},
		{"ISSUE_VOUCHER", "Issue - Mtrl Voucher"},
		{"SOP", "Standard Operating Procedure"},
		{"BMR", "Batch Manufacturing Record (BMR)"},
		{"PACKING_DETAILS", "Packing Details"},
		{"BMR_CHECKLIST", "BMR Review Checklist"},
	}
}

// Result is the classification of one page.
type Result struct {
	PageType    string
	Score       float64
	MatchedLine string
	PageNum     int // 0 when absent
	TotalPages  int // 0 when absent
}

type Classifier struct {
	entries  []Entry
	minScore float64
	log      *slog.Logger
}

func New(entries []Entry, minScore float64, log *slog.Logger) *Classifier {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if minScore <= 0 {
		minScore = 0.82
	}
	return &Classifier{entries: entries, minScore: minScore, log: log}
}

// Session classifies the pages of one document in order, carrying the
// continuation rule: a page with no recognizable header inherits the
// previous page's type, and a missing page index is interpolated from
// the previous page of the same type.
type Session struct {
	c    *Classifier
	prev *Result
}

func (c *Classifier) NewSession() *Session { return &Session{c: c} }

func (s *Session) Classify(text string) Result {
	res := s.c.classifyOne(text)

	if res.PageType == Unknown && s.prev != nil &&
		s.prev.PageType != Unknown && len(text) > 100 {
		res.PageType = s.prev.PageType
		res.Score = s.prev.Score
		s.c.log.Info("page inherits type from previous page", "page_type", res.PageType)
	}
	if res.PageNum == 0 && s.prev != nil &&
		s.prev.PageType == res.PageType &&
		s.prev.PageNum > 0 && s.prev.PageNum < s.prev.TotalPages {
		res.PageNum = s.prev.PageNum + 1
		res.TotalPages = s.prev.TotalPages
	}

	cp := res
	s.prev = &cp
	return res
}

func (c *Classifier) classifyOne(text string) Result {
	if strings.TrimSpace(text) == "" {
		return Result{PageType: Unknown}
	}
	lines := headerLines(text, 30)

	best := Result{PageType: Unknown}
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if len(line) < 4 {
			continue
		}
		for _, entry := range c.entries {
			score := matchScore(line, entry.Title)
			if score < c.minScore {
				continue
			}
			// Early lines get a small boost so a title repeated in a
			// footer cannot outrank the page header.
			score = min(1.0, score+positionBoost(i))
			// Strictly-greater keeps the earliest line and the earliest
			// catalog entry on ties, which makes the outcome stable.
			if score > best.Score {
				best = Result{PageType: entry.PageType, Score: score, MatchedLine: line}
			}
		}
	}

	num, total := pageInfo(text)
	best.PageNum, best.TotalPages = num, total
	return best
}

func positionBoost(lineIdx int) float64 {
	if lineIdx >= 20 {
		return 0
	}
	return float64(20-lineIdx) / 400.0
}

var markdownNoiseRe = regexp.MustCompile(`[#*_>|]+`)

// matchScore compares a page line against a catalog title: 1.0 for
// normalized containment either way, otherwise the fraction of title
// tokens present in the line.
func matchScore(line, title string) float64 {
	ln := normalizeTitle(line)
	tn := normalizeTitle(title)
	if ln == "" || tn == "" {
		return 0
	}
	if strings.Contains(ln, tn) || strings.Contains(tn, ln) {
		return 1.0
	}
	titleTokens := strings.Fields(tn)
	if len(titleTokens) == 0 {
		return 0
	}
	hits := 0
	for _, tok := range titleTokens {
		if strings.Contains(ln, tok) {
			hits++
		}
	}
	return float64(hits) / float64(len(titleTokens))
}

// normalizeTitle lowers case, strips markdown decoration, and removes
// dots so "Q. C." and "QC" compare equal.
func normalizeTitle(s string) string {
	s = markdownNoiseRe.ReplaceAllString(s, " ")
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, ". ", ".")
	s = strings.ReplaceAll(s, ".", "")
	return strings.Join(strings.Fields(s), " ")
}

var pageInfoRes = []*regexp.Regexp{
	regexp.MustCompile(`PAGE\s*(?:NO\.?:?)?\s*(\d+)\s*OF\s*(\d+)`),
	regexp.MustCompile(`PAGE\s*(\d+)\s*/\s*(\d+)`),
	regexp.MustCompile(`SHEET\s*NO\.?:?\s*(\d+)`),
}

// pageInfo pulls "Page X of Y" style pagination from the top 20 and
// bottom 10 lines.
func pageInfo(text string) (num, total int) {
	lines := strings.Split(text, "\n")
	search := lines
	if len(lines) > 20 {
		search = append(append([]string{}, lines[:20]...), lines[max(20, len(lines)-10):]...)
	}
	for _, line := range search {
		upper := strings.ToUpper(line)
		for _, re := range pageInfoRes {
			m := re.FindStringSubmatch(upper)
			if m == nil {
				continue
			}
			num = atoiSafe(m[1])
			if len(m) > 2 {
				total = atoiSafe(m[2])
			}
			if num > 0 {
				return num, total
			}
		}
	}
	return 0, 0
}

func atoiSafe(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}

func headerLines(text string, limit int) []string {
	lines := strings.Split(text, "\n")
	if len(lines) > limit {
		lines = lines[:limit]
	}
	return lines
}
