package extract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/lalitmahajn/BMR-OCR/internal/template"
)

var (
	cellMarkupRe  = regexp.MustCompile(`\*\*|\*|__`)
	separatorCell = regexp.MustCompile(`^[-: ]+$`)
	fieldIDJunkRe = regexp.MustCompile(`[^A-Z0-9]+`)
)

// ExtractTables scans the page for pipe-table blocks and emits one
// Result per kept cell. Blocks are numbered in reading order; cells
// that never find a header row in their block produce nothing.
func (e *Engine) ExtractTables(text string, spec *template.TableSpec) []Result {
	if spec == nil {
		return nil
	}
	var results []Result
	used := make(map[string]bool)
	for i, block := range scanBlocks(text) {
		results = append(results, e.extractBlock(block, i+1, spec, used)...)
	}
	return results
}

// scanBlocks groups maximal runs of consecutive pipe rows. A pipe row
// has at least two pipe characters; blank or prose lines end a block.
func scanBlocks(text string) [][]string {
	var blocks [][]string
	var current []string
	for _, line := range strings.Split(text, "\n") {
		if strings.Count(line, "|") >= 2 {
			current = append(current, line)
			continue
		}
		if len(current) > 0 {
			blocks = append(blocks, current)
			current = nil
		}
	}
	if len(current) > 0 {
		blocks = append(blocks, current)
	}
	return blocks
}

func (e *Engine) extractBlock(lines []string, tableNum int, spec *template.TableSpec, used map[string]bool) []Result {
	rows := make([][]string, len(lines))
	for i, line := range lines {
		rows[i] = parseRow(line)
	}

	headerIdx := -1
	for i, row := range rows {
		if isSeparatorRow(row) {
			continue
		}
		if rowHasKeyword(row, spec.HeaderIdentifierKeywords) {
			headerIdx = i
			break
		}
	}
	if headerIdx < 0 {
		e.log.Warn("pipe block without recognizable header row skipped",
			"table", tableNum, "rows", len(rows))
		return nil
	}

	header := rows[headerIdx]
	roles := make([]ColumnRole, len(header))
	for c, cell := range header {
		roles[c] = classifyColumn(cell, spec)
	}

	var results []Result
	rowNum := 0
	for _, row := range rows[headerIdx+1:] {
		if isSeparatorRow(row) {
			continue
		}
		if !spec.DynamicRows && len(row) != len(header) {
			continue
		}
		// Ragged rows are padded or truncated to header arity so every
		// emitted row has a value (possibly empty) for every column.
		cells := normalizeRow(row, len(header))
		rowNum++
		for c, cell := range cells {
			role := roles[c]
			if !spec.ExtractAllColumns && role == RoleUnclassified {
				continue
			}
			results = append(results, Result{
				FieldID:    cellFieldID(tableNum, rowNum, c, role, header[c], used),
				Section:    SectionTable,
				RawValue:   cell,
				Method:     MethodTableCell,
				RowIndex:   rowNum,
				ColumnRole: role,
			})
		}
	}
	return results
}

// parseRow splits a pipe row into trimmed cells, dropping the empty
// edge cells that leading/trailing pipes produce and stripping markdown
// emphasis left over from OCR output.
func parseRow(line string) []string {
	parts := strings.Split(line, "|")
	if len(parts) > 0 && strings.TrimSpace(parts[0]) == "" {
		parts = parts[1:]
	}
	if len(parts) > 0 && strings.TrimSpace(parts[len(parts)-1]) == "" {
		parts = parts[:len(parts)-1]
	}
	cells := make([]string, len(parts))
	for i, p := range parts {
		cells[i] = strings.TrimSpace(cellMarkupRe.ReplaceAllString(p, ""))
	}
	return cells
}

// isSeparatorRow reports markdown alignment rows like |---|:---:|.
func isSeparatorRow(cells []string) bool {
	if len(cells) == 0 {
		return false
	}
	any := false
	for _, c := range cells {
		if c == "" {
			continue
		}
		if !separatorCell.MatchString(c) {
			return false
		}
		any = true
	}
	return any
}

func rowHasKeyword(cells []string, keywords []string) bool {
	for _, cell := range cells {
		if containsAnyKeyword(cell, keywords) {
			return true
		}
	}
	return false
}

// classifyColumn assigns a role by keyword containment. Precedence is
// parameter, result, index, so a header matching two sets classifies
// the same way regardless of keyword list order.
func classifyColumn(header string, spec *template.TableSpec) ColumnRole {
	switch {
	case containsAnyKeyword(header, spec.ParameterColumnKeywords):
		return RoleParameter
	case containsAnyKeyword(header, spec.ResultColumnKeywords):
		return RoleResult
	case containsAnyKeyword(header, spec.IndexColumnKeywords):
		return RoleIndex
	default:
		return RoleUnclassified
	}
}

func containsAnyKeyword(cell string, keywords []string) bool {
	lower := strings.ToLower(cell)
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func normalizeRow(cells []string, n int) []string {
	if len(cells) == n {
		return cells
	}
	out := make([]string, n)
	copy(out, cells)
	return out
}

// cellFieldID synthesizes a stable field ID for one cell. Classified
// columns use the role name; unclassified ones use the sanitized header
// text. A collision within the extraction gets a column suffix.
func cellFieldID(table, row, col int, role ColumnRole, header string, used map[string]bool) string {
	key := sanitizeKey(header)
	if role != RoleUnclassified {
		key = strings.ToUpper(string(role))
	}
	if key == "" {
		key = fmt.Sprintf("COL%d", col+1)
	}
	id := fmt.Sprintf("T%d_R%d_%s", table, row, key)
	if used[id] {
		id = fmt.Sprintf("%s_C%d", id, col+1)
	}
	used[id] = true
	return id
}

func sanitizeKey(s string) string {
	s = fieldIDJunkRe.ReplaceAllString(strings.ToUpper(s), "_")
	return strings.Trim(s, "_")
}
