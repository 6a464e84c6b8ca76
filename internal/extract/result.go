// Package extract implements the template-driven extraction engine:
// label-boundary field capture, pipe-table cell extraction, and the
// composite confidence scorer. Everything here is deterministic — the
// same text and template always produce the same results.
package extract

// Section identifies which part of the page a value was taken from.
type Section string

const (
	SectionHeader Section = "header"
	SectionFooter Section = "footer"
	SectionTable  Section = "table"
)

// Method records how a value was obtained. It is part of the audit
// record and the dominant term of the confidence score.
type Method string

const (
	MethodLabelRegex    Method = "label_regex"    // label found, regex validated
	MethodLabelOnly     Method = "label_only"     // label found, no validator
	MethodRegexFallback Method = "regex_fallback" // label path failed, pattern capture
	MethodTableCell     Method = "table_cell"
)

// ColumnRole classifies a table column by its header text.
type ColumnRole string

const (
	RoleParameter    ColumnRole = "parameter"
	RoleResult       ColumnRole = "result"
	RoleIndex        ColumnRole = "index"
	RoleUnclassified ColumnRole = "unclassified"
)

// Result is one extracted candidate value. Results are written once and
// never mutated; corrections live in verification records downstream.
type Result struct {
	FieldID    string  `json:"field_id"`
	Section    Section `json:"section"`
	RawValue   string  `json:"raw_value"`
	Method     Method  `json:"extraction_method"`
	Confidence float64 `json:"confidence"`

	// Table cells only. RowIndex is 1-based over emitted data rows.
	RowIndex   int        `json:"row_index,omitempty"`
	ColumnRole ColumnRole `json:"column_role,omitempty"`
}
