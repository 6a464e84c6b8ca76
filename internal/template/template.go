// Package template defines the extraction template model: which fields
// and tables a known page type carries and how to locate their values in
// recognized page text.
package template

import (
	"fmt"
	"regexp"
	"strings"
)

// ValueType declares the expected shape of an extracted value. It drives
// format scoring only; values are always stored as raw strings.
type ValueType string

const (
	TypeString ValueType = "string"
	TypeInt    ValueType = "int"
	TypeFloat  ValueType = "float"
	TypeDate   ValueType = "date"
	TypeEnum   ValueType = "enum"
)

// FieldSpec describes one scalar field. At least one of Label or Regex
// must be set; Regex doubles as a validator (with a label) and as a
// standalone fallback matcher (first capture group).
//
// Required, MinValue and MaxValue are review rules: breaking them never
// suppresses a result, it flags the page for a human.
type FieldSpec struct {
	FieldID     string    `yaml:"field_id" json:"field_id"`
	Label       string    `yaml:"label,omitempty" json:"label,omitempty"`
	Regex       string    `yaml:"regex,omitempty" json:"regex,omitempty"`
	ValueType   ValueType `yaml:"value_type,omitempty" json:"value_type,omitempty"`
	EnumOptions []string  `yaml:"enum_options,omitempty" json:"enum_options,omitempty"`
	Required    bool      `yaml:"required,omitempty" json:"required,omitempty"`
	MinValue    *float64  `yaml:"min_value,omitempty" json:"min_value,omitempty"`
	MaxValue    *float64  `yaml:"max_value,omitempty" json:"max_value,omitempty"`
}

// TableSpec describes how to find and read the page's pipe table(s).
// Keyword matching is case-insensitive substring containment.
type TableSpec struct {
	ExtractAllColumns        bool     `yaml:"extract_all_columns" json:"extract_all_columns"`
	DynamicRows              bool     `yaml:"dynamic_rows" json:"dynamic_rows"`
	HeaderIdentifierKeywords []string `yaml:"header_identifier_keywords" json:"header_identifier_keywords"`
	ParameterColumnKeywords  []string `yaml:"parameter_column_keywords,omitempty" json:"parameter_column_keywords,omitempty"`
	ResultColumnKeywords     []string `yaml:"result_column_keywords,omitempty" json:"result_column_keywords,omitempty"`
	IndexColumnKeywords      []string `yaml:"index_column_keywords,omitempty" json:"index_column_keywords,omitempty"`
}

// Template is the full extraction recipe for one page type. Templates
// are immutable after loading; a change means replacing the whole file.
type Template struct {
	PageType     string      `yaml:"page_type" json:"page_type"`
	Version      string      `yaml:"version" json:"version"`
	HeaderFields []FieldSpec `yaml:"header_fields,omitempty" json:"header_fields,omitempty"`
	FooterFields []FieldSpec `yaml:"footer_fields,omitempty" json:"footer_fields,omitempty"`
	Table        *TableSpec  `yaml:"table,omitempty" json:"table,omitempty"`
}

// InvalidTemplateError reports a template document that decoded but
// violates a structural invariant. The whole document is rejected.
type InvalidTemplateError struct {
	PageType string
	Reason   string
}

func (e *InvalidTemplateError) Error() string {
	return fmt.Sprintf("invalid template %q: %s", e.PageType, e.Reason)
}

func invalid(pageType, format string, args ...any) error {
	return &InvalidTemplateError{PageType: pageType, Reason: fmt.Sprintf(format, args...)}
}

// Validate checks the structural invariants: identity fields present,
// field IDs unique within a section, every spec locatable, every regex
// compilable, and table keyword sets sufficient for the emission policy.
func (t *Template) Validate() error {
	if strings.TrimSpace(t.PageType) == "" {
		return invalid(t.PageType, "page_type is required")
	}
	if strings.TrimSpace(t.Version) == "" {
		return invalid(t.PageType, "version is required")
	}
	if len(t.HeaderFields) == 0 && len(t.FooterFields) == 0 && t.Table == nil {
		return invalid(t.PageType, "template defines no fields and no table")
	}
	if err := validateFields(t.PageType, "header_fields", t.HeaderFields); err != nil {
		return err
	}
	if err := validateFields(t.PageType, "footer_fields", t.FooterFields); err != nil {
		return err
	}
	if t.Table != nil {
		if err := t.validateTable(); err != nil {
			return err
		}
	}
	return nil
}

func validateFields(pageType, section string, specs []FieldSpec) error {
	seen := make(map[string]bool, len(specs))
	for i, spec := range specs {
		if strings.TrimSpace(spec.FieldID) == "" {
			return invalid(pageType, "%s[%d]: field_id is required", section, i)
		}
		if seen[spec.FieldID] {
			return invalid(pageType, "%s: duplicate field_id %q", section, spec.FieldID)
		}
		seen[spec.FieldID] = true
		if spec.Label == "" && spec.Regex == "" {
			return invalid(pageType, "%s %q: needs a label or a regex", section, spec.FieldID)
		}
		if spec.Regex != "" {
			if _, err := regexp.Compile(spec.Regex); err != nil {
				return invalid(pageType, "%s %q: bad regex: %v", section, spec.FieldID, err)
			}
		}
		switch spec.ValueType {
		case "", TypeString, TypeInt, TypeFloat, TypeDate:
		case TypeEnum:
			if len(spec.EnumOptions) == 0 {
				return invalid(pageType, "%s %q: enum type with no enum_options", section, spec.FieldID)
			}
		default:
			return invalid(pageType, "%s %q: unknown value_type %q", section, spec.FieldID, spec.ValueType)
		}
		if spec.MinValue != nil || spec.MaxValue != nil {
			if spec.ValueType != TypeInt && spec.ValueType != TypeFloat {
				return invalid(pageType, "%s %q: min_value/max_value need value_type int or float", section, spec.FieldID)
			}
			if spec.MinValue != nil && spec.MaxValue != nil && *spec.MinValue > *spec.MaxValue {
				return invalid(pageType, "%s %q: min_value above max_value", section, spec.FieldID)
			}
		}
	}
	return nil
}

func (t *Template) validateTable() error {
	ts := t.Table
	if len(ts.HeaderIdentifierKeywords) == 0 {
		return invalid(t.PageType, "table: header_identifier_keywords must not be empty")
	}
	if !ts.ExtractAllColumns &&
		len(ts.ParameterColumnKeywords) == 0 &&
		len(ts.ResultColumnKeywords) == 0 &&
		len(ts.IndexColumnKeywords) == 0 {
		return invalid(t.PageType, "table: extract_all_columns=false with no column keyword sets would emit nothing")
	}
	return nil
}
