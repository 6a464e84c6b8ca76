package extract

import (
	"errors"

	"github.com/lalitmahajn/BMR-OCR/internal/template"
)

// Run applies a template to one page's recognized text: header fields,
// footer fields, then tables, each result scored. Result order is
// deterministic — spec order for fields, reading order for cells.
func (e *Engine) Run(text string, tmpl *template.Template) ([]Result, error) {
	if tmpl == nil {
		return nil, errors.New("extract: nil template")
	}

	specsByKey := make(map[string]template.FieldSpec,
		len(tmpl.HeaderFields)+len(tmpl.FooterFields))
	for _, s := range tmpl.HeaderFields {
		specsByKey[string(SectionHeader)+"/"+s.FieldID] = s
	}
	for _, s := range tmpl.FooterFields {
		specsByKey[string(SectionFooter)+"/"+s.FieldID] = s
	}

	var results []Result
	results = append(results, e.ExtractFields(text, SectionHeader, tmpl.HeaderFields)...)
	results = append(results, e.ExtractFields(text, SectionFooter, tmpl.FooterFields)...)
	results = append(results, e.ExtractTables(text, tmpl.Table)...)

	for i := range results {
		vt := template.TypeString
		var opts []string
		if spec, ok := specsByKey[string(results[i].Section)+"/"+results[i].FieldID]; ok {
			vt = spec.ValueType
			opts = spec.EnumOptions
		}
		results[i].Confidence = Score(results[i], vt, opts)
	}

	e.log.Debug("page extracted",
		"page_type", tmpl.PageType,
		"template_version", tmpl.Version,
		"results", len(results))
	return results, nil
}
