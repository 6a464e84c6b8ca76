package template

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// ErrTemplateNotFound reports that no template file exists for a page
// type. Callers treat it as "page stays unprocessed", not as a failure
// of the whole document.
var ErrTemplateNotFound = errors.New("template not found")

// templateSchema is the shape check applied before decoding into the
// typed model. Structural invariants beyond shape live in Validate.
const templateSchema = `{
  "type": "object",
  "required": ["page_type", "version"],
  "properties": {
    "page_type": {"type": "string", "minLength": 1},
    "version": {"type": "string", "minLength": 1},
    "header_fields": {"type": "array", "items": {"$ref": "#/$defs/field"}},
    "footer_fields": {"type": "array", "items": {"$ref": "#/$defs/field"}},
    "table": {
      "type": "object",
      "required": ["header_identifier_keywords"],
      "properties": {
        "extract_all_columns": {"type": "boolean"},
        "dynamic_rows": {"type": "boolean"},
        "header_identifier_keywords": {"type": "array", "items": {"type": "string"}},
        "parameter_column_keywords": {"type": "array", "items": {"type": "string"}},
        "result_column_keywords": {"type": "array", "items": {"type": "string"}},
        "index_column_keywords": {"type": "array", "items": {"type": "string"}}
      },
      "additionalProperties": false
    }
  },
  "additionalProperties": false,
  "$defs": {
    "field": {
      "type": "object",
      "required": ["field_id"],
      "properties": {
        "field_id": {"type": "string", "minLength": 1},
        "label": {"type": "string"},
        "regex": {"type": "string"},
        "value_type": {"enum": ["string", "int", "float", "date", "enum"]},
        "enum_options": {"type": "array", "items": {"type": "string"}},
        "required": {"type": "boolean"},
        "min_value": {"type": "number"},
        "max_value": {"type": "number"}
      },
      "additionalProperties": false
    }
  }
}`

// Registry loads templates from a directory and caches them for the
// process lifetime. Loads for one page type are single-flight: the
// first caller reads the file, concurrent callers wait and share the
// outcome. Failed loads are not cached, so a fixed file is picked up on
// the next request.
type Registry struct {
	dir    string
	schema *jsonschema.Schema
	log    *slog.Logger

	mu      sync.Mutex
	cache   map[string]*Template
	loading map[string]*loadCall
}

type loadCall struct {
	done chan struct{}
	tmpl *Template
	err  error
}

func NewRegistry(dir string, log *slog.Logger) (*Registry, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	schema, err := jsonschema.CompileString("template.schema.json", templateSchema)
	if err != nil {
		return nil, fmt.Errorf("compile template schema: %w", err)
	}
	return &Registry{
		dir:     dir,
		schema:  schema,
		log:     log,
		cache:   make(map[string]*Template),
		loading: make(map[string]*loadCall),
	}, nil
}

// Load returns the template for pageType, reading it from disk on first
// use. The returned Template is shared and must not be mutated.
func (r *Registry) Load(pageType string) (*Template, error) {
	r.mu.Lock()
	if t, ok := r.cache[pageType]; ok {
		r.mu.Unlock()
		return t, nil
	}
	if c, ok := r.loading[pageType]; ok {
		r.mu.Unlock()
		<-c.done
		return c.tmpl, c.err
	}
	c := &loadCall{done: make(chan struct{})}
	r.loading[pageType] = c
	r.mu.Unlock()

	c.tmpl, c.err = r.loadFile(pageType)

	r.mu.Lock()
	delete(r.loading, pageType)
	if c.err == nil {
		r.cache[pageType] = c.tmpl
	}
	r.mu.Unlock()
	close(c.done)

	return c.tmpl, c.err
}

func (r *Registry) loadFile(pageType string) (*Template, error) {
	data, path, err := r.readCandidate(pageType)
	if err != nil {
		return nil, err
	}

	// YAML superset also covers .json files. Round-trip the generic
	// form through encoding/json so the schema validator sees plain
	// JSON types.
	var generic any
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return nil, invalid(pageType, "parse %s: %v", filepath.Base(path), err)
	}
	raw, err := json.Marshal(generic)
	if err != nil {
		return nil, invalid(pageType, "normalize %s: %v", filepath.Base(path), err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, invalid(pageType, "normalize %s: %v", filepath.Base(path), err)
	}
	if err := r.schema.Validate(doc); err != nil {
		return nil, invalid(pageType, "schema: %v", err)
	}

	var tmpl Template
	if err := yaml.Unmarshal(data, &tmpl); err != nil {
		return nil, invalid(pageType, "decode %s: %v", filepath.Base(path), err)
	}
	if tmpl.PageType != pageType {
		return nil, invalid(pageType, "file %s declares page_type %q", filepath.Base(path), tmpl.PageType)
	}
	if err := tmpl.Validate(); err != nil {
		return nil, err
	}

	r.log.Info("template loaded",
		"page_type", tmpl.PageType,
		"version", tmpl.Version,
		"header_fields", len(tmpl.HeaderFields),
		"footer_fields", len(tmpl.FooterFields),
		"has_table", tmpl.Table != nil)
	return &tmpl, nil
}

func (r *Registry) readCandidate(pageType string) ([]byte, string, error) {
	if strings.ContainsAny(pageType, `/\`) {
		return nil, "", fmt.Errorf("page type %q: %w", pageType, ErrTemplateNotFound)
	}
	for _, ext := range []string{".yaml", ".yml", ".json"} {
		path := filepath.Join(r.dir, pageType+ext)
		data, err := os.ReadFile(path)
		if err == nil {
			return data, path, nil
		}
		if !os.IsNotExist(err) {
			return nil, "", fmt.Errorf("read template %s: %w", path, err)
		}
	}
	return nil, "", fmt.Errorf("page type %q: %w", pageType, ErrTemplateNotFound)
}
