package schema

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.schema.json
var catalogSchema string

// CatalogSchema returns the JSON Schema entity catalogs are validated against
func CatalogSchema() string { return catalogSchema }

// Catalog is the set of entities exposed through generic listing
type Catalog struct {
	Version  string   `json:"version" yaml:"version"`
	Title    string   `json:"title,omitempty" yaml:"title,omitempty"`
	Entities []Entity `json:"entities" yaml:"entities"`
}

// Entity looks up an entity by name. Unknown names are validation errors.
func (c *Catalog) Entity(name string) (*Entity, error) {
	for i := range c.Entities {
		if c.Entities[i].Name == name {
			return &c.Entities[i], nil
		}
	}
	return nil, Invalid("entity", "unknown entity %q", name)
}

// Load reads a JSON or YAML catalog file, chosen by extension
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data, filepath.Ext(path))
}

// Parse decodes, schema-validates and checks a catalog document.
// format is a file extension: ".json", ".yaml" or ".yml".
func Parse(data []byte, format string) (*Catalog, error) {
	var doc interface{}
	switch strings.ToLower(format) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse catalog yaml: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse catalog json: %w", err)
		}
	}

	if problems, err := ValidateDocument(doc); err != nil {
		return nil, err
	} else if len(problems) > 0 {
		return nil, fmt.Errorf("catalog does not match schema: %s", strings.Join(problems, "; "))
	}

	// Round-trip through JSON so YAML and JSON share one decoding path
	normalized, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var cat Catalog
	if err := json.Unmarshal(normalized, &cat); err != nil {
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}

	seen := make(map[string]bool)
	for i := range cat.Entities {
		e := &cat.Entities[i]
		if seen[e.Name] {
			return nil, fmt.Errorf("duplicate entity %s", e.Name)
		}
		seen[e.Name] = true
		if err := e.Validate(); err != nil {
			return nil, err
		}
	}
	return &cat, nil
}

// ValidateDocument checks a decoded document against the catalog schema and
// returns one message per violation.
func ValidateDocument(doc interface{}) ([]string, error) {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(catalogSchema),
		gojsonschema.NewGoLoader(doc),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to validate catalog: %w", err)
	}
	if result.Valid() {
		return nil, nil
	}
	problems := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		problems = append(problems, desc.String())
	}
	return problems, nil
}
