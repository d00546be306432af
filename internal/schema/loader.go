package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rpattn/refql/internal/domain"
)

// Definition is the serialized form of a collection schema, as stored on
// disk or in the schemas table.
type Definition struct {
	Collection string            `json:"collection"`
	Fields     []FieldDefinition `json:"fields"`
}

// FieldDefinition mirrors domain.FieldDefinition for (de)serialization,
// with embedded sub-fields inline instead of a nested schema object.
type FieldDefinition struct {
	Name        string            `json:"name"`
	Category    string            `json:"category"`
	Ref         string            `json:"ref,omitempty"`
	Fields      []FieldDefinition `json:"fields,omitempty"`
	Required    bool              `json:"required,omitempty"`
	Description string            `json:"description,omitempty"`
}

// ParseDefinition decodes a single schema definition document.
func ParseDefinition(data []byte) (*domain.Schema, error) {
	var def Definition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to decode schema definition: %w", err)
	}
	return buildSchema(def)
}

func buildSchema(def Definition) (*domain.Schema, error) {
	if strings.TrimSpace(def.Collection) == "" {
		return nil, fmt.Errorf("schema definition has no collection name")
	}
	fields, err := buildFields(def.Collection, def.Fields)
	if err != nil {
		return nil, err
	}
	return domain.NewSchema(def.Collection, fields), nil
}

func buildFields(collection string, specs []FieldDefinition) ([]domain.FieldDefinition, error) {
	fields := make([]domain.FieldDefinition, 0, len(specs))
	for _, spec := range specs {
		if strings.TrimSpace(spec.Name) == "" {
			return nil, fmt.Errorf("collection %s: field with empty name", collection)
		}

		field := domain.FieldDefinition{
			Name:        spec.Name,
			Category:    domain.FieldCategory(spec.Category),
			Ref:         spec.Ref,
			Required:    spec.Required,
			Description: spec.Description,
		}

		switch field.Category {
		case domain.CategoryScalar:
		case domain.CategoryReference:
			if spec.Ref == "" {
				return nil, fmt.Errorf("collection %s: reference field %s has no target collection", collection, spec.Name)
			}
		case domain.CategoryEmbeddedObject, domain.CategoryEmbeddedArray:
			sub, err := buildFields(collection, spec.Fields)
			if err != nil {
				return nil, err
			}
			field.Elem = domain.NewSchema(collection, sub)
		default:
			return nil, fmt.Errorf("collection %s: field %s has unknown category %q", collection, spec.Name, spec.Category)
		}

		fields = append(fields, field)
	}
	return fields, nil
}

// LoadDir builds a registry from every *.json schema definition in dir.
func LoadDir(dir string) (*Registry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	schemas := make([]*domain.Schema, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read schema file %s: %w", name, err)
		}
		s, err := ParseDefinition(data)
		if err != nil {
			return nil, fmt.Errorf("schema file %s: %w", name, err)
		}
		schemas = append(schemas, s)
	}

	return NewRegistry(schemas...)
}
