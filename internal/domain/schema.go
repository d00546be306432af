package domain

import "strings"

// FieldCategory classifies a schema field. The category is fixed when the
// schema is constructed and never re-derived per lookup.
type FieldCategory string

const (
	CategoryScalar         FieldCategory = "SCALAR"
	CategoryReference      FieldCategory = "REFERENCE"
	CategoryEmbeddedObject FieldCategory = "EMBEDDED_OBJECT"
	CategoryEmbeddedArray  FieldCategory = "EMBEDDED_ARRAY"
)

// PathSeparator joins segments of a dotted field path.
const PathSeparator = "."

// DefaultIDField is the identity field shared by every collection.
const DefaultIDField = "_id"

// FieldDefinition represents a field definition in a schema.
// Reference fields name the target collection in Ref; embedded fields own
// their sub-schema in Elem.
type FieldDefinition struct {
	Name        string        `json:"name"`
	Category    FieldCategory `json:"category"`
	Ref         string        `json:"ref,omitempty"`
	Elem        *Schema       `json:"elem,omitempty"`
	Required    bool          `json:"required,omitempty"`
	Description string        `json:"description,omitempty"`
}

// Schema represents the field declarations of a collection. Schemas are
// read-only after construction; the rewriter never mutates them.
type Schema struct {
	Collection string            `json:"collection"`
	IDField    string            `json:"id_field"`
	Fields     []FieldDefinition `json:"fields"`

	byName map[string]int
}

// NewSchema creates a schema for a collection with immutable field order.
func NewSchema(collection string, fields []FieldDefinition) *Schema {
	s := &Schema{
		Collection: collection,
		IDField:    DefaultIDField,
		Fields:     copyFields(fields),
		byName:     make(map[string]int, len(fields)),
	}
	for i, field := range s.Fields {
		s.byName[field.Name] = i
	}
	return s
}

// Field returns the directly declared field with the given name.
func (s *Schema) Field(name string) (FieldDefinition, bool) {
	if s == nil {
		return FieldDefinition{}, false
	}
	if i, ok := s.byName[name]; ok {
		return s.Fields[i], true
	}
	return FieldDefinition{}, false
}

// Path resolves a dotted path to a field descriptor. Embedded-array fields
// are transparent: sub-paths resolve against the array's element schema,
// and a positional placeholder segment inside an embedded array is skipped.
// The identity field resolves on every schema even when not declared.
func (s *Schema) Path(path string) (FieldDefinition, bool) {
	if s == nil || path == "" {
		return FieldDefinition{}, false
	}
	if path == s.IDField {
		return FieldDefinition{Name: s.IDField, Category: CategoryScalar}, true
	}

	segments := strings.Split(path, PathSeparator)
	cur := s
	var field FieldDefinition
	inArray := false
	for i := 0; i < len(segments); i++ {
		seg := segments[i]
		if seg == Positional && inArray {
			continue
		}
		var ok bool
		field, ok = cur.Field(seg)
		if !ok {
			return FieldDefinition{}, false
		}
		inArray = field.Category == CategoryEmbeddedArray
		if i == len(segments)-1 {
			return field, true
		}
		switch field.Category {
		case CategoryEmbeddedObject, CategoryEmbeddedArray:
			if field.Elem == nil {
				return FieldDefinition{}, false
			}
			cur = field.Elem
		default:
			// Scalars and references cannot be descended into locally;
			// crossing a reference is the translator's job.
			return FieldDefinition{}, false
		}
	}
	return field, true
}

// Resolve is Path with dead references filtered out: a reference field whose
// target collection name is empty resolves as not found, since it can never
// be crossed. Absence is a normal outcome, not an error.
func (s *Schema) Resolve(path string) (FieldDefinition, bool) {
	field, ok := s.Path(path)
	if !ok {
		return FieldDefinition{}, false
	}
	if field.Category == CategoryReference && field.Ref == "" {
		return FieldDefinition{}, false
	}
	return field, true
}

// copyFields creates a deep copy of the fields slice to ensure immutability
func copyFields(fields []FieldDefinition) []FieldDefinition {
	if fields == nil {
		return nil
	}
	newFields := make([]FieldDefinition, len(fields))
	copy(newFields, fields)
	return newFields
}
