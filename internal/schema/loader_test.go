package schema

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rpattn/refql/internal/domain"
)

func writeSchemaFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write schema file: %v", err)
	}
}

func TestParseDefinition(t *testing.T) {
	s, err := ParseDefinition([]byte(`{
		"collection": "Cat",
		"fields": [
			{"name": "name", "category": "SCALAR", "required": true},
			{"name": "owner", "category": "REFERENCE", "ref": "Person"},
			{"name": "toys", "category": "EMBEDDED_ARRAY", "fields": [
				{"name": "label", "category": "SCALAR"}
			]}
		]
	}`))
	if err != nil {
		t.Fatalf("failed to parse definition: %v", err)
	}

	if s.Collection != "Cat" {
		t.Fatalf("expected collection Cat, got %s", s.Collection)
	}
	field, ok := s.Field("owner")
	if !ok || field.Category != domain.CategoryReference || field.Ref != "Person" {
		t.Fatalf("expected owner to be a reference to Person, got %+v", field)
	}
	if _, ok := s.Path("toys.label"); !ok {
		t.Fatalf("expected embedded array sub-field to resolve")
	}
}

func TestParseDefinitionRejectsReferenceWithoutTarget(t *testing.T) {
	_, err := ParseDefinition([]byte(`{
		"collection": "Cat",
		"fields": [{"name": "owner", "category": "REFERENCE"}]
	}`))
	if err == nil {
		t.Fatalf("expected error for reference without target collection")
	}
}

func TestParseDefinitionRejectsUnknownCategory(t *testing.T) {
	_, err := ParseDefinition([]byte(`{
		"collection": "Cat",
		"fields": [{"name": "name", "category": "BLOB"}]
	}`))
	if err == nil {
		t.Fatalf("expected error for unknown field category")
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeSchemaFile(t, dir, "cat.json", `{
		"collection": "Cat",
		"fields": [{"name": "name", "category": "SCALAR"}]
	}`)
	writeSchemaFile(t, dir, "person.json", `{
		"collection": "Person",
		"fields": [{"name": "name", "category": "SCALAR"}]
	}`)
	writeSchemaFile(t, dir, "notes.txt", "ignored")

	reg, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("failed to load schema directory: %v", err)
	}
	if reg.Len() != 2 {
		t.Fatalf("expected 2 collections, got %d", reg.Len())
	}
	if _, ok := reg.Lookup("Person"); !ok {
		t.Fatalf("expected Person to be registered")
	}
}

func TestLoadDirDuplicateCollection(t *testing.T) {
	dir := t.TempDir()
	writeSchemaFile(t, dir, "a.json", `{"collection": "Cat", "fields": []}`)
	writeSchemaFile(t, dir, "b.json", `{"collection": "Cat", "fields": []}`)

	if _, err := LoadDir(dir); err == nil {
		t.Fatalf("expected duplicate collection error")
	}
}
