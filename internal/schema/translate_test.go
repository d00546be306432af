package schema

import (
	"reflect"
	"strings"
	"testing"

	"github.com/rpattn/refql/internal/domain"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()

	company := domain.NewSchema("Company", []domain.FieldDefinition{
		{Name: "name", Category: domain.CategoryScalar},
	})
	person := domain.NewSchema("Person", []domain.FieldDefinition{
		{Name: "name", Category: domain.CategoryScalar},
		{Name: "employer", Category: domain.CategoryReference, Ref: "Company"},
	})
	cat := domain.NewSchema("Cat", []domain.FieldDefinition{
		{Name: "name", Category: domain.CategoryScalar},
		{Name: "owner", Category: domain.CategoryReference, Ref: "Person"},
		{Name: "buddy", Category: domain.CategoryReference, Ref: "Ghost"},
		{Name: "toys", Category: domain.CategoryEmbeddedArray, Elem: domain.NewSchema("Cat", []domain.FieldDefinition{
			{Name: "label", Category: domain.CategoryScalar},
		})},
	})

	reg, err := NewRegistry(company, person, cat)
	if err != nil {
		t.Fatalf("failed to build registry: %v", err)
	}
	return reg
}

func translate(t *testing.T, reg *Registry, collection, path string) []string {
	t.Helper()
	s, ok := reg.Lookup(collection)
	if !ok {
		t.Fatalf("collection %s not registered", collection)
	}
	return reg.TranslatePath(strings.Split(path, domain.PathSeparator), s)
}

func TestTranslatePathLocal(t *testing.T) {
	reg := testRegistry(t)

	got := translate(t, reg, "Cat", "name")
	if !reflect.DeepEqual(got, []string{"name"}) {
		t.Fatalf("expected single local segment, got %v", got)
	}

	got = translate(t, reg, "Cat", "toys.label")
	if !reflect.DeepEqual(got, []string{"toys.label"}) {
		t.Fatalf("expected embedded path to stay joined, got %v", got)
	}
}

func TestTranslatePathSplitsAtReference(t *testing.T) {
	reg := testRegistry(t)

	got := translate(t, reg, "Cat", "owner.name")
	if !reflect.DeepEqual(got, []string{"owner", "name"}) {
		t.Fatalf("expected split at reference boundary, got %v", got)
	}
}

func TestTranslatePathMultiHop(t *testing.T) {
	reg := testRegistry(t)

	got := translate(t, reg, "Cat", "owner.employer.name")
	if !reflect.DeepEqual(got, []string{"owner", "employer", "name"}) {
		t.Fatalf("expected one element per schema, got %v", got)
	}
}

func TestTranslatePathIdentitySuffix(t *testing.T) {
	reg := testRegistry(t)

	got := translate(t, reg, "Cat", "owner._id")
	if !reflect.DeepEqual(got, []string{"owner", "_id"}) {
		t.Fatalf("expected identity suffix to resolve on the target, got %v", got)
	}
}

func TestTranslatePathUnresolvable(t *testing.T) {
	reg := testRegistry(t)

	got := translate(t, reg, "Cat", "nonexistent.deep.path")
	if !reflect.DeepEqual(got, []string{"nonexistent.deep.path"}) {
		t.Fatalf("expected unresolvable path to pass through joined, got %v", got)
	}
}

func TestTranslatePathUnregisteredTarget(t *testing.T) {
	reg := testRegistry(t)

	// buddy references Ghost, which is not registered; the path must come
	// back exactly as written.
	got := translate(t, reg, "Cat", "buddy.name")
	if !reflect.DeepEqual(got, []string{"buddy.name"}) {
		t.Fatalf("expected unregistered target to degrade gracefully, got %v", got)
	}
}

func TestTranslatePathPositionalTail(t *testing.T) {
	reg := testRegistry(t)

	// A positional segment that cannot extend the prefix never triggers a
	// reference crossing.
	got := translate(t, reg, "Cat", "name.$")
	if !reflect.DeepEqual(got, []string{"name.$"}) {
		t.Fatalf("expected positional tail to pass through, got %v", got)
	}
}
