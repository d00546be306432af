package domain

import "testing"

func testSchema() *Schema {
	return NewSchema("Cat", []FieldDefinition{
		{Name: "name", Category: CategoryScalar},
		{Name: "owner", Category: CategoryReference, Ref: "Person"},
		{Name: "ghost", Category: CategoryReference},
		{Name: "address", Category: CategoryEmbeddedObject, Elem: NewSchema("Cat", []FieldDefinition{
			{Name: "city", Category: CategoryScalar},
		})},
		{Name: "toys", Category: CategoryEmbeddedArray, Elem: NewSchema("Cat", []FieldDefinition{
			{Name: "label", Category: CategoryScalar},
		})},
	})
}

func TestSchemaPathScalar(t *testing.T) {
	s := testSchema()

	field, ok := s.Path("name")
	if !ok {
		t.Fatalf("expected name to resolve")
	}
	if field.Category != CategoryScalar {
		t.Fatalf("expected scalar, got %s", field.Category)
	}
}

func TestSchemaPathEmbedded(t *testing.T) {
	s := testSchema()

	if _, ok := s.Path("address.city"); !ok {
		t.Fatalf("expected address.city to resolve")
	}
	if _, ok := s.Path("toys.label"); !ok {
		t.Fatalf("expected toys.label to resolve through the array")
	}
	if _, ok := s.Path("toys.$.label"); !ok {
		t.Fatalf("expected positional segment to be transparent inside an array")
	}
	if _, ok := s.Path("address.missing"); ok {
		t.Fatalf("expected address.missing to not resolve")
	}
}

func TestSchemaPathReferenceNotDescendable(t *testing.T) {
	s := testSchema()

	if _, ok := s.Path("owner"); !ok {
		t.Fatalf("expected owner to resolve as a terminal field")
	}
	if _, ok := s.Path("owner.name"); ok {
		t.Fatalf("expected owner.name to not resolve locally")
	}
}

func TestSchemaPathIdentityField(t *testing.T) {
	s := testSchema()

	field, ok := s.Path("_id")
	if !ok {
		t.Fatalf("expected identity field to resolve on every schema")
	}
	if field.Category != CategoryScalar {
		t.Fatalf("expected identity field to be scalar, got %s", field.Category)
	}
}

func TestSchemaResolveFiltersDeadReferences(t *testing.T) {
	s := testSchema()

	if _, ok := s.Path("ghost"); !ok {
		t.Fatalf("expected ghost to resolve via Path")
	}
	if _, ok := s.Resolve("ghost"); ok {
		t.Fatalf("expected Resolve to filter a reference with no target")
	}
	if _, ok := s.Resolve("owner"); !ok {
		t.Fatalf("expected Resolve to keep a live reference")
	}
}

func TestIsOperatorKey(t *testing.T) {
	if !IsOperatorKey("$in") {
		t.Fatalf("expected $in to be an operator key")
	}
	if IsOperatorKey("name") {
		t.Fatalf("expected name to not be an operator key")
	}
	if !HasOperatorKey(map[string]any{"$gt": 5}) {
		t.Fatalf("expected operator expression to be detected")
	}
	if HasOperatorKey(map[string]any{"name": "Dean"}) {
		t.Fatalf("expected plain object to not be detected as operator expression")
	}
}
