package store

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/rpattn/refql/internal/domain"
)

func seedMemory(t *testing.T) (*Memory, map[string]uuid.UUID) {
	t.Helper()

	st := NewMemory()
	ids := make(map[string]uuid.UUID)
	insert := func(name, collection string, properties map[string]any) {
		doc, err := st.Insert(context.Background(), domain.NewDocument(collection, properties))
		if err != nil {
			t.Fatalf("failed to insert %s: %v", name, err)
		}
		ids[name] = doc.ID
	}

	insert("felix", "Cat", map[string]any{
		"name": "Felix", "age": 5,
		"toys": []any{
			map[string]any{"label": "ball", "colour": "red"},
			map[string]any{"label": "mouse", "colour": "grey"},
		},
	})
	insert("tom", "Cat", map[string]any{"name": "Tom", "age": 3})
	insert("kit", "Cat", map[string]any{"name": "Kit", "age": 1, "colours": []any{"black", "white"}})
	return st, ids
}

func findIDs(t *testing.T, st *Memory, collection string, filter domain.Condition) []uuid.UUID {
	t.Helper()
	ids, err := st.FindIDs(context.Background(), collection, filter)
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	return ids
}

func assertIDs(t *testing.T, got []uuid.UUID, want ...uuid.UUID) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %d matches, got %v", len(want), got)
	}
	matched := make(map[uuid.UUID]bool, len(got))
	for _, id := range got {
		matched[id] = true
	}
	for _, id := range want {
		if !matched[id] {
			t.Fatalf("expected %s to match, got %v", id, got)
		}
	}
}

func TestMemoryEquality(t *testing.T) {
	st, ids := seedMemory(t)

	assertIDs(t, findIDs(t, st, "Cat", domain.Condition{"name": "Felix"}), ids["felix"])
	assertIDs(t, findIDs(t, st, "Cat", domain.Condition{"age": 3}), ids["tom"])
	assertIDs(t, findIDs(t, st, "Cat", domain.Condition{"name": "Nobody"}))
}

func TestMemoryEmptyFilterMatchesAll(t *testing.T) {
	st, _ := seedMemory(t)

	got := findIDs(t, st, "Cat", domain.Condition{})
	if len(got) != 3 {
		t.Fatalf("expected all documents, got %v", got)
	}
}

func TestMemoryIdentityField(t *testing.T) {
	st, ids := seedMemory(t)

	assertIDs(t, findIDs(t, st, "Cat", domain.Condition{"_id": ids["felix"]}), ids["felix"])
	assertIDs(t, findIDs(t, st, "Cat", domain.Condition{
		"_id": map[string]any{"$in": []any{ids["felix"], ids["tom"]}},
	}), ids["felix"], ids["tom"])
	// String form matches too.
	assertIDs(t, findIDs(t, st, "Cat", domain.Condition{"_id": ids["kit"].String()}), ids["kit"])
}

func TestMemoryComparisonOperators(t *testing.T) {
	st, ids := seedMemory(t)

	assertIDs(t, findIDs(t, st, "Cat", domain.Condition{"age": map[string]any{"$gt": 3}}), ids["felix"])
	assertIDs(t, findIDs(t, st, "Cat", domain.Condition{"age": map[string]any{"$gte": 3}}), ids["felix"], ids["tom"])
	assertIDs(t, findIDs(t, st, "Cat", domain.Condition{"age": map[string]any{"$lt": 3}}), ids["kit"])
	assertIDs(t, findIDs(t, st, "Cat", domain.Condition{"age": map[string]any{"$ne": 3}}), ids["felix"], ids["kit"])
	// JSON numbers arrive as float64; they must compare against stored ints.
	assertIDs(t, findIDs(t, st, "Cat", domain.Condition{"age": float64(5)}), ids["felix"])
}

func TestMemoryMembershipOperators(t *testing.T) {
	st, ids := seedMemory(t)

	assertIDs(t, findIDs(t, st, "Cat", domain.Condition{
		"name": map[string]any{"$in": []any{"Felix", "Kit"}},
	}), ids["felix"], ids["kit"])
	assertIDs(t, findIDs(t, st, "Cat", domain.Condition{
		"name": map[string]any{"$nin": []any{"Felix", "Kit"}},
	}), ids["tom"])
	assertIDs(t, findIDs(t, st, "Cat", domain.Condition{
		"name": map[string]any{"$in": []any{}},
	}))
}

func TestMemoryExists(t *testing.T) {
	st, ids := seedMemory(t)

	assertIDs(t, findIDs(t, st, "Cat", domain.Condition{
		"toys": map[string]any{"$exists": true},
	}), ids["felix"])
	assertIDs(t, findIDs(t, st, "Cat", domain.Condition{
		"toys": map[string]any{"$exists": false},
	}), ids["tom"], ids["kit"])
}

func TestMemoryLogicalOperators(t *testing.T) {
	st, ids := seedMemory(t)

	assertIDs(t, findIDs(t, st, "Cat", domain.Condition{
		"$and": []any{
			map[string]any{"age": map[string]any{"$gt": 1}},
			map[string]any{"age": map[string]any{"$lt": 5}},
		},
	}), ids["tom"])
	assertIDs(t, findIDs(t, st, "Cat", domain.Condition{
		"$or": []any{
			map[string]any{"name": "Felix"},
			map[string]any{"age": 1},
		},
	}), ids["felix"], ids["kit"])
	assertIDs(t, findIDs(t, st, "Cat", domain.Condition{
		"$nor": []any{
			map[string]any{"name": "Felix"},
			map[string]any{"age": 1},
		},
	}), ids["tom"])
}

func TestMemoryDottedPathsAndArrays(t *testing.T) {
	st, ids := seedMemory(t)

	// Dotted paths fan out through arrays of objects.
	assertIDs(t, findIDs(t, st, "Cat", domain.Condition{"toys.label": "mouse"}), ids["felix"])
	assertIDs(t, findIDs(t, st, "Cat", domain.Condition{"toys.$.label": "ball"}), ids["felix"])
	assertIDs(t, findIDs(t, st, "Cat", domain.Condition{"toys.0.label": "ball"}), ids["felix"])
	assertIDs(t, findIDs(t, st, "Cat", domain.Condition{"toys.1.label": "ball"}))

	// Scalar arrays match by containment.
	assertIDs(t, findIDs(t, st, "Cat", domain.Condition{"colours": "black"}), ids["kit"])
}

func TestMemoryProjection(t *testing.T) {
	st, _ := seedMemory(t)

	docs, err := st.Find(context.Background(), "Cat", domain.Condition{"name": "Felix"}, []string{"name", "toys.label"})
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected one match, got %d", len(docs))
	}
	props := docs[0].Properties
	if _, ok := props["age"]; ok {
		t.Fatalf("expected age to be projected away, got %v", props)
	}
	if _, ok := props["name"]; !ok {
		t.Fatalf("expected name to survive projection, got %v", props)
	}
	if _, ok := props["toys"]; !ok {
		t.Fatalf("expected dotted projection to keep its top-level property, got %v", props)
	}
}

func TestMemoryCountAndDistinct(t *testing.T) {
	st, _ := seedMemory(t)

	count, err := st.Count(context.Background(), "Cat", domain.Condition{"age": map[string]any{"$gte": 3}})
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2, got %d", count)
	}

	values, err := st.Distinct(context.Background(), "Cat", "toys.colour", domain.Condition{})
	if err != nil {
		t.Fatalf("distinct failed: %v", err)
	}
	if len(values) != 2 {
		t.Fatalf("expected two distinct colours, got %v", values)
	}
}

func TestMemoryGetByIDs(t *testing.T) {
	st, ids := seedMemory(t)

	docs, err := st.GetByIDs(context.Background(), []uuid.UUID{ids["felix"], uuid.New()})
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if len(docs) != 1 || docs[0].ID != ids["felix"] {
		t.Fatalf("expected only Felix, got %v", docs)
	}
}

func TestMemoryInsertDuplicate(t *testing.T) {
	st, _ := seedMemory(t)

	doc, err := st.Insert(context.Background(), domain.NewDocument("Cat", map[string]any{"name": "Dup"}))
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if _, err := st.Insert(context.Background(), doc); err == nil {
		t.Fatalf("expected duplicate insert to fail")
	}
}
