package store

import (
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/rpattn/refql/internal/domain"
)

func buildWhere(t *testing.T, filter domain.Condition) (string, []any) {
	t.Helper()
	b := &sqlBuilder{}
	clause, err := b.where(filter)
	if err != nil {
		t.Fatalf("failed to build clause: %v", err)
	}
	return clause, b.args
}

func TestSQLBuilderEquality(t *testing.T) {
	clause, args := buildWhere(t, domain.Condition{"name": "Felix"})

	if !strings.Contains(clause, "jsonb_path_exists(body, $2::jsonpath, $1::jsonb)") {
		t.Fatalf("unexpected clause: %s", clause)
	}
	if len(args) != 2 {
		t.Fatalf("expected 2 args, got %v", args)
	}
	if args[0] != `{"val":"Felix"}` {
		t.Fatalf("unexpected vars binding: %v", args[0])
	}
	if args[1] != `$."name" ? (@ == $val)` {
		t.Fatalf("unexpected jsonpath binding: %v", args[1])
	}
}

func TestSQLBuilderComparisonCarriesOperator(t *testing.T) {
	clause, args := buildWhere(t, domain.Condition{"age": map[string]any{"$gt": 3}})

	if !strings.Contains(clause, "jsonb_path_exists") {
		t.Fatalf("unexpected clause: %s", clause)
	}
	if args[1] != `$."age" ? (@ > $val)` {
		t.Fatalf("unexpected jsonpath binding: %v", args[1])
	}
}

func TestSQLBuilderNegation(t *testing.T) {
	clause, _ := buildWhere(t, domain.Condition{"name": map[string]any{"$ne": "Felix"}})

	if !strings.HasPrefix(clause, "NOT ") {
		t.Fatalf("expected negated clause, got %s", clause)
	}
}

func TestSQLBuilderMembership(t *testing.T) {
	clause, args := buildWhere(t, domain.Condition{
		"name": map[string]any{"$in": []any{"Felix", "Tom"}},
	})

	if strings.Count(clause, "jsonb_path_exists") != 2 {
		t.Fatalf("expected one predicate per member, got %s", clause)
	}
	if !strings.Contains(clause, " OR ") {
		t.Fatalf("expected disjunction, got %s", clause)
	}
	if len(args) != 4 {
		t.Fatalf("expected 4 args, got %v", args)
	}

	clause, _ = buildWhere(t, domain.Condition{"name": map[string]any{"$in": []any{}}})
	if clause != "FALSE" {
		t.Fatalf("expected empty membership to match nothing, got %s", clause)
	}
}

func TestSQLBuilderIdentityColumn(t *testing.T) {
	id := uuid.New()

	clause, args := buildWhere(t, domain.Condition{"_id": id})
	if clause != "id = $1" {
		t.Fatalf("unexpected clause: %s", clause)
	}
	if args[0] != id {
		t.Fatalf("expected identifier binding, got %v", args[0])
	}

	clause, args = buildWhere(t, domain.Condition{
		"_id": map[string]any{"$in": []any{id.String()}},
	})
	if clause != "id = ANY($1)" {
		t.Fatalf("unexpected clause: %s", clause)
	}
	ids, ok := args[0].([]uuid.UUID)
	if !ok || len(ids) != 1 || ids[0] != id {
		t.Fatalf("expected parsed identifier list, got %v", args[0])
	}
}

func TestSQLBuilderLogicalGroups(t *testing.T) {
	clause, _ := buildWhere(t, domain.Condition{
		"$and": []any{
			map[string]any{"name": "Felix"},
			map[string]any{"age": map[string]any{"$lt": 10}},
		},
	})
	if !strings.Contains(clause, " AND ") {
		t.Fatalf("expected conjunction, got %s", clause)
	}

	clause, _ = buildWhere(t, domain.Condition{
		"$nor": []any{map[string]any{"name": "Felix"}},
	})
	if !strings.HasPrefix(clause, "NOT (") {
		t.Fatalf("expected negated group, got %s", clause)
	}
}

func TestSQLBuilderExists(t *testing.T) {
	clause, args := buildWhere(t, domain.Condition{
		"toys": map[string]any{"$exists": false},
	})
	if !strings.HasPrefix(clause, "NOT jsonb_path_exists(body, $1::jsonpath)") {
		t.Fatalf("unexpected clause: %s", clause)
	}
	if args[0] != `$."toys"` {
		t.Fatalf("unexpected jsonpath binding: %v", args[0])
	}
}

func TestJSONPathSegments(t *testing.T) {
	cases := map[string]string{
		"name":         `$."name"`,
		"toys.label":   `$."toys"."label"`,
		"toys.$.label": `$."toys"[*]."label"`,
		"toys.0.label": `$."toys"[0]."label"`,
	}
	for path, want := range cases {
		if got := jsonPath(path); got != want {
			t.Fatalf("jsonPath(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestSQLBuilderRejectsUnknownOperator(t *testing.T) {
	b := &sqlBuilder{}
	if _, err := b.where(domain.Condition{"name": map[string]any{"$regex": "F.*"}}); err == nil {
		t.Fatalf("expected error for unsupported operator")
	}
}
