package store

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/rpattn/refql/internal/domain"
)

// sqlBuilder translates a condition tree into a WHERE clause over the
// documents table. Field paths compile to lax-mode jsonpath expressions,
// which unwrap arrays the same way the in-memory matcher fans out through
// them. The identity field compiles against the id column directly.
type sqlBuilder struct {
	args []any
}

func (b *sqlBuilder) bind(arg any) string {
	b.args = append(b.args, arg)
	return "$" + strconv.Itoa(len(b.args))
}

func (b *sqlBuilder) bindJSON(value any) (string, error) {
	encoded, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("failed to encode condition value: %w", err)
	}
	return b.bind(string(encoded)) + "::jsonb", nil
}

// where compiles a condition tree. All top-level pairs are conjoined.
func (b *sqlBuilder) where(filter domain.Condition) (string, error) {
	if len(filter) == 0 {
		return "TRUE", nil
	}

	clauses := make([]string, 0, len(filter))
	for key, value := range filter {
		clause, err := b.pair(key, value)
		if err != nil {
			return "", err
		}
		clauses = append(clauses, clause)
	}
	if len(clauses) == 1 {
		return clauses[0], nil
	}
	return "(" + strings.Join(clauses, " AND ") + ")", nil
}

func (b *sqlBuilder) pair(key string, value any) (string, error) {
	switch key {
	case domain.OpAnd:
		return b.group(key, value, " AND ", false)
	case domain.OpOr:
		return b.group(key, value, " OR ", false)
	case domain.OpNor:
		return b.group(key, value, " OR ", true)
	}

	if domain.IsOperatorKey(key) {
		return "", fmt.Errorf("unsupported top-level operator %s", key)
	}

	if key == domain.DefaultIDField {
		return b.identity(value)
	}

	if ops, ok := value.(map[string]any); ok && domain.HasOperatorKey(ops) {
		return b.operators(key, ops)
	}
	return b.pathPredicate(key, "==", value)
}

func (b *sqlBuilder) group(op string, value any, joiner string, negate bool) (string, error) {
	seq, ok := value.([]any)
	if !ok {
		return "", fmt.Errorf("%s expects an array of conditions", op)
	}
	if len(seq) == 0 {
		return "", fmt.Errorf("%s expects at least one condition", op)
	}

	clauses := make([]string, 0, len(seq))
	for _, elem := range seq {
		cond, ok := elem.(map[string]any)
		if !ok {
			return "", fmt.Errorf("%s expects condition objects", op)
		}
		clause, err := b.where(cond)
		if err != nil {
			return "", err
		}
		clauses = append(clauses, clause)
	}

	joined := "(" + strings.Join(clauses, joiner) + ")"
	if negate {
		return "NOT " + joined, nil
	}
	return joined, nil
}

// identity compiles operators against the id column.
func (b *sqlBuilder) identity(value any) (string, error) {
	if ops, ok := value.(map[string]any); ok && domain.HasOperatorKey(ops) {
		clauses := make([]string, 0, len(ops))
		for op, arg := range ops {
			var clause string
			var err error
			switch op {
			case domain.OpEq:
				clause, err = b.identityEq(arg, false)
			case domain.OpNe:
				clause, err = b.identityEq(arg, true)
			case domain.OpIn:
				clause, err = b.identityMembership(op, arg, false)
			case domain.OpNin:
				clause, err = b.identityMembership(op, arg, true)
			default:
				err = fmt.Errorf("unsupported identity operator %s", op)
			}
			if err != nil {
				return "", err
			}
			clauses = append(clauses, clause)
		}
		if len(clauses) == 1 {
			return clauses[0], nil
		}
		return "(" + strings.Join(clauses, " AND ") + ")", nil
	}
	return b.identityEq(value, false)
}

func (b *sqlBuilder) identityEq(arg any, negate bool) (string, error) {
	id, err := parseIdentifier(arg)
	if err != nil {
		return "", err
	}
	op := "="
	if negate {
		op = "<>"
	}
	return "id " + op + " " + b.bind(id), nil
}

func (b *sqlBuilder) identityMembership(op string, arg any, negate bool) (string, error) {
	members, ok := arg.([]any)
	if !ok {
		return "", fmt.Errorf("%s expects an array", op)
	}
	ids := make([]uuid.UUID, 0, len(members))
	for _, member := range members {
		id, err := parseIdentifier(member)
		if err != nil {
			return "", err
		}
		ids = append(ids, id)
	}
	clause := "id = ANY(" + b.bind(ids) + ")"
	if negate {
		return "NOT (" + clause + ")", nil
	}
	return clause, nil
}

func parseIdentifier(arg any) (uuid.UUID, error) {
	switch typed := arg.(type) {
	case uuid.UUID:
		return typed, nil
	case string:
		id, err := uuid.Parse(typed)
		if err != nil {
			return uuid.Nil, fmt.Errorf("invalid document identifier %q: %w", typed, err)
		}
		return id, nil
	default:
		return uuid.Nil, fmt.Errorf("invalid document identifier %v", arg)
	}
}

func (b *sqlBuilder) operators(path string, ops map[string]any) (string, error) {
	clauses := make([]string, 0, len(ops))
	for op, arg := range ops {
		clause, err := b.operator(path, op, arg)
		if err != nil {
			return "", err
		}
		clauses = append(clauses, clause)
	}
	if len(clauses) == 1 {
		return clauses[0], nil
	}
	return "(" + strings.Join(clauses, " AND ") + ")", nil
}

func (b *sqlBuilder) operator(path, op string, arg any) (string, error) {
	switch op {
	case domain.OpEq:
		return b.pathPredicate(path, "==", arg)
	case domain.OpNe:
		clause, err := b.pathPredicate(path, "==", arg)
		if err != nil {
			return "", err
		}
		return "NOT " + clause, nil
	case domain.OpGt:
		return b.pathPredicate(path, ">", arg)
	case domain.OpGte:
		return b.pathPredicate(path, ">=", arg)
	case domain.OpLt:
		return b.pathPredicate(path, "<", arg)
	case domain.OpLte:
		return b.pathPredicate(path, "<=", arg)
	case domain.OpExists:
		want, _ := arg.(bool)
		clause := "jsonb_path_exists(body, " + b.bind(jsonPath(path)) + "::jsonpath)"
		if !want {
			return "NOT " + clause, nil
		}
		return clause, nil
	case domain.OpIn:
		return b.membership(path, op, arg, false)
	case domain.OpNin:
		return b.membership(path, op, arg, true)
	default:
		return "", fmt.Errorf("unsupported operator %s", op)
	}
}

func (b *sqlBuilder) membership(path, op string, arg any, negate bool) (string, error) {
	members, ok := arg.([]any)
	if !ok {
		return "", fmt.Errorf("%s expects an array", op)
	}
	if len(members) == 0 {
		if negate {
			return "TRUE", nil
		}
		return "FALSE", nil
	}

	clauses := make([]string, 0, len(members))
	for _, member := range members {
		clause, err := b.pathPredicate(path, "==", member)
		if err != nil {
			return "", err
		}
		clauses = append(clauses, clause)
	}
	joined := "(" + strings.Join(clauses, " OR ") + ")"
	if negate {
		return "NOT " + joined, nil
	}
	return joined, nil
}

// pathPredicate emits jsonb_path_exists(body, '<path> ? (@ cmp $val)',
// vars) with the comparison value passed through the jsonpath variable
// binding, never spliced into the path text.
func (b *sqlBuilder) pathPredicate(path, cmp string, value any) (string, error) {
	if id, ok := value.(uuid.UUID); ok {
		value = id.String()
	}
	vars, err := b.bindJSON(map[string]any{"val": value})
	if err != nil {
		return "", err
	}
	expr := b.bind(jsonPath(path) + " ? (@ " + cmp + " $val)")
	return "jsonb_path_exists(body, " + expr + "::jsonpath, " + vars + ")", nil
}

// jsonPath converts a dotted path to a jsonpath expression. Lax mode
// unwraps arrays on member access, so embedded arrays need no special
// handling; explicit positional segments compile to a wildcard and
// numeric segments to index accessors.
func jsonPath(path string) string {
	var sb strings.Builder
	sb.WriteString("$")
	for _, seg := range strings.Split(path, domain.PathSeparator) {
		if seg == domain.Positional {
			sb.WriteString("[*]")
			continue
		}
		if idx, err := strconv.Atoi(seg); err == nil {
			sb.WriteString("[" + strconv.Itoa(idx) + "]")
			continue
		}
		sb.WriteString(`."` + strings.ReplaceAll(seg, `"`, `\"`) + `"`)
	}
	return sb.String()
}
