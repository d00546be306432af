package domain

import (
	"strings"

	"github.com/google/uuid"
)

// OperatorSigil prefixes every operator key in a condition tree. Operator
// keys are never flattened or resolved as field paths.
const OperatorSigil = "$"

// Positional is the bare placeholder addressing "any element" of the array
// field already being addressed.
const Positional = "$"

// Condition operator keys produced or consumed by the rewriter.
const (
	OpAnd    = "$and"
	OpOr     = "$or"
	OpNor    = "$nor"
	OpIn     = "$in"
	OpNin    = "$nin"
	OpEq     = "$eq"
	OpNe     = "$ne"
	OpGt     = "$gt"
	OpGte    = "$gte"
	OpLt     = "$lt"
	OpLte    = "$lte"
	OpExists = "$exists"
)

// Condition is a recursive query-filter tree: a mapping from field path or
// operator key to a scalar, a nested Condition, or a sequence of Conditions.
type Condition = map[string]any

// IsOperatorKey reports whether a condition key is operator-prefixed.
func IsOperatorKey(key string) bool {
	return strings.HasPrefix(key, OperatorSigil)
}

// HasOperatorKey reports whether any key of the tree is operator-prefixed,
// marking the tree as an opaque operator expression.
func HasOperatorKey(tree map[string]any) bool {
	for key := range tree {
		if IsOperatorKey(key) {
			return true
		}
	}
	return false
}

// IsIdentifier reports whether a condition value is a document identifier
// literal rather than a subtree to descend into.
func IsIdentifier(v any) bool {
	switch typed := v.(type) {
	case uuid.UUID:
		return true
	case string:
		_, err := uuid.Parse(typed)
		return err == nil
	default:
		return false
	}
}
