package query

import "github.com/rpattn/refql/internal/domain"

// Flatten converts a nested condition into dot-notation key/value pairs.
// A nested object carrying any operator-prefixed key is an opaque operator
// expression and is copied as-is under its composite key instead of being
// descended into: {field: {$gt: 5}} stays {field: {$gt: 5}}.
func Flatten(tree map[string]any, separator, prefix string) map[string]any {
	out := make(map[string]any, len(tree))
	for key, value := range tree {
		composite := key
		if prefix != "" {
			composite = prefix + separator + key
		}

		child, ok := value.(map[string]any)
		if !ok || len(child) == 0 || domain.HasOperatorKey(child) {
			out[composite] = value
			continue
		}

		for flatKey, flatValue := range Flatten(child, separator, composite) {
			out[flatKey] = flatValue
		}
	}
	return out
}
