package schema

import (
	"strings"

	"github.com/rpattn/refql/internal/domain"
)

// TranslatePath resolves dotted path segments against a schema, splitting
// the path at every reference boundary it has to cross.
//
// Segments are consumed left to right, extending the directly-addressable
// prefix as far as possible (prefix-greedy). At the first segment that
// cannot extend the prefix, the last addressable field decides what
// happens: a reference field with a registered target restarts translation
// of the unconsumed segments against the target collection's schema, and
// the local prefix becomes one element of the result followed by the
// recursive result. Anything else stops translation and returns the whole
// remaining path joined back into a single element, so an unresolvable
// path passes through unchanged. A positional placeholder that cannot
// extend the prefix is never treated as a reference-crossing failure; it
// passes through the same way.
//
// The returned slice therefore has one element per schema the path lives
// on: a fully addressable or unresolvable path comes back as a single
// element, and each reference crossing adds one more.
func (r *Registry) TranslatePath(segments []string, s *domain.Schema) []string {
	prev := ""
	for i, seg := range segments {
		candidate := joinPath(prev, seg)
		if _, ok := s.Path(candidate); ok {
			prev = candidate
			continue
		}

		if seg != domain.Positional {
			field, ok := s.Resolve(prev)
			if ok && field.Category == domain.CategoryReference {
				if target, registered := r.Lookup(field.Ref); registered {
					rest := r.TranslatePath(segments[i:], target)
					out := make([]string, 0, len(rest)+1)
					out = append(out, prev)
					return append(out, rest...)
				}
			}
		}

		// Graceful degradation: no reference to cross, so the path is
		// handed back exactly as written and left for the store to judge.
		return []string{joinPath(prev, strings.Join(segments[i:], domain.PathSeparator))}
	}

	if prev == "" {
		return nil
	}
	return []string{prev}
}

func joinPath(prefix, segment string) string {
	if prefix == "" {
		return segment
	}
	return prefix + domain.PathSeparator + segment
}
