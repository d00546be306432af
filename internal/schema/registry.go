package schema

import (
	"fmt"
	"sort"

	"github.com/rpattn/refql/internal/domain"
)

// Registry maps collection names to their schemas. It is populated once at
// startup and read-only afterwards; rewrites receive it as an explicit
// dependency rather than reaching for process-wide state.
type Registry struct {
	schemas map[string]*domain.Schema
}

// NewRegistry builds a registry from the given schemas.
func NewRegistry(schemas ...*domain.Schema) (*Registry, error) {
	reg := &Registry{schemas: make(map[string]*domain.Schema, len(schemas))}
	for _, s := range schemas {
		if err := reg.add(s); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func (r *Registry) add(s *domain.Schema) error {
	if s == nil {
		return fmt.Errorf("schema cannot be nil")
	}
	if s.Collection == "" {
		return fmt.Errorf("schema has no collection name")
	}
	if _, exists := r.schemas[s.Collection]; exists {
		return fmt.Errorf("collection %s already registered", s.Collection)
	}
	r.schemas[s.Collection] = s
	return nil
}

// Lookup returns the schema registered for a collection.
func (r *Registry) Lookup(collection string) (*domain.Schema, bool) {
	s, ok := r.schemas[collection]
	return s, ok
}

// Len returns the number of registered collections.
func (r *Registry) Len() int {
	return len(r.schemas)
}

// Collections returns the registered collection names in sorted order.
func (r *Registry) Collections() []string {
	names := make([]string, 0, len(r.schemas))
	for name := range r.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
