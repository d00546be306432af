package store

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/rpattn/refql/internal/domain"
)

// Memory is an in-process document store used by tests and the memory
// backend. It evaluates the same condition-tree language the Postgres
// store translates to SQL.
type Memory struct {
	mu          sync.RWMutex
	collections map[string]map[uuid.UUID]domain.Document
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{collections: make(map[string]map[uuid.UUID]domain.Document)}
}

// Insert stores a document in its collection.
func (m *Memory) Insert(ctx context.Context, doc domain.Document) (domain.Document, error) {
	if doc.Collection == "" {
		return domain.Document{}, fmt.Errorf("document has no collection")
	}
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	coll, ok := m.collections[doc.Collection]
	if !ok {
		coll = make(map[uuid.UUID]domain.Document)
		m.collections[doc.Collection] = coll
	}
	if _, exists := coll[doc.ID]; exists {
		return domain.Document{}, fmt.Errorf("document %s already exists in %s", doc.ID, doc.Collection)
	}
	coll[doc.ID] = doc
	return doc, nil
}

// Find returns the documents of a collection matching the filter, ordered
// by identifier for determinism.
func (m *Memory) Find(ctx context.Context, collection string, filter domain.Condition, projection []string) ([]domain.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	docs := make([]domain.Document, 0)
	for _, doc := range m.collections[collection] {
		ok, err := matches(doc, filter)
		if err != nil {
			return nil, err
		}
		if ok {
			docs = append(docs, project(doc, projection))
		}
	}
	sort.Slice(docs, func(i, j int) bool {
		return docs[i].ID.String() < docs[j].ID.String()
	})
	return docs, nil
}

// FindIDs returns the identifiers of matching documents.
func (m *Memory) FindIDs(ctx context.Context, collection string, filter domain.Condition) ([]uuid.UUID, error) {
	docs, err := m.Find(ctx, collection, filter, []string{domain.DefaultIDField})
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, len(docs))
	for i, doc := range docs {
		ids[i] = doc.ID
	}
	return ids, nil
}

// GetByIDs fetches documents by identifier across all collections.
func (m *Memory) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	docs := make([]domain.Document, 0, len(ids))
	for _, id := range ids {
		for _, coll := range m.collections {
			if doc, ok := coll[id]; ok {
				docs = append(docs, doc)
				break
			}
		}
	}
	return docs, nil
}

// Count returns the number of matching documents.
func (m *Memory) Count(ctx context.Context, collection string, filter domain.Condition) (int64, error) {
	docs, err := m.Find(ctx, collection, filter, []string{domain.DefaultIDField})
	if err != nil {
		return 0, err
	}
	return int64(len(docs)), nil
}

// Distinct returns the distinct values of a field across matching
// documents.
func (m *Memory) Distinct(ctx context.Context, collection string, field string, filter domain.Condition) ([]any, error) {
	docs, err := m.Find(ctx, collection, filter, nil)
	if err != nil {
		return nil, err
	}

	values := make([]any, 0)
	seen := make(map[string]struct{})
	for _, doc := range docs {
		for _, candidate := range resolveValues(doc, field) {
			key := normalizeKey(candidate)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			values = append(values, candidate)
		}
	}
	return values, nil
}

// matches evaluates a condition tree against a document. All top-level
// pairs must hold.
func matches(doc domain.Document, filter domain.Condition) (bool, error) {
	for key, value := range filter {
		ok, err := matchPair(doc, key, value)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func matchPair(doc domain.Document, key string, value any) (bool, error) {
	switch key {
	case domain.OpAnd:
		conds, err := conditionList(key, value)
		if err != nil {
			return false, err
		}
		for _, cond := range conds {
			ok, err := matches(doc, cond)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case domain.OpOr:
		conds, err := conditionList(key, value)
		if err != nil {
			return false, err
		}
		for _, cond := range conds {
			ok, err := matches(doc, cond)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case domain.OpNor:
		conds, err := conditionList(key, value)
		if err != nil {
			return false, err
		}
		for _, cond := range conds {
			ok, err := matches(doc, cond)
			if err != nil {
				return false, err
			}
			if ok {
				return false, nil
			}
		}
		return true, nil
	}

	if domain.IsOperatorKey(key) {
		return false, fmt.Errorf("unsupported top-level operator %s", key)
	}

	candidates := resolveValues(doc, key)
	if ops, ok := value.(map[string]any); ok && domain.HasOperatorKey(ops) {
		return applyOperators(candidates, ops)
	}
	return anyEqual(candidates, value), nil
}

func conditionList(op string, value any) ([]map[string]any, error) {
	seq, ok := value.([]any)
	if !ok {
		// Object form: each pair is one conjunct/disjunct.
		if tree, ok := value.(map[string]any); ok {
			conds := make([]map[string]any, 0, len(tree))
			for k, v := range tree {
				conds = append(conds, map[string]any{k: v})
			}
			return conds, nil
		}
		return nil, fmt.Errorf("%s expects an array of conditions", op)
	}

	conds := make([]map[string]any, 0, len(seq))
	for _, elem := range seq {
		cond, ok := elem.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s expects condition objects", op)
		}
		conds = append(conds, cond)
	}
	return conds, nil
}

// resolveValues walks a dotted path through the document, fanning out
// through arrays. Positional and numeric segments select array elements.
// The identity field resolves to the document identifier.
func resolveValues(doc domain.Document, path string) []any {
	if path == domain.DefaultIDField {
		return []any{doc.ID}
	}

	values := []any{any(doc.Properties)}
	for _, seg := range strings.Split(path, domain.PathSeparator) {
		var next []any
		for _, value := range values {
			switch typed := value.(type) {
			case map[string]any:
				if child, ok := typed[seg]; ok {
					next = append(next, child)
				}
			case []any:
				if seg == domain.Positional {
					next = append(next, typed...)
					continue
				}
				if idx, err := strconv.Atoi(seg); err == nil {
					if idx >= 0 && idx < len(typed) {
						next = append(next, typed[idx])
					}
					continue
				}
				for _, elem := range typed {
					if child, ok := elem.(map[string]any); ok {
						if v, ok := child[seg]; ok {
							next = append(next, v)
						}
					}
				}
			}
		}
		values = next
		if len(values) == 0 {
			return nil
		}
	}

	// Arrays also match through their elements.
	out := make([]any, 0, len(values))
	for _, value := range values {
		out = append(out, value)
		if arr, ok := value.([]any); ok {
			out = append(out, arr...)
		}
	}
	return out
}

func applyOperators(candidates []any, ops map[string]any) (bool, error) {
	for op, arg := range ops {
		ok, err := applyOperator(candidates, op, arg)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func applyOperator(candidates []any, op string, arg any) (bool, error) {
	switch op {
	case domain.OpEq:
		return anyEqual(candidates, arg), nil
	case domain.OpNe:
		return !anyEqual(candidates, arg), nil
	case domain.OpExists:
		want, _ := arg.(bool)
		return (len(candidates) > 0) == want, nil
	case domain.OpIn:
		members, err := memberList(op, arg)
		if err != nil {
			return false, err
		}
		for _, member := range members {
			if anyEqual(candidates, member) {
				return true, nil
			}
		}
		return false, nil
	case domain.OpNin:
		members, err := memberList(op, arg)
		if err != nil {
			return false, err
		}
		for _, member := range members {
			if anyEqual(candidates, member) {
				return false, nil
			}
		}
		return true, nil
	case domain.OpGt, domain.OpGte, domain.OpLt, domain.OpLte:
		for _, candidate := range candidates {
			cmp, ok := compare(candidate, arg)
			if !ok {
				continue
			}
			switch op {
			case domain.OpGt:
				if cmp > 0 {
					return true, nil
				}
			case domain.OpGte:
				if cmp >= 0 {
					return true, nil
				}
			case domain.OpLt:
				if cmp < 0 {
					return true, nil
				}
			case domain.OpLte:
				if cmp <= 0 {
					return true, nil
				}
			}
		}
		return false, nil
	default:
		return false, fmt.Errorf("unsupported operator %s", op)
	}
}

func memberList(op string, arg any) ([]any, error) {
	if members, ok := arg.([]any); ok {
		return members, nil
	}
	return nil, fmt.Errorf("%s expects an array", op)
}

func anyEqual(candidates []any, value any) bool {
	for _, candidate := range candidates {
		if looseEqual(candidate, value) {
			return true
		}
	}
	return false
}

// looseEqual compares values across the representations a condition can
// carry: JSON numbers arrive as float64, identifiers as uuid.UUID or
// string.
func looseEqual(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
		return false
	}
	if sa, ok := toText(a); ok {
		if sb, ok := toText(b); ok {
			return sa == sb
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

func compare(a, b any) (int, bool) {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		default:
			return 0, true
		}
	}
	sa, ok := toText(a)
	if !ok {
		return 0, false
	}
	sb, ok := toText(b)
	if !ok {
		return 0, false
	}
	return strings.Compare(sa, sb), true
}

func toFloat(v any) (float64, bool) {
	switch typed := v.(type) {
	case float64:
		return typed, true
	case float32:
		return float64(typed), true
	case int:
		return float64(typed), true
	case int32:
		return float64(typed), true
	case int64:
		return float64(typed), true
	default:
		return 0, false
	}
}

func toText(v any) (string, bool) {
	switch typed := v.(type) {
	case string:
		return typed, true
	case uuid.UUID:
		return typed.String(), true
	case bool:
		return strconv.FormatBool(typed), true
	default:
		return "", false
	}
}

func normalizeKey(v any) string {
	if f, ok := toFloat(v); ok {
		return "n:" + strconv.FormatFloat(f, 'g', -1, 64)
	}
	if s, ok := toText(v); ok {
		return "s:" + s
	}
	return fmt.Sprintf("v:%v", v)
}
