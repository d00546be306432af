package query

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rpattn/refql/internal/domain"
	"github.com/rpattn/refql/internal/schema"
)

var (
	// ErrEmptyRegistry reports a registry with no collections, which is a
	// configuration error rather than a "no matches" outcome.
	ErrEmptyRegistry = errors.New("collection registry is empty")

	// ErrUnknownCollection reports an issuing collection that is not
	// registered.
	ErrUnknownCollection = errors.New("collection is not registered")

	// ErrMaxDepth reports that reference resolution recursed deeper than
	// the configured limit.
	ErrMaxDepth = errors.New("reference resolution exceeded max depth")
)

// Finder executes a condition tree against a named collection and returns
// the identifiers of matching documents. It must understand the operator
// subset the rewriter emits: logical conjunction/disjunction, equality and
// membership.
type Finder interface {
	FindIDs(ctx context.Context, collection string, filter domain.Condition) ([]uuid.UUID, error)
}

// Rewriter rewrites condition trees issued against one collection so that
// every path crossing a reference boundary is replaced by a membership
// test against identifiers resolved from the referenced collection.
//
// A Rewriter holds no state across calls; schemas and the registry are
// read-only during rewrites and each invocation owns its own accumulators.
type Rewriter struct {
	registry *schema.Registry
	finder   Finder
	root     *domain.Schema
	maxDepth int
}

// Option configures a Rewriter.
type Option func(*Rewriter)

// WithMaxDepth bounds how many reference boundaries a single rewrite may
// cross transitively. Zero leaves recursion unbounded, which with a cyclic
// schema graph can recurse for as long as the condition tree feeds it.
func WithMaxDepth(limit int) Option {
	return func(r *Rewriter) {
		r.maxDepth = limit
	}
}

// NewRewriter creates a rewriter for queries issued against collection.
// An empty registry or an unregistered issuing collection is a fatal
// configuration error.
func NewRewriter(registry *schema.Registry, finder Finder, collection string, opts ...Option) (*Rewriter, error) {
	if registry == nil || registry.Len() == 0 {
		return nil, ErrEmptyRegistry
	}
	if finder == nil {
		return nil, fmt.Errorf("finder cannot be nil")
	}
	root, ok := registry.Lookup(collection)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}

	r := &Rewriter{
		registry: registry,
		finder:   finder,
		root:     root,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Rewrite returns a condition tree equivalent to cond but containing no
// cross-collection paths, safe to execute directly against the issuing
// collection. Errors raised by the store during sub-queries abort the
// whole rewrite: a missing identifier set cannot be soundly defaulted.
func (r *Rewriter) Rewrite(ctx context.Context, cond domain.Condition) (domain.Condition, error) {
	if cond == nil {
		return nil, nil
	}
	out, err := r.rewrite(ctx, nil, map[string]any(cond), 0)
	if err != nil {
		return nil, err
	}
	if tree, ok := out.(map[string]any); ok {
		return tree, nil
	}
	return cond, nil
}

// rewrite is the recursive core: a pure function of the accumulated path
// prefix, the condition subtree and the schema context carried by r.
func (r *Rewriter) rewrite(ctx context.Context, prefix []string, node any, depth int) (any, error) {
	tree, ok := node.(map[string]any)
	if !ok || len(tree) == 0 {
		return node, nil
	}
	// Identity-field filters never cross references and must not be
	// reinterpreted as field paths.
	if r.isIdentityPath(prefix) {
		return node, nil
	}

	out := make(map[string]any, len(tree))
	for key, value := range tree {
		key, value = r.translateKey(key, value)
		paths := accumulate(prefix, key)

		if target, crossed := r.crossing(paths); crossed {
			// A boundary substitution replaces this branch's entire
			// contribution; sibling keys not yet processed are dropped.
			return r.membership(ctx, key, value, target, depth)
		}

		switch typed := value.(type) {
		case []any:
			elems, err := r.rewriteSequence(ctx, paths, typed, depth)
			if err != nil {
				return nil, err
			}
			out[key] = elems
		case map[string]any:
			if len(typed) == 0 {
				out[key] = typed
				continue
			}
			merged, err := r.rewritePairs(ctx, paths, typed, depth)
			if err != nil {
				return nil, err
			}
			out[key] = merged
		default:
			out[key] = value
		}
	}
	return out, nil
}

// translateKey resolves a path key that is not directly addressable on the
// schema, splitting it at reference boundaries and re-nesting the trailing
// segments around the value via right-fold. A bare positional segment
// collapses to its inner value instead of wrapping it.
func (r *Rewriter) translateKey(key string, value any) (string, any) {
	if domain.IsOperatorKey(key) {
		return key, value
	}
	if _, ok := r.root.Path(key); ok {
		return key, value
	}

	segments := r.registry.TranslatePath(strings.Split(key, domain.PathSeparator), r.root)
	if len(segments) == 0 {
		return key, value
	}

	nested := value
	for i := len(segments) - 1; i >= 1; i-- {
		if segments[i] == domain.Positional {
			continue
		}
		nested = map[string]any{segments[i]: nested}
	}
	return segments[0], nested
}

// accumulate extends the path prefix with a key. Operator keys, including
// the bare positional placeholder, apply where the path already points and
// do not extend it.
func accumulate(prefix []string, key string) []string {
	if domain.IsOperatorKey(key) {
		return prefix
	}
	out := make([]string, 0, len(prefix)+1)
	out = append(out, prefix...)
	return append(out, key)
}

// crossing reports whether the accumulated path leaves the schema through
// a reference field: the composite path is not directly addressable and
// its last addressable ancestor is a reference with a registered target.
func (r *Rewriter) crossing(paths []string) (string, bool) {
	joined := strings.Join(paths, domain.PathSeparator)
	if joined == "" {
		return "", false
	}
	if _, ok := r.root.Path(joined); ok {
		return "", false
	}

	segments := strings.Split(joined, domain.PathSeparator)
	for i := len(segments) - 1; i >= 1; i-- {
		ancestor := strings.Join(segments[:i], domain.PathSeparator)
		field, ok := r.root.Resolve(ancestor)
		if !ok {
			continue
		}
		if field.Category != domain.CategoryReference {
			return "", false
		}
		if _, registered := r.registry.Lookup(field.Ref); !registered {
			// Unregistered target behaves as if no reference existed;
			// the path passes through unresolved.
			return "", false
		}
		return field.Ref, true
	}
	return "", false
}

// membership resolves a crossed-over pair into {$in: identifiers}: the
// pair is flattened into a well-formed sub-query rooted at the referenced
// collection, and the sub-query runs through the rewrite entry point of
// the target collection before being executed, exactly as any other query
// about to run against it would.
func (r *Rewriter) membership(ctx context.Context, key string, value any, target string, depth int) (map[string]any, error) {
	if r.maxDepth > 0 && depth >= r.maxDepth {
		return nil, fmt.Errorf("%w: %d while resolving %s", ErrMaxDepth, r.maxDepth, target)
	}

	sub, err := r.forCollection(target)
	if err != nil {
		return nil, err
	}

	filter := Flatten(map[string]any{key: value}, domain.PathSeparator, "")
	resolved, err := sub.rewrite(ctx, nil, filter, depth+1)
	if err != nil {
		return nil, err
	}
	subFilter, ok := resolved.(map[string]any)
	if !ok {
		subFilter = filter
	}

	ids, err := r.finder.FindIDs(ctx, target, subFilter)
	if err != nil {
		return nil, fmt.Errorf("sub-query against %s failed: %w", target, err)
	}

	members := make([]any, 0, len(ids))
	seen := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		members = append(members, id)
	}
	return map[string]any{domain.OpIn: members}, nil
}

// rewriteSequence rewrites the elements of a logical-operator sequence.
// Elements are independent and rewritten concurrently; results keep their
// positions.
func (r *Rewriter) rewriteSequence(ctx context.Context, prefix []string, seq []any, depth int) ([]any, error) {
	elems := make([]any, len(seq))
	g, gctx := errgroup.WithContext(ctx)
	for i, elem := range seq {
		g.Go(func() error {
			res, err := r.rewrite(gctx, prefix, elem, depth)
			if err != nil {
				return err
			}
			elems[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return elems, nil
}

// rewritePairs rewrites each key/value pair of a nested object
// independently and concurrently, then merges the partial results by key.
// Completion order carries no weight.
func (r *Rewriter) rewritePairs(ctx context.Context, prefix []string, tree map[string]any, depth int) (map[string]any, error) {
	results := make([]any, len(tree))
	g, gctx := errgroup.WithContext(ctx)
	i := 0
	for key, value := range tree {
		idx := i
		i++
		pair := map[string]any{key: value}
		g.Go(func() error {
			res, err := r.rewrite(gctx, prefix, pair, depth)
			if err != nil {
				return err
			}
			results[idx] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]any, len(tree))
	for _, res := range results {
		part, ok := res.(map[string]any)
		if !ok {
			continue
		}
		for key, value := range part {
			merged[key] = value
		}
	}
	return merged, nil
}

func (r *Rewriter) forCollection(collection string) (*Rewriter, error) {
	root, ok := r.registry.Lookup(collection)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}
	return &Rewriter{
		registry: r.registry,
		finder:   r.finder,
		root:     root,
		maxDepth: r.maxDepth,
	}, nil
}

func (r *Rewriter) isIdentityPath(prefix []string) bool {
	if len(prefix) == 0 {
		return false
	}
	joined := strings.Join(prefix, domain.PathSeparator)
	id := r.root.IDField
	return joined == id || strings.HasSuffix(joined, domain.PathSeparator+id)
}
