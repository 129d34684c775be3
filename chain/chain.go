// Package chain validates the reference graph spanned by container edges.
//
// A walk starts from serialized root bytes, verifies the root, then
// follows each edge by resolving the target's bytes through a
// caller-supplied Resolver and verifying them in turn. Sibling edges
// combine through their operators: every AND edge must validate, one OR
// edge must validate, and a NOT edge must fail to validate or be
// absent. Cycles and depth-limit hits abort the walk outright; they are
// structural faults, not negatable outcomes.
package chain

import (
	"context"
	"errors"
	"fmt"

	"xdao.co/acdc/acdc"
)

// Resolver supplies the serialized bytes of a container by identifier.
//
// Retrieval is entirely the resolver's concern. Any error, transient or
// not, is surfaced to the walk as a NotFound outcome for that edge.
type Resolver interface {
	Resolve(ctx context.Context, id string) ([]byte, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, id string) ([]byte, error)

func (f ResolverFunc) Resolve(ctx context.Context, id string) ([]byte, error) {
	return f(ctx, id)
}

var (
	// ErrDepthExceeded aborts a walk deeper than Options.MaxDepth.
	ErrDepthExceeded = errors.New("chain: depth limit exceeded")
	// ErrExcluded reports a NOT edge whose target validated.
	ErrExcluded = errors.New("chain: excluded target validated")
)

// Options tunes a validation walk.
type Options struct {
	// MaxDepth bounds the walk depth; 0 means unlimited. The root sits
	// at depth 0, so MaxDepth 1 admits the root and its direct targets.
	MaxDepth int
}

// Report is the aggregate outcome of a walk.
type Report struct {
	// Valid is true when the root and every required reachable target
	// verified.
	Valid bool
	// Err is the first failing reason when Valid is false.
	Err error
	// Visited lists the identifiers that verified, in walk order, each
	// at most once. On failure it holds the identifiers verified before
	// the walk stopped.
	Visited []string
}

// Validate verifies raw and the containers it references, transitively.
//
// Integrity outcomes, the resolver's misses included, land in the
// Report. The returned error is reserved for walk abortion that says
// nothing about the chain: context cancellation and caller misuse.
func Validate(ctx context.Context, raw []byte, r Resolver, opts Options) (*Report, error) {
	if r == nil {
		return nil, errors.New("chain: nil resolver")
	}
	w := &walker{resolver: r, opts: opts, memo: map[string]*outcome{}}
	_, err := w.walkNode(ctx, raw, "", map[string]struct{}{}, 0)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil, err
	}
	return &Report{Valid: err == nil, Err: err, Visited: w.visited}, nil
}

type walker struct {
	resolver Resolver
	opts     Options
	// memo caches per-identifier walk outcomes so diamonds resolve each
	// target once. Path-dependent outcomes (cycles, depth hits) and
	// context errors are never cached.
	memo    map[string]*outcome
	visited []string
}

type outcome struct {
	schema string
	err    error
}

// walkNode verifies one container and recurses into its edges. path
// holds the identifiers on the current root-to-node walk; wantID, when
// set, is the identifier the bytes were resolved under.
func (w *walker) walkNode(ctx context.Context, raw []byte, wantID string, path map[string]struct{}, depth int) (string, error) {
	c, err := acdc.Decode(raw)
	if err != nil {
		return "", err
	}
	if wantID != "" && c.SAID() != wantID {
		return "", &acdc.Error{
			Kind:    acdc.KindDigestMismatch,
			RuleID:  "ACDC-CHN-003",
			Message: fmt.Sprintf("resolved bytes embed %s, want %s", c.SAID(), wantID),
		}
	}
	if err := acdc.Verify(raw); err != nil {
		return "", err
	}
	w.visited = append(w.visited, c.SAID())

	path[c.SAID()] = struct{}{}
	err = w.walkEdges(ctx, c, path, depth)
	delete(path, c.SAID())

	schema := c.Schema()
	if !pathScoped(err) {
		w.memo[c.SAID()] = &outcome{schema: schema, err: err}
	}
	return schema, err
}

func (w *walker) walkEdges(ctx context.Context, c *acdc.Container, path map[string]struct{}, depth int) error {
	edges, err := c.Edges()
	if err != nil {
		// Compact edge blocks hold an identifier, not edges to walk.
		return err
	}
	orSeen, orSatisfied := false, false
	var firstOrErr error
	for _, e := range edges {
		switch e.Op {
		case acdc.OpOr:
			orSeen = true
			if orSatisfied {
				continue
			}
			err := w.walkEdge(ctx, e, path, depth)
			if err == nil {
				orSatisfied = true
				continue
			}
			if pathScoped(err) {
				return err
			}
			if firstOrErr == nil {
				firstOrErr = err
			}
		case acdc.OpNot:
			err := w.walkEdge(ctx, e, path, depth)
			if err == nil {
				return fmt.Errorf("chain: edge %q target %s: %w", e.Label, e.Node, ErrExcluded)
			}
			if pathScoped(err) {
				return err
			}
		default:
			if err := w.walkEdge(ctx, e, path, depth); err != nil {
				return err
			}
		}
	}
	if orSeen && !orSatisfied {
		return firstOrErr
	}
	return nil
}

// walkEdge resolves and validates one edge target. depth is the depth
// of the container carrying the edge.
func (w *walker) walkEdge(ctx context.Context, e acdc.Edge, path map[string]struct{}, depth int) error {
	if _, onPath := path[e.Node]; onPath {
		return &acdc.Error{
			Kind:    acdc.KindCycleDetected,
			RuleID:  "ACDC-CHN-001",
			Message: fmt.Sprintf("edge %q re-enters %s on the current path", e.Label, e.Node),
		}
	}
	if w.opts.MaxDepth > 0 && depth+1 > w.opts.MaxDepth {
		return fmt.Errorf("chain: edge %q target %s at depth %d: %w", e.Label, e.Node, depth+1, ErrDepthExceeded)
	}
	if m, ok := w.memo[e.Node]; ok {
		return edgeOutcome(e, m.schema, m.err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := w.resolver.Resolve(ctx, e.Node)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return &acdc.Error{
			Kind:    acdc.KindNotFound,
			RuleID:  "ACDC-CHN-002",
			Message: fmt.Sprintf("edge %q target %s did not resolve", e.Label, e.Node),
			Cause:   err,
		}
	}
	schema, err := w.walkNode(ctx, raw, e.Node, path, depth+1)
	return edgeOutcome(e, schema, err)
}

// edgeOutcome layers the edge's own schema constraint onto the target's
// walk outcome. The constraint applies once the target has verified, so
// it outranks failures from deeper in the target's subtree.
func edgeOutcome(e acdc.Edge, schema string, sub error) error {
	if sub != nil && schema == "" {
		return sub
	}
	if e.Schema != "" && e.Schema != schema {
		return &acdc.Error{
			Kind:    acdc.KindSchemaConstraintFailed,
			RuleID:  "ACDC-CHN-004",
			Message: fmt.Sprintf("edge %q target carries schema %s, want %s", e.Label, schema, e.Schema),
		}
	}
	return sub
}

// pathScoped reports whether err depends on where in the walk it arose
// and must therefore abort the walk instead of feeding a combinator or
// the memo.
func pathScoped(err error) bool {
	if err == nil {
		return false
	}
	return acdc.IsKind(err, acdc.KindCycleDetected) ||
		errors.Is(err, ErrDepthExceeded) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
