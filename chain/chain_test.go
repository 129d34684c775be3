package chain

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"xdao.co/acdc/acdc"
	"xdao.co/acdc/said"
)

type memResolver map[string][]byte

func (m memResolver) Resolve(_ context.Context, id string) ([]byte, error) {
	raw, ok := m[id]
	if !ok {
		return nil, errors.New("memresolver: no such container")
	}
	return raw, nil
}

type countingResolver struct {
	inner memResolver
	calls map[string]int
}

func counting(inner memResolver) *countingResolver {
	return &countingResolver{inner: inner, calls: map[string]int{}}
}

func (c *countingResolver) Resolve(ctx context.Context, id string) ([]byte, error) {
	c.calls[id]++
	return c.inner.Resolve(ctx, id)
}

func mintID(t *testing.T, seed string) string {
	t.Helper()
	id, err := said.Sum(said.Blake3_256, []byte(seed))
	if err != nil {
		t.Fatalf("Sum: %v", err)
	}
	return id
}

// issue builds a container, registers its bytes with the resolver, and
// returns it.
func issue(t *testing.T, r memResolver, schema string, name string, edges ...acdc.Edge) *acdc.Container {
	t.Helper()
	p := acdc.Params{
		Issuer:     "EIflL4H2bwUXaIs2uvByVZDK4dUBa4AKRcpNAnBh1tPw",
		Schema:     schema,
		Attributes: acdc.InlineAttributes(acdc.MapOf("name", name)),
	}
	if len(edges) > 0 {
		p.Edges = acdc.InlineEdges(edges...)
	}
	c, err := acdc.New(p)
	if err != nil {
		t.Fatalf("New %s: %v", name, err)
	}
	if r != nil {
		r[c.SAID()] = c.Raw()
	}
	return c
}

func mustValidate(t *testing.T, raw []byte, r Resolver, opts Options) *Report {
	t.Helper()
	rep, err := Validate(context.Background(), raw, r, opts)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	return rep
}

// tamper swaps one attribute value for another of the same length, so
// the result still decodes and only verification notices.
func tamper(t *testing.T, raw []byte, from, to string) []byte {
	t.Helper()
	if len(from) != len(to) {
		t.Fatalf("tamper must preserve the length: %q vs %q", from, to)
	}
	out := bytes.Replace(raw, []byte(from), []byte(to), 1)
	if bytes.Equal(out, raw) {
		t.Fatalf("tamper target %q not found", from)
	}
	return out
}

func TestValidateSingle(t *testing.T) {
	r := memResolver{}
	c := issue(t, r, mintID(t, "schema"), "leaf")
	rep := mustValidate(t, c.Raw(), r, Options{})
	if !rep.Valid || rep.Err != nil {
		t.Fatalf("expected valid report, got %+v", rep)
	}
	if len(rep.Visited) != 1 || rep.Visited[0] != c.SAID() {
		t.Fatalf("expected visited [%s], got %v", c.SAID(), rep.Visited)
	}
}

func TestValidateLinearChain(t *testing.T) {
	r := memResolver{}
	schema := mintID(t, "schema")
	c := issue(t, r, schema, "c")
	b := issue(t, r, schema, "b", acdc.Edge{Label: "next", Node: c.SAID()})
	a := issue(t, r, schema, "a", acdc.Edge{Label: "next", Node: b.SAID()})

	rep := mustValidate(t, a.Raw(), r, Options{})
	if !rep.Valid {
		t.Fatalf("expected valid chain, got %v", rep.Err)
	}
	want := []string{a.SAID(), b.SAID(), c.SAID()}
	if len(rep.Visited) != len(want) {
		t.Fatalf("expected %d visited, got %v", len(want), rep.Visited)
	}
	for i, id := range want {
		if rep.Visited[i] != id {
			t.Fatalf("visited[%d] = %s, want %s", i, rep.Visited[i], id)
		}
	}
}

func TestValidateMissingTarget(t *testing.T) {
	r := memResolver{}
	a := issue(t, r, mintID(t, "schema"), "a", acdc.Edge{Label: "gone", Node: mintID(t, "nowhere")})
	rep := mustValidate(t, a.Raw(), r, Options{})
	if rep.Valid {
		t.Fatalf("expected failure for unresolvable target")
	}
	if !acdc.IsKind(rep.Err, acdc.KindNotFound) {
		t.Fatalf("expected NotFound, got %v", rep.Err)
	}
	if acdc.RuleID(rep.Err) != "ACDC-CHN-002" {
		t.Fatalf("expected ACDC-CHN-002, got %s", acdc.RuleID(rep.Err))
	}
}

func TestValidateResolverReturnsWrongContainer(t *testing.T) {
	r := memResolver{}
	schema := mintID(t, "schema")
	impostor := issue(t, nil, schema, "impostor")
	wanted := mintID(t, "the-real-target")
	r[wanted] = impostor.Raw()
	a := issue(t, r, schema, "a", acdc.Edge{Label: "link", Node: wanted})

	rep := mustValidate(t, a.Raw(), r, Options{})
	if rep.Valid {
		t.Fatalf("expected failure for identifier mismatch")
	}
	if !acdc.IsKind(rep.Err, acdc.KindDigestMismatch) || acdc.RuleID(rep.Err) != "ACDC-CHN-003" {
		t.Fatalf("expected ACDC-CHN-003 DigestMismatch, got %v", rep.Err)
	}
}

func TestValidateTamperedTarget(t *testing.T) {
	r := memResolver{}
	schema := mintID(t, "schema")
	b := issue(t, r, schema, "b")
	r[b.SAID()] = tamper(t, b.Raw(), `"name":"b"`, `"name":"x"`)
	a := issue(t, r, schema, "a", acdc.Edge{Label: "link", Node: b.SAID()})

	rep := mustValidate(t, a.Raw(), r, Options{})
	if rep.Valid {
		t.Fatalf("expected failure for tampered target")
	}
	if !acdc.IsKind(rep.Err, acdc.KindDigestMismatch) {
		t.Fatalf("expected DigestMismatch, got %v", rep.Err)
	}
	if len(rep.Visited) != 1 || rep.Visited[0] != a.SAID() {
		t.Fatalf("only the root verified, got %v", rep.Visited)
	}
}

func TestValidateDiamond(t *testing.T) {
	r := memResolver{}
	schema := mintID(t, "schema")
	d := issue(t, r, schema, "d")
	b := issue(t, r, schema, "b", acdc.Edge{Label: "base", Node: d.SAID()})
	c := issue(t, r, schema, "c", acdc.Edge{Label: "base", Node: d.SAID()})
	a := issue(t, r, schema, "a",
		acdc.Edge{Label: "left", Node: b.SAID()},
		acdc.Edge{Label: "right", Node: c.SAID()},
	)

	cr := counting(r)
	rep := mustValidate(t, a.Raw(), cr, Options{})
	if !rep.Valid {
		t.Fatalf("diamonds are valid graphs, got %v", rep.Err)
	}
	if cr.calls[d.SAID()] != 1 {
		t.Fatalf("shared target resolved %d times, want once", cr.calls[d.SAID()])
	}
	if len(rep.Visited) != 4 {
		t.Fatalf("each container verifies once, got %v", rep.Visited)
	}
}

func TestValidateCycleDetected(t *testing.T) {
	// Digest-chained containers cannot reference forward, so a genuine
	// cycle cannot be minted; the guard is exercised at the walk level.
	r := memResolver{}
	b := issue(t, r, mintID(t, "schema"), "b")
	w := &walker{resolver: r, memo: map[string]*outcome{}}
	path := map[string]struct{}{b.SAID(): {}}
	err := w.walkEdge(context.Background(), acdc.Edge{Label: "loop", Node: b.SAID()}, path, 0)
	if !acdc.IsKind(err, acdc.KindCycleDetected) {
		t.Fatalf("expected CycleDetected, got %v", err)
	}
	if acdc.RuleID(err) != "ACDC-CHN-001" {
		t.Fatalf("expected ACDC-CHN-001, got %s", acdc.RuleID(err))
	}

	// A cycle aborts the walk even under NOT.
	if !pathScoped(err) {
		t.Fatalf("cycle outcomes must not feed combinators")
	}
}

func TestValidateOrNeedsOneSuccess(t *testing.T) {
	r := memResolver{}
	schema := mintID(t, "schema")
	b := issue(t, r, schema, "b")
	a := issue(t, r, schema, "a",
		acdc.Edge{Label: "primary", Node: mintID(t, "missing"), Op: acdc.OpOr},
		acdc.Edge{Label: "fallback", Node: b.SAID(), Op: acdc.OpOr},
	)
	rep := mustValidate(t, a.Raw(), r, Options{})
	if !rep.Valid {
		t.Fatalf("one OR success suffices, got %v", rep.Err)
	}

	all := issue(t, r, schema, "all-missing",
		acdc.Edge{Label: "primary", Node: mintID(t, "missing-1"), Op: acdc.OpOr},
		acdc.Edge{Label: "secondary", Node: mintID(t, "missing-2"), Op: acdc.OpOr},
	)
	rep = mustValidate(t, all.Raw(), r, Options{})
	if rep.Valid {
		t.Fatalf("expected failure when every OR edge fails")
	}
	if !acdc.IsKind(rep.Err, acdc.KindNotFound) {
		t.Fatalf("expected the first OR failure surfaced, got %v", rep.Err)
	}
}

func TestValidateOrStopsAtFirstSuccess(t *testing.T) {
	r := memResolver{}
	schema := mintID(t, "schema")
	b := issue(t, r, schema, "b")
	c := issue(t, r, schema, "c")
	a := issue(t, r, schema, "a",
		acdc.Edge{Label: "first", Node: b.SAID(), Op: acdc.OpOr},
		acdc.Edge{Label: "second", Node: c.SAID(), Op: acdc.OpOr},
	)
	cr := counting(r)
	rep := mustValidate(t, a.Raw(), cr, Options{})
	if !rep.Valid {
		t.Fatalf("expected valid report, got %v", rep.Err)
	}
	if cr.calls[c.SAID()] != 0 {
		t.Fatalf("OR evaluation must stop at the first success; second target resolved %d times", cr.calls[c.SAID()])
	}
}

func TestValidateNotEdge(t *testing.T) {
	r := memResolver{}
	schema := mintID(t, "schema")

	absent := issue(t, r, schema, "absent-ok",
		acdc.Edge{Label: "revocation", Node: mintID(t, "no-revocation"), Op: acdc.OpNot},
	)
	rep := mustValidate(t, absent.Raw(), r, Options{})
	if !rep.Valid {
		t.Fatalf("an absent NOT target satisfies the edge, got %v", rep.Err)
	}

	revocation := issue(t, r, schema, "revocation")
	revoked := issue(t, r, schema, "revoked",
		acdc.Edge{Label: "revocation", Node: revocation.SAID(), Op: acdc.OpNot},
	)
	rep = mustValidate(t, revoked.Raw(), r, Options{})
	if rep.Valid {
		t.Fatalf("a validating NOT target must fail the chain")
	}
	if !errors.Is(rep.Err, ErrExcluded) {
		t.Fatalf("expected ErrExcluded, got %v", rep.Err)
	}

	// A NOT target that exists but fails verification satisfies the edge.
	r[revocation.SAID()] = tamper(t, revocation.Raw(), `"name":"revocation"`, `"name":"revocatioX"`)
	rep = mustValidate(t, revoked.Raw(), r, Options{})
	if !rep.Valid {
		t.Fatalf("a failing NOT target satisfies the edge, got %v", rep.Err)
	}
}

func TestValidateAndFailureStopsEarly(t *testing.T) {
	r := memResolver{}
	schema := mintID(t, "schema")
	c := issue(t, r, schema, "c")
	a := issue(t, r, schema, "a",
		acdc.Edge{Label: "broken", Node: mintID(t, "missing")},
		acdc.Edge{Label: "fine", Node: c.SAID()},
	)
	cr := counting(r)
	rep := mustValidate(t, a.Raw(), cr, Options{})
	if rep.Valid {
		t.Fatalf("expected AND failure")
	}
	if !acdc.IsKind(rep.Err, acdc.KindNotFound) {
		t.Fatalf("expected the AND failure surfaced, got %v", rep.Err)
	}
	if cr.calls[c.SAID()] != 0 {
		t.Fatalf("an AND failure must stop the walk; later edge resolved %d times", cr.calls[c.SAID()])
	}
}

func TestValidateMixedOperators(t *testing.T) {
	r := memResolver{}
	schema := mintID(t, "schema")
	req := issue(t, r, schema, "required")
	alt := issue(t, r, schema, "alternative")
	a := issue(t, r, schema, "a",
		acdc.Edge{Label: "required", Node: req.SAID()},
		acdc.Edge{Label: "primary", Node: mintID(t, "missing"), Op: acdc.OpOr},
		acdc.Edge{Label: "fallback", Node: alt.SAID(), Op: acdc.OpOr},
		acdc.Edge{Label: "revocation", Node: mintID(t, "no-revocation"), Op: acdc.OpNot},
	)
	rep := mustValidate(t, a.Raw(), r, Options{})
	if !rep.Valid {
		t.Fatalf("expected valid report, got %v", rep.Err)
	}
}

func TestValidateSchemaConstraint(t *testing.T) {
	r := memResolver{}
	wantSchema := mintID(t, "license-schema")
	otherSchema := mintID(t, "receipt-schema")
	b := issue(t, r, otherSchema, "b")
	a := issue(t, r, mintID(t, "schema"), "a",
		acdc.Edge{Label: "license", Node: b.SAID(), Schema: wantSchema},
	)
	rep := mustValidate(t, a.Raw(), r, Options{})
	if rep.Valid {
		t.Fatalf("expected schema constraint failure")
	}
	if !acdc.IsKind(rep.Err, acdc.KindSchemaConstraintFailed) || acdc.RuleID(rep.Err) != "ACDC-CHN-004" {
		t.Fatalf("expected ACDC-CHN-004 SchemaConstraintFailed, got %v", rep.Err)
	}

	ok := issue(t, r, mintID(t, "schema"), "ok",
		acdc.Edge{Label: "license", Node: b.SAID(), Schema: otherSchema},
	)
	rep = mustValidate(t, ok.Raw(), r, Options{})
	if !rep.Valid {
		t.Fatalf("matching constraint must pass, got %v", rep.Err)
	}
}

func TestValidateMaxDepth(t *testing.T) {
	r := memResolver{}
	schema := mintID(t, "schema")
	c := issue(t, r, schema, "c")
	b := issue(t, r, schema, "b", acdc.Edge{Label: "next", Node: c.SAID()})
	a := issue(t, r, schema, "a", acdc.Edge{Label: "next", Node: b.SAID()})

	rep := mustValidate(t, a.Raw(), r, Options{MaxDepth: 2})
	if !rep.Valid {
		t.Fatalf("depth 2 admits a three-link chain, got %v", rep.Err)
	}

	rep = mustValidate(t, a.Raw(), r, Options{MaxDepth: 1})
	if rep.Valid {
		t.Fatalf("expected depth limit hit")
	}
	if !errors.Is(rep.Err, ErrDepthExceeded) {
		t.Fatalf("expected ErrDepthExceeded, got %v", rep.Err)
	}

	// Depth exhaustion aborts even under NOT.
	n := issue(t, r, schema, "n", acdc.Edge{Label: "deep", Node: b.SAID(), Op: acdc.OpNot})
	rep = mustValidate(t, n.Raw(), r, Options{MaxDepth: 1})
	if rep.Valid || !errors.Is(rep.Err, ErrDepthExceeded) {
		t.Fatalf("a NOT edge must not absorb a depth hit, got %+v", rep)
	}
}

func TestValidateCompactEdgeBlock(t *testing.T) {
	r := memResolver{}
	schema := mintID(t, "schema")
	b := issue(t, r, schema, "b")
	a := issue(t, r, schema, "a", acdc.Edge{Label: "next", Node: b.SAID()})
	ca, err := a.CompactBlock(acdc.BlockEdges)
	if err != nil {
		t.Fatalf("CompactBlock: %v", err)
	}
	r[ca.SAID()] = ca.Raw()

	rep := mustValidate(t, ca.Raw(), r, Options{})
	if rep.Valid {
		t.Fatalf("compact edge blocks cannot be walked")
	}
	if !acdc.IsKind(rep.Err, acdc.KindCompactOnly) {
		t.Fatalf("expected CompactOnly, got %v", rep.Err)
	}
}

func TestValidateRootFailures(t *testing.T) {
	r := memResolver{}
	rep := mustValidate(t, []byte("not a container"), r, Options{})
	if rep.Valid || !acdc.IsKind(rep.Err, acdc.KindMalformedHeader) {
		t.Fatalf("expected root decode failure, got %+v", rep)
	}

	a := issue(t, r, mintID(t, "schema"), "a")
	rep = mustValidate(t, tamper(t, a.Raw(), `"name":"a"`, `"name":"z"`), r, Options{})
	if rep.Valid || !acdc.IsKind(rep.Err, acdc.KindDigestMismatch) {
		t.Fatalf("expected root verify failure, got %+v", rep)
	}
}

func TestValidateContextCancelled(t *testing.T) {
	r := memResolver{}
	schema := mintID(t, "schema")
	b := issue(t, r, schema, "b")
	a := issue(t, r, schema, "a", acdc.Edge{Label: "next", Node: b.SAID()})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rep, err := Validate(ctx, a.Raw(), r, Options{})
	if rep != nil {
		t.Fatalf("cancellation yields no report, got %+v", rep)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestValidateNilResolver(t *testing.T) {
	a := issue(t, nil, mintID(t, "schema"), "a")
	rep, err := Validate(context.Background(), a.Raw(), nil, Options{})
	if err == nil || rep != nil {
		t.Fatalf("expected misuse error, got %+v / %v", rep, err)
	}
}

func TestResolverFunc(t *testing.T) {
	r := memResolver{}
	b := issue(t, r, mintID(t, "schema"), "b")
	a := issue(t, r, mintID(t, "schema"), "a", acdc.Edge{Label: "next", Node: b.SAID()})
	fn := ResolverFunc(func(ctx context.Context, id string) ([]byte, error) {
		return r.Resolve(ctx, id)
	})
	rep := mustValidate(t, a.Raw(), fn, Options{})
	if !rep.Valid {
		t.Fatalf("expected valid report, got %v", rep.Err)
	}
}
