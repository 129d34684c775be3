package acdc

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"xdao.co/acdc/said"
)

// Map is an insertion-ordered string-keyed mapping. It is the data model
// for attribute and rule blocks, where field order is semantic: two maps
// with the same entries in different orders serialize to different bytes
// and therefore different identifiers.
//
// The zero value is not usable; construct with NewMap or MapOf.
type Map struct {
	keys []string
	vals map[string]any
}

// NewMap returns an empty ordered map.
func NewMap() *Map {
	return &Map{vals: map[string]any{}}
}

// MapOf builds an ordered map from alternating key, value arguments.
// It panics if the argument count is odd or a key is not a string;
// it exists for compact literal construction.
func MapOf(pairs ...any) *Map {
	if len(pairs)%2 != 0 {
		panic("acdc: MapOf requires an even number of arguments")
	}
	m := NewMap()
	for i := 0; i < len(pairs); i += 2 {
		k, ok := pairs[i].(string)
		if !ok {
			panic(fmt.Sprintf("acdc: MapOf key %d is %T, want string", i/2, pairs[i]))
		}
		m.Set(k, pairs[i+1])
	}
	return m
}

// Set stores value under key. Re-setting an existing key overwrites the
// value in place; the key keeps its original position.
func (m *Map) Set(key string, value any) {
	if _, ok := m.vals[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.vals[key] = value
}

// Get returns the value stored under key.
func (m *Map) Get(key string) (any, bool) {
	v, ok := m.vals[key]
	return v, ok
}

// Has reports whether key is present.
func (m *Map) Has(key string) bool {
	_, ok := m.vals[key]
	return ok
}

// Len returns the number of entries.
func (m *Map) Len() int { return len(m.keys) }

// Keys returns the keys in insertion order.
func (m *Map) Keys() []string {
	return append([]string(nil), m.keys...)
}

// At returns the entry at position i in insertion order. It panics if i
// is out of range, matching slice indexing.
func (m *Map) At(i int) (string, any) {
	k := m.keys[i]
	return k, m.vals[k]
}

// Range calls f for each entry in insertion order until f returns false.
func (m *Map) Range(f func(key string, value any) bool) {
	for _, k := range m.keys {
		if !f(k, m.vals[k]) {
			return
		}
	}
}

// Clone returns a deep copy. Nested maps and lists are copied; scalar
// values are shared (all scalars in the value model are immutable).
func (m *Map) Clone() *Map {
	if m == nil {
		return nil
	}
	out := NewMap()
	for _, k := range m.keys {
		out.Set(k, cloneValue(m.vals[k]))
	}
	return out
}

// Equal reports whether m and other hold the same entries in the same
// order. Equality is canonical: values compare by their canonical JSON
// rendering, so int64(5), uint64(5) and json.Number("5") are equal.
func (m *Map) Equal(other *Map) bool {
	if m == nil || other == nil {
		return m == other
	}
	a, err := encodeJSONValue(m)
	if err != nil {
		return false
	}
	b, err := encodeJSONValue(other)
	if err != nil {
		return false
	}
	return string(a) == string(b)
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case *Map:
		return t.Clone()
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// checkValue validates v against the closed value model: nil, bool,
// string, integers, floats, json.Number, []any, and nested *Map.
func checkValue(v any) error {
	switch t := v.(type) {
	case nil, bool, string,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return nil
	case json.Number:
		if _, err := t.Float64(); err != nil {
			// Out-of-range literals are still valid decimal text.
			var ne *strconv.NumError
			if !errors.As(err, &ne) || !errors.Is(ne.Err, strconv.ErrRange) {
				return newError(KindInvalidField, "ACDC-FLD-001", fmt.Sprintf("invalid number literal %q", string(t)))
			}
		}
		return nil
	case []any:
		for i, e := range t {
			if err := checkValue(e); err != nil {
				return wrapError(KindInvalidField, "ACDC-FLD-002", fmt.Sprintf("list element %d", i), err)
			}
		}
		return nil
	case *Map:
		if t == nil {
			return newError(KindInvalidField, "ACDC-FLD-003", "nil map value")
		}
		for _, k := range t.keys {
			if err := checkValue(t.vals[k]); err != nil {
				return wrapError(KindInvalidField, "ACDC-FLD-004", fmt.Sprintf("entry %q", k), err)
			}
		}
		return nil
	default:
		return newError(KindInvalidField, "ACDC-FLD-005", fmt.Sprintf("unsupported value type %T", v))
	}
}

// normalizeScalar widens native integer and float types so the codecs
// dispatch over int64, uint64, and float64 only.
func normalizeScalar(v any) any {
	switch t := v.(type) {
	case int:
		return int64(t)
	case int8:
		return int64(t)
	case int16:
		return int64(t)
	case int32:
		return int64(t)
	case uint:
		return uint64(t)
	case uint8:
		return uint64(t)
	case uint16:
		return uint64(t)
	case uint32:
		return uint64(t)
	case float32:
		return float64(t)
	default:
		return v
	}
}

// Attributes is the attribute block: either an inline ordered map or the
// compact identifier standing in for one.
type Attributes struct {
	inline  *Map
	compact string
}

// InlineAttributes wraps an ordered map as an inline attribute block.
func InlineAttributes(m *Map) Attributes { return Attributes{inline: m} }

// CompactAttributes wraps a block identifier as a compact attribute block.
func CompactAttributes(id string) Attributes { return Attributes{compact: id} }

// Inline returns the inline map when the block is inline.
func (a Attributes) Inline() (*Map, bool) { return a.inline, a.inline != nil }

// Compact returns the block identifier when the block is compact.
func (a Attributes) Compact() (string, bool) { return a.compact, a.compact != "" }

func (a Attributes) isSet() bool { return a.inline != nil || a.compact != "" }

// Operator combines sibling edges during chain validation.
type Operator string

const (
	// OpAnd requires every sibling AND edge to validate. It is the
	// default: an empty Operator means AND and is omitted on the wire.
	OpAnd Operator = "AND"
	// OpOr requires at least one sibling OR edge to validate.
	OpOr Operator = "OR"
	// OpNot requires the referenced edge to fail validation or be absent.
	OpNot Operator = "NOT"
)

func (o Operator) valid() bool {
	switch o {
	case "", OpAnd, OpOr, OpNot:
		return true
	}
	return false
}

// Edge references another container by identifier.
type Edge struct {
	// Label names the edge within its block.
	Label string
	// Node is the target container's identifier. Required.
	Node string
	// Schema, when set, constrains the target's schema identifier.
	Schema string
	// Op is the sibling combinator. Empty means AND.
	Op Operator
}

// Edges is the edge block: an inline ordered edge list or its compact
// identifier. The zero value is an absent block.
type Edges struct {
	inline  []Edge
	compact string
	set     bool
}

// InlineEdges wraps an ordered edge list as an inline edge block.
func InlineEdges(edges ...Edge) Edges {
	return Edges{inline: append([]Edge(nil), edges...), set: true}
}

// CompactEdges wraps a block identifier as a compact edge block.
func CompactEdges(id string) Edges { return Edges{compact: id, set: true} }

// Inline returns the edge list when the block is inline.
func (e Edges) Inline() ([]Edge, bool) {
	if !e.set || e.compact != "" {
		return nil, false
	}
	return append([]Edge(nil), e.inline...), true
}

// Compact returns the block identifier when the block is compact.
func (e Edges) Compact() (string, bool) { return e.compact, e.compact != "" }

func (e Edges) isSet() bool { return e.set }

// Rules is the rule block: an inline ordered map of rule terms or its
// compact identifier. The zero value is an absent block.
type Rules struct {
	inline  *Map
	compact string
}

// InlineRules wraps an ordered map as an inline rule block.
func InlineRules(m *Map) Rules { return Rules{inline: m} }

// CompactRules wraps a block identifier as a compact rule block.
func CompactRules(id string) Rules { return Rules{compact: id} }

// Inline returns the inline map when the block is inline.
func (r Rules) Inline() (*Map, bool) { return r.inline, r.inline != nil }

// Compact returns the block identifier when the block is compact.
func (r Rules) Compact() (string, bool) { return r.compact, r.compact != "" }

func (r Rules) isSet() bool { return r.inline != nil || r.compact != "" }

// Edge block wire labels.
const (
	edgeNodeKey     = "n"
	edgeSchemaKey   = "s"
	edgeOperatorKey = "o"
)

// edgesToMap renders an edge list in its wire form: label -> {n, s?, o?}.
// The AND default is omitted so equivalent blocks share one canonical form.
func edgesToMap(edges []Edge) *Map {
	m := NewMap()
	for _, e := range edges {
		entry := NewMap()
		entry.Set(edgeNodeKey, e.Node)
		if e.Schema != "" {
			entry.Set(edgeSchemaKey, e.Schema)
		}
		if e.Op != "" && e.Op != OpAnd {
			entry.Set(edgeOperatorKey, string(e.Op))
		}
		m.Set(e.Label, entry)
	}
	return m
}

// mapToEdges parses the wire form of an edge block.
func mapToEdges(m *Map) ([]Edge, error) {
	edges := make([]Edge, 0, m.Len())
	for _, label := range m.keys {
		entry, ok := m.vals[label].(*Map)
		if !ok {
			return nil, newError(KindInvalidField, "ACDC-FLD-020", fmt.Sprintf("edge %q is not a mapping", label))
		}
		edge := Edge{Label: label}
		for _, k := range entry.keys {
			v := entry.vals[k]
			s, isString := v.(string)
			switch k {
			case edgeNodeKey:
				if !isString || !said.IsIdentifier(s) {
					return nil, newError(KindInvalidField, "ACDC-FLD-021", fmt.Sprintf("edge %q target is not a well-formed identifier", label))
				}
				edge.Node = s
			case edgeSchemaKey:
				if !isString || !said.IsIdentifier(s) {
					return nil, newError(KindInvalidField, "ACDC-FLD-022", fmt.Sprintf("edge %q schema constraint is not a well-formed identifier", label))
				}
				edge.Schema = s
			case edgeOperatorKey:
				if !isString || !Operator(s).valid() || s == "" {
					return nil, newError(KindInvalidField, "ACDC-FLD-023", fmt.Sprintf("edge %q operator %v is not AND, OR, or NOT", label, v))
				}
				edge.Op = Operator(s)
			default:
				return nil, newError(KindInvalidField, "ACDC-FLD-024", fmt.Sprintf("edge %q carries unknown field %q", label, k))
			}
		}
		if edge.Node == "" {
			return nil, newError(KindInvalidField, "ACDC-FLD-025", fmt.Sprintf("edge %q is missing its target", label))
		}
		edges = append(edges, edge)
	}
	return edges, nil
}

// checkEdges validates builder-supplied edges.
func checkEdges(edges []Edge) error {
	seen := make(map[string]struct{}, len(edges))
	for _, e := range edges {
		if e.Label == "" {
			return newError(KindInvalidField, "ACDC-FLD-030", "edge label must not be empty")
		}
		if _, dup := seen[e.Label]; dup {
			return newError(KindInvalidField, "ACDC-FLD-031", fmt.Sprintf("duplicate edge label %q", e.Label))
		}
		seen[e.Label] = struct{}{}
		if !said.IsIdentifier(e.Node) {
			return newError(KindInvalidField, "ACDC-FLD-032", fmt.Sprintf("edge %q target is not a well-formed identifier", e.Label))
		}
		if e.Schema != "" && !said.IsIdentifier(e.Schema) {
			return newError(KindInvalidField, "ACDC-FLD-033", fmt.Sprintf("edge %q schema constraint is not a well-formed identifier", e.Label))
		}
		if !e.Op.valid() {
			return newError(KindInvalidField, "ACDC-FLD-034", fmt.Sprintf("edge %q operator %q is not AND, OR, or NOT", e.Label, string(e.Op)))
		}
	}
	return nil
}
