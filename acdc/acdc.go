// Package acdc implements Authentic Chained Data Containers: compact,
// self-addressing, chainable data containers serialized canonically as
// JSON, CBOR, or MessagePack.
//
// A container binds an issuer, a schema identifier, an attribute block,
// and optional edge and rule blocks under a self-addressing identifier:
// the digest of the container's own canonical bytes, embedded in the
// `d` field by a placeholder fixed point. Field order is fixed
// (v, d, i, ri, s, a, e, r), absent optional blocks are omitted, and
// the registry identifier `ri` is always emitted, empty string
// included, so equal logical content has exactly one byte form per
// serialization kind.
//
// Containers are immutable: New and Decode return finalized values
// whose identifier and exact bytes are fixed, and every deriving
// operation (compaction, expansion) returns a new finalized container.
package acdc

import (
	"fmt"

	"xdao.co/acdc/said"
)

// Container is a finalized authentic chained data container.
type Container struct {
	version  Version
	kind     Kind
	said     string
	issuer   string
	registry string
	schema   string
	attrs    Attributes
	edges    Edges
	rules    Rules
	raw      []byte
}

// Params carries the fields for New.
//
// Issuer, Schema, and Attributes are required. Registry may be empty;
// the registry field is emitted either way. Kind and Code select the
// serialization and derivation code, defaulting to JSON and Blake3-256.
type Params struct {
	Issuer     string
	Registry   string
	Schema     string
	Attributes Attributes
	Edges      Edges
	Rules      Rules
	Kind       Kind
	Code       said.Code
}

// New validates p, serializes the container, and derives its
// identifier. The returned container is finalized: SAID, Kind, and Raw
// are all set.
func New(p Params) (*Container, error) {
	if p.Schema == "" {
		return nil, newError(KindInvalidField, "ACDC-FLD-010", "schema identifier must not be empty")
	}
	if !said.IsIdentifier(p.Schema) {
		return nil, newError(KindInvalidField, "ACDC-FLD-011", "schema is not a well-formed identifier")
	}
	if !p.Attributes.isSet() {
		return nil, newError(KindInvalidField, "ACDC-FLD-012", "attribute block is required")
	}
	if id, ok := p.Attributes.Compact(); ok && !said.IsIdentifier(id) {
		return nil, newError(KindInvalidField, "ACDC-FLD-013", "compact attribute block is not a well-formed identifier")
	}
	if m, ok := p.Attributes.Inline(); ok {
		if err := checkValue(m); err != nil {
			return nil, err
		}
	}
	if id, ok := p.Edges.Compact(); ok && !said.IsIdentifier(id) {
		return nil, newError(KindInvalidField, "ACDC-FLD-014", "compact edge block is not a well-formed identifier")
	}
	if list, ok := p.Edges.Inline(); ok {
		if err := checkEdges(list); err != nil {
			return nil, err
		}
	}
	if id, ok := p.Rules.Compact(); ok && !said.IsIdentifier(id) {
		return nil, newError(KindInvalidField, "ACDC-FLD-015", "compact rule block is not a well-formed identifier")
	}
	if m, ok := p.Rules.Inline(); ok {
		if err := checkValue(m); err != nil {
			return nil, err
		}
	}

	kind := p.Kind
	if kind == "" {
		kind = JSON
	}
	if !kind.Valid() {
		return nil, newError(KindUnsupportedKind, "ACDC-FLD-016", fmt.Sprintf("unrecognized serialization kind %q", string(p.Kind)))
	}
	code := p.Code
	if code == "" {
		code = said.Blake3_256
	}
	if !code.Valid() {
		return nil, newError(KindUnknownAlgorithm, "ACDC-FLD-017", fmt.Sprintf("unregistered derivation code %q", string(p.Code)))
	}

	c := &Container{
		version:  CurrentVersion,
		issuer:   p.Issuer,
		registry: p.Registry,
		schema:   p.Schema,
		attrs:    p.Attributes,
		edges:    p.Edges,
		rules:    p.Rules,
	}
	raw, id, err := c.derive(kind, code)
	if err != nil {
		return nil, err
	}
	c.kind = kind
	c.said = id
	c.raw = raw
	return c, nil
}

// derive runs the fixed-point identifier computation: serialize with
// the placeholder in the identifier span and a zeroed size field, patch
// the true size into the fixed-width header, digest the placeholder
// bytes, and splice the identifier into the span. No byte outside the
// header and identifier spans is touched after serialization.
func (c *Container) derive(kind Kind, code said.Code) ([]byte, string, error) {
	header, err := EncodeVersion(CurrentVersion, kind, 0)
	if err != nil {
		return nil, "", err
	}
	raw, err := encodeKindValue(kind, c.document(header, said.Placeholder(code)))
	if err != nil {
		return nil, "", err
	}
	if len(raw) > maxContainerSize {
		return nil, "", newError(KindHeaderSizeOverflow, "ACDC-ENC-001", fmt.Sprintf("serialized size %d exceeds header capacity", len(raw)))
	}
	header, err = EncodeVersion(CurrentVersion, kind, len(raw))
	if err != nil {
		return nil, "", err
	}
	off := headerOffset(kind)
	copy(raw[off:off+headerLen], header)
	start, end, err := saidSpan(kind, raw)
	if err != nil {
		return nil, "", err
	}
	id, err := said.Sum(code, raw)
	if err != nil {
		return nil, "", wrapError(KindUnknownAlgorithm, "ACDC-ENC-002", "identifier derivation failed", err)
	}
	copy(raw[start:end], id)
	return raw, id, nil
}

// document assembles the ordered top-level field mapping around the
// given header and identifier values.
func (c *Container) document(header, id string) *Map {
	doc := NewMap()
	doc.Set("v", header)
	doc.Set("d", id)
	doc.Set("i", c.issuer)
	doc.Set("ri", c.registry)
	doc.Set("s", c.schema)
	if m, ok := c.attrs.Inline(); ok {
		doc.Set("a", m)
	} else if cid, ok := c.attrs.Compact(); ok {
		doc.Set("a", cid)
	}
	if c.edges.isSet() {
		if cid, ok := c.edges.Compact(); ok {
			doc.Set("e", cid)
		} else {
			doc.Set("e", edgesToMap(c.edges.inline))
		}
	}
	if c.rules.isSet() {
		if cid, ok := c.rules.Compact(); ok {
			doc.Set("r", cid)
		} else {
			doc.Set("r", c.rules.inline)
		}
	}
	return doc
}

func encodeKindValue(kind Kind, doc *Map) ([]byte, error) {
	switch kind {
	case JSON:
		return encodeJSONValue(doc)
	case CBOR:
		return encodeCBORValue(doc)
	case MGPK:
		return encodeMGPKValue(doc)
	}
	return nil, newError(KindUnsupportedKind, "ACDC-ENC-003", fmt.Sprintf("unrecognized serialization kind %q", string(kind)))
}

func decodeKindValue(kind Kind, raw []byte) (*Map, error) {
	switch kind {
	case JSON:
		return decodeJSON(raw)
	case CBOR:
		return decodeCBOR(raw)
	case MGPK:
		return decodeMGPK(raw)
	}
	return nil, newError(KindUnsupportedKind, "ACDC-DEC-001", fmt.Sprintf("unrecognized serialization kind %q", string(kind)))
}

// Encode returns the canonical bytes of the container in the given
// kind. For the container's own kind this is a copy of its finalized
// bytes. For another kind the bytes are derived fresh and embed the
// identifier this content has under that kind, which differs from
// SAID: identifiers cover one concrete serialization.
func (c *Container) Encode(kind Kind) ([]byte, error) {
	code := said.Blake3_256
	if c.said != "" {
		if cc, err := said.CodeOf(c.said); err == nil {
			code = cc
		}
	}
	return c.EncodeWith(kind, code)
}

// EncodeWith is Encode with an explicit derivation code.
func (c *Container) EncodeWith(kind Kind, code said.Code) ([]byte, error) {
	if !kind.Valid() {
		return nil, newError(KindUnsupportedKind, "ACDC-ENC-004", fmt.Sprintf("unrecognized serialization kind %q", string(kind)))
	}
	if !code.Valid() {
		return nil, newError(KindUnknownAlgorithm, "ACDC-ENC-005", fmt.Sprintf("unregistered derivation code %q", string(code)))
	}
	if kind == c.kind && c.raw != nil {
		if cc, err := said.CodeOf(c.said); err == nil && cc == code {
			return append([]byte(nil), c.raw...), nil
		}
	}
	raw, _, err := c.derive(kind, code)
	return raw, err
}

// Decode parses serialized container bytes.
//
// Decoding is structural: field membership, canonical order, and value
// shapes are checked, but neither the declared size nor the identifier
// digest is. A tampered container decodes cleanly and fails Verify.
func Decode(raw []byte) (*Container, error) {
	kind, header, err := sniff(raw)
	if err != nil {
		return nil, err
	}
	ver, headerKind, _, err := DecodeVersion(header)
	if err != nil {
		return nil, err
	}
	if headerKind != kind {
		return nil, newError(KindMalformedHeader, "ACDC-DEC-002", fmt.Sprintf("header declares %s but document is %s", headerKind, kind))
	}
	doc, err := decodeKindValue(kind, raw)
	if err != nil {
		return nil, err
	}
	if err := checkFieldOrder(doc.keys); err != nil {
		return nil, err
	}

	c := &Container{version: ver, kind: kind, raw: append([]byte(nil), raw...)}

	d, err := docString(doc, "d")
	if err != nil {
		return nil, err
	}
	if !said.IsIdentifier(d) {
		return nil, newError(KindInvalidField, "ACDC-DEC-003", "identifier field is not a well-formed identifier")
	}
	c.said = d
	if c.issuer, err = docString(doc, "i"); err != nil {
		return nil, err
	}
	if c.registry, err = docString(doc, "ri"); err != nil {
		return nil, err
	}
	if c.schema, err = docString(doc, "s"); err != nil {
		return nil, err
	}
	if !said.IsIdentifier(c.schema) {
		return nil, newError(KindInvalidField, "ACDC-DEC-004", "schema field is not a well-formed identifier")
	}

	av, ok := doc.Get("a")
	if !ok {
		return nil, newError(KindInvalidField, "ACDC-DEC-014", `missing required field "a"`)
	}
	switch t := av.(type) {
	case *Map:
		c.attrs = InlineAttributes(t)
	case string:
		if !said.IsIdentifier(t) {
			return nil, newError(KindInvalidField, "ACDC-DEC-005", "compact attribute block is not a well-formed identifier")
		}
		c.attrs = CompactAttributes(t)
	default:
		return nil, newError(KindInvalidField, "ACDC-DEC-006", "attribute block is neither a mapping nor an identifier")
	}

	if ev, ok := doc.Get("e"); ok {
		switch t := ev.(type) {
		case *Map:
			list, err := mapToEdges(t)
			if err != nil {
				return nil, err
			}
			c.edges = InlineEdges(list...)
		case string:
			if !said.IsIdentifier(t) {
				return nil, newError(KindInvalidField, "ACDC-DEC-007", "compact edge block is not a well-formed identifier")
			}
			c.edges = CompactEdges(t)
		default:
			return nil, newError(KindInvalidField, "ACDC-DEC-008", "edge block is neither a mapping nor an identifier")
		}
	}

	if rv, ok := doc.Get("r"); ok {
		switch t := rv.(type) {
		case *Map:
			c.rules = InlineRules(t)
		case string:
			if !said.IsIdentifier(t) {
				return nil, newError(KindInvalidField, "ACDC-DEC-009", "compact rule block is not a well-formed identifier")
			}
			c.rules = CompactRules(t)
		default:
			return nil, newError(KindInvalidField, "ACDC-DEC-010", "rule block is neither a mapping nor an identifier")
		}
	}

	return c, nil
}

// fieldOrder is the canonical top-level field sequence. Optional blocks
// may be absent, but present fields must appear in this order.
var fieldOrder = []string{"v", "d", "i", "ri", "s", "a", "e", "r"}

func checkFieldOrder(keys []string) error {
	i := 0
	for _, k := range keys {
		for i < len(fieldOrder) && fieldOrder[i] != k {
			i++
		}
		if i == len(fieldOrder) {
			return newError(KindInvalidField, "ACDC-DEC-011", fmt.Sprintf("unexpected or misplaced field %q", k))
		}
		i++
	}
	return nil
}

func docString(doc *Map, key string) (string, error) {
	v, ok := doc.Get(key)
	if !ok {
		return "", newError(KindInvalidField, "ACDC-DEC-012", fmt.Sprintf("missing required field %q", key))
	}
	s, ok := v.(string)
	if !ok {
		return "", newError(KindInvalidField, "ACDC-DEC-013", fmt.Sprintf("field %q is %T, want string", key, v))
	}
	return s, nil
}

// SAID returns the container's self-addressing identifier.
func (c *Container) SAID() string { return c.said }

// Issuer returns the issuer identifier.
func (c *Container) Issuer() string { return c.issuer }

// Registry returns the registry identifier, possibly empty.
func (c *Container) Registry() string { return c.registry }

// Schema returns the schema identifier.
func (c *Container) Schema() string { return c.schema }

// Version returns the protocol version carried by the container.
func (c *Container) Version() Version { return c.version }

// Kind returns the serialization kind of the finalized bytes.
func (c *Container) Kind() Kind { return c.kind }

// Raw returns a copy of the finalized container bytes.
func (c *Container) Raw() []byte { return append([]byte(nil), c.raw...) }

// AttributeBlock returns the attribute block as stored, inline or compact.
func (c *Container) AttributeBlock() Attributes { return c.attrs }

// Attributes returns the inline attribute map. It fails with CompactOnly
// when the block is compact: the caller holds an identifier, not data,
// and must expand with the full block first.
//
// The returned map is the container's own; callers must not mutate it.
func (c *Container) Attributes() (*Map, error) {
	if id, ok := c.attrs.Compact(); ok {
		return nil, newError(KindCompactOnly, "ACDC-FLD-040", fmt.Sprintf("attribute block is compact (%s)", id))
	}
	return c.attrs.inline, nil
}

// EdgeBlock returns the edge block as stored, inline or compact.
func (c *Container) EdgeBlock() Edges { return c.edges }

// Edges returns the inline edge list, empty when the container has no
// edge block. It fails with CompactOnly when the block is compact.
func (c *Container) Edges() ([]Edge, error) {
	if id, ok := c.edges.Compact(); ok {
		return nil, newError(KindCompactOnly, "ACDC-FLD-041", fmt.Sprintf("edge block is compact (%s)", id))
	}
	list, _ := c.edges.Inline()
	return list, nil
}

// RuleBlock returns the rule block as stored, inline or compact.
func (c *Container) RuleBlock() Rules { return c.rules }

// Rules returns the inline rule map, nil when the container has no rule
// block. It fails with CompactOnly when the block is compact.
func (c *Container) Rules() (*Map, error) {
	if id, ok := c.rules.Compact(); ok {
		return nil, newError(KindCompactOnly, "ACDC-FLD-042", fmt.Sprintf("rule block is compact (%s)", id))
	}
	return c.rules.inline, nil
}

// Equal reports whether a and b carry the same logical content: version,
// issuer, registry, schema, and blocks, compared in canonical form.
// Serialization kind, derivation code, and identifier do not participate,
// so a container transcoded between kinds stays Equal to itself.
func Equal(a, b *Container) bool {
	if a == nil || b == nil {
		return a == b
	}
	pa, err := a.probe()
	if err != nil {
		return false
	}
	pb, err := b.probe()
	if err != nil {
		return false
	}
	return string(pa) == string(pb)
}

// probe renders the canonical JSON form with a zeroed size and the
// placeholder identifier: a representation-independent fingerprint of
// the logical content.
func (c *Container) probe() ([]byte, error) {
	header, err := EncodeVersion(c.version, JSON, 0)
	if err != nil {
		return nil, err
	}
	return encodeJSONValue(c.document(header, said.Placeholder(said.Blake3_256)))
}
