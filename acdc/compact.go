package acdc

import (
	"fmt"

	"xdao.co/acdc/said"
)

// BlockLabel names a compactable container section by its wire label.
type BlockLabel string

const (
	BlockAttributes BlockLabel = "a"
	BlockEdges      BlockLabel = "e"
	BlockRules      BlockLabel = "r"
)

// BlockIdentifier computes the identifier a block carries in compact
// form: the digest of the block's canonical JSON sub-document under
// code. A `d` key inside the block participates through the same
// placeholder fixed point as a container's own identifier.
//
// block must be a *Map (attribute and rule blocks) or []Edge.
func BlockIdentifier(code said.Code, block any) (string, error) {
	switch t := block.(type) {
	case *Map:
		if err := checkValue(t); err != nil {
			return "", err
		}
		return blockDigest(code, t)
	case []Edge:
		if err := checkEdges(t); err != nil {
			return "", err
		}
		return blockDigest(code, edgesToMap(t))
	default:
		return "", newError(KindInvalidField, "ACDC-CMP-001", fmt.Sprintf("block of type %T, want *Map or []Edge", block))
	}
}

func blockDigest(code said.Code, m *Map) (string, error) {
	probe := m
	if m.Has("d") {
		probe = m.Clone()
		probe.Set("d", said.Placeholder(code))
	}
	b, err := encodeJSONValue(probe)
	if err != nil {
		return "", err
	}
	return said.Sum(code, b)
}

// CompactBlock returns a new finalized container with the named block
// replaced by its identifier. The block digest uses the canonical JSON
// sub-document regardless of the container's serialization kind, so the
// block identifier survives transcoding. Compacting an already-compact
// block is a no-op returning the container unchanged.
//
// The returned container's own identifier covers the compact
// representation and therefore differs from the source container's;
// the two stay bound through the block identifier.
func (c *Container) CompactBlock(label BlockLabel) (*Container, error) {
	code := c.code()
	next := *c
	switch label {
	case BlockAttributes:
		if _, ok := c.attrs.Compact(); ok {
			return c, nil
		}
		m, _ := c.attrs.Inline()
		id, err := blockDigest(code, m)
		if err != nil {
			return nil, err
		}
		next.attrs = CompactAttributes(id)
	case BlockEdges:
		if !c.edges.isSet() {
			return nil, newError(KindInvalidField, "ACDC-CMP-002", "container has no edge block")
		}
		if _, ok := c.edges.Compact(); ok {
			return c, nil
		}
		id, err := blockDigest(code, edgesToMap(c.edges.inline))
		if err != nil {
			return nil, err
		}
		next.edges = CompactEdges(id)
	case BlockRules:
		if !c.rules.isSet() {
			return nil, newError(KindInvalidField, "ACDC-CMP-003", "container has no rule block")
		}
		if _, ok := c.rules.Compact(); ok {
			return c, nil
		}
		id, err := blockDigest(code, c.rules.inline)
		if err != nil {
			return nil, err
		}
		next.rules = CompactRules(id)
	default:
		return nil, newError(KindInvalidField, "ACDC-CMP-004", fmt.Sprintf("unknown block label %q", string(label)))
	}
	return next.refinalize(c.kind, code)
}

// ExpandBlock returns a new finalized container with the named compact
// block replaced by data, after checking that data digests to the
// stored block identifier under that identifier's own derivation code.
// A disagreement fails with ExpansionMismatch.
//
// data must be a *Map for attribute and rule blocks and []Edge for the
// edge block. Expanding a block that is already inline (or absent)
// fails with InvalidField.
func (c *Container) ExpandBlock(label BlockLabel, data any) (*Container, error) {
	next := *c
	switch label {
	case BlockAttributes:
		stored, ok := c.attrs.Compact()
		if !ok {
			return nil, newError(KindInvalidField, "ACDC-CMP-010", "attribute block is already inline")
		}
		m, ok := data.(*Map)
		if !ok {
			return nil, newError(KindInvalidField, "ACDC-CMP-011", fmt.Sprintf("attribute data of type %T, want *Map", data))
		}
		if err := checkValue(m); err != nil {
			return nil, err
		}
		if err := checkExpansion(stored, m); err != nil {
			return nil, err
		}
		next.attrs = InlineAttributes(m)
	case BlockEdges:
		stored, ok := c.edges.Compact()
		if !ok {
			return nil, newError(KindInvalidField, "ACDC-CMP-012", "edge block is absent or already inline")
		}
		list, ok := data.([]Edge)
		if !ok {
			return nil, newError(KindInvalidField, "ACDC-CMP-013", fmt.Sprintf("edge data of type %T, want []Edge", data))
		}
		if err := checkEdges(list); err != nil {
			return nil, err
		}
		if err := checkExpansion(stored, edgesToMap(list)); err != nil {
			return nil, err
		}
		next.edges = InlineEdges(list...)
	case BlockRules:
		stored, ok := c.rules.Compact()
		if !ok {
			return nil, newError(KindInvalidField, "ACDC-CMP-014", "rule block is absent or already inline")
		}
		m, ok := data.(*Map)
		if !ok {
			return nil, newError(KindInvalidField, "ACDC-CMP-015", fmt.Sprintf("rule data of type %T, want *Map", data))
		}
		if err := checkValue(m); err != nil {
			return nil, err
		}
		if err := checkExpansion(stored, m); err != nil {
			return nil, err
		}
		next.rules = InlineRules(m)
	default:
		return nil, newError(KindInvalidField, "ACDC-CMP-016", fmt.Sprintf("unknown block label %q", string(label)))
	}
	return next.refinalize(c.kind, c.code())
}

func checkExpansion(stored string, m *Map) error {
	code, err := said.CodeOf(stored)
	if err != nil {
		if said.IsUnknownCode(err) {
			return wrapError(KindUnknownAlgorithm, "ACDC-CMP-020", "block identifier names an unregistered derivation code", err)
		}
		return wrapError(KindInvalidField, "ACDC-CMP-021", "block identifier is malformed", err)
	}
	got, err := blockDigest(code, m)
	if err != nil {
		return err
	}
	if got != stored {
		return newError(KindExpansionMismatch, "ACDC-CMP-022", "block data does not digest to the stored identifier")
	}
	return nil
}

// refinalize derives identifier and bytes for the (copied) receiver.
func (c *Container) refinalize(kind Kind, code said.Code) (*Container, error) {
	raw, id, err := c.derive(kind, code)
	if err != nil {
		return nil, err
	}
	c.kind = kind
	c.said = id
	c.raw = raw
	return c, nil
}

// code returns the derivation code of the container's own identifier,
// defaulting to Blake3-256.
func (c *Container) code() said.Code {
	if c.said != "" {
		if code, err := said.CodeOf(c.said); err == nil {
			return code
		}
	}
	return said.Blake3_256
}
