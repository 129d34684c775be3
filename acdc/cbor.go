package acdc

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/fxamacker/cbor/v2"
)

// cborEnc encodes leaf values with shortest-form preferred
// serialization (RFC 8949 §4.1): smallest integer heads, shortest
// float that round-trips, no indefinite-length items. Map ordering is
// not delegated to the library: field order is semantic here, so
// container and list heads are written by hand and SortNone keeps the
// encoder away from key reordering.
var cborEnc cbor.EncMode

// cborDec decodes leaf values; indefinite-length items are rejected so
// only the canonical definite form is accepted.
var cborDec cbor.DecMode

func init() {
	encOptions := cbor.CoreDetEncOptions()
	encOptions.Sort = cbor.SortNone
	em, err := encOptions.EncMode()
	if err != nil {
		panic("acdc: CBOR encoder initialization failed: " + err.Error())
	}
	cborEnc = em

	dm, err := cbor.DecOptions{
		IndefLength: cbor.IndefLengthForbidden,
	}.DecMode()
	if err != nil {
		panic("acdc: CBOR decoder initialization failed: " + err.Error())
	}
	cborDec = dm
}

// CBOR major types used by the hand-written container heads.
const (
	cborMajorText  = 3
	cborMajorArray = 4
	cborMajorMap   = 5
)

func encodeCBORValue(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeCBORValue(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCBORValue(buf *bytes.Buffer, v any) error {
	switch t := normalizeScalar(v).(type) {
	case *Map:
		writeCBORHead(buf, cborMajorMap, uint64(t.Len()))
		for _, k := range t.keys {
			if err := writeCBORLeaf(buf, k); err != nil {
				return err
			}
			if err := writeCBORValue(buf, t.vals[k]); err != nil {
				return err
			}
		}
	case []any:
		writeCBORHead(buf, cborMajorArray, uint64(len(t)))
		for _, e := range t {
			if err := writeCBORValue(buf, e); err != nil {
				return err
			}
		}
	case json.Number:
		return writeCBORNumber(buf, t)
	default:
		return writeCBORLeaf(buf, t)
	}
	return nil
}

// writeCBORNumber lowers a decimal literal onto the narrowest CBOR
// numeric representation: integer when the literal is integral, float
// otherwise.
func writeCBORNumber(buf *bytes.Buffer, n json.Number) error {
	s := string(n)
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return writeCBORLeaf(buf, i)
	}
	if u, err := strconv.ParseUint(s, 10, 64); err == nil {
		return writeCBORLeaf(buf, u)
	}
	f, err := n.Float64()
	if err != nil {
		return wrapError(KindInvalidField, "ACDC-CBOR-001", fmt.Sprintf("number literal %q does not fit CBOR", s), err)
	}
	return writeCBORLeaf(buf, f)
}

func writeCBORLeaf(buf *bytes.Buffer, v any) error {
	b, err := cborEnc.Marshal(v)
	if err != nil {
		return wrapError(KindInvalidField, "ACDC-CBOR-002", fmt.Sprintf("value of type %T cannot be serialized", v), err)
	}
	buf.Write(b)
	return nil
}

func writeCBORHead(buf *bytes.Buffer, major byte, n uint64) {
	switch {
	case n < 24:
		buf.WriteByte(major<<5 | byte(n))
	case n < 1<<8:
		buf.WriteByte(major<<5 | 24)
		buf.WriteByte(byte(n))
	case n < 1<<16:
		buf.WriteByte(major<<5 | 25)
		var b [2]byte
		binary.BigEndian.PutUint16(b[:], uint16(n))
		buf.Write(b[:])
	case n < 1<<32:
		buf.WriteByte(major<<5 | 26)
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], uint32(n))
		buf.Write(b[:])
	default:
		buf.WriteByte(major<<5 | 27)
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], n)
		buf.Write(b[:])
	}
}

func decodeCBOR(raw []byte) (*Map, error) {
	v, rest, err := readCBORValue(raw)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, newError(KindInvalidField, "ACDC-CBOR-010", fmt.Sprintf("%d trailing bytes after document", len(rest)))
	}
	m, ok := v.(*Map)
	if !ok {
		return nil, newError(KindInvalidField, "ACDC-CBOR-011", "document is not a CBOR map")
	}
	return m, nil
}

// readCBORValue decodes one data item. Maps and arrays are walked by
// hand to preserve entry order; every leaf goes through the library.
func readCBORValue(data []byte) (any, []byte, error) {
	if len(data) == 0 {
		return nil, nil, newError(KindInvalidField, "ACDC-CBOR-012", "truncated document")
	}
	switch data[0] >> 5 {
	case cborMajorMap:
		n, rest, err := readCBORHead(data)
		if err != nil {
			return nil, nil, err
		}
		m := NewMap()
		for i := uint64(0); i < n; i++ {
			kv, r, err := readCBORValue(rest)
			if err != nil {
				return nil, nil, err
			}
			k, ok := kv.(string)
			if !ok {
				return nil, nil, newError(KindInvalidField, "ACDC-CBOR-013", fmt.Sprintf("map key of type %T, want text", kv))
			}
			if m.Has(k) {
				return nil, nil, newError(KindInvalidField, "ACDC-CBOR-014", fmt.Sprintf("duplicate map key %q", k))
			}
			vv, r2, err := readCBORValue(r)
			if err != nil {
				return nil, nil, err
			}
			m.Set(k, vv)
			rest = r2
		}
		return m, rest, nil
	case cborMajorArray:
		n, rest, err := readCBORHead(data)
		if err != nil {
			return nil, nil, err
		}
		out := make([]any, 0, min(n, 1024))
		for i := uint64(0); i < n; i++ {
			ev, r, err := readCBORValue(rest)
			if err != nil {
				return nil, nil, err
			}
			out = append(out, ev)
			rest = r
		}
		return out, rest, nil
	default:
		var v any
		rest, err := cborDec.UnmarshalFirst(data, &v)
		if err != nil {
			return nil, nil, wrapError(KindInvalidField, "ACDC-CBOR-015", "malformed CBOR item", err)
		}
		leaf, err := cborLeafValue(v)
		if err != nil {
			return nil, nil, err
		}
		return leaf, rest, nil
	}
}

func cborLeafValue(v any) (any, error) {
	switch v.(type) {
	case nil, bool, string, int64, uint64, float64:
		return v, nil
	default:
		return nil, newError(KindInvalidField, "ACDC-CBOR-016", fmt.Sprintf("unsupported CBOR value of type %T", v))
	}
}

// readCBORHead parses a definite-length head and returns its argument.
func readCBORHead(data []byte) (uint64, []byte, error) {
	ai := data[0] & 0x1f
	switch {
	case ai < 24:
		return uint64(ai), data[1:], nil
	case ai == 24:
		if len(data) < 2 {
			return 0, nil, newError(KindInvalidField, "ACDC-CBOR-017", "truncated head")
		}
		return uint64(data[1]), data[2:], nil
	case ai == 25:
		if len(data) < 3 {
			return 0, nil, newError(KindInvalidField, "ACDC-CBOR-017", "truncated head")
		}
		return uint64(binary.BigEndian.Uint16(data[1:3])), data[3:], nil
	case ai == 26:
		if len(data) < 5 {
			return 0, nil, newError(KindInvalidField, "ACDC-CBOR-017", "truncated head")
		}
		return uint64(binary.BigEndian.Uint32(data[1:5])), data[5:], nil
	case ai == 27:
		if len(data) < 9 {
			return 0, nil, newError(KindInvalidField, "ACDC-CBOR-017", "truncated head")
		}
		return binary.BigEndian.Uint64(data[1:9]), data[9:], nil
	default:
		return 0, nil, newError(KindInvalidField, "ACDC-CBOR-018", "indefinite or reserved head")
	}
}

// cborSAIDSpan returns the byte span of the top-level identifier value.
// Canonically the second map entry: text(1) "d", then text(44).
func cborSAIDSpan(raw []byte) (int, int, error) {
	start := cborHeaderOffset + headerLen + 4
	end := start + identifierTextLen
	key := cborHeaderOffset + headerLen
	if len(raw) < end || raw[key] != 0x61 || raw[key+1] != 'd' || raw[key+2] != 0x78 || raw[key+3] != identifierTextLen {
		return 0, 0, newError(KindInvalidField, "ACDC-CBOR-020", "identifier field not at canonical position")
	}
	return start, end, nil
}
