package acdc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"
)

// The MessagePack codec streams through msgpack's Encoder and Decoder:
// EncodeMapLen followed by alternating key/value writes preserves entry
// order natively, and PeekCode drives a typed decode walk. Compact
// integer and float forms are enabled so equal logical content has one
// canonical byte form.

func encodeMGPKValue(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.UseCompactInts(true)
	enc.UseCompactFloats(true)
	if err := writeMGPKValue(enc, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeMGPKValue(enc *msgpack.Encoder, v any) error {
	switch t := normalizeScalar(v).(type) {
	case nil:
		return enc.EncodeNil()
	case bool:
		return enc.EncodeBool(t)
	case string:
		return enc.EncodeString(t)
	case int64:
		return enc.EncodeInt(t)
	case uint64:
		return enc.EncodeUint(t)
	case float64:
		return enc.EncodeFloat64(t)
	case json.Number:
		return writeMGPKNumber(enc, t)
	case []any:
		if err := enc.EncodeArrayLen(len(t)); err != nil {
			return err
		}
		for _, e := range t {
			if err := writeMGPKValue(enc, e); err != nil {
				return err
			}
		}
		return nil
	case *Map:
		if err := enc.EncodeMapLen(t.Len()); err != nil {
			return err
		}
		for _, k := range t.keys {
			if err := enc.EncodeString(k); err != nil {
				return err
			}
			if err := writeMGPKValue(enc, t.vals[k]); err != nil {
				return err
			}
		}
		return nil
	default:
		return newError(KindInvalidField, "ACDC-MGPK-001", fmt.Sprintf("unsupported value type %T", v))
	}
}

func writeMGPKNumber(enc *msgpack.Encoder, n json.Number) error {
	s := string(n)
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return enc.EncodeInt(i)
	}
	if u, err := strconv.ParseUint(s, 10, 64); err == nil {
		return enc.EncodeUint(u)
	}
	f, err := n.Float64()
	if err != nil {
		return wrapError(KindInvalidField, "ACDC-MGPK-002", fmt.Sprintf("number literal %q does not fit MessagePack", s), err)
	}
	return enc.EncodeFloat64(f)
}

func decodeMGPK(raw []byte) (*Map, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(raw))
	v, err := readMGPKValue(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.PeekCode(); !errors.Is(err, io.EOF) {
		return nil, newError(KindInvalidField, "ACDC-MGPK-010", "trailing bytes after document")
	}
	m, ok := v.(*Map)
	if !ok {
		return nil, newError(KindInvalidField, "ACDC-MGPK-011", "document is not a MessagePack map")
	}
	return m, nil
}

func readMGPKValue(dec *msgpack.Decoder) (any, error) {
	c, err := dec.PeekCode()
	if err != nil {
		return nil, wrapError(KindInvalidField, "ACDC-MGPK-012", "truncated document", err)
	}
	switch {
	case c == msgpcode.Nil:
		return nil, dec.DecodeNil()
	case c == msgpcode.True || c == msgpcode.False:
		return dec.DecodeBool()
	case isMGPKUint(c):
		return dec.DecodeUint64()
	case isMGPKInt(c):
		return dec.DecodeInt64()
	case c == msgpcode.Float:
		f, err := dec.DecodeFloat32()
		return float64(f), err
	case c == msgpcode.Double:
		return dec.DecodeFloat64()
	case isMGPKString(c):
		return dec.DecodeString()
	case isMGPKMap(c):
		n, err := dec.DecodeMapLen()
		if err != nil {
			return nil, wrapError(KindInvalidField, "ACDC-MGPK-013", "malformed map head", err)
		}
		m := NewMap()
		for i := 0; i < n; i++ {
			kv, err := readMGPKValue(dec)
			if err != nil {
				return nil, err
			}
			k, ok := kv.(string)
			if !ok {
				return nil, newError(KindInvalidField, "ACDC-MGPK-014", fmt.Sprintf("map key of type %T, want string", kv))
			}
			if m.Has(k) {
				return nil, newError(KindInvalidField, "ACDC-MGPK-015", fmt.Sprintf("duplicate map key %q", k))
			}
			vv, err := readMGPKValue(dec)
			if err != nil {
				return nil, err
			}
			m.Set(k, vv)
		}
		return m, nil
	case isMGPKArray(c):
		n, err := dec.DecodeArrayLen()
		if err != nil {
			return nil, wrapError(KindInvalidField, "ACDC-MGPK-016", "malformed array head", err)
		}
		out := make([]any, 0, min(n, 1024))
		for i := 0; i < n; i++ {
			ev, err := readMGPKValue(dec)
			if err != nil {
				return nil, err
			}
			out = append(out, ev)
		}
		return out, nil
	default:
		return nil, newError(KindInvalidField, "ACDC-MGPK-017", fmt.Sprintf("unsupported MessagePack code 0x%02x", c))
	}
}

func isMGPKUint(c byte) bool {
	return c <= msgpcode.PosFixedNumHigh ||
		c == msgpcode.Uint8 || c == msgpcode.Uint16 || c == msgpcode.Uint32 || c == msgpcode.Uint64
}

func isMGPKInt(c byte) bool {
	return c >= msgpcode.NegFixedNumLow ||
		c == msgpcode.Int8 || c == msgpcode.Int16 || c == msgpcode.Int32 || c == msgpcode.Int64
}

func isMGPKString(c byte) bool {
	return msgpcode.IsFixedString(c) || c == msgpcode.Str8 || c == msgpcode.Str16 || c == msgpcode.Str32
}

func isMGPKMap(c byte) bool {
	return msgpcode.IsFixedMap(c) || c == msgpcode.Map16 || c == msgpcode.Map32
}

func isMGPKArray(c byte) bool {
	return msgpcode.IsFixedArray(c) || c == msgpcode.Array16 || c == msgpcode.Array32
}

// mgpkSAIDSpan returns the byte span of the top-level identifier value.
// Canonically the second map entry: fixstr(1) "d", then str8(44).
func mgpkSAIDSpan(raw []byte) (int, int, error) {
	key := mgpkHeaderOffset + headerLen
	start := key + 4
	end := start + identifierTextLen
	if len(raw) < end || raw[key] != 0xa1 || raw[key+1] != 'd' || raw[key+2] != msgpcode.Str8 || raw[key+3] != identifierTextLen {
		return 0, 0, newError(KindInvalidField, "ACDC-MGPK-020", "identifier field not at canonical position")
	}
	return start, end, nil
}
