package acdc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/tidwall/gjson"
)

// The JSON codec renders the canonical form directly: fields in
// insertion order, no added whitespace, and minimal string escaping
// (quote, backslash, and control bytes only, never HTML or non-ASCII
// escapes). encoding/json can produce none of that, so rendering is
// done by hand and decoding walks the document with gjson, which
// iterates object members in document order and exposes raw number
// literals.

func encodeJSONValue(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeJSONValue(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeJSONValue(buf *bytes.Buffer, v any) error {
	switch t := normalizeScalar(v).(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if t {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case string:
		writeJSONString(buf, t)
	case int64:
		buf.WriteString(strconv.FormatInt(t, 10))
	case uint64:
		buf.WriteString(strconv.FormatUint(t, 10))
	case float64:
		b, err := json.Marshal(t)
		if err != nil {
			return wrapError(KindInvalidField, "ACDC-JSON-001", "float value cannot be serialized", err)
		}
		buf.Write(b)
	case json.Number:
		buf.WriteString(string(t))
	case []any:
		buf.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSONValue(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case *Map:
		buf.WriteByte('{')
		for i, k := range t.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeJSONString(buf, k)
			buf.WriteByte(':')
			if err := writeJSONValue(buf, t.vals[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return newError(KindInvalidField, "ACDC-JSON-002", fmt.Sprintf("unsupported value type %T", v))
	}
	return nil
}

func writeJSONString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	start := 0
	for i := 0; i < len(s); i++ {
		b := s[i]
		if b >= 0x20 && b != '"' && b != '\\' {
			continue
		}
		buf.WriteString(s[start:i])
		switch b {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			fmt.Fprintf(buf, `\u%04x`, b)
		}
		start = i + 1
	}
	buf.WriteString(s[start:])
	buf.WriteByte('"')
}

func decodeJSON(raw []byte) (*Map, error) {
	if !gjson.ValidBytes(raw) {
		return nil, newError(KindInvalidField, "ACDC-JSON-010", "document is not valid JSON")
	}
	res := gjson.ParseBytes(raw)
	if !res.IsObject() {
		return nil, newError(KindInvalidField, "ACDC-JSON-011", "document is not a JSON object")
	}
	return jsonObjectToMap(res)
}

func jsonObjectToMap(res gjson.Result) (*Map, error) {
	m := NewMap()
	var werr error
	res.ForEach(func(key, value gjson.Result) bool {
		k := key.String()
		if m.Has(k) {
			werr = newError(KindInvalidField, "ACDC-JSON-012", fmt.Sprintf("duplicate key %q", k))
			return false
		}
		v, err := jsonResultValue(value)
		if err != nil {
			werr = err
			return false
		}
		m.Set(k, v)
		return true
	})
	if werr != nil {
		return nil, werr
	}
	return m, nil
}

func jsonResultValue(res gjson.Result) (any, error) {
	switch {
	case res.Type == gjson.Null:
		return nil, nil
	case res.Type == gjson.True:
		return true, nil
	case res.Type == gjson.False:
		return false, nil
	case res.Type == gjson.String:
		return res.Str, nil
	case res.Type == gjson.Number:
		// Keep the exact literal so re-encoding is byte-stable.
		return json.Number(res.Raw), nil
	case res.IsObject():
		return jsonObjectToMap(res)
	case res.IsArray():
		elems := res.Array()
		out := make([]any, 0, len(elems))
		for _, e := range elems {
			v, err := jsonResultValue(e)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	default:
		return nil, newError(KindInvalidField, "ACDC-JSON-013", "unsupported JSON value")
	}
}

// jsonSAIDSpan returns the byte span of the top-level identifier value.
// The canonical layout pins it immediately after the version field:
//
//	{"v":"<17 chars>","d":"<44 chars>",...
func jsonSAIDSpan(raw []byte) (int, int, error) {
	const bridge = `","d":"`
	const bridgeOff = jsonHeaderOffset + headerLen
	start := bridgeOff + len(bridge)
	end := start + identifierTextLen
	if len(raw) < end+1 || string(raw[bridgeOff:start]) != bridge || raw[end] != '"' {
		return 0, 0, newError(KindInvalidField, "ACDC-JSON-020", "identifier field not at canonical position")
	}
	return start, end, nil
}
