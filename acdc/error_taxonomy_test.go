package acdc

import (
	"errors"
	"testing"
)

func taxDoc(rest string) []byte {
	// The declared size is never checked by Decode; 0xaa stands in.
	return []byte(`{"v":"ACDC10JSON0000aa_",` + rest + `}`)
}

func TestDecode_ErrorTaxonomy_RuleIDs(t *testing.T) {
	wellFormed := `"d":"` + refSAID + `","i":"Issuer","ri":"","s":"` + refSchema + `"`
	cases := []struct {
		name string
		raw  []byte
		kind ErrorKind
		rule string
	}{
		{"empty document", nil, KindMalformedHeader, "ACDC-HDR-020"},
		{"version not first", []byte(`{"d":"x","v":"ACDC10JSON0000aa_"}`), KindMalformedHeader, "ACDC-HDR-021"},
		{"unknown header kind", []byte(`{"v":"ACDC10YAML0000aa_",` + wellFormed + `,"a":{}}`), KindUnsupportedKind, "ACDC-HDR-014"},
		{"misordered fields", []byte(`{"v":"ACDC10JSON0000aa_","i":"Issuer","d":"` + refSAID + `","ri":"","s":"` + refSchema + `","a":{}}`), KindInvalidField, "ACDC-DEC-011"},
		{"unknown top-level field", taxDoc(wellFormed + `,"a":{},"x":1`), KindInvalidField, "ACDC-DEC-011"},
		{"identifier malformed", taxDoc(`"d":"short","i":"Issuer","ri":"","s":"` + refSchema + `","a":{}`), KindInvalidField, "ACDC-DEC-003"},
		{"schema malformed", taxDoc(`"d":"` + refSAID + `","i":"Issuer","ri":"","s":"nope","a":{}`), KindInvalidField, "ACDC-DEC-004"},
		{"compact attributes malformed", taxDoc(wellFormed + `,"a":"nope"`), KindInvalidField, "ACDC-DEC-005"},
		{"attributes mistyped", taxDoc(wellFormed + `,"a":7`), KindInvalidField, "ACDC-DEC-006"},
		{"compact edges malformed", taxDoc(wellFormed + `,"a":{},"e":"nope"`), KindInvalidField, "ACDC-DEC-007"},
		{"edges mistyped", taxDoc(wellFormed + `,"a":{},"e":7`), KindInvalidField, "ACDC-DEC-008"},
		{"compact rules malformed", taxDoc(wellFormed + `,"a":{},"r":"nope"`), KindInvalidField, "ACDC-DEC-009"},
		{"rules mistyped", taxDoc(wellFormed + `,"a":{},"r":7`), KindInvalidField, "ACDC-DEC-010"},
		{"missing issuer", taxDoc(`"d":"` + refSAID + `","ri":"","s":"` + refSchema + `","a":{}`), KindInvalidField, "ACDC-DEC-012"},
		{"issuer mistyped", taxDoc(`"d":"` + refSAID + `","i":7,"ri":"","s":"` + refSchema + `","a":{}`), KindInvalidField, "ACDC-DEC-013"},
		{"missing attributes", taxDoc(wellFormed), KindInvalidField, "ACDC-DEC-014"},
		{"edge missing target", taxDoc(wellFormed + `,"a":{},"e":{"p":{"s":"` + refSchema + `"}}`), KindInvalidField, "ACDC-FLD-025"},
		{"edge unknown field", taxDoc(wellFormed + `,"a":{},"e":{"p":{"n":"` + refSAID + `","x":1}}`), KindInvalidField, "ACDC-FLD-024"},
		{"edge bad operator", taxDoc(wellFormed + `,"a":{},"e":{"p":{"n":"` + refSAID + `","o":"XOR"}}`), KindInvalidField, "ACDC-FLD-023"},
		{"edge not a mapping", taxDoc(wellFormed + `,"a":{},"e":{"p":7}`), KindInvalidField, "ACDC-FLD-020"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode(tc.raw)
			wantRule(t, err, tc.kind, tc.rule)
		})
	}
}

func TestErrorHelpers(t *testing.T) {
	_, err := New(Params{})
	if !IsKind(err, KindInvalidField) {
		t.Fatalf("expected InvalidField, got %v", err)
	}
	if IsKind(err, KindDigestMismatch) {
		t.Fatalf("IsKind matched the wrong kind")
	}
	if IsKind(nil, KindInvalidField) {
		t.Fatalf("IsKind matched nil")
	}
	if RuleID(err) != "ACDC-FLD-010" {
		t.Fatalf("expected ACDC-FLD-010, got %s", RuleID(err))
	}
	if RuleID(errors.New("plain")) != "" {
		t.Fatalf("RuleID invented an identifier for a foreign error")
	}

	var e *Error
	if !errors.As(err, &e) {
		t.Fatalf("expected structured *acdc.Error, got %T", err)
	}
	if e.Error() == "" {
		t.Fatalf("structured error lost its message")
	}
}

func TestErrorWrappingPreservesCause(t *testing.T) {
	p := refParams()
	p.Attributes = InlineAttributes(MapOf("bad", struct{ X int }{}))
	_, err := New(p)
	wantRule(t, err, KindInvalidField, "ACDC-FLD-004")

	// The innermost rule stays reachable through the chain.
	var inner *Error
	cur := err
	for {
		var e *Error
		if !errors.As(cur, &e) {
			break
		}
		inner = e
		cur = e.Cause
		if cur == nil {
			break
		}
	}
	if inner == nil || inner.RuleID != "ACDC-FLD-005" {
		t.Fatalf("expected innermost ACDC-FLD-005, got %+v", inner)
	}
}
