package acdc

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"xdao.co/acdc/said"
)

func TestVerifyReferenceVector(t *testing.T) {
	if err := Verify([]byte(refBytes)); err != nil {
		t.Fatalf("expected valid container, got %v", err)
	}
}

func TestVerifyAllKinds(t *testing.T) {
	for _, kind := range []Kind{JSON, CBOR, MGPK} {
		p := refParams()
		p.Kind = kind
		c := mustNew(t, p)
		if err := Verify(c.Raw()); err != nil {
			t.Fatalf("%s: verify: %v", kind, err)
		}

		tampered := c.Raw()
		tampered[len(tampered)-1] ^= 0x01
		err := Verify(tampered)
		wantRule(t, err, KindDigestMismatch, "ACDC-DIG-006")
	}
}

func TestVerifyPayloadBitFlip(t *testing.T) {
	raw := []byte(refBytes)
	i := bytes.Index(raw, []byte(`"i":"Issuer"`))
	if i < 0 {
		t.Fatalf("issuer field not found")
	}
	raw[i+5] ^= 0x01 // first issuer byte, same length, still valid JSON
	err := Verify(raw)
	wantRule(t, err, KindDigestMismatch, "ACDC-DIG-006")

	// The tampered bytes still decode; only verification notices.
	if _, derr := Decode(raw); derr != nil {
		t.Fatalf("tampered container should still decode, got %v", derr)
	}
}

func TestVerifySizeMismatch(t *testing.T) {
	truncated := []byte(refBytes[:len(refBytes)-1])
	err := Verify(truncated)
	wantRule(t, err, KindSizeMismatch, "ACDC-DIG-002")

	extended := append([]byte(refBytes), ' ')
	err = Verify(extended)
	wantRule(t, err, KindSizeMismatch, "ACDC-DIG-002")
}

func TestVerifyHeaderKindDisagreement(t *testing.T) {
	raw := []byte(strings.Replace(refBytes, "ACDC10JSON", "ACDC10CBOR", 1))
	err := Verify(raw)
	wantRule(t, err, KindMalformedHeader, "ACDC-DIG-001")
}

func TestVerifyUnknownDerivationCode(t *testing.T) {
	raw := []byte(refBytes)
	i := bytes.Index(raw, []byte(`"d":"`))
	if i < 0 {
		t.Fatalf("identifier field not found")
	}
	raw[i+5] = 'Z' // identifier code character
	err := Verify(raw)
	wantRule(t, err, KindUnknownAlgorithm, "ACDC-DIG-003")
	if !errors.Is(err, said.ErrUnknownCode) {
		t.Fatalf("expected the cause to unwrap to said.ErrUnknownCode, got %v", err)
	}
}

func TestVerifySurvivesTranscode(t *testing.T) {
	c := mustNew(t, Params{
		Issuer:     "EIflL4H2bwUXaIs2uvByVZDK4dUBa4AKRcpNAnBh1tPw",
		Schema:     mintID(t, "schema"),
		Attributes: InlineAttributes(MapOf("kilometers", 42195, "certified", true)),
	})
	for _, kind := range []Kind{JSON, CBOR, MGPK} {
		raw, err := c.Encode(kind)
		if err != nil {
			t.Fatalf("Encode %s: %v", kind, err)
		}
		if err := Verify(raw); err != nil {
			t.Fatalf("%s form does not verify: %v", kind, err)
		}
	}
}
