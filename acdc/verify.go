package acdc

import (
	"fmt"

	"xdao.co/acdc/said"
)

// Verify checks serialized container bytes against their embedded
// identifier.
//
// The declared size must equal the actual byte length (SizeMismatch
// otherwise). The identifier span is then located at its canonical
// position, a placeholder of the same width is spliced in over a copy
// (every byte outside the span is reused exactly as received), and the
// digest named by the identifier's derivation code is recomputed and
// compared. There is no partial success: any failure is the
// container's failure.
func Verify(raw []byte) error {
	kind, header, err := sniff(raw)
	if err != nil {
		return err
	}
	_, headerKind, size, err := DecodeVersion(header)
	if err != nil {
		return err
	}
	if headerKind != kind {
		return newError(KindMalformedHeader, "ACDC-DIG-001", fmt.Sprintf("header declares %s but document is %s", headerKind, kind))
	}
	if size != len(raw) {
		return newError(KindSizeMismatch, "ACDC-DIG-002", fmt.Sprintf("declared size %d, actual %d", size, len(raw)))
	}
	start, end, err := saidSpan(kind, raw)
	if err != nil {
		return err
	}
	id := string(raw[start:end])
	code, err := said.CodeOf(id)
	if err != nil {
		if said.IsUnknownCode(err) {
			return wrapError(KindUnknownAlgorithm, "ACDC-DIG-003", "identifier names an unregistered derivation code", err)
		}
		return wrapError(KindInvalidField, "ACDC-DIG-004", "embedded identifier is malformed", err)
	}
	probe := append([]byte(nil), raw...)
	copy(probe[start:end], said.Placeholder(code))
	want, err := said.Sum(code, probe)
	if err != nil {
		return wrapError(KindUnknownAlgorithm, "ACDC-DIG-005", "digest recomputation failed", err)
	}
	if want != id {
		return newError(KindDigestMismatch, "ACDC-DIG-006", "identifier does not match content digest")
	}
	return nil
}

// Verify re-verifies the container's finalized bytes.
func (c *Container) Verify() error { return Verify(c.raw) }

func saidSpan(kind Kind, raw []byte) (int, int, error) {
	switch kind {
	case JSON:
		return jsonSAIDSpan(raw)
	case CBOR:
		return cborSAIDSpan(raw)
	case MGPK:
		return mgpkSAIDSpan(raw)
	}
	return 0, 0, newError(KindUnsupportedKind, "ACDC-DIG-007", fmt.Sprintf("unrecognized serialization kind %q", string(kind)))
}
