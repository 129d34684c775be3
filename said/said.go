// Package said implements self-addressing identifiers: content digests
// rendered in a fixed-width text form whose first character names the
// digest algorithm.
//
// An identifier is 44 characters of base64url text. The raw 32-byte
// digest is prefixed with a single zero byte and base64url-encoded,
// which yields exactly 44 characters with no padding and a leading 'A';
// the code character overwrites that 'A'. Decoding restores the 'A',
// decodes, and requires the recovered lead byte to be zero, so every
// identifier has exactly one valid text form.
package said

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/blake2s"
	"golang.org/x/crypto/sha3"
)

// Code names a digest algorithm by its one-character identifier prefix.
// The set of codes is closed; Sum and Verify reject anything else.
type Code string

const (
	// Blake3_256 is the default derivation code.
	Blake3_256  Code = "E"
	Blake2b_256 Code = "F"
	Blake2s_256 Code = "G"
	SHA3_256    Code = "H"
	SHA2_256    Code = "I"
)

const (
	// rawSize is the digest size shared by every registered code.
	rawSize = 32
	// encodedLen is the identifier text length, code character included.
	encodedLen = 44
	// dummy fills the identifier span during fixed-point derivation.
	dummy = "#"
)

var (
	// ErrUnknownCode indicates a code character outside the registry.
	ErrUnknownCode = errors.New("said: unknown derivation code")
	// ErrInvalid indicates identifier text that does not decode.
	ErrInvalid = errors.New("said: invalid identifier")
	// ErrMismatch indicates data that does not digest to the identifier.
	ErrMismatch = errors.New("said: digest mismatch")
)

// IsUnknownCode reports whether err indicates an unregistered code.
func IsUnknownCode(err error) bool { return errors.Is(err, ErrUnknownCode) }

// IsMismatch reports whether err indicates a failed digest comparison.
func IsMismatch(err error) bool { return errors.Is(err, ErrMismatch) }

// Codes returns the registered derivation codes in code order.
func Codes() []Code {
	return []Code{Blake3_256, Blake2b_256, Blake2s_256, SHA3_256, SHA2_256}
}

// Valid reports whether c is a registered derivation code.
func (c Code) Valid() bool {
	switch c {
	case Blake3_256, Blake2b_256, Blake2s_256, SHA3_256, SHA2_256:
		return true
	}
	return false
}

// Length returns the encoded identifier length for c, code character
// included.
func (c Code) Length() int { return encodedLen }

// Placeholder returns the dummy string substituted for an identifier
// while the enclosing document is being digested. Its length equals the
// encoded identifier length for c, so swapping in the real identifier
// never changes the document size.
func Placeholder(c Code) string { return strings.Repeat(dummy, c.Length()) }

// Sum digests data with the algorithm named by code and returns the
// encoded identifier.
func Sum(code Code, data []byte) (string, error) {
	raw, err := digest(code, data)
	if err != nil {
		return "", err
	}
	return encode(code, raw), nil
}

// Parse splits identifier text into its code and raw digest. It fails
// with ErrUnknownCode for an unregistered code character and ErrInvalid
// for text that is the wrong length, is not base64url, or is not the
// canonical encoding of its digest.
func Parse(s string) (Code, [rawSize]byte, error) {
	var raw [rawSize]byte
	if len(s) != encodedLen {
		return "", raw, fmt.Errorf("%w: length %d, want %d", ErrInvalid, len(s), encodedLen)
	}
	code := Code(s[:1])
	if !code.Valid() {
		return "", raw, fmt.Errorf("%w: %q", ErrUnknownCode, s[:1])
	}
	dec, err := base64.URLEncoding.DecodeString("A" + s[1:])
	if err != nil {
		return "", raw, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if dec[0] != 0 {
		// With the code character restored to 'A', the lead byte is built
		// from pad bits that must be zero in the canonical form.
		return "", raw, fmt.Errorf("%w: nonzero pad bits", ErrInvalid)
	}
	copy(raw[:], dec[1:])
	return code, raw, nil
}

// CodeOf returns the derivation code carried by identifier text.
func CodeOf(s string) (Code, error) {
	code, _, err := Parse(s)
	return code, err
}

// IsIdentifier reports whether s is well-formed identifier text with a
// registered code.
func IsIdentifier(s string) bool {
	_, _, err := Parse(s)
	return err == nil
}

// Verify recomputes the digest of data with the code carried by id and
// compares. ErrMismatch means data does not digest to id.
func Verify(id string, data []byte) error {
	code, want, err := Parse(id)
	if err != nil {
		return err
	}
	got, err := digest(code, data)
	if err != nil {
		return err
	}
	if got != want {
		return ErrMismatch
	}
	return nil
}

func digest(code Code, data []byte) ([rawSize]byte, error) {
	switch code {
	case Blake3_256:
		return blake3.Sum256(data), nil
	case Blake2b_256:
		return blake2b.Sum256(data), nil
	case Blake2s_256:
		return blake2s.Sum256(data), nil
	case SHA3_256:
		return sha3.Sum256(data), nil
	case SHA2_256:
		return sha256.Sum256(data), nil
	default:
		return [rawSize]byte{}, fmt.Errorf("%w: %q", ErrUnknownCode, string(code))
	}
}

func encode(code Code, raw [rawSize]byte) string {
	buf := make([]byte, 1+rawSize)
	copy(buf[1:], raw[:])
	enc := base64.URLEncoding.EncodeToString(buf)
	return string(code) + enc[1:]
}
