package acdc

import (
	"fmt"
	"strconv"
)

// Kind selects a serialization for container bytes.
//
// The set of kinds is closed: encode and decode dispatch over exactly
// these codes, and an unrecognized code fails with UnsupportedKind.
type Kind string

const (
	JSON Kind = "JSON"
	CBOR Kind = "CBOR"
	// MGPK is MessagePack, under its four-character wire label.
	MGPK Kind = "MGPK"
)

// Valid reports whether k is a registered serialization kind.
func (k Kind) Valid() bool {
	switch k {
	case JSON, CBOR, MGPK:
		return true
	}
	return false
}

// Version is the protocol version carried by a container's header.
// Each component occupies a single hexadecimal digit.
type Version struct {
	Major uint8
	Minor uint8
}

func (v Version) String() string { return fmt.Sprintf("%d.%d", v.Major, v.Minor) }

// CurrentVersion is the protocol version written by Encode.
var CurrentVersion = Version{Major: 1, Minor: 0}

const (
	protocolTag = "ACDC"
	// headerLen is the fixed length of the version header:
	// tag(4) + major(1) + minor(1) + kind(4) + size(6) + terminator(1).
	headerLen = 17
	// maxContainerSize is the largest byte length the six-digit
	// hexadecimal size field can declare.
	maxContainerSize = 0xFFFFFF
	// identifierTextLen is the encoded length shared by every registered
	// derivation code, and therefore the width of the identifier span in
	// serialized containers.
	identifierTextLen = 44
)

// EncodeVersion renders the 17-character version header.
//
// The size is the total byte length of the serialized container the
// header is embedded in. Sizes beyond the six-digit hexadecimal field
// fail with HeaderSizeOverflow.
func EncodeVersion(v Version, kind Kind, size int) (string, error) {
	if !kind.Valid() {
		return "", newError(KindUnsupportedKind, "ACDC-HDR-001", fmt.Sprintf("unrecognized serialization kind %q", string(kind)))
	}
	if v.Major > 0xf || v.Minor > 0xf {
		return "", newError(KindMalformedHeader, "ACDC-HDR-002", "version component exceeds one hex digit")
	}
	if size < 0 || size > maxContainerSize {
		return "", newError(KindHeaderSizeOverflow, "ACDC-HDR-003", fmt.Sprintf("serialized size %d exceeds header capacity", size))
	}
	return fmt.Sprintf("%s%x%x%s%06x_", protocolTag, v.Major, v.Minor, kind, size), nil
}

// DecodeVersion parses a 17-character version header into its protocol
// version, serialization kind, and declared size.
//
// The declared size is reported as-is; comparing it against the actual
// byte length is verification's job, not decoding's.
func DecodeVersion(s string) (Version, Kind, int, error) {
	if len(s) != headerLen {
		return Version{}, "", 0, newError(KindMalformedHeader, "ACDC-HDR-010", fmt.Sprintf("version header is %d characters, want %d", len(s), headerLen))
	}
	if s[:4] != protocolTag {
		return Version{}, "", 0, newError(KindMalformedHeader, "ACDC-HDR-011", fmt.Sprintf("protocol tag %q, want %q", s[:4], protocolTag))
	}
	major, err := strconv.ParseUint(s[4:5], 16, 8)
	if err != nil {
		return Version{}, "", 0, wrapError(KindMalformedHeader, "ACDC-HDR-012", "major version is not a hex digit", err)
	}
	minor, err := strconv.ParseUint(s[5:6], 16, 8)
	if err != nil {
		return Version{}, "", 0, wrapError(KindMalformedHeader, "ACDC-HDR-013", "minor version is not a hex digit", err)
	}
	kind := Kind(s[6:10])
	if !kind.Valid() {
		return Version{}, "", 0, newError(KindUnsupportedKind, "ACDC-HDR-014", fmt.Sprintf("unrecognized serialization kind %q", s[6:10]))
	}
	size, err := strconv.ParseUint(s[10:16], 16, 32)
	if err != nil {
		return Version{}, "", 0, wrapError(KindMalformedHeader, "ACDC-HDR-015", "size field is not hexadecimal", err)
	}
	if s[16] != '_' {
		return Version{}, "", 0, newError(KindMalformedHeader, "ACDC-HDR-016", "missing header terminator")
	}
	return Version{Major: uint8(major), Minor: uint8(minor)}, kind, int(size), nil
}

// sniff determines the physical encoding of a serialized container from
// its leading bytes and extracts the version header from the `v` field
// at its canonical position.
func sniff(raw []byte) (Kind, string, error) {
	if len(raw) == 0 {
		return "", "", newError(KindMalformedHeader, "ACDC-HDR-020", "empty document")
	}
	switch {
	case raw[0] == '{':
		// {"v":"<header>"
		if len(raw) < jsonHeaderOffset+headerLen+1 || string(raw[:jsonHeaderOffset]) != `{"v":"` || raw[jsonHeaderOffset+headerLen] != '"' {
			return "", "", newError(KindMalformedHeader, "ACDC-HDR-021", "version field not at canonical JSON position")
		}
		return JSON, string(raw[jsonHeaderOffset : jsonHeaderOffset+headerLen]), nil
	case raw[0]&0xe0 == 0xa0:
		// Definite-length CBOR map: head, text(1) "v", text(17).
		if len(raw) < cborHeaderOffset+headerLen || raw[1] != 0x61 || raw[2] != 'v' || raw[3] != 0x71 {
			return "", "", newError(KindMalformedHeader, "ACDC-HDR-022", "version field not at canonical CBOR position")
		}
		return CBOR, string(raw[cborHeaderOffset : cborHeaderOffset+headerLen]), nil
	case raw[0]&0xf0 == 0x80:
		// MessagePack fixmap: head, fixstr(1) "v", fixstr(17).
		if len(raw) < mgpkHeaderOffset+headerLen || raw[1] != 0xa1 || raw[2] != 'v' || raw[3] != 0xb1 {
			return "", "", newError(KindMalformedHeader, "ACDC-HDR-023", "version field not at canonical MessagePack position")
		}
		return MGPK, string(raw[mgpkHeaderOffset : mgpkHeaderOffset+headerLen]), nil
	}
	return "", "", newError(KindMalformedHeader, "ACDC-HDR-024", "unrecognized document encoding")
}

// Byte offsets of the version header within each canonical encoding.
const (
	jsonHeaderOffset = 6 // len(`{"v":"`)
	cborHeaderOffset = 4 // map head + 0x61 'v' + 0x71
	mgpkHeaderOffset = 4 // fixmap head + 0xa1 'v' + 0xb1
)

func headerOffset(kind Kind) int {
	switch kind {
	case JSON:
		return jsonHeaderOffset
	case CBOR:
		return cborHeaderOffset
	case MGPK:
		return mgpkHeaderOffset
	}
	// Kind is validated before any header is placed.
	return 0
}
