// Package store defines a minimal identifier-addressed container store and
// in-process implementations of it. Subpackages add a filesystem backend,
// a gRPC client/server pair, portable bundles, and config-driven assembly.
package store

import (
	"xdao.co/acdc/acdc"
)

// Store is a minimal identifier-addressed container store interface.
//
// Contract:
// - Put MUST be idempotent.
// - Stored containers MUST be immutable.
// - Identifiers MUST be the self-addressing identifier embedded in the bytes
//   written (Put verifies the container before indexing it).
// - Get MUST return ErrNotFound when the identifier is absent.
type Store interface {
	Put(raw []byte) (string, error)
	Get(id string) ([]byte, error)
	Has(id string) bool
}

// Identify returns the canonical identifier for a serialized container.
//
// The bytes must decode as a container and carry a digest that matches their
// content; otherwise the decode or verification error is returned. Every
// implementation in this package keys storage by exactly this identifier.
func Identify(raw []byte) (string, error) {
	c, err := acdc.Decode(raw)
	if err != nil {
		return "", err
	}
	if err := c.Verify(); err != nil {
		return "", err
	}
	return c.SAID(), nil
}
