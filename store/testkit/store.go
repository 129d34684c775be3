// Package testkit provides a reusable conformance suite for store
// implementations.
package testkit

import (
	"bytes"
	"testing"

	"xdao.co/acdc/acdc"
	"xdao.co/acdc/said"
	"xdao.co/acdc/store"
)

// NewStore constructs a fresh, empty Store instance for a test.
// The returned Store MUST be isolated from other tests.
type NewStore func(t *testing.T) store.Store

// Container returns a serialized container whose attributes embed label, so
// distinct labels yield distinct bytes under distinct identifiers.
func Container(t *testing.T, label string) []byte {
	t.Helper()

	schema, err := said.Sum(said.Blake3_256, []byte("schema:"+label))
	if err != nil {
		t.Fatalf("said.Sum failed: %v", err)
	}
	a := acdc.NewMap()
	a.Set("label", label)

	c, err := acdc.New(acdc.Params{
		Issuer:     "testkit",
		Schema:     schema,
		Attributes: acdc.InlineAttributes(a),
	})
	if err != nil {
		t.Fatalf("acdc.New failed: %v", err)
	}
	return c.Raw()
}

func RunStoreConformance(t *testing.T, newStore NewStore) {
	t.Helper()

	t.Run("PutGetRoundTrip", func(t *testing.T) {
		s := newStore(t)
		want := Container(t, "round-trip")

		id, err := s.Put(want)
		if err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		wantID, err := store.Identify(want)
		if err != nil {
			t.Fatalf("Identify failed: %v", err)
		}
		if id != wantID {
			t.Fatalf("Put identifier mismatch: got %s want %s", id, wantID)
		}

		got, err := s.Get(id)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("Get bytes mismatch")
		}

		gotID, err := store.Identify(got)
		if err != nil {
			t.Fatalf("Identify(got) failed: %v", err)
		}
		if gotID != id {
			t.Fatalf("Get returned bytes not matching requested identifier")
		}
	})

	t.Run("PutIdempotent", func(t *testing.T) {
		s := newStore(t)
		b := Container(t, "idempotent")

		id1, err := s.Put(b)
		if err != nil {
			t.Fatalf("Put(1) failed: %v", err)
		}
		id2, err := s.Put(b)
		if err != nil {
			t.Fatalf("Put(2) failed: %v", err)
		}
		if id1 != id2 {
			t.Fatalf("Put not idempotent: %s vs %s", id1, id2)
		}
	})

	t.Run("HasAndNotFound", func(t *testing.T) {
		s := newStore(t)
		b := Container(t, "missing")
		id, err := store.Identify(b)
		if err != nil {
			t.Fatalf("Identify failed: %v", err)
		}

		if s.Has(id) {
			t.Fatalf("Has returned true for missing identifier")
		}
		_, err = s.Get(id)
		if !store.IsNotFound(err) {
			t.Fatalf("Get missing: got err=%v want ErrNotFound", err)
		}

		if _, err := s.Put(b); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		if !s.Has(id) {
			t.Fatalf("Has returned false after Put")
		}
	})

	t.Run("RejectInvalidIdentifier", func(t *testing.T) {
		s := newStore(t)
		if s.Has("not-an-identifier") {
			t.Fatalf("Has should be false for an invalid identifier")
		}
		if _, err := s.Get("not-an-identifier"); err == nil {
			t.Fatalf("Get should fail for an invalid identifier")
		}
	})

	t.Run("RejectForeignBytes", func(t *testing.T) {
		s := newStore(t)
		if _, err := s.Put([]byte("not a container")); err == nil {
			t.Fatalf("Put should fail for bytes that are not a container")
		}

		tampered := Container(t, "tampered")
		tampered[len(tampered)-2] ^= 0x20
		if _, err := s.Put(tampered); err == nil {
			t.Fatalf("Put should fail for a container with a broken digest")
		}
	})
}
