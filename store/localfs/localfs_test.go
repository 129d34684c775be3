package localfs

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"xdao.co/acdc/store"
	"xdao.co/acdc/store/testkit"
)

func TestLocalFSConformance(t *testing.T) {
	testkit.RunStoreConformance(t, func(t *testing.T) store.Store {
		t.Helper()
		s, err := New(t.TempDir())
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		return s
	})
}

func TestLocalFSRequiresRoot(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatalf("New should fail for an empty root")
	}
}

func TestLocalFSShardedLayout(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	raw := testkit.Container(t, "sharded")
	id, err := s.Put(raw)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	path := filepath.Join(dir, id[:2], id)
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stored file missing at %s: %v", path, err)
	}
	if info.Mode().Perm() != 0o444 {
		t.Fatalf("stored file mode: got %v want 0444", info.Mode().Perm())
	}

	// The staging file must be gone once Put returns.
	entries, err := os.ReadDir(filepath.Join(dir, id[:2]))
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".put-") {
			t.Fatalf("staging file left behind: %s", e.Name())
		}
	}
}

func TestLocalFSRejectMutationByOverwrite(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	orig := testkit.Container(t, "immutable")
	id, err := s.Put(orig)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	// Corrupt the stored container out-of-band.
	path := s.pathFor(id)
	if err := os.Chmod(path, 0o644); err != nil {
		t.Fatalf("Chmod failed: %v", err)
	}
	if err := os.WriteFile(path, testkit.Container(t, "impostor"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	// Get must detect that the bytes no longer match the identifier.
	if _, err := s.Get(id); !errors.Is(err, store.ErrIdentifierMismatch) {
		t.Fatalf("Get corrupted: got %v want ErrIdentifierMismatch", err)
	}

	// Put must not repair or overwrite the corrupted container.
	if _, err := s.Put(orig); !errors.Is(err, store.ErrImmutable) {
		t.Fatalf("Put after corruption: got %v want ErrImmutable", err)
	}

	// The identifier is still the identifier of the original bytes.
	wantID, err := store.Identify(orig)
	if err != nil {
		t.Fatalf("Identify failed: %v", err)
	}
	if id != wantID {
		t.Fatalf("unexpected identifier: got %s want %s", id, wantID)
	}
}

func TestLocalFSReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	raw := testkit.Container(t, "durable")
	id, err := s.Put(raw)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	reopened, err := New(dir)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if !reopened.Has(id) {
		t.Fatalf("reopened store should still hold the container")
	}
	got, err := reopened.Get(id)
	if err != nil {
		t.Fatalf("Get after reopen failed: %v", err)
	}
	if string(got) != string(raw) {
		t.Fatalf("bytes changed across reopen")
	}
}
