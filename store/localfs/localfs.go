// Package localfs implements a local filesystem-backed container store.
package localfs

import (
	"errors"
	"os"
	"path/filepath"

	"xdao.co/acdc/said"
	"xdao.co/acdc/store"
)

// Store keeps containers as read-only files keyed strictly by identifier,
// sharded into two-character subdirectories.
//
// This implementation is offline and deterministic: it never uses the network
// and never depends on wall-clock time.
type Store struct {
	root string
}

// New constructs a filesystem store rooted at root. The directory will be
// created if needed.
func New(root string) (*Store, error) {
	if root == "" {
		return nil, errors.New("localfs: root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Store{root: root}, nil
}

var _ store.Store = (*Store)(nil)

func (s *Store) Put(raw []byte) (string, error) {
	id, err := store.Identify(raw)
	if err != nil {
		return "", err
	}

	path := s.pathFor(id)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}

	// Stage to a temp file, then link it into place. Link fails when the
	// destination already exists, so a stored container is never overwritten
	// and readers never observe a partial write.
	tmp, err := os.CreateTemp(filepath.Dir(path), ".put-*")
	if err != nil {
		return "", err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return "", err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return "", err
	}
	if err := tmp.Chmod(0o444); err != nil {
		_ = tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}

	if err := os.Link(tmpName, path); err != nil {
		if os.IsExist(err) {
			existing, rerr := s.Get(id)
			if rerr != nil {
				// The file exists but is unreadable or corrupted; treat as an
				// immutability violation.
				return "", store.ErrImmutable
			}
			if string(existing) != string(raw) {
				return "", store.ErrImmutable
			}
			return id, nil
		}
		return "", err
	}
	return id, nil
}

func (s *Store) Get(id string) ([]byte, error) {
	if !said.IsIdentifier(id) {
		return nil, store.ErrInvalidIdentifier
	}
	path := s.pathFor(id)
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	got, err := store.Identify(b)
	if err != nil || got != id {
		return nil, store.ErrIdentifierMismatch
	}
	return b, nil
}

func (s *Store) Has(id string) bool {
	if !said.IsIdentifier(id) {
		return false
	}
	_, err := os.Stat(s.pathFor(id))
	return err == nil
}

func (s *Store) pathFor(id string) string {
	return filepath.Join(s.root, id[:2], id)
}
