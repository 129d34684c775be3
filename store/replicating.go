package store

import "fmt"

// Named associates a Store with a stable backend name.
//
// This is used for multi-backend orchestration where callers need to retain
// per-backend metadata (e.g., for reporting or auditing).
type Named struct {
	Name  string
	Store Store
}

// Replicating writes to all configured backends.
//
// Reads fall back in order. Writes go to all backends and require all
// returned identifiers to match (otherwise ErrIdentifierMismatch is
// returned).
//
// Use PutAll when you need the per-backend identifier mapping.
type Replicating struct {
	Backends []Named
}

var _ Store = (*Replicating)(nil)

// PutAll writes the same container to all backends.
//
// It returns:
// - the canonical identifier (computed from raw)
// - a map of backend name -> returned identifier
//
// If any backend returns a different identifier, ErrIdentifierMismatch is
// returned together with the partial map.
func (r Replicating) PutAll(raw []byte) (string, map[string]string, error) {
	want, err := Identify(raw)
	if err != nil {
		return "", nil, err
	}
	if len(r.Backends) == 0 {
		return "", nil, fmt.Errorf("store: Replicating has no backends")
	}

	out := make(map[string]string, len(r.Backends))
	for _, b := range r.Backends {
		if b.Store == nil {
			return "", nil, fmt.Errorf("store: nil Store for backend %q", b.Name)
		}
		got, err := b.Store.Put(raw)
		if err != nil {
			return "", nil, err
		}
		out[b.Name] = got
		if got != want {
			return "", out, ErrIdentifierMismatch
		}
	}
	return want, out, nil
}

func (r Replicating) Put(raw []byte) (string, error) {
	id, _, err := r.PutAll(raw)
	return id, err
}

func (r Replicating) Get(id string) ([]byte, error) {
	for _, b := range r.Backends {
		if b.Store == nil {
			continue
		}
		out, err := b.Store.Get(id)
		if err == nil {
			return out, nil
		}
		if IsNotFound(err) {
			continue
		}
		return nil, err
	}
	return nil, ErrNotFound
}

func (r Replicating) Has(id string) bool {
	for _, b := range r.Backends {
		if b.Store != nil && b.Store.Has(id) {
			return true
		}
	}
	return false
}
