package store

import "errors"

// Multi provides deterministic, ordered fallback across multiple stores.
//
// Hydration order is the slice order in Stores; callers MUST supply a fixed
// order. This avoids map-iteration nondeterminism and makes the retrieval
// strategy explicit.
//
// Put is defined to write only to the first store.
type Multi struct {
	Stores []Store
}

var _ Store = Multi{}

func (m Multi) Put(raw []byte) (string, error) {
	if len(m.Stores) == 0 {
		return "", errors.New("store: Multi has no stores")
	}
	return m.Stores[0].Put(raw)
}

func (m Multi) Get(id string) ([]byte, error) {
	for _, s := range m.Stores {
		b, err := s.Get(id)
		if err == nil {
			return b, nil
		}
		if IsNotFound(err) {
			continue
		}
		return nil, err
	}
	return nil, ErrNotFound
}

func (m Multi) Has(id string) bool {
	for _, s := range m.Stores {
		if s.Has(id) {
			return true
		}
	}
	return false
}
