package store

import (
	"bytes"
	"sync"

	"xdao.co/acdc/said"
)

// Memory is an in-memory Store.
//
// All methods are safe for concurrent use. Bytes are copied on the way in and
// on the way out, so callers can never mutate an indexed container.
type Memory struct {
	mu sync.RWMutex
	m  map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{m: make(map[string][]byte)}
}

var _ Store = (*Memory)(nil)

func (s *Memory) Put(raw []byte) (string, error) {
	id, err := Identify(raw)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.m[id]; ok {
		if !bytes.Equal(existing, raw) {
			return "", ErrImmutable
		}
		return id, nil
	}
	s.m[id] = append([]byte(nil), raw...)
	return id, nil
}

func (s *Memory) Get(id string) ([]byte, error) {
	if !said.IsIdentifier(id) {
		return nil, ErrInvalidIdentifier
	}

	s.mu.RLock()
	raw, ok := s.m[id]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	out := append([]byte(nil), raw...)
	got, err := Identify(out)
	if err != nil || got != id {
		return nil, ErrIdentifierMismatch
	}
	return out, nil
}

func (s *Memory) Has(id string) bool {
	if !said.IsIdentifier(id) {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.m[id]
	return ok
}

// Len reports the number of stored containers.
func (s *Memory) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}
