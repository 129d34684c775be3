package store

import "errors"

var (
	ErrNotFound           = errors.New("store: not found")
	ErrInvalidIdentifier  = errors.New("store: invalid identifier")
	ErrIdentifierMismatch = errors.New("store: identifier mismatch")
	ErrImmutable          = errors.New("store: immutable container mismatch")
)

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
