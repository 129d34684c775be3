package store

import (
	"context"

	"xdao.co/acdc/chain"
)

// Resolver adapts a Store to the chain walker's resolver interface.
//
// A store miss surfaces as ErrNotFound, which the walker reports as a missing
// target; context cancellation is honored before the store is consulted.
type Resolver struct {
	S Store
}

var _ chain.Resolver = Resolver{}

func (r Resolver) Resolve(ctx context.Context, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.S == nil {
		return nil, ErrNotFound
	}
	return r.S.Get(id)
}
