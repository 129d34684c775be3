package grpcstore

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"xdao.co/acdc/store"
)

func mapRPC(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}

	switch st.Code() {
	case codes.NotFound:
		return store.ErrNotFound
	case codes.InvalidArgument:
		// Server uses InvalidArgument for malformed identifiers and payloads.
		return store.ErrInvalidIdentifier
	case codes.DataLoss:
		// Server uses DataLoss when bytes do not match the requested identifier.
		return store.ErrIdentifierMismatch
	default:
		// Best-effort: if the server sent a known store error message, preserve it.
		switch st.Message() {
		case store.ErrNotFound.Error():
			return store.ErrNotFound
		case store.ErrInvalidIdentifier.Error():
			return store.ErrInvalidIdentifier
		case store.ErrIdentifierMismatch.Error():
			return store.ErrIdentifierMismatch
		case store.ErrImmutable.Error():
			return store.ErrImmutable
		default:
			return err
		}
	}
}
