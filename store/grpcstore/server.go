package grpcstore

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/acdc/said"
	"xdao.co/acdc/store"
)

// Server exposes a store.Store over the Store gRPC service.
type Server struct {
	UnimplementedStoreServer
	Store store.Store
}

func (s *Server) Put(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.StringValue, error) {
	_ = ctx
	if s == nil || s.Store == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing store")
	}
	b := in.GetValue()
	// Enforce the identifier contract on the server side too.
	expected, err := store.Identify(b)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	id, err := s.Store.Put(b)
	if err != nil {
		return nil, mapErr(err)
	}
	if id != expected {
		return nil, status.Error(codes.DataLoss, store.ErrIdentifierMismatch.Error())
	}
	return wrapperspb.String(id), nil
}

func (s *Server) Get(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	_ = ctx
	if s == nil || s.Store == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing store")
	}
	id := in.GetValue()
	if !said.IsIdentifier(id) {
		return nil, status.Error(codes.InvalidArgument, store.ErrInvalidIdentifier.Error())
	}
	b, err := s.Store.Get(id)
	if err != nil {
		return nil, mapErr(err)
	}
	got, err := store.Identify(b)
	if err != nil || got != id {
		return nil, status.Error(codes.DataLoss, store.ErrIdentifierMismatch.Error())
	}
	return wrapperspb.Bytes(b), nil
}

func (s *Server) Has(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	_ = ctx
	if s == nil || s.Store == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing store")
	}
	id := in.GetValue()
	if !said.IsIdentifier(id) {
		return nil, status.Error(codes.InvalidArgument, store.ErrInvalidIdentifier.Error())
	}
	return wrapperspb.Bool(s.Store.Has(id)), nil
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case err == store.ErrNotFound:
		return status.Error(codes.NotFound, err.Error())
	case err == store.ErrInvalidIdentifier:
		return status.Error(codes.InvalidArgument, err.Error())
	case err == store.ErrIdentifierMismatch:
		return status.Error(codes.DataLoss, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
