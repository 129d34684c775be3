package grpcstore

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/acdc/said"
	"xdao.co/acdc/store"
)

// Client implements store.Store over a Store gRPC service.
type Client struct {
	cc     *grpc.ClientConn
	client StoreClient

	// Timeout applies per RPC when non-zero.
	Timeout time.Duration
}

type DialOptions struct {
	// Timeout applies to the initial dial when non-zero.
	Timeout time.Duration

	// MaxMsgBytes sets both send/recv max sizes when non-zero.
	MaxMsgBytes int
}

func Dial(target string, opts DialOptions) (*Client, error) {
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}
	if opts.MaxMsgBytes > 0 {
		dialOpts = append(dialOpts,
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(opts.MaxMsgBytes),
				grpc.MaxCallSendMsgSize(opts.MaxMsgBytes),
			),
		)
	}

	ctx := context.Background()
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cc, err := grpc.DialContext(ctx, target, dialOpts...)
	if err != nil {
		return nil, err
	}
	return &Client{cc: cc, client: NewStoreClient(cc), Timeout: 0}, nil
}

var _ store.Store = (*Client)(nil)

func (c *Client) Close() error {
	if c == nil || c.cc == nil {
		return nil
	}
	return c.cc.Close()
}

func (c *Client) Put(raw []byte) (string, error) {
	if c == nil || c.client == nil {
		return "", store.ErrNotFound
	}
	expected, err := store.Identify(raw)
	if err != nil {
		return "", err
	}

	ctx, cancel := c.ctx()
	defer cancel()

	reply, err := c.client.Put(ctx, wrapperspb.Bytes(raw))
	if err != nil {
		return "", mapRPC(err)
	}
	id := reply.GetValue()
	if !said.IsIdentifier(id) {
		return "", store.ErrInvalidIdentifier
	}
	if id != expected {
		return "", store.ErrIdentifierMismatch
	}
	return id, nil
}

func (c *Client) Get(id string) ([]byte, error) {
	if !said.IsIdentifier(id) {
		return nil, store.ErrInvalidIdentifier
	}
	ctx, cancel := c.ctx()
	defer cancel()

	reply, err := c.client.Get(ctx, wrapperspb.String(id))
	if err != nil {
		return nil, mapRPC(err)
	}
	b := reply.GetValue()
	got, err := store.Identify(b)
	if err != nil || got != id {
		return nil, store.ErrIdentifierMismatch
	}
	return b, nil
}

func (c *Client) Has(id string) bool {
	if !said.IsIdentifier(id) {
		return false
	}
	ctx, cancel := c.ctx()
	defer cancel()

	reply, err := c.client.Has(ctx, wrapperspb.String(id))
	if err != nil {
		return false
	}
	return reply.GetValue()
}

func (c *Client) ctx() (context.Context, context.CancelFunc) {
	if c.Timeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), c.Timeout)
}
