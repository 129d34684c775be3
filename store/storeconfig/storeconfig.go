// Package storeconfig assembles container stores from JSON configuration.
package storeconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"xdao.co/acdc/store"
	"xdao.co/acdc/store/grpcstore"
	"xdao.co/acdc/store/localfs"
)

// dialTimeout bounds the initial connection attempt for gRPC backends.
const dialTimeout = 5 * time.Second

// Config describes how to open one or more store backends.
//
// WritePolicy values:
// - "first" (default): write only to the first backend; reads fall back in order
// - "all": write to all backends and require identifier equality (see store.Replicating)
//
// Example:
//
//	{
//	  "write_policy": "all",
//	  "backends": [
//	    {"name":"localfs", "dir":"/var/lib/acdc"},
//	    {"name":"grpc", "target":"127.0.0.1:7464", "timeout_ms":2000}
//	  ]
//	}
type Config struct {
	WritePolicy string    `json:"write_policy,omitempty"`
	Backends    []Backend `json:"backends"`
}

// Backend selects and parameterizes one store implementation.
type Backend struct {
	// Name is the backend kind: "memory", "localfs" or "grpc".
	Name string `json:"name"`
	// ID is an optional stable alias used for identification and
	// per-backend identifier maps. If empty, Name is used.
	ID string `json:"id,omitempty"`
	// Dir is the root directory for "localfs" backends.
	Dir string `json:"dir,omitempty"`
	// Target is the host:port for "grpc" backends.
	Target string `json:"target,omitempty"`
	// TimeoutMS is the per-RPC timeout for "grpc" backends; 0 means none.
	TimeoutMS int `json:"timeout_ms,omitempty"`
}

func Parse(b []byte) (Config, error) {
	var cfg Config
	if err := json.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func LoadFile(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, errors.New("storeconfig: empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	return Parse(b)
}

func (c Config) Validate() error {
	if len(c.Backends) == 0 {
		return errors.New("storeconfig: at least one backend is required")
	}
	seen := make(map[string]struct{}, len(c.Backends))
	for _, b := range c.Backends {
		switch b.Name {
		case "memory":
		case "localfs":
			if b.Dir == "" {
				return errors.New("storeconfig: localfs backend requires dir")
			}
		case "grpc":
			if b.Target == "" {
				return errors.New("storeconfig: grpc backend requires target")
			}
		case "":
			return errors.New("storeconfig: backend name is required")
		default:
			return fmt.Errorf("storeconfig: unknown backend %q", b.Name)
		}
		if b.TimeoutMS < 0 {
			return fmt.Errorf("storeconfig: negative timeout_ms for backend %q", b.id())
		}
		id := b.id()
		if _, ok := seen[id]; ok {
			return fmt.Errorf("storeconfig: duplicate backend id %q", id)
		}
		seen[id] = struct{}{}
	}
	switch c.WritePolicy {
	case "", "first", "all":
		return nil
	default:
		return fmt.Errorf("storeconfig: invalid write_policy %q", c.WritePolicy)
	}
}

// Open opens a store per config, composing multiple backends by WritePolicy.
//
// The returned close function releases every opened backend; it is non-nil
// even when nothing needs closing.
func (c Config) Open() (store.Store, func() error, error) {
	if err := c.Validate(); err != nil {
		return nil, nil, err
	}

	named := make([]store.Named, 0, len(c.Backends))
	closers := make([]func() error, 0, len(c.Backends))
	for _, b := range c.Backends {
		s, closeFn, err := openBackend(b)
		if err != nil {
			for i := len(closers) - 1; i >= 0; i-- {
				_ = closers[i]()
			}
			return nil, nil, err
		}
		named = append(named, store.Named{Name: b.id(), Store: s})
		if closeFn != nil {
			closers = append(closers, closeFn)
		}
	}

	closeAll := func() error {
		var firstErr error
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}

	if len(named) == 1 {
		return named[0].Store, closeAll, nil
	}

	switch c.WritePolicy {
	case "", "first":
		stores := make([]store.Store, 0, len(named))
		for _, n := range named {
			stores = append(stores, n.Store)
		}
		return store.Multi{Stores: stores}, closeAll, nil
	case "all":
		return store.Replicating{Backends: named}, closeAll, nil
	default:
		return nil, nil, fmt.Errorf("storeconfig: invalid write_policy %q", c.WritePolicy)
	}
}

func openBackend(b Backend) (store.Store, func() error, error) {
	switch b.Name {
	case "memory":
		return store.NewMemory(), nil, nil
	case "localfs":
		s, err := localfs.New(b.Dir)
		if err != nil {
			return nil, nil, err
		}
		return s, nil, nil
	case "grpc":
		client, err := grpcstore.Dial(b.Target, grpcstore.DialOptions{Timeout: dialTimeout})
		if err != nil {
			return nil, nil, err
		}
		client.Timeout = time.Duration(b.TimeoutMS) * time.Millisecond
		return client, client.Close, nil
	default:
		return nil, nil, fmt.Errorf("storeconfig: unknown backend %q", b.Name)
	}
}

func (b Backend) id() string {
	if b.ID != "" {
		return b.ID
	}
	return b.Name
}
