package main

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"os"

	"google.golang.org/grpc"

	"xdao.co/acdc/store"
	"xdao.co/acdc/store/grpcstore"
	"xdao.co/acdc/store/localfs"
	"xdao.co/acdc/store/storeconfig"
)

func main() {
	fs := flag.NewFlagSet("acdc-stored", flag.ExitOnError)
	listen := fs.String("listen", "127.0.0.1:7464", "listen address")
	config := fs.String("config", "", "store configuration file (JSON)")
	dir := fs.String("dir", "", "serve a single localfs store rooted at this directory")

	_ = fs.Parse(os.Args[1:])

	st, closeFn, err := open(*config, *dir)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if closeFn != nil {
		defer closeFn()
	}

	lis, err := net.Listen("tcp", *listen)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer lis.Close()

	s := grpc.NewServer()
	grpcstore.RegisterStoreServer(s, &grpcstore.Server{Store: st})

	fmt.Fprintf(os.Stderr, "acdc-stored listening on %s\n", lis.Addr().String())
	if err := s.Serve(lis); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func open(config, dir string) (store.Store, func() error, error) {
	switch {
	case config != "" && dir != "":
		return nil, nil, errors.New("acdc-stored: -config and -dir are mutually exclusive")
	case config != "":
		cfg, err := storeconfig.LoadFile(config)
		if err != nil {
			return nil, nil, err
		}
		return cfg.Open()
	case dir != "":
		s, err := localfs.New(dir)
		if err != nil {
			return nil, nil, err
		}
		return s, nil, nil
	default:
		return nil, nil, errors.New("acdc-stored: one of -config or -dir is required")
	}
}
