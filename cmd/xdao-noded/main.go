package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"google.golang.org/grpc"

	"xdao.co/ledger/blockchain"
	"xdao.co/ledger/config"
	"xdao.co/ledger/ledgerrpc"
	"xdao.co/ledger/logging"
	"xdao.co/ledger/node"
	"xdao.co/ledger/nodeconfig"
	"xdao.co/ledger/services/configupdater"
	"xdao.co/ledger/storage/casregistry"
	"xdao.co/ledger/storage/memdb"

	_ "xdao.co/ledger/storage/ipfs"
	_ "xdao.co/ledger/storage/localfs"
)

func main() {
	fs := flag.NewFlagSet("xdao-noded", flag.ExitOnError)
	configPath := fs.String("config", "node.json", "node configuration file")
	listen := fs.String("listen", "", "listen address (overrides the config file)")
	listBackends := fs.Bool("list-backends", false, "List supported archive backends and exit")

	_ = fs.Parse(os.Args[1:])
	if *listBackends {
		_ = casregistry.WriteList(os.Stdout, casregistry.UsageDaemon)
		return
	}

	cfg, err := nodeconfig.LoadFile(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	level, _ := logging.ParseLevel(cfg.LogLevel)
	log := logging.New(os.Stderr, level)

	n, closeFn, err := build(cfg, log)
	if err != nil {
		log.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer closeFn()

	lis, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		log.Error("listen failed", "addr", cfg.Listen, "error", err)
		os.Exit(1)
	}
	defer lis.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s := grpc.NewServer()
	ledgerrpc.RegisterLedgerServer(s, &ledgerrpc.Server{Backend: n})

	go func() {
		<-ctx.Done()
		log.Info("shutting down")
		s.GracefulStop()
	}()
	go func() { _ = n.Run(ctx) }()

	log.Info("xdao-noded listening", "addr", lis.Addr().String())
	if err := s.Serve(lis); err != nil {
		log.Error("serve failed", "error", err)
		os.Exit(1)
	}
}

// build assembles the node described by cfg. The returned function closes the archive.
func build(cfg nodeconfig.Config, log logging.Logger) (*node.Node, func() error, error) {
	registry, err := blockchain.NewRegistry(configupdater.New())
	if err != nil {
		return nil, nil, err
	}
	chain := blockchain.New(memdb.New(), registry, log)

	if cfg.Genesis != "" {
		b, err := os.ReadFile(cfg.Genesis)
		if err != nil {
			return nil, nil, fmt.Errorf("read genesis: %w", err)
		}
		doc, err := config.Parse(b)
		if err != nil {
			return nil, nil, fmt.Errorf("genesis: %w", err)
		}
		hash, err := chain.InitGenesis(doc)
		if err != nil {
			return nil, nil, fmt.Errorf("genesis: %w", err)
		}
		log.Info("initialized genesis configuration", "hash", hash.String())
	}

	interval, err := cfg.Interval()
	if err != nil {
		return nil, nil, err
	}
	opts := node.Options{
		BlockInterval: interval,
		MaxBlockTxs:   cfg.MaxBlockTxs,
		MempoolSize:   cfg.MempoolSize,
		EmptyBlocks:   cfg.EmptyBlocks,
		Log:           log,
	}
	closeFn := func() error { return nil }
	if cfg.Archive != nil {
		archive, archiveClose, err := cfg.Archive.Open(casregistry.UsageDaemon)
		if err != nil {
			return nil, nil, err
		}
		opts.Archive = archive
		closeFn = archiveClose
	}
	return node.New(chain, opts), closeFn, nil
}
