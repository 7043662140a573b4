// Command node boots a single reconciler/pool/scheduler/rpc node,
// wired the way cmd/kcn wires blockchain/txPool/node together behind a
// github.com/urfave/cli application.
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/davecgh/go-spew/spew"
	"github.com/urfave/cli"

	"github.com/riscvlabs/corechain/common"
	"github.com/riscvlabs/corechain/config"
	"github.com/riscvlabs/corechain/consensus"
	"github.com/riscvlabs/corechain/core/cache"
	"github.com/riscvlabs/corechain/core/chain"
	"github.com/riscvlabs/corechain/core/script/nullvm"
	"github.com/riscvlabs/corechain/core/txpool"
	"github.com/riscvlabs/corechain/core/types"
	"github.com/riscvlabs/corechain/log"
	"github.com/riscvlabs/corechain/metrics"
	"github.com/riscvlabs/corechain/pubsub/reorgfeed"
	"github.com/riscvlabs/corechain/rpc"
	"github.com/riscvlabs/corechain/rpc/ipc"
	"github.com/riscvlabs/corechain/storage/chaindb"
)

var logger = log.NewModuleLogger(log.RPC)

var (
	configFlag = cli.StringFlag{
		Name:  "config",
		Usage: "path to a TOML config file; defaults are used if omitted",
	}
	dumpConfigFlag = cli.BoolFlag{
		Name:  "dump-config",
		Usage: "print the fully-resolved configuration and exit without starting the node",
	}
)

func main() {
	app := cli.NewApp()
	app.Name = "node"
	app.Usage = "run a chain reconciler, transaction pool, script scheduler and RPC server"
	app.Flags = []cli.Flag{configFlag, dumpConfigFlag}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	if path := c.String(configFlag.Name); path != "" {
		return config.Load(path)
	}
	return config.Default(), nil
}

func run(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if c.Bool(dumpConfigFlag.Name) {
		spew.Dump(cfg)
		return nil
	}

	store, err := chaindb.NewManager(chaindb.Config{
		Dir:              cfg.Store.Dir,
		Backend:          backendFromName(cfg.Store.Backend),
		Partitioned:      cfg.Store.Partitioned,
		LevelDBCacheSize: cfg.Store.LevelDBCacheSize,
		LevelDBHandles:   cfg.Store.LevelDBHandles,
		CellCacheSize:    cfg.Store.CellCacheSize,
	})
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}

	snap, err := chain.Bootstrap(store, genesisBlock())
	if err != nil {
		return fmt.Errorf("bootstrapping genesis: %w", err)
	}

	txCache, err := cache.NewTxVerifyCache(4096)
	if err != nil {
		return fmt.Errorf("building tx verify cache: %w", err)
	}

	machineFactory := nullvm.New
	verifier := chain.NewVerifier(machineFactory, txCache, cfg.Pool.MaxTxVerifyCycles)

	cons := consensus.NewDevConsensus()
	punisher := chain.NewLoggingPunisher(logger)

	sinks, err := buildReorgSinks(cfg.ReorgFeed)
	if err != nil {
		return fmt.Errorf("building reorg feed sinks: %w", err)
	}
	feed := reorgfeed.New(sinks...)
	defer feed.Close()

	pool, err := txpool.New(store, snap, verifier, machineFactory, cons, punisher, txpool.Config{
		SizeLimit:         cfg.Pool.SizeLimit,
		MinFeeRate:        cfg.Pool.MinFeeRate,
		MaxAncestors:      cfg.Pool.MaxAncestors,
		OrphanPoolLimit:   cfg.Pool.OrphanPoolLimit,
		RecentRejectSize:  cfg.Pool.RecentRejectSize,
		TxExpiry:          cfg.Pool.TxExpiry,
		MaxTxVerifyCycles: cfg.Pool.MaxTxVerifyCycles,
		ChunkStep:         cfg.Pool.ChunkStep,
	})
	if err != nil {
		return fmt.Errorf("building transaction pool: %w", err)
	}

	assumeValidTarget, err := parseAssumeValidTarget(cfg.AssumeValidTarget)
	if err != nil {
		return fmt.Errorf("parsing assume_valid_target: %w", err)
	}

	notifier := chain.FanoutNotifier{Targets: []chain.PoolNotifier{pool, feed}}
	reconciler := chain.New(store, snap, cons, verifier, chain.NewMemMMRFactory(), notifier, punisher, txCache, assumeValidTarget)

	if cfg.Metrics.Enabled {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			logger.Info("metrics server listening", "addr", cfg.Metrics.PrometheusAddr)
			if err := http.ListenAndServe(cfg.Metrics.PrometheusAddr, mux); err != nil {
				logger.Error("metrics server stopped", "error", err)
			}
		}()
	}

	server := rpc.NewServer(cfg.RPC.HTTPAddr, rpc.NewHandler(pool), cfg.RPC.CORSOrigins, rpc.DefaultHTTPTimeouts)
	if err := server.Start(); err != nil {
		return fmt.Errorf("starting rpc server: %w", err)
	}
	defer server.Stop()

	if cfg.RPC.IPCEnabled {
		ipcServer := ipc.NewServer(cfg.RPC.IPCAddr, machineFactory)
		if err := ipcServer.Start(); err != nil {
			return fmt.Errorf("starting ipc grpc server: %w", err)
		}
		defer ipcServer.Stop()
	}

	unverifiedCh := make(chan chain.UnverifiedBlock)
	stopCh := make(chan struct{})
	go reconciler.Run(unverifiedCh, stopCh)
	defer close(stopCh)

	logger.Info("node started", "rpc_addr", server.Addr())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("node shutting down")
	return nil
}

// parseAssumeValidTarget parses the config's hex-encoded hash, returning
// nil when unset so the reconciler falls back to full verification.
func parseAssumeValidTarget(s string) (*common.Hash, error) {
	if s == "" {
		return nil, nil
	}
	var h common.Hash
	if err := h.UnmarshalText([]byte(s)); err != nil {
		return nil, err
	}
	return &h, nil
}

func backendFromName(name string) chaindb.BackendType {
	switch name {
	case "badger":
		return chaindb.BadgerDB
	case "memory":
		return chaindb.MemoryDB
	default:
		return chaindb.LevelDB
	}
}

// genesisBlock builds the fixed block-0 a fresh store is seeded with.
// A real deployment would load this from a network-specific genesis
// file; a single hardcoded block is enough for a standalone node.
func genesisBlock() *types.Block {
	header := &types.Header{
		Number:        0,
		Timestamp:     0,
		CompactTarget: 0x20010000,
	}
	cellbase := &types.Transaction{
		Outputs:     []types.CellOutput{{Capacity: 0, Lock: types.Script{}}},
		OutputsData: [][]byte{nil},
	}
	return &types.Block{Header: header, Transactions: []*types.Transaction{cellbase}}
}

func buildReorgSinks(cfg config.ReorgFeedConfig) ([]reorgfeed.Sink, error) {
	var sinks []reorgfeed.Sink
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaTopic != "" {
		s, err := reorgfeed.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}
	if cfg.InfluxDBAddr != "" && cfg.InfluxDBDatabase != "" {
		s, err := reorgfeed.NewInfluxDBSink(cfg.InfluxDBAddr, cfg.InfluxDBDatabase)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}
	return sinks, nil
}
