// Package config loads node configuration from a TOML file the way
// cmd/ranger's config loader does: a typed struct decoded with
// github.com/naoina/toml, keys matching Go field names exactly rather
// than lower-cased, with an explicit error on unrecognized fields so a
// typo in an operator's config file fails loudly instead of silently
// keeping a default.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"reflect"
	"time"
	"unicode"

	"github.com/naoina/toml"
)

// tomlSettings mirrors cmd/ranger's NormFieldName/FieldToKey identity
// mapping, so TOML keys are exactly the Go struct field names, plus a
// MissingField error that names the offending field and type.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string { return key },
	FieldToKey:    func(rt reflect.Type, field string) string { return field },
	MissingField: func(rt reflect.Type, field string) error {
		link := ""
		if unicode.IsUpper(rune(rt.Name()[0])) {
			link = fmt.Sprintf(" (see %s)", rt.Name())
		}
		return fmt.Errorf("field '%s' is not defined in %s%s", field, rt.String(), link)
	},
}

// StoreConfig configures the store façade (A).
type StoreConfig struct {
	Dir              string
	Backend          string // "leveldb", "badger", "memory"
	Partitioned      bool
	LevelDBCacheSize int
	LevelDBHandles   int
	CellCacheSize    int
}

// PoolConfig configures the transaction pool (C2). Every field except
// RedisAddr matches a core/txpool.Config field of the same name, and
// cmd/node copies those across.
type PoolConfig struct {
	SizeLimit         uint64
	MinFeeRate        uint64
	MaxAncestors      int
	OrphanPoolLimit   int
	RecentRejectSize  int
	TxExpiry          time.Duration
	MaxTxVerifyCycles uint64
	ChunkStep         uint64

	// RedisAddr is decoded but not passed on to the pool: cmd/node builds
	// the recent-reject filter in-process only.
	RedisAddr string
}

// SchedulerConfig configures the script scheduler (C3).
type SchedulerConfig struct {
	MaxVMsCount        int
	MaxInstantiatedVMs int
	MaxFDs             int
}

// MetricsConfig configures metrics collection and exposition.
type MetricsConfig struct {
	Enabled        bool
	PrometheusAddr string
}

// RPCConfig configures the JSON-RPC and IPC servers.
type RPCConfig struct {
	HTTPAddr     string
	CORSOrigins  []string
	IPCAddr      string
	IPCEnabled   bool
}

// ReorgFeedConfig configures the optional external reorg notification
// fan-out. All sinks default off; a node that sets none of these runs
// with pubsub/reorgfeed entirely disabled.
type ReorgFeedConfig struct {
	KafkaBrokers []string
	KafkaTopic   string

	InfluxDBAddr     string
	InfluxDBDatabase string
}

// Config is the top-level node configuration, decoded from a single
// TOML file.
type Config struct {
	Store     StoreConfig
	Pool      PoolConfig
	Scheduler SchedulerConfig
	Metrics   MetricsConfig
	RPC       RPCConfig
	ReorgFeed ReorgFeedConfig

	// AssumeValidTarget, if set, is the hex-encoded hash of a block the
	// reconciler trusts without script verification below, matching the
	// Reconciler.assumeValidTarget field it's wired into.
	AssumeValidTarget string
}

// Load reads and decodes a TOML config file at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cfg := Default()
	if err := tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(cfg); err != nil {
		var lineErr *toml.LineError
		if errors.As(err, &lineErr) {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration a node runs with absent a config
// file. Its pool and scheduler limits are literals equal to the matching
// package params constants.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Dir:     "./data",
			Backend: "leveldb",
		},
		Pool: PoolConfig{
			SizeLimit:         300 * 1024 * 1024,
			MinFeeRate:        1000,
			MaxAncestors:      125,
			OrphanPoolLimit:   1000,
			RecentRejectSize:  20000,
			TxExpiry:          48 * time.Hour,
			MaxTxVerifyCycles: 3_500_000,
			ChunkStep:         1 << 18,
		},
		Scheduler: SchedulerConfig{
			MaxVMsCount:        16,
			MaxInstantiatedVMs: 4,
			MaxFDs:             64,
		},
		Metrics: MetricsConfig{
			Enabled:        false,
			PrometheusAddr: ":9090",
		},
		RPC: RPCConfig{
			HTTPAddr:   "127.0.0.1:8114",
			IPCEnabled: false,
			IPCAddr:    "127.0.0.1:8115",
		},
	}
}
