// Package config loads the node configuration: built-in defaults, then an
// optional TOML file, then LOTTERY_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"

	"github.com/luca-patrignani/flow-lottery/domain/lottery"
)

type Config struct {
	Node    Node    `toml:"node" envPrefix:"LOTTERY_NODE_"`
	Lottery Lottery `toml:"lottery" envPrefix:"LOTTERY_"`
	Log     Log     `toml:"log" envPrefix:"LOTTERY_LOG_"`
}

type Node struct {
	Name string `toml:"name" env:"NAME"`
	// Listen is the host:port the peer listens on; port 0 picks a free one.
	Listen  string        `toml:"listen" env:"LISTEN"`
	Peers   []string      `toml:"peers" env:"PEERS" envSeparator:","`
	DataDir string        `toml:"data_dir" env:"DATA_DIR"`
	Timeout time.Duration `toml:"timeout" env:"TIMEOUT"`
	// Discovery finds ExpectedPeers other nodes over multicast instead of
	// asking for their addresses.
	Discovery     bool   `toml:"discovery" env:"DISCOVERY"`
	DiscoveryPort uint16 `toml:"discovery_port" env:"DISCOVERY_PORT"`
	ExpectedPeers int    `toml:"expected_peers" env:"EXPECTED_PEERS"`
}

type Lottery struct {
	EmissionRate    lottery.Amount `toml:"emission_rate" env:"EMISSION_RATE"`
	TriggerFee      lottery.Amount `toml:"trigger_fee" env:"TRIGGER_FEE"`
	KeepWinningFee  lottery.Amount `toml:"keep_winning_fee" env:"KEEP_WINNING_FEE"`
	MinimumFlowRate lottery.Amount `toml:"minimum_flow_rate" env:"MINIMUM_FLOW_RATE"`
	IgnoreTokenCap  uint64         `toml:"ignore_token_cap" env:"IGNORE_TOKEN_CAP"`
	Selection       string         `toml:"selection" env:"SELECTION"`
}

type Log struct {
	Level slog.Level `toml:"level" env:"LEVEL"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Node: Node{
			Listen:        "127.0.0.1:0",
			DataDir:       "lottery-data",
			Timeout:       5 * time.Minute,
			DiscoveryPort: 53552,
		},
		Lottery: Lottery{
			// 10^12 base units per second
			EmissionRate:    lottery.NewAmount(1_000_000_000_000),
			TriggerFee:      lottery.NewAmount(1),
			KeepWinningFee:  lottery.NewAmount(1),
			MinimumFlowRate: lottery.NewAmount(1),
			Selection:       lottery.PolicyUniform,
		},
		Log: Log{Level: slog.LevelInfo},
	}
}

// Load builds the configuration. An empty path skips the file layer; a
// path that does not exist is an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		md, err := toml.DecodeFile(filepath.Clean(path), &cfg)
		if err != nil {
			return Config{}, fmt.Errorf("decode config file: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return Config{}, fmt.Errorf("unknown config keys: %v", undecoded)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFromEnvFile loads the file named by LOTTERY_CONFIG, if set.
func LoadFromEnvFile() (Config, error) {
	return Load(os.Getenv("LOTTERY_CONFIG"))
}

func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Node.Listen) == "" {
		errs = append(errs, errors.New("node.listen is required"))
	}
	if c.Node.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("node.timeout must be positive, got %s", c.Node.Timeout))
	}
	if c.Node.Discovery && c.Node.ExpectedPeers <= 0 {
		errs = append(errs, errors.New("node.expected_peers must be set when discovery is enabled"))
	}
	if _, err := lottery.PolicyByName(c.Lottery.Selection); err != nil {
		errs = append(errs, fmt.Errorf("lottery.selection: %w", err))
	}
	return errors.Join(errs...)
}

// PoolConfig is the pool part of the lottery section.
func (l Lottery) PoolConfig() lottery.Config {
	return lottery.Config{
		EmissionRate:   l.EmissionRate,
		TriggerFee:     l.TriggerFee,
		KeepWinningFee: l.KeepWinningFee,
		IgnoreTokenCap: l.IgnoreTokenCap,
	}
}

// LedgerPath is the bbolt file inside the data directory.
func (n Node) LedgerPath() string {
	return filepath.Join(n.DataDir, "ledger.db")
}
