// Package config loads node configuration from YAML with sane
// defaults. Values only; it has no behavior of its own.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"genx/ledger"
)

// Config is the full configuration surface of a node.
type Config struct {
	DataDir    string   `yaml:"data_dir"`
	ListenAddr string   `yaml:"listen_addr"`
	APIAddr    string   `yaml:"api_addr"`
	Bootstrap  []string `yaml:"bootstrap_peers"`

	Validator Validator `yaml:"validator"`
	Network   Network   `yaml:"network"`
	Ledger    Ledger    `yaml:"ledger"`
}

// Validator enables block production with the given key.
type Validator struct {
	Enabled bool   `yaml:"enabled"`
	KeyHex  string `yaml:"key"`
}

// Network holds the peer-to-peer knobs.
type Network struct {
	AdvertiseAddr    string        `yaml:"advertise_addr"`
	MaxInbound       int           `yaml:"max_inbound"`
	MaxOutbound      int           `yaml:"max_outbound"`
	PingInterval     time.Duration `yaml:"ping_interval"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	RetryBackoff     time.Duration `yaml:"retry_backoff"`
	MaxRetries       int           `yaml:"max_retries"`
	SyncInterval     time.Duration `yaml:"sync_interval"`
}

// Ledger holds chain economics and retargeting.
type Ledger struct {
	BlockReward        uint64              `yaml:"block_reward"`
	MaxBlockTxs        int                 `yaml:"max_block_txs"`
	TargetBlockTime    time.Duration       `yaml:"target_block_time"`
	DifficultyInterval uint64              `yaml:"difficulty_interval"`
	Genesis            []ledger.Allocation `yaml:"genesis"`
}

// Default returns the configuration used when no file overrides it.
func Default() Config {
	return Config{
		DataDir:    "./data",
		ListenAddr: "127.0.0.1:8333",
		APIAddr:    "127.0.0.1:8080",
		Network: Network{
			MaxInbound:       32,
			MaxOutbound:      8,
			PingInterval:     30 * time.Second,
			HandshakeTimeout: 10 * time.Second,
			RetryBackoff:     5 * time.Second,
			MaxRetries:       3,
			SyncInterval:     30 * time.Second,
		},
		Ledger: Ledger{
			BlockReward:        50,
			MaxBlockTxs:        100,
			TargetBlockTime:    5 * time.Second,
			DifficultyInterval: 10,
		},
	}
}

// Load reads path over the defaults. An empty path returns the
// defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
