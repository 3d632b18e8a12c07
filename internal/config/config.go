// Package config loads the genesis record and the process-wide chain
// parameters from YAML, the way minis/38-config-loader-env-yaml loads its
// Config: read the file, substitute ${VAR} / ${VAR:-default} environment
// references, unmarshal, apply defaults, validate.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/chainkit/node/internal/types"
)

// Genesis is spec.md §6's genesis configuration, applied atomically as
// block 0 the first time a node boots against an empty chain store.
type Genesis struct {
	ChainID     uint64            `yaml:"chain_id"`
	BlockTimeMS uint64            `yaml:"block_time_ms"`
	EpochSize   uint64            `yaml:"epoch_size"`
	TimestampMS uint64            `yaml:"timestamp_ms"`
	Alloc       map[string]string `yaml:"alloc"`
}

// Chain holds spec.md §6's process-wide chain parameters.
type Chain struct {
	ChainID                 uint64    `yaml:"chain_id"`
	BlockTimeMS             uint64    `yaml:"block_time_ms"`
	EpochSize               uint64    `yaml:"epoch_size"`
	ProposerReward          string    `yaml:"proposer_reward"`
	MaxTransactionsPerBlock uint64    `yaml:"max_transactions_per_block"`
	BlockGasLimit           uint64    `yaml:"block_gas_limit"`
	CommitteeSize           uint64    `yaml:"committee_size"`
	proposerReward          types.Wei `yaml:"-"`
}

// ProposerRewardWei returns the parsed per-block proposer reward.
func (c Chain) ProposerRewardWei() types.Wei { return c.proposerReward }

// Config is the top-level file loaded by Load: genesis plus chain
// parameters, and the ambient node settings (log level, data directory,
// submission rate limit) every node needs regardless of chain.
type Config struct {
	Chain   Chain    `yaml:"chain"`
	Genesis Genesis  `yaml:"genesis"`
	Node    NodeConf `yaml:"node"`
}

// NodeConf is the ambient, non-chain-parameter settings: where state
// lives on disk and how loudly the node logs.
type NodeConf struct {
	DataDir      string `yaml:"data_dir"`
	LogLevel     string `yaml:"log_level"`
	RateLimitRPS int    `yaml:"rate_limit_rps"`
}

var envPattern = regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*)(:-([^}]*))?\}`)

// substituteEnvVars replaces ${VAR} and ${VAR:-default} with environment
// values, leaving the placeholder untouched if neither is available.
func substituteEnvVars(input string) string {
	return envPattern.ReplaceAllStringFunc(input, func(match string) string {
		parts := envPattern.FindStringSubmatch(match)
		name, def := parts[1], parts[3]
		if v := os.Getenv(name); v != "" {
			return v
		}
		if def != "" {
			return def
		}
		return match
	})
}

// Load reads a YAML config file from path, substituting environment
// references, applies defaults, parses the proposer reward, and validates
// the result.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(substituteEnvVars(string(raw))), &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing yaml: %w", err)
	}

	cfg.applyDefaults()

	reward, err := types.NewWeiFromDecimal(cfg.Chain.ProposerReward)
	if err != nil {
		return nil, fmt.Errorf("config: chain.proposer_reward: %w", err)
	}
	cfg.Chain.proposerReward = reward

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Chain.BlockTimeMS == 0 {
		c.Chain.BlockTimeMS = 12_000
	}
	if c.Chain.MaxTransactionsPerBlock == 0 {
		c.Chain.MaxTransactionsPerBlock = 1000
	}
	if c.Chain.BlockGasLimit == 0 {
		c.Chain.BlockGasLimit = 30_000_000
	}
	if c.Chain.ProposerReward == "" {
		c.Chain.ProposerReward = "0"
	}
	if c.Node.LogLevel == "" {
		c.Node.LogLevel = "info"
	}
	if c.Node.DataDir == "" {
		c.Node.DataDir = "./data"
	}
	if c.Genesis.ChainID == 0 {
		c.Genesis.ChainID = c.Chain.ChainID
	}
	if c.Genesis.BlockTimeMS == 0 {
		c.Genesis.BlockTimeMS = c.Chain.BlockTimeMS
	}
	if c.Genesis.EpochSize == 0 {
		c.Genesis.EpochSize = c.Chain.EpochSize
	}
}

func (c *Config) validate() error {
	var problems []string

	if c.Chain.ChainID == 0 {
		problems = append(problems, "chain.chain_id is required and must be nonzero")
	}
	if c.Chain.ChainID != c.Genesis.ChainID {
		problems = append(problems, "chain.chain_id must match genesis.chain_id")
	}
	if c.Chain.CommitteeSize == 0 {
		problems = append(problems, "chain.committee_size must be at least 1")
	}
	for addr, balance := range c.Genesis.Alloc {
		if _, err := types.ParseAddress(addr); err != nil {
			problems = append(problems, fmt.Sprintf("genesis.alloc: invalid address %q: %v", addr, err))
			continue
		}
		if _, err := types.NewWeiFromDecimal(balance); err != nil {
			problems = append(problems, fmt.Sprintf("genesis.alloc[%s]: invalid balance %q: %v", addr, balance, err))
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Node.LogLevel] {
		problems = append(problems, "node.log_level must be one of: debug, info, warn, error")
	}

	if len(problems) > 0 {
		return fmt.Errorf("config: validation failed:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}

// Allocations parses genesis.alloc into address/balance pairs, skipping no
// entries — Load already validated every one.
func (g Genesis) Allocations() (map[types.Address]types.Wei, error) {
	out := make(map[types.Address]types.Wei, len(g.Alloc))
	for addrHex, balanceDec := range g.Alloc {
		addr, err := types.ParseAddress(addrHex)
		if err != nil {
			return nil, err
		}
		balance, err := types.NewWeiFromDecimal(balanceDec)
		if err != nil {
			return nil, err
		}
		out[addr] = balance
	}
	return out, nil
}
