package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"

	"stakenet/native/referral"
)

// Config captures the runtime settings for stakenetd.
type Config struct {
	ListenAddress           string   `toml:"ListenAddress"`
	DataDir                 string   `toml:"DataDir"`
	Ephemeral               bool     `toml:"Ephemeral"`
	TreasuryAddress         string   `toml:"TreasuryAddress"`
	OwnerAPIToken           string   `toml:"OwnerAPIToken"`
	RewardRatePerBlock      string   `toml:"RewardRatePerBlock"`
	CommissionRateBps       uint64   `toml:"CommissionRateBps"`
	MinCommissionWei        string   `toml:"MinCommissionWei"`
	BlockTimeSeconds        uint64   `toml:"BlockTimeSeconds"`
	GenesisUnix             int64    `toml:"GenesisUnix"`
	PausedModules           []string `toml:"PausedModules"`
	GatewayRequestsPerMin   uint32   `toml:"GatewayRequestsPerMin"`
	GatewayIPRequestsPerMin uint32   `toml:"GatewayIPRequestsPerMin"`
}

const (
	defaultListenAddress    = "0.0.0.0:8551"
	defaultDataDir          = "./stakenet-data"
	defaultBlockTime        = 1
	defaultRequestsPerMin   = 240
	defaultIPRequestsPerMin = 600
)

// Load loads the configuration from the given path, creating a default file
// when none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.ListenAddress) == "" {
		c.ListenAddress = defaultListenAddress
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = defaultDataDir
	}
	if strings.TrimSpace(c.RewardRatePerBlock) == "" {
		c.RewardRatePerBlock = "0"
	}
	if strings.TrimSpace(c.MinCommissionWei) == "" {
		c.MinCommissionWei = "0"
	}
	if c.BlockTimeSeconds == 0 {
		c.BlockTimeSeconds = defaultBlockTime
	}
	if c.GatewayRequestsPerMin == 0 {
		c.GatewayRequestsPerMin = defaultRequestsPerMin
	}
	if c.GatewayIPRequestsPerMin == 0 {
		c.GatewayIPRequestsPerMin = defaultIPRequestsPerMin
	}
}

// Validate ensures the configuration is internally consistent before the
// daemon wires any component.
func (c *Config) Validate() error {
	if _, err := c.RewardRate(); err != nil {
		return err
	}
	if _, err := c.MinCommission(); err != nil {
		return err
	}
	if c.CommissionRateBps > referral.MaxCommissionRateBps {
		return fmt.Errorf("CommissionRateBps %d exceeds maximum %d", c.CommissionRateBps, referral.MaxCommissionRateBps)
	}
	if trimmed := strings.TrimSpace(c.TreasuryAddress); trimmed != "" {
		if !common.IsHexAddress(trimmed) {
			return fmt.Errorf("TreasuryAddress %q is not a valid hex address", c.TreasuryAddress)
		}
		if common.HexToAddress(trimmed) == (common.Address{}) {
			return fmt.Errorf("TreasuryAddress must not be the zero address")
		}
	}
	return nil
}

// RewardRate parses the configured per-block emission rate.
func (c *Config) RewardRate() (*big.Int, error) {
	return parseAmount("RewardRatePerBlock", c.RewardRatePerBlock)
}

// MinCommission parses the configured commission dust floor.
func (c *Config) MinCommission() (*big.Int, error) {
	return parseAmount("MinCommissionWei", c.MinCommissionWei)
}

// Treasury returns the configured treasury address, or false when unset.
func (c *Config) Treasury() ([20]byte, bool) {
	trimmed := strings.TrimSpace(c.TreasuryAddress)
	if trimmed == "" || !common.IsHexAddress(trimmed) {
		return [20]byte{}, false
	}
	return common.HexToAddress(trimmed), true
}

func parseAmount(field, raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("%s %q is not a decimal integer", field, raw)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("%s must not be negative", field)
	}
	return amount, nil
}
