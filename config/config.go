package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"plnmarket/crypto"
	"plnmarket/native/credit"
)

type Config struct {
	RPCAddress string `toml:"RPCAddress"`
	DataDir    string `toml:"DataDir"`
	// RPCAuthToken, when set, gates admin methods behind a bearer token.
	RPCAuthToken string `toml:"RPCAuthToken,omitempty"`

	// Admin controls fee rates and the trade whitelist.
	Admin string `toml:"Admin"`
	// InsurancePool and Treasury receive the interest split.
	InsurancePool string `toml:"InsurancePool"`
	Treasury      string `toml:"Treasury"`
	// RouterPool custodians the liquidity router's funds.
	RouterPool string `toml:"RouterPool"`

	// InsuranceFeeBps and ProtocolFeeBps seed the fee split; governance can
	// change them later through the admin RPC.
	InsuranceFeeBps uint64 `toml:"InsuranceFeeBps"`
	ProtocolFeeBps  uint64 `toml:"ProtocolFeeBps"`

	Log LogConfig `toml:"Log"`
}

type LogConfig struct {
	Level      string `toml:"Level"`
	Env        string `toml:"Env,omitempty"`
	File       string `toml:"File,omitempty"`
	MaxSizeMB  int    `toml:"MaxSizeMB,omitempty"`
	MaxBackups int    `toml:"MaxBackups,omitempty"`
}

// Load reads the configuration, fills defaults and validates it.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{}
	cfg.normalize()
	return cfg
}

func (c *Config) normalize() {
	if strings.TrimSpace(c.RPCAddress) == "" {
		c.RPCAddress = "127.0.0.1:8645"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./plnmarket-data"
	}
	if c.InsuranceFeeBps == 0 {
		c.InsuranceFeeBps = credit.DefaultInsuranceFeeBps
	}
	if c.ProtocolFeeBps == 0 {
		c.ProtocolFeeBps = credit.DefaultProtocolFeeBps
	}
	if strings.TrimSpace(c.Log.Level) == "" {
		c.Log.Level = "info"
	}
}

// Validate rejects configurations the node cannot start with.
func (c *Config) Validate() error {
	for name, value := range map[string]string{
		"Admin":         c.Admin,
		"InsurancePool": c.InsurancePool,
		"Treasury":      c.Treasury,
		"RouterPool":    c.RouterPool,
	} {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("config: %s address is required", name)
		}
		if _, err := crypto.DecodeAddress(value); err != nil {
			return fmt.Errorf("config: invalid %s address: %w", name, err)
		}
	}
	if c.InsuranceFeeBps > credit.MaxInsuranceFeeBps {
		return fmt.Errorf("config: InsuranceFeeBps %d above cap %d", c.InsuranceFeeBps, credit.MaxInsuranceFeeBps)
	}
	if c.ProtocolFeeBps > credit.MaxProtocolFeeBps {
		return fmt.Errorf("config: ProtocolFeeBps %d above cap %d", c.ProtocolFeeBps, credit.MaxProtocolFeeBps)
	}
	return nil
}

// AdminAddress decodes the configured admin.
func (c *Config) AdminAddress() (crypto.Address, error) {
	return crypto.DecodeAddress(c.Admin)
}

// InsurancePoolAddress decodes the configured insurance pool account.
func (c *Config) InsurancePoolAddress() (crypto.Address, error) {
	return crypto.DecodeAddress(c.InsurancePool)
}

// TreasuryAddress decodes the configured treasury account.
func (c *Config) TreasuryAddress() (crypto.Address, error) {
	return crypto.DecodeAddress(c.Treasury)
}

// RouterPoolAddress decodes the configured router pool account.
func (c *Config) RouterPoolAddress() (crypto.Address, error) {
	return crypto.DecodeAddress(c.RouterPool)
}

// WriteDefault persists a starter config with freshly generated module
// accounts so a new deployment can boot without hand-editing addresses.
func WriteDefault(path string) (*Config, error) {
	cfg := Default()
	for _, target := range []*string{&cfg.Admin, &cfg.InsurancePool, &cfg.Treasury, &cfg.RouterPool} {
		key, err := crypto.GeneratePrivateKey()
		if err != nil {
			return nil, err
		}
		*target = key.PubKey().Address().String()
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, fmt.Errorf("config: write default: %w", err)
	}
	return cfg, nil
}
