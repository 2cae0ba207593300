package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration wraps time.Duration so TOML values can be written as "5m" or
// "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

type Config struct {
	ListenAddress string   `toml:"ListenAddress"`
	MetricsAddr   string   `toml:"MetricsAddr"`
	DataDir       string   `toml:"DataDir"`
	IdentityFile  string   `toml:"IdentityFile"`
	NetworkName   string   `toml:"NetworkName"`
	ChainID       uint64   `toml:"ChainID"`
	GenesisHash   string   `toml:"GenesisHash"`
	Bootnodes     []string `toml:"Bootnodes"`

	UnbanEveryoneInterval Duration `toml:"UnbanEveryoneInterval"`
	AskTimeout            Duration `toml:"AskTimeout"`
	RetryInterval         Duration `toml:"RetryInterval"`
	MaxPropagationRecords int      `toml:"MaxPropagationRecords"`
	MaxOperationBatch     int      `toml:"MaxOperationBatch"`
	MaxPeers              int      `toml:"MaxPeers"`

	OTLPEndpoint string `toml:"OTLPEndpoint"`
	OTLPInsecure bool   `toml:"OTLPInsecure"`
	OTLPHeaders  string `toml:"OTLPHeaders"`
}

// Load loads the configuration from the given path, writing a default file
// when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = "massa-local"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./massa-data"
	}
	if strings.TrimSpace(cfg.IdentityFile) == "" {
		cfg.IdentityFile = filepath.Join(cfg.DataDir, "identity.json")
	}
	if cfg.Bootnodes == nil {
		cfg.Bootnodes = []string{}
	}
	if _, err := cfg.Genesis(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Genesis decodes the configured genesis hash.
func (c *Config) Genesis() ([]byte, error) {
	value := strings.TrimSpace(c.GenesisHash)
	value = strings.TrimPrefix(value, "0x")
	if value == "" {
		return []byte{}, nil
	}
	raw, err := hex.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("invalid GenesisHash: %w", err)
	}
	return raw, nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		ListenAddress:         ":31244",
		MetricsAddr:           ":9100",
		DataDir:               "./massa-data",
		NetworkName:           "massa-local",
		ChainID:               77,
		Bootnodes:             []string{},
		UnbanEveryoneInterval: Duration{5 * time.Minute},
		AskTimeout:            Duration{10 * time.Second},
		RetryInterval:         Duration{2 * time.Second},
		MaxPropagationRecords: 4096,
		MaxOperationBatch:     1024,
		MaxPeers:              64,
	}
	cfg.IdentityFile = filepath.Join(cfg.DataDir, "identity.json")

	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
