// Package config holds the tunable constants and file-based settings for
// the chain engine.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// EngineConfig holds the business-rule constants that govern discovery and
// the lifecycle coordinator. These map directly onto the values named in
// the external interfaces contract.
type EngineConfig struct {
	MaxChainDepth         int           `yaml:"max_chain_depth"`
	ValueTolerancePercent float64       `yaml:"value_tolerance_percent"`
	MinReputation         float64       `yaml:"min_reputation"`
	MinTradesCompleted    int           `yaml:"min_trades_completed"`
	PlatformFeeCents      int64         `yaml:"platform_fee_cents"`
	ProposalTTL           time.Duration `yaml:"proposal_ttl"`
	RejectionCooldown     time.Duration `yaml:"rejection_cooldown"`
	SweepInterval         time.Duration `yaml:"sweep_interval"`
}

// DefaultEngineConfig returns the constants named in the external
// interfaces contract.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		MaxChainDepth:         3,
		ValueTolerancePercent: 15,
		MinReputation:         3.5,
		MinTradesCompleted:    0,
		PlatformFeeCents:      1500,
		ProposalTTL:           24 * time.Hour,
		RejectionCooldown:     30 * 24 * time.Hour,
		SweepInterval:         5 * time.Minute,
	}
}

// MaxCashDeltaFraction returns the tolerance as a fraction rather than a
// percentage, convenient for the validator's comparison against a ratio.
func (c EngineConfig) MaxCashDeltaFraction() float64 {
	return c.ValueTolerancePercent / 100.0
}

// StorageConfig holds where the engine keeps its SQLite database.
type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
}

// RPCConfig holds the JSON-RPC/WebSocket listen address.
type RPCConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Config is the full file-backed configuration for a chain engine
// instance.
type Config struct {
	Engine  EngineConfig  `yaml:"engine"`
	Storage StorageConfig `yaml:"storage"`
	RPC     RPCConfig     `yaml:"rpc"`
	Logging LoggingConfig `yaml:"logging"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Engine: DefaultEngineConfig(),
		Storage: StorageConfig{
			DataDir: "~/.chainengine",
		},
		RPC: RPCConfig{
			ListenAddr:  "127.0.0.1:8787",
			MetricsAddr: "127.0.0.1:8788",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// ConfigFileName is the default config file name.
const ConfigFileName = "config.yaml"

// LoadConfig loads configuration from a YAML file under dataDir. If the
// file doesn't exist, it creates one with default values.
func LoadConfig(dataDir string) (*Config, error) {
	expandedDir := expandPath(dataDir)
	configPath := filepath.Join(expandedDir, ConfigFileName)

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.Storage.DataDir = dataDir

		if err := cfg.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}

		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte("# Chain engine configuration\n# Generated automatically on first run\n\n")
	data = append(header, data...)

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ConfigPath returns the full path to the config file for the given data
// directory.
func ConfigPath(dataDir string) string {
	return filepath.Join(expandPath(dataDir), ConfigFileName)
}

// expandPath expands a leading ~ to the user's home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
