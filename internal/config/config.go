// Package config provides centralized configuration for the AGI solver.
// All tunables (scheduler intervals, retry policy, aggregator settings)
// are defined here; secrets come from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables holding startup secrets. The daemon refuses to
// start without them.
const (
	EnvPrivateKey = "SOLVER_PRIVATE_KEY"
	EnvRPCURL     = "RPC_URL"
	EnvWSRPCURL   = "WS_RPC_URL"
)

// Config holds all configuration for the solver daemon.
type Config struct {
	// Chain holds on-chain connection settings.
	Chain ChainConfig `yaml:"chain"`

	// Queue holds intent queue scheduling settings.
	Queue QueueConfig `yaml:"queue"`

	// Aggregator holds DEX aggregator client settings.
	Aggregator AggregatorConfig `yaml:"aggregator"`

	// Storage holds local persistence settings.
	Storage StorageConfig `yaml:"storage"`

	// API holds the operator RPC server settings.
	API APIConfig `yaml:"api"`

	// Logging holds logging settings.
	Logging LoggingConfig `yaml:"logging"`
}

// ChainConfig holds on-chain connection settings. RPC endpoints and the
// solver key are environment-only and never written to the config file.
type ChainConfig struct {
	// ChainID is the EVM chain ID the solver operates on.
	ChainID uint64 `yaml:"chain_id"`

	// WarehouseAddress is the escrow contract address (0x-prefixed).
	WarehouseAddress string `yaml:"warehouse_address"`

	// ReceiptPollInterval is how often to poll for a missing receipt.
	ReceiptPollInterval time.Duration `yaml:"receipt_poll_interval"`

	// ReceiptMaxPolls caps receipt polling attempts per transaction.
	ReceiptMaxPolls int `yaml:"receipt_max_polls"`
}

// QueueConfig holds intent queue scheduling settings.
type QueueConfig struct {
	// CheckInterval is the queue ticker period.
	CheckInterval time.Duration `yaml:"check_interval"`

	// RetryDelay is applied after successful steps and generic errors.
	RetryDelay time.Duration `yaml:"retry_delay"`

	// SwapRetryDelay is applied after swap errors.
	SwapRetryDelay time.Duration `yaml:"swap_retry_delay"`

	// MaxRetries is the swap-error ceiling before an intent is evicted.
	MaxRetries int `yaml:"max_retries"`
}

// AggregatorConfig holds DEX aggregator client settings.
type AggregatorConfig struct {
	// BaseURL is the aggregator API base URL.
	BaseURL string `yaml:"base_url"`

	// Slippage is the tolerated slippage fraction passed on swap requests.
	Slippage float64 `yaml:"slippage"`

	// RequestTimeout bounds each aggregator HTTP call.
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// StorageConfig holds local persistence settings.
type StorageConfig struct {
	// DataDir is the directory for the solver database.
	DataDir string `yaml:"data_dir"`
}

// APIConfig holds the operator RPC server settings.
type APIConfig struct {
	// ListenAddr is the HTTP listen address. Empty disables the server.
	ListenAddr string `yaml:"listen_addr"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the log level (debug, info, warn, error).
	Level string `yaml:"level"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Chain: ChainConfig{
			ChainID:             8453,
			WarehouseAddress:    "",
			ReceiptPollInterval: 3 * time.Second,
			ReceiptMaxPolls:     1000,
		},
		Queue: QueueConfig{
			CheckInterval:  2 * time.Second,
			RetryDelay:     1 * time.Second,
			SwapRetryDelay: 30 * time.Second,
			MaxRetries:     2,
		},
		Aggregator: AggregatorConfig{
			BaseURL:        "https://aggregator.1inch.dev/swap/v6.0/8453",
			Slippage:       0.05,
			RequestTimeout: 30 * time.Second,
		},
		Storage: StorageConfig{
			DataDir: "~/.agi-solver",
		},
		API: APIConfig{
			ListenAddr: "127.0.0.1:8080",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Secrets holds startup secrets read from the environment.
type Secrets struct {
	PrivateKey string
	RPCURL     string
	WSRPCURL   string
}

// LoadSecrets reads required secrets from the environment. A missing
// value is a fatal misconfiguration.
func LoadSecrets() (*Secrets, error) {
	s := &Secrets{
		PrivateKey: os.Getenv(EnvPrivateKey),
		RPCURL:     os.Getenv(EnvRPCURL),
		WSRPCURL:   os.Getenv(EnvWSRPCURL),
	}
	if s.PrivateKey == "" {
		return nil, fmt.Errorf("missing required environment variable %s", EnvPrivateKey)
	}
	if s.RPCURL == "" {
		return nil, fmt.Errorf("missing required environment variable %s", EnvRPCURL)
	}
	if s.WSRPCURL == "" {
		return nil, fmt.Errorf("missing required environment variable %s", EnvWSRPCURL)
	}
	return s, nil
}

// ConfigFileName is the default config file name.
const ConfigFileName = "config.yaml"

// Load loads configuration from a YAML file in dataDir.
// If the file doesn't exist, it creates one with default values.
func Load(dataDir string) (*Config, error) {
	expandedDir := ExpandPath(dataDir)
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

	header := []byte("# AGI Solver Configuration\n# Generated automatically on first run\n\n")
	data = append(header, data...)

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Path returns the full path to the config file for the given data directory.
func Path(dataDir string) string {
	return filepath.Join(ExpandPath(dataDir), ConfigFileName)
}

// ExpandPath expands ~ to home directory.
func ExpandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
