package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Queue.CheckInterval != 2*time.Second {
		t.Errorf("CheckInterval = %v, want 2s", cfg.Queue.CheckInterval)
	}
	if cfg.Queue.RetryDelay != 1*time.Second {
		t.Errorf("RetryDelay = %v, want 1s", cfg.Queue.RetryDelay)
	}
	if cfg.Queue.SwapRetryDelay != 30*time.Second {
		t.Errorf("SwapRetryDelay = %v, want 30s", cfg.Queue.SwapRetryDelay)
	}
	if cfg.Queue.MaxRetries != 2 {
		t.Errorf("MaxRetries = %d, want 2", cfg.Queue.MaxRetries)
	}
	if cfg.Aggregator.Slippage != 0.05 {
		t.Errorf("Slippage = %v, want 0.05", cfg.Aggregator.Slippage)
	}
	if cfg.Chain.ReceiptPollInterval != 3*time.Second {
		t.Errorf("ReceiptPollInterval = %v, want 3s", cfg.Chain.ReceiptPollInterval)
	}
	if cfg.Chain.ReceiptMaxPolls != 1000 {
		t.Errorf("ReceiptMaxPolls = %d, want 1000", cfg.Chain.ReceiptMaxPolls)
	}
}

func TestLoadCreatesDefaultConfig(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Queue.CheckInterval != 2*time.Second {
		t.Errorf("CheckInterval = %v, want default", cfg.Queue.CheckInterval)
	}

	if _, err := os.Stat(filepath.Join(dir, ConfigFileName)); err != nil {
		t.Errorf("config file not written: %v", err)
	}
}

func TestLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()

	cfg := DefaultConfig()
	cfg.Queue.MaxRetries = 5
	cfg.Chain.WarehouseAddress = "0x1234567890abcdef1234567890abcdef12345678"
	if err := cfg.Save(filepath.Join(dir, ConfigFileName)); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Queue.MaxRetries != 5 {
		t.Errorf("MaxRetries = %d, want 5", loaded.Queue.MaxRetries)
	}
	if loaded.Chain.WarehouseAddress != cfg.Chain.WarehouseAddress {
		t.Errorf("WarehouseAddress = %q", loaded.Chain.WarehouseAddress)
	}
}

func TestLoadPartialConfigKeepsDefaults(t *testing.T) {
	dir := t.TempDir()

	partial := "queue:\n  max_retries: 7\n"
	if err := os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(partial), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Queue.MaxRetries != 7 {
		t.Errorf("MaxRetries = %d, want 7", cfg.Queue.MaxRetries)
	}
	if cfg.Queue.CheckInterval != 2*time.Second {
		t.Errorf("CheckInterval = %v, want default preserved", cfg.Queue.CheckInterval)
	}
}

func TestLoadSecrets(t *testing.T) {
	t.Setenv(EnvPrivateKey, "ab"+"cd")
	t.Setenv(EnvRPCURL, "http://localhost:8545")
	t.Setenv(EnvWSRPCURL, "ws://localhost:8546")

	s, err := LoadSecrets()
	if err != nil {
		t.Fatalf("LoadSecrets() error = %v", err)
	}
	if s.RPCURL != "http://localhost:8545" {
		t.Errorf("RPCURL = %q", s.RPCURL)
	}
}

func TestLoadSecretsMissing(t *testing.T) {
	t.Setenv(EnvPrivateKey, "")
	t.Setenv(EnvRPCURL, "http://localhost:8545")
	t.Setenv(EnvWSRPCURL, "ws://localhost:8546")

	if _, err := LoadSecrets(); err == nil {
		t.Fatal("expected error for missing private key")
	}
}

func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()
	expanded := ExpandPath("~/.test")
	expected := filepath.Join(home, ".test")

	if expanded != expected {
		t.Errorf("ExpandPath(~/.test) = %s, want %s", expanded, expected)
	}
}
