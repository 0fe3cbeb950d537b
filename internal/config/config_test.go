package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigCreatesDefault(t *testing.T) {
	dir, err := os.MkdirTemp("", "chainengine-config-*")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	defer os.RemoveAll(dir)

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Engine.MaxChainDepth != 3 {
		t.Errorf("expected default MaxChainDepth=3, got %d", cfg.Engine.MaxChainDepth)
	}

	if _, err := os.Stat(filepath.Join(dir, ConfigFileName)); err != nil {
		t.Errorf("expected config file to be created: %v", err)
	}
}

func TestLoadConfigRoundTrip(t *testing.T) {
	dir, err := os.MkdirTemp("", "chainengine-config-*")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	defer os.RemoveAll(dir)

	cfg := DefaultConfig()
	cfg.Engine.ValueTolerancePercent = 20
	if err := cfg.Save(ConfigPath(dir)); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if loaded.Engine.ValueTolerancePercent != 20 {
		t.Errorf("expected ValueTolerancePercent=20, got %v", loaded.Engine.ValueTolerancePercent)
	}
}

func TestMaxCashDeltaFraction(t *testing.T) {
	cfg := DefaultEngineConfig()
	if got := cfg.MaxCashDeltaFraction(); got != 0.15 {
		t.Errorf("expected fraction 0.15, got %v", got)
	}
}
