package config

import (
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Discovery.PowerfulMin != 14 || cfg.Discovery.FastMax != 7 {
		t.Fatalf("unexpected tier defaults: %+v", cfg.Discovery)
	}
	if cfg.Server.BinaryPath != "llama-server" {
		t.Fatalf("unexpected default binary path: %s", cfg.Server.BinaryPath)
	}
}

func TestLoad_NoFileFallsBackToDefaults(t *testing.T) {
	t.Setenv("ORCHESTRATOR_HOME", t.TempDir())
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Discovery.PortRangeLo != 8100 {
		t.Fatalf("expected default port range, got %d", cfg.Discovery.PortRangeLo)
	}
	if cfg.Server.NThreads <= 0 {
		t.Fatalf("expected auto-detected thread count, got %d", cfg.Server.NThreads)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ORCHESTRATOR_HOME", t.TempDir())
	t.Setenv("ORCHESTRATOR_SCAN_PATH", "/custom/models")
	t.Setenv("ORCHESTRATOR_PORT_RANGE_LO", "9500")
	t.Setenv("ORCHESTRATOR_POWERFUL_THRESHOLD", "20")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Discovery.ScanPath != "/custom/models" {
		t.Fatalf("scan path override not applied: %s", cfg.Discovery.ScanPath)
	}
	if cfg.Discovery.PortRangeLo != 9500 {
		t.Fatalf("port range override not applied: %d", cfg.Discovery.PortRangeLo)
	}
	if cfg.Discovery.PowerfulMin != 20 {
		t.Fatalf("powerful threshold override not applied: %v", cfg.Discovery.PowerfulMin)
	}
}

func TestEnvOverrides_IndexDir(t *testing.T) {
	t.Setenv("ORCHESTRATOR_HOME", t.TempDir())
	t.Setenv("ORCHESTRATOR_INDEX_DIR", "/custom/index")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Retrieval.IndexDir != "/custom/index" {
		t.Fatalf("index dir override not applied: %s", cfg.Retrieval.IndexDir)
	}
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ORCHESTRATOR_HOME", dir)

	cfg := DefaultConfig()
	cfg.Discovery.ScanPath = filepath.Join(dir, "gguf")
	cfg.Server.NThreads = 4 // avoid auto-detect overwriting on reload
	if err := Save(cfg); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Discovery.ScanPath != cfg.Discovery.ScanPath {
		t.Fatalf("scan path not round-tripped: got %s want %s", loaded.Discovery.ScanPath, cfg.Discovery.ScanPath)
	}
}
