// Package config loads and persists orchestrator configuration from a
// TOML file, with environment-variable overrides and auto-detected
// defaults (follows the teacher's daemon config conventions).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/BurntSushi/toml"
)

// Config holds all orchestrator configuration.
type Config struct {
	Discovery DiscoveryConfig `toml:"discovery"`
	Server    ServerConfig    `toml:"server"`
	Client    ClientConfig    `toml:"client"`
	Retrieval RetrievalConfig `toml:"retrieval"`
	Metrics   MetricsConfig   `toml:"metrics"`
	EventBus  EventBusConfig  `toml:"event_bus"`
	Instances InstancesConfig `toml:"instances"`
	CodeChat  CodeChatConfig  `toml:"code_chat"`
	Logging   LoggingConfig   `toml:"logging"`
}

// DiscoveryConfig controls model scanning and tier assignment.
type DiscoveryConfig struct {
	ScanPath     string `toml:"scan_path"`
	PortRangeLo  int    `toml:"port_range_lo"`
	PortRangeHi  int    `toml:"port_range_hi"`
	PowerfulMin  float64 `toml:"powerful_threshold"`
	FastMax      float64 `toml:"fast_threshold"`
}

// ServerConfig controls the Server Manager and its subprocess launches.
type ServerConfig struct {
	BinaryPath       string `toml:"binary_path"`
	Host             string `toml:"host"`
	CtxSize          int    `toml:"ctx_size"`
	NGPULayers       int    `toml:"n_gpu_layers"`
	NThreads         int    `toml:"n_threads"`
	BatchSize        int    `toml:"batch_size"`
	MaxStartupSecs   int    `toml:"max_startup_seconds"`
	GracefulStopSecs int    `toml:"graceful_stop_seconds"`
}

// ClientConfig controls the Inference Client's HTTP behavior.
type ClientConfig struct {
	RequestTimeoutSecs int `toml:"request_timeout_seconds"`
	MaxRetries         int `toml:"max_retries"`
	BackoffMillis      int `toml:"backoff_milliseconds"`
}

// RetrievalConfig names the single resolved location of the prebuilt
// CGRAG vector index the Retrieval Engine collaborator consults. This is
// the one source of truth (spec.md §9's ambiguity note); there is no
// fallback "project root" heuristic.
type RetrievalConfig struct {
	IndexDir string `toml:"index_dir"`
}

// MetricsConfig controls retention and ring-buffer sizing.
type MetricsConfig struct {
	RetentionDays    int    `toml:"retention_days"`
	RingCapacity     int    `toml:"ring_capacity"`
	SQLitePath       string `toml:"sqlite_path"`
}

// EventBusConfig controls pub/sub history and backpressure.
type EventBusConfig struct {
	HistorySize         int `toml:"history_size"`
	SubscriberQueueSize int `toml:"subscriber_queue_size"`
	DropTimeoutMillis   int `toml:"drop_timeout_milliseconds"`
}

// InstancesConfig controls the Instance Manager's dedicated port range.
type InstancesConfig struct {
	PortRangeLo int `toml:"port_range_lo"`
	PortRangeHi int `toml:"port_range_hi"`
}

// CodeChatConfig controls the Code-Chat ReAct agent.
type CodeChatConfig struct {
	WorkspaceRoot          string `toml:"workspace_root"`
	ConfirmationTimeoutSecs int   `toml:"confirmation_timeout_seconds"`
	MaxIterations          int    `toml:"max_iterations"`
}

// LoggingConfig controls log level and destination.
type LoggingConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	home := orchestratorHome()
	return Config{
		Discovery: DiscoveryConfig{
			ScanPath:    filepath.Join(home, "models"),
			PortRangeLo: 8100,
			PortRangeHi: 8199,
			PowerfulMin: 14,
			FastMax:     7,
		},
		Server: ServerConfig{
			BinaryPath:       "llama-server",
			Host:             "127.0.0.1",
			CtxSize:          4096,
			NGPULayers:       -1,
			NThreads:         0, // 0 = auto = runtime.NumCPU()-2
			BatchSize:        512,
			MaxStartupSecs:   60,
			GracefulStopSecs: 5,
		},
		Client: ClientConfig{
			RequestTimeoutSecs: 120,
			MaxRetries:         2,
			BackoffMillis:      250,
		},
		Retrieval: RetrievalConfig{
			IndexDir: filepath.Join(home, "index"),
		},
		Metrics: MetricsConfig{
			RetentionDays: 30,
			RingCapacity:  500_000,
			SQLitePath:    filepath.Join(home, "metrics.db"),
		},
		EventBus: EventBusConfig{
			HistorySize:         50,
			SubscriberQueueSize: 64,
			DropTimeoutMillis:   500,
		},
		Instances: InstancesConfig{
			PortRangeLo: 8200,
			PortRangeHi: 8299,
		},
		CodeChat: CodeChatConfig{
			WorkspaceRoot:           home,
			ConfirmationTimeoutSecs: 300,
			MaxIterations:           25,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  filepath.Join(home, "orchestrator.log"),
		},
	}
}

// Load reads config from $ORCHESTRATOR_HOME/config.toml, falling back to
// defaults when no file exists, then applies environment overrides.
func Load() (Config, error) {
	cfg := DefaultConfig()
	path := filepath.Join(orchestratorHome(), "config.toml")

	if _, err := os.Stat(path); os.IsNotExist(err) {
		applyEnvOverrides(&cfg)
		autoDetect(&cfg)
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	applyEnvOverrides(&cfg)
	autoDetect(&cfg)
	return cfg, nil
}

// Save writes cfg to $ORCHESTRATOR_HOME/config.toml.
func Save(cfg Config) error {
	path := filepath.Join(orchestratorHome(), "config.toml")
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}

// autoDetect fills in runtime-dependent defaults the file can't express.
func autoDetect(cfg *Config) {
	if cfg.Server.NThreads == 0 {
		cfg.Server.NThreads = max(1, runtime.NumCPU()-2)
	}
}

// applyEnvOverrides lets operators override the scan path, binary path,
// and port ranges without editing the TOML file (spec's documented
// environment knobs).
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ORCHESTRATOR_SCAN_PATH"); v != "" {
		cfg.Discovery.ScanPath = v
	}
	if v := os.Getenv("ORCHESTRATOR_BINARY_PATH"); v != "" {
		cfg.Server.BinaryPath = v
	}
	if v := os.Getenv("ORCHESTRATOR_PORT_RANGE_LO"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Discovery.PortRangeLo = n
		}
	}
	if v := os.Getenv("ORCHESTRATOR_PORT_RANGE_HI"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Discovery.PortRangeHi = n
		}
	}
	if v := os.Getenv("ORCHESTRATOR_POWERFUL_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Discovery.PowerfulMin = f
		}
	}
	if v := os.Getenv("ORCHESTRATOR_FAST_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Discovery.FastMax = f
		}
	}
	if v := os.Getenv("ORCHESTRATOR_INDEX_DIR"); v != "" {
		cfg.Retrieval.IndexDir = v
	}
	if v := os.Getenv("ORCHESTRATOR_RETENTION_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.RetentionDays = n
		}
	}
	if v := os.Getenv("ORCHESTRATOR_EVENT_HISTORY_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.EventBus.HistorySize = n
		}
	}
	if v := os.Getenv("ORCHESTRATOR_MAX_STARTUP_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.MaxStartupSecs = n
		}
	}
}

func orchestratorHome() string {
	if env := os.Getenv("ORCHESTRATOR_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".orchestrator")
}

// Home is exported for use by other packages (cache dir defaults, etc).
func Home() string {
	return orchestratorHome()
}
