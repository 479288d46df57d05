package config

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the tickvault archive jobs.
type Config struct {
	Storage Storage `yaml:"storage"`
	Fetch   Fetch   `yaml:"fetch"`
	Ingest  Ingest  `yaml:"ingest"`
	Alpaca  Alpaca  `yaml:"alpaca"`
	Logging Logging `yaml:"logging"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir      string `yaml:"data_dir"`      // root of ohlcv/1s and ohlcv/1Ys
	JournalPath  string `yaml:"journal_path"`  // SQLite run journal
	RegistryPath string `yaml:"registry_path"` // symbols.yaml
	IndexPath    string `yaml:"index_path"`    // instruments.json boundary index
}

// Fetch configures the external market-data downloader.
type Fetch struct {
	Provider        string `yaml:"provider"`     // "dukascopy" (default) or "alpaca"
	Command         string `yaml:"command"`      // downloader launcher, default "npx"
	DownloadDir     string `yaml:"download_dir"` // transient CSV drop directory
	TimeoutSec      int    `yaml:"timeout_sec"`  // per-date fetch timeout
	MaxAttempts     int    `yaml:"max_attempts"`
	BackoffMS       int    `yaml:"backoff_ms"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min"`
}

// Ingest controls per-run concurrency.
type Ingest struct {
	MaxWorkers int `yaml:"max_workers"` // concurrent instrument pipelines
}

// Alpaca holds credentials for the Alpaca market-data provider.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	DataURL   string `yaml:"data_url"`
	Feed      string `yaml:"feed"`
}

// Logging configures the application logger.
type Logging struct {
	Level string `yaml:"level"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, applies defaults, and then applies environment variable
// overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	return cfg, nil
}

// applyDefaults fills unset fields with workable values so a minimal config
// file still produces a runnable job.
func applyDefaults(cfg *Config) {
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "data"
	}
	if cfg.Storage.JournalPath == "" {
		cfg.Storage.JournalPath = "data/journal.db"
	}
	if cfg.Storage.RegistryPath == "" {
		cfg.Storage.RegistryPath = "symbols.yaml"
	}
	if cfg.Storage.IndexPath == "" {
		cfg.Storage.IndexPath = "instruments.json"
	}
	if cfg.Fetch.Provider == "" {
		cfg.Fetch.Provider = "dukascopy"
	}
	if cfg.Fetch.Command == "" {
		cfg.Fetch.Command = "npx"
	}
	if cfg.Fetch.DownloadDir == "" {
		cfg.Fetch.DownloadDir = "download"
	}
	if cfg.Fetch.TimeoutSec <= 0 {
		cfg.Fetch.TimeoutSec = 300
	}
	if cfg.Fetch.MaxAttempts <= 0 {
		cfg.Fetch.MaxAttempts = 3
	}
	if cfg.Fetch.BackoffMS <= 0 {
		cfg.Fetch.BackoffMS = 2000
	}
	if cfg.Ingest.MaxWorkers <= 0 {
		cfg.Ingest.MaxWorkers = 4
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("JOURNAL_PATH"); v != "" {
		cfg.Storage.JournalPath = v
	}
	if v := os.Getenv("REGISTRY_PATH"); v != "" {
		cfg.Storage.RegistryPath = v
	}
	if v := os.Getenv("INDEX_PATH"); v != "" {
		cfg.Storage.IndexPath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("FETCH_PROVIDER"); v != "" {
		cfg.Fetch.Provider = v
	}
	if v := os.Getenv("FETCH_MAX_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Ingest.MaxWorkers = n
		}
	}

	// Standard Alpaca env vars (canonical names used by the SDK).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}
