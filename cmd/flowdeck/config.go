package main

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Config holds all flowdeck server configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	DataDir        string `json:"data_dir"`
	DBPath         string `json:"db_path"`
	DefinitionsDir string `json:"definitions_dir"`
	CentralEnvPath string `json:"central_env_path"`
	LogLevel       string `json:"log_level"`
	LogFormat      string `json:"log_format"`
	LogRetention   string `json:"log_retention"`
}

func defaultConfig() Config {
	return Config{
		DataDir:      flowdeckDir(),
		LogLevel:     "info",
		LogFormat:    "text",
		LogRetention: "10m",
	}
}

func flowdeckDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".flowdeck"
	}
	return filepath.Join(home, ".flowdeck")
}

func settingsPath(dataDir string) string {
	return filepath.Join(dataDir, "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath(cfg.DataDir)); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("FLOWDECK_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("FLOWDECK_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("FLOWDECK_DEFINITIONS_DIR"); v != "" {
		cfg.DefinitionsDir = v
	}
	if v := os.Getenv("FLOWDECK_CENTRAL_ENV"); v != "" {
		cfg.CentralEnvPath = v
	}
	if v := os.Getenv("FLOWDECK_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("FLOWDECK_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("FLOWDECK_LOG_RETENTION"); v != "" {
		cfg.LogRetention = v
	}

	// Derive paths under the data dir when unset.
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.DataDir, "flowdeck.db")
	}
	if cfg.DefinitionsDir == "" {
		cfg.DefinitionsDir = filepath.Join(cfg.DataDir, "definitions")
	}
	if cfg.CentralEnvPath == "" {
		cfg.CentralEnvPath = filepath.Join(cfg.DataDir, ".env")
	}

	return cfg
}

func (c Config) slogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (c Config) logRetention() time.Duration {
	d, err := time.ParseDuration(c.LogRetention)
	if err != nil || d <= 0 {
		return 10 * time.Minute
	}
	return d
}
