// Package config loads leakr settings from a YAML file, a .env file and
// LEAKR_* environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kittclouds/leakr/pkg/resolver"
)

const defaultConfigFile = "leakr.yaml"

// Config is the full runtime configuration.
type Config struct {
	Storage    StorageConfig   `yaml:"storage"`
	Data       DataConfig      `yaml:"data"`
	Resolver   resolver.Config `yaml:"resolver"`
	Migrations MigrationConfig `yaml:"migrations"`
	Sync       SyncConfig      `yaml:"sync"`
	Log        LogConfig       `yaml:"log"`
}

// StorageConfig points at the remote snapshot storage service.
type StorageConfig struct {
	BaseURL string        `yaml:"base_url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

// DataConfig locates local state for the CLI host.
type DataConfig struct {
	Dir      string `yaml:"dir"`
	BoltFile string `yaml:"bolt_file"`
	CacheDir string `yaml:"cache_dir"`
}

// MigrationConfig controls schema migration checks.
type MigrationConfig struct {
	StrictTarget bool `yaml:"strict_target"`
}

// SyncConfig controls remote snapshot sync.
type SyncConfig struct {
	Enabled       bool `yaml:"enabled"`
	UploadOnFlush bool `yaml:"upload_on_flush"`
}

// LogConfig controls the slog handler.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns a configuration that works without any file.
func Default() Config {
	return Config{
		Storage: StorageConfig{
			BaseURL: "http://localhost:8080",
			Timeout: 30 * time.Second,
		},
		Data: DataConfig{
			Dir:      defaultDataDir(),
			BoltFile: "leakr.db",
			CacheDir: "wasm-cache",
		},
		Resolver: resolver.DefaultConfig(),
		Sync: SyncConfig{
			Enabled:       true,
			UploadOnFlush: true,
		},
		Log: LogConfig{Level: "info"},
	}
}

// ResolvePath returns the config file path from LEAKR_CONFIG, or the default.
func ResolvePath() string {
	if v := strings.TrimSpace(os.Getenv("LEAKR_CONFIG")); v != "" {
		return v
	}
	return filepath.Join(".", defaultConfigFile)
}

// Load reads path over the defaults, then applies .env and LEAKR_* overrides.
// A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	// .env is optional; the variables it sets feed applyEnv below.
	_ = godotenv.Load()

	path = strings.TrimSpace(path)
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := strings.TrimSpace(os.Getenv("LEAKR_STORAGE_URL")); v != "" {
		cfg.Storage.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("LEAKR_TOKEN")); v != "" {
		cfg.Storage.Token = v
	}
	if v := strings.TrimSpace(os.Getenv("LEAKR_DATA_DIR")); v != "" {
		cfg.Data.Dir = v
	}
	if v := strings.TrimSpace(os.Getenv("LEAKR_LOG_LEVEL")); v != "" {
		cfg.Log.Level = v
	}
	if v := strings.TrimSpace(os.Getenv("LEAKR_SYNC")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("LEAKR_SYNC: %w", err)
		}
		cfg.Sync.Enabled = b
	}
	return nil
}

// Validate rejects configurations that cannot work.
func (c Config) Validate() error {
	if c.Sync.Enabled && strings.TrimSpace(c.Storage.BaseURL) == "" {
		return errors.New("sync enabled but storage.base_url is empty")
	}
	if c.Storage.Timeout < 0 {
		return errors.New("storage.timeout must not be negative")
	}
	if err := c.Resolver.Validate(); err != nil {
		return fmt.Errorf("resolver: %w", err)
	}
	return nil
}

// BoltPath is the full path of the CLI's local blob file.
func (c Config) BoltPath() string {
	if filepath.IsAbs(c.Data.BoltFile) {
		return c.Data.BoltFile
	}
	return filepath.Join(c.Data.Dir, c.Data.BoltFile)
}

// CachePath is the full path of the wasm compilation cache.
func (c Config) CachePath() string {
	if filepath.IsAbs(c.Data.CacheDir) {
		return c.Data.CacheDir
	}
	return filepath.Join(c.Data.Dir, c.Data.CacheDir)
}

// SlogLevel maps Log.Level to a slog.Level. Unknown names mean info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.Log.Level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "leakr")
	}
	return ".leakr"
}
