// Package config holds the LexMap server's runtime configuration.
//
// Precedence: built-in defaults, then an optional YAML file, then
// LEXMAP_* environment variables. Everything has a sensible default so a
// bare `lexmap serve` works in any repository with a policy file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full server configuration.
type Config struct {
	// PolicyPath points at the module policy (JSON or YAML).
	PolicyPath string `yaml:"policy_path"`

	// DataDir holds the SQLite frame store.
	DataDir string `yaml:"data_dir"`

	// CacheCapacity bounds the recall frame cache (entries).
	CacheCapacity int `yaml:"cache_capacity"`

	// DebounceMs is the rebuild quiet period in milliseconds.
	DebounceMs int `yaml:"debounce_ms"`

	// MaxFrameTokens is the default recall token budget. 0 disables
	// auto-tuning.
	MaxFrameTokens int `yaml:"max_frame_tokens"`

	// DefaultFoldRadius is the hop radius used when a recall omits one.
	DefaultFoldRadius int `yaml:"default_fold_radius"`

	// WatchPolicy enables the fsnotify watcher on the policy file.
	WatchPolicy bool `yaml:"watch_policy"`

	// LogLevel is a zap level string: debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

// Default returns the built-in configuration.
func Default() Config {
	home, _ := os.UserHomeDir()
	return Config{
		PolicyPath:        "lexmap.policy.json",
		DataDir:           filepath.Join(home, ".lexmap"),
		CacheCapacity:     50,
		DebounceMs:        500,
		MaxFrameTokens:    2000,
		DefaultFoldRadius: 2,
		WatchPolicy:       true,
		LogLevel:          "info",
	}
}

// Load builds the effective configuration: defaults, overlaid with the
// YAML file at path (when it exists), overlaid with environment variables.
// An empty path skips the file layer entirely.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Optional file; defaults apply.
		case err != nil:
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}

	applyEnv(&cfg)

	if cfg.CacheCapacity < 1 {
		cfg.CacheCapacity = 1
	}
	if cfg.DebounceMs < 0 {
		cfg.DebounceMs = 0
	}
	if cfg.DefaultFoldRadius < 0 {
		cfg.DefaultFoldRadius = 0
	}
	return cfg, nil
}

// Debounce returns the rebuild quiet period as a duration.
func (c Config) Debounce() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("LEXMAP_POLICY"); v != "" {
		cfg.PolicyPath = v
	}
	if v := os.Getenv("LEXMAP_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("LEXMAP_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v, ok := envInt("LEXMAP_CACHE_CAPACITY"); ok {
		cfg.CacheCapacity = v
	}
	if v, ok := envInt("LEXMAP_DEBOUNCE_MS"); ok {
		cfg.DebounceMs = v
	}
	if v, ok := envInt("LEXMAP_MAX_FRAME_TOKENS"); ok {
		cfg.MaxFrameTokens = v
	}
	if v, ok := envInt("LEXMAP_FOLD_RADIUS"); ok {
		cfg.DefaultFoldRadius = v
	}
	if v := os.Getenv("LEXMAP_WATCH_POLICY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.WatchPolicy = b
		}
	}
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}
