package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"semhist/internal/paths"
)

// CurrentVersion is the config schema version written by init.
const CurrentVersion = 1

// Config represents the complete semhist configuration
type Config struct {
	Version int `json:"version" mapstructure:"version"`

	Ingest    IngestConfig    `json:"ingest" mapstructure:"ingest"`
	Languages LanguagesConfig `json:"languages" mapstructure:"languages"`
	Storage   StorageConfig   `json:"storage" mapstructure:"storage"`
	Logging   LoggingConfig   `json:"logging" mapstructure:"logging"`
	Git       GitConfig       `json:"git" mapstructure:"git"`
}

// IngestConfig controls the ingestion pipeline
type IngestConfig struct {
	Workers         int      `json:"workers" mapstructure:"workers"`
	TreeCacheSize   int      `json:"treeCacheSize" mapstructure:"treeCacheSize"`
	ParseTimeoutMs  int      `json:"parseTimeoutMs" mapstructure:"parseTimeoutMs"`
	Excludes        []string `json:"excludes" mapstructure:"excludes"`
	MaxCount        int      `json:"maxCount" mapstructure:"maxCount"` // 0 = unlimited
	FirstParentOnly bool     `json:"firstParentOnly" mapstructure:"firstParentOnly"`
}

// LanguagesConfig selects grammars and capture overrides
type LanguagesConfig struct {
	Enabled       []string `json:"enabled" mapstructure:"enabled"` // empty = all built-in
	OverridesFile string   `json:"overridesFile" mapstructure:"overridesFile"`
}

// StorageConfig locates the history database
type StorageConfig struct {
	DBPath        string `json:"dbPath" mapstructure:"dbPath"` // relative to the repo root
	BusyTimeoutMs int    `json:"busyTimeoutMs" mapstructure:"busyTimeoutMs"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level string `json:"level" mapstructure:"level"`
	File  string `json:"file" mapstructure:"file"`
}

// GitConfig configures the git plumbing calls
type GitConfig struct {
	Binary    string `json:"binary" mapstructure:"binary"`
	TimeoutMs int    `json:"timeoutMs" mapstructure:"timeoutMs"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Version: CurrentVersion,
		Ingest: IngestConfig{
			Workers:        4,
			TreeCacheSize:  256,
			ParseTimeoutMs: 10000,
			Excludes:       []string{"vendor/", "node_modules/", "*.min.js"},
		},
		Languages: LanguagesConfig{
			Enabled:       []string{},
			OverridesFile: filepath.ToSlash(filepath.Join(paths.StateDirName, paths.LanguagesFileName)),
		},
		Storage: StorageConfig{
			DBPath:        filepath.ToSlash(filepath.Join(paths.StateDirName, paths.DBFileName)),
			BusyTimeoutMs: 5000,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Git: GitConfig{
			Binary:    "git",
			TimeoutMs: 120000,
		},
	}
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("version", d.Version)
	v.SetDefault("ingest.workers", d.Ingest.Workers)
	v.SetDefault("ingest.treeCacheSize", d.Ingest.TreeCacheSize)
	v.SetDefault("ingest.parseTimeoutMs", d.Ingest.ParseTimeoutMs)
	v.SetDefault("ingest.excludes", d.Ingest.Excludes)
	v.SetDefault("ingest.maxCount", d.Ingest.MaxCount)
	v.SetDefault("ingest.firstParentOnly", d.Ingest.FirstParentOnly)
	v.SetDefault("languages.enabled", d.Languages.Enabled)
	v.SetDefault("languages.overridesFile", d.Languages.OverridesFile)
	v.SetDefault("storage.dbPath", d.Storage.DBPath)
	v.SetDefault("storage.busyTimeoutMs", d.Storage.BusyTimeoutMs)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.file", d.Logging.File)
	v.SetDefault("git.binary", d.Git.Binary)
	v.SetDefault("git.timeoutMs", d.Git.TimeoutMs)
}

// Option adjusts the viper instance before the config is read
type Option func(v *viper.Viper) error

// WithFlag binds a command-line flag over the config key. The flag only
// wins when it was set explicitly.
func WithFlag(key string, flag *pflag.Flag) Option {
	return func(v *viper.Viper) error {
		if flag == nil {
			return nil
		}
		return v.BindPFlag(key, flag)
	}
}

// LoadConfig loads configuration from .semhist/config.json, then applies
// SEMHIST_* environment variables and bound flags
func LoadConfig(repoRoot string, opts ...Option) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(paths.StateDir(repoRoot))

	v.SetEnvPrefix("SEMHIST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, opt := range opts {
		if err := opt(v); err != nil {
			return nil, fmt.Errorf("failed to bind flag: %w", err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Save writes the configuration to .semhist/config.json
func (c *Config) Save(repoRoot string) error {
	if err := os.MkdirAll(paths.StateDir(repoRoot), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(paths.ConfigPath(repoRoot), append(data, '\n'), 0644)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Version != CurrentVersion {
		return &ConfigError{Field: "version", Message: fmt.Sprintf("unsupported config version %d", c.Version)}
	}
	if c.Ingest.Workers < 1 {
		return &ConfigError{Field: "ingest.workers", Message: "must be at least 1"}
	}
	if c.Ingest.TreeCacheSize < 0 {
		return &ConfigError{Field: "ingest.treeCacheSize", Message: "cannot be negative"}
	}
	if c.Ingest.ParseTimeoutMs < 0 {
		return &ConfigError{Field: "ingest.parseTimeoutMs", Message: "cannot be negative"}
	}
	if c.Ingest.MaxCount < 0 {
		return &ConfigError{Field: "ingest.maxCount", Message: "cannot be negative"}
	}
	if c.Storage.DBPath == "" {
		return &ConfigError{Field: "storage.dbPath", Message: "cannot be empty"}
	}
	if c.Git.Binary == "" {
		return &ConfigError{Field: "git.binary", Message: "cannot be empty"}
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error", "silent", "":
	default:
		return &ConfigError{Field: "logging.level", Message: fmt.Sprintf("unknown level %q", c.Logging.Level)}
	}
	return nil
}

// ParseTimeout returns the per-file parse bound.
func (c *Config) ParseTimeout() time.Duration {
	return time.Duration(c.Ingest.ParseTimeoutMs) * time.Millisecond
}

// GitTimeout returns the bound on a single git invocation.
func (c *Config) GitTimeout() time.Duration {
	return time.Duration(c.Git.TimeoutMs) * time.Millisecond
}

// DBPath resolves the database path against repoRoot.
func (c *Config) DBPath(repoRoot string) string {
	return resolve(repoRoot, c.Storage.DBPath)
}

// OverridesPath resolves the language overrides file against repoRoot.
func (c *Config) OverridesPath(repoRoot string) string {
	if c.Languages.OverridesFile == "" {
		return ""
	}
	return resolve(repoRoot, c.Languages.OverridesFile)
}

func resolve(repoRoot, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return paths.JoinRepoPath(repoRoot, p)
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
