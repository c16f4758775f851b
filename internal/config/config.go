// Package config resolves runtime settings. Later sources override earlier
// ones: built-in defaults, the YAML file, TODOTREE_* environment variables,
// then command-line flags.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

const (
	EnvConfig      = "TODOTREE_CONFIG"
	EnvDB          = "TODOTREE_DB"
	EnvListen      = "TODOTREE_LISTEN"
	EnvServer      = "TODOTREE_SERVER"
	EnvLogLevel    = "TODOTREE_LOG_LEVEL"
	EnvLogUseCases = "TODOTREE_LOG_USE_CASES"
)

// Config holds everything the binary needs to wire a replica.
type Config struct {
	// DBPath is the local SQLite store.
	DBPath string `yaml:"db"`
	// Listen is the address `todotree serve` binds.
	Listen string `yaml:"listen"`
	// Server is the base URL of a remote hub. When set, commands act on a
	// client replica of that hub instead of the local store.
	Server      string `yaml:"server"`
	LogLevel    string `yaml:"log_level"`
	LogUseCases bool   `yaml:"log_use_cases"`
}

// Dir is the per-user directory holding the database and config file.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".todotree"
	}
	return filepath.Join(home, ".todotree")
}

// DefaultPath is the config file read when TODOTREE_CONFIG is unset.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

func Default() Config {
	return Config{
		DBPath:   filepath.Join(Dir(), "todotree.db"),
		Listen:   "127.0.0.1:7878",
		LogLevel: "info",
	}
}

// Load merges defaults, the config file and the environment. A missing
// file at the default location is fine; a missing file named through
// TODOTREE_CONFIG is an error.
func Load() (Config, error) {
	cfg := Default()

	path, explicit := os.LookupEnv(EnvConfig)
	if !explicit || path == "" {
		path, explicit = DefaultPath(), false
	}
	if err := loadFile(path, &cfg); err != nil {
		if !errors.Is(err, os.ErrNotExist) || explicit {
			return cfg, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv(EnvDB); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(EnvListen); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv(EnvServer); v != "" {
		cfg.Server = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv(EnvLogUseCases); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvLogUseCases, err)
		}
		cfg.LogUseCases = b
	}
	return nil
}

// BindFlags registers flags whose defaults are the already loaded values,
// so a flag only wins when it is given.
func BindFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "path to the todo database")
	fs.StringVar(&cfg.Listen, "listen", cfg.Listen, "address for the hub to listen on")
	fs.StringVar(&cfg.Server, "server", cfg.Server, "hub URL to replicate from instead of the local database")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	fs.BoolVar(&cfg.LogUseCases, "log-use-cases", cfg.LogUseCases, "log every service use case to stderr")
}

func (c Config) Validate() error {
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	if c.Server == "" && c.DBPath == "" {
		return errors.New("config: db path is empty")
	}
	return nil
}

// SlogLevel parses LogLevel.
func (c Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return level, fmt.Errorf("config: log level %q: %w", c.LogLevel, err)
	}
	return level, nil
}

// Remote reports whether commands should go through a hub.
func (c Config) Remote() bool {
	return c.Server != ""
}

// Marshal renders the effective configuration as YAML.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
