// Package config loads tormsh settings from defaults, a TOML file, a .env
// file and the environment, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// DefaultPath is read when no config file is given; it may be absent.
const DefaultPath = "tormsh.toml"

// Output formats understood by the shell.
var Formats = []string{"text", "json", "yaml"}

var drivers = []string{"sqlite3", "postgres", "mysql"}

// Config holds all settings for the shell and its database connection.
type Config struct {
	Driver      string `toml:"driver"`
	DSN         string `toml:"dsn"`
	AutoMigrate bool   `toml:"auto_migrate"`
	Format      string `toml:"format"`
	LogLevel    string `toml:"log_level"`
	Prompt      string `toml:"prompt"`
}

// Default returns the settings used when nothing else is configured: a local
// SQLite file whose tables are created on start.
func Default() *Config {
	return &Config{
		Driver:      "sqlite3",
		DSN:         "pets.db",
		AutoMigrate: true,
		Format:      "text",
		LogLevel:    "warn",
		Prompt:      ">>> ",
	}
}

// Load builds the configuration. A missing file is only an error when path
// is not DefaultPath.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultPath
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if !errors.Is(err, fs.ErrNotExist) || path != DefaultPath {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	// A missing .env is fine.
	_ = godotenv.Load()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	dsn, err := ResolveDSN(cfg.DSN)
	if err != nil {
		return nil, err
	}
	cfg.DSN = dsn
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("TORM_DRIVER"); v != "" {
		c.Driver = v
	}
	if v := os.Getenv("TORM_DSN"); v != "" {
		c.DSN = v
	} else if v := os.Getenv("DATABASE_URL"); v != "" {
		c.DSN = v
	}
	if v := os.Getenv("TORM_FORMAT"); v != "" {
		c.Format = v
	}
	if v := os.Getenv("TORM_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("TORM_AUTO_MIGRATE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("TORM_AUTO_MIGRATE: %w", err)
		}
		c.AutoMigrate = b
	}
	return nil
}

// Validate checks that every setting has a usable value.
func (c *Config) Validate() error {
	if !contains(drivers, c.Driver) {
		return fmt.Errorf("unsupported driver %q (want one of %s)", c.Driver, strings.Join(drivers, ", "))
	}
	if c.DSN == "" {
		return errors.New("dsn is empty")
	}
	if !contains(Formats, c.Format) {
		return fmt.Errorf("invalid format %q: must be one of %v", c.Format, Formats)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return lvl, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
