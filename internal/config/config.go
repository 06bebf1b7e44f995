// Package config handles docmap configuration files.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
)

// Database drivers.
const (
	DriverSQLite       = "sqlite3"
	DriverSQLitePureGo = "sqlite"
	DriverPostgres     = "postgres"
)

// EnvDatabaseURL overrides the database URL and selects the postgres driver.
const EnvDatabaseURL = "DOCMAP_DATABASE_URL"

// DefaultPath is the config file looked up when none is given.
const DefaultPath = "docmap.toml"

// Config represents the docmap configuration.
type Config struct {
	Database DatabaseConfig `toml:"database"`
	Schema   SchemaConfig   `toml:"schema"`
	Session  SessionConfig  `toml:"session"`
	Log      LogConfig      `toml:"log"`
}

// DatabaseConfig selects the document storage.
type DatabaseConfig struct {
	// Driver is one of sqlite3, sqlite or postgres.
	Driver string `toml:"driver"`

	// Path is the SQLite database file.
	Path string `toml:"path"`

	// URL is the PostgreSQL connection string.
	URL string `toml:"url"`
}

// SchemaConfig locates the CUE entity declarations.
type SchemaConfig struct {
	Dir string `toml:"dir"`
}

// SessionConfig tunes sessions created by the CLI.
type SessionConfig struct {
	// DisablePooling turns the session identity map off.
	DisablePooling bool `toml:"disable_pooling"`
}

// LogConfig controls the slog handler.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `toml:"level"`

	// Format is text or json.
	Format string `toml:"format"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Driver: DriverSQLite, Path: "docmap.db"},
		Schema:   SchemaConfig{Dir: "schema"},
		Log:      LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads path on top of the defaults and applies environment
// overrides. A missing file at DefaultPath is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	if _, err := os.Stat(path); err == nil {
		md, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("config %s: unknown keys: %s", path, strings.Join(keys, ", "))
		}
	} else if explicit || !os.IsNotExist(err) {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	if url := os.Getenv(EnvDatabaseURL); url != "" {
		cfg.Database.URL = url
		cfg.Database.Driver = DriverPostgres
	}

	return cfg, nil
}

// Validate checks every section and returns all problems joined.
func (c *Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case DriverSQLite, DriverSQLitePureGo:
		if c.Database.Path == "" {
			errs = append(errs, fmt.Errorf("database.path is required for driver %s", c.Database.Driver))
		}
	case DriverPostgres:
		if c.Database.URL == "" {
			errs = append(errs, fmt.Errorf("database.url is required for driver %s", DriverPostgres))
		}
	default:
		errs = append(errs, fmt.Errorf("database.driver %q: must be one of %s, %s, %s",
			c.Database.Driver, DriverSQLite, DriverSQLitePureGo, DriverPostgres))
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	if !slices.Contains([]string{"text", "json"}, c.Log.Format) {
		errs = append(errs, fmt.Errorf("log.format %q: must be text or json", c.Log.Format))
	}

	return errors.Join(errs...)
}

// SlogLevel parses Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log.level %q: %w", l.Level, err)
	}
	return level, nil
}

// Logger builds a logger writing to w. An invalid level falls back to info.
func (l LogConfig) Logger(w io.Writer) *slog.Logger {
	level, _ := l.SlogLevel()
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
