package app

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/florianilch/keyprovider/internal/keyprovider"
	"github.com/florianilch/keyprovider/internal/observability"
	"github.com/florianilch/keyprovider/internal/procmutex"
)

// LogFormat represents the logging output format.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// Default configuration values
const (
	DefaultConfigLogFormat   = LogFormatText
	DefaultConfigLogExporter = observability.ExporterNone
	DefaultConfigLockTimeout = 10 * time.Second
)

// StoreConfig locates the key store files. Empty fields fall back to the
// standard locations.
type StoreConfig struct {
	// Dir is created on first write; defaults to the parent of File.
	Dir        string `json:"dir"`
	File       string `json:"file" validate:"required"`
	StaticDir  string `json:"static_dir"`
	StaticFile string `json:"static_file"`
}

// LockConfig holds inter-process locking configuration.
type LockConfig struct {
	Dir string `json:"dir"`
	// Timeout bounds how long a write waits for the lock. Negative waits
	// forever.
	Timeout time.Duration `json:"timeout"`
	// Disabled turns locking off, for stores no other process touches.
	Disabled bool `json:"disabled"`
}

// Config holds the application's configuration.
type Config struct {
	// LogLevel for logging output (defaults to Info if unset).
	LogLevel    slog.Level  `json:"log_level"`
	LogFormat   LogFormat   `json:"log_format" validate:"oneof=text json"`
	LogExporter string      `json:"log_exporter" validate:"oneof=none stdout otlp-http otlp-grpc"`
	Store       StoreConfig `json:"store"`
	Lock        LockConfig  `json:"lock"`
}

// Default creates a new Config with default values applied.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	return cfg, nil
}

// ApplyDefaults fills unset config fields with sensible defaults.
func (c *Config) ApplyDefaults() error {
	if c.LogFormat == "" {
		c.LogFormat = DefaultConfigLogFormat
	}
	if c.LogExporter == "" {
		c.LogExporter = DefaultConfigLogExporter
	}

	if c.Store.File == "" {
		loc, err := keyprovider.DefaultLocations("")
		if err != nil {
			return fmt.Errorf("store.file required (auto-detect failed: %w)", err)
		}
		c.Store.File = loc.WritableFile
	}
	if c.Store.Dir == "" {
		c.Store.Dir = filepath.Dir(c.Store.File)
	}
	if c.Store.StaticDir == "" {
		c.Store.StaticDir = keyprovider.DefaultStaticDir
	}
	if c.Store.StaticFile == "" {
		c.Store.StaticFile = keyprovider.DefaultStaticFile
	}

	if c.Lock.Dir == "" {
		c.Lock.Dir = procmutex.DefaultLockDir()
	}
	if c.Lock.Timeout == 0 {
		c.Lock.Timeout = DefaultConfigLockTimeout
	}

	return nil
}

// Validate validates the configuration using struct tags and enum values.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	if rel, err := filepath.Rel(c.Store.Dir, c.Store.File); err != nil || !filepath.IsLocal(rel) {
		return fmt.Errorf("store.file %s must be inside store.dir %s", c.Store.File, c.Store.Dir)
	}

	return nil
}

// Locations returns the key store locations described by the configuration.
func (c *Config) Locations() keyprovider.Locations {
	return keyprovider.Locations{
		WritableDir:  c.Store.Dir,
		WritableFile: c.Store.File,
		StaticDir:    c.Store.StaticDir,
		StaticFile:   c.Store.StaticFile,
	}
}
