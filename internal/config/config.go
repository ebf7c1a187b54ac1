// Package config loads reactorlog settings from a YAML file and
// REACTORLOG_* environment variables. Command-line flags are applied on top
// by the cli package.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/asaldivar93/reactors-czlab/internal/export"
	"github.com/asaldivar93/reactors-czlab/internal/registry"
	"github.com/asaldivar93/reactors-czlab/internal/resolver"
	"github.com/asaldivar93/reactors-czlab/internal/store"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "REACTORLOG_"

// Export drivers.
const (
	ExportFile = "file"
	ExportS3   = "s3"
)

// Config is the full settings tree.
type Config struct {
	Storage     StorageConfig               `yaml:"storage"`
	Registry    string                      `yaml:"registry,omitempty"`
	Experiments map[string]ExperimentConfig `yaml:"experiments,omitempty"`
	Ingest      IngestConfig                `yaml:"ingest"`
	Export      ExportConfig                `yaml:"export"`
	Log         LogConfig                   `yaml:"log"`

	// dir is the directory of the loaded file; relative paths resolve
	// against it.
	dir string
}

// StorageConfig selects the database.
type StorageConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// ExperimentConfig describes an experiment before its first measurement.
type ExperimentConfig struct {
	Reactors []string `yaml:"reactors,omitempty"`
	Volume   *float64 `yaml:"volume,omitempty"`
}

// IngestConfig sizes the commit pool.
type IngestConfig struct {
	Workers     int    `yaml:"workers"`
	Queue       int    `yaml:"queue"`
	MetricsAddr string `yaml:"metrics_addr,omitempty"`
}

// ExportConfig selects where exports go.
type ExportConfig struct {
	Driver    string `yaml:"driver"`
	Dir       string `yaml:"dir,omitempty"`
	Bucket    string `yaml:"bucket,omitempty"`
	Region    string `yaml:"region,omitempty"`
	Endpoint  string `yaml:"endpoint,omitempty"`
	PathStyle bool   `yaml:"path_style,omitempty"`
	Prefix    string `yaml:"prefix,omitempty"`
}

// LogConfig sets the log level: debug, info, warn, or error.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the settings used when no file is given.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{Driver: string(store.DriverSQLite3), DSN: "reactorlog.db"},
		Ingest:  IngestConfig{Workers: 4, Queue: 1024},
		Export:  ExportConfig{Driver: ExportFile, Dir: "."},
		Log:     LogConfig{Level: "info"},
	}
}

// Load reads path (if non-empty) over the defaults, then applies
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	return LoadWithEnv(path, os.LookupEnv)
}

// LoadWithEnv is Load with an explicit environment lookup.
func LoadWithEnv(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := cfg.decode(data); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
		cfg.dir = filepath.Dir(path)
	}
	if err := cfg.ApplyEnv(lookup); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults without touching the environment.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := cfg.decode(data); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) decode(data []byte) error {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ApplyEnv overrides fields from REACTORLOG_* variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	str("STORAGE_DRIVER", &c.Storage.Driver)
	str("STORAGE_DSN", &c.Storage.DSN)
	str("REGISTRY", &c.Registry)
	str("METRICS_ADDR", &c.Ingest.MetricsAddr)
	str("EXPORT_DRIVER", &c.Export.Driver)
	str("EXPORT_DIR", &c.Export.Dir)
	str("EXPORT_S3_BUCKET", &c.Export.Bucket)
	str("EXPORT_S3_REGION", &c.Export.Region)
	str("EXPORT_S3_ENDPOINT", &c.Export.Endpoint)
	str("EXPORT_S3_PREFIX", &c.Export.Prefix)
	str("LOG_LEVEL", &c.Log.Level)

	for name, dst := range map[string]*int{
		"INGEST_WORKERS": &c.Ingest.Workers,
		"INGEST_QUEUE":   &c.Ingest.Queue,
	} {
		v, ok := lookup(EnvPrefix + name)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
		}
		*dst = n
	}
	if v, ok := lookup(EnvPrefix + "EXPORT_S3_PATH_STYLE"); ok && v != "" {
		c.Export.PathStyle = strings.EqualFold(v, "true") || v == "1"
	}
	return nil
}

// Validate checks field values.
func (c *Config) Validate() error {
	if _, err := store.ParseDriver(c.Storage.Driver); err != nil {
		return err
	}
	if c.Storage.DSN == "" {
		return fmt.Errorf("storage.dsn is required")
	}
	if c.Ingest.Workers < 1 {
		return fmt.Errorf("ingest.workers must be at least 1")
	}
	if c.Ingest.Queue < 1 {
		return fmt.Errorf("ingest.queue must be at least 1")
	}
	switch c.Export.Driver {
	case ExportFile:
	case ExportS3:
		if c.Export.Bucket == "" {
			return fmt.Errorf("export.bucket is required for the s3 driver")
		}
	default:
		return fmt.Errorf("unknown export driver %q (want file or s3)", c.Export.Driver)
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	for name := range c.Experiments {
		if resolver.Normalize(name) == "" {
			return fmt.Errorf("experiments: empty experiment name")
		}
	}
	return nil
}

// SlogLevel parses Log.Level.
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

// StoreConfig returns the storage settings for store.Open.
func (c *Config) StoreConfig() (store.Config, error) {
	driver, err := store.ParseDriver(c.Storage.Driver)
	if err != nil {
		return store.Config{}, err
	}
	return store.Config{Driver: driver, DSN: c.Storage.DSN}, nil
}

// LoadRegistry returns the built-in registry, or the CUE registry named by
// Registry resolved against the config file's directory.
func (c *Config) LoadRegistry() (*registry.Registry, error) {
	if c.Registry == "" {
		return registry.Default(), nil
	}
	return registry.LoadCUE(c.resolvePath(c.Registry))
}

// ResolverInfo converts Experiments to resolver.Info.
func (c *Config) ResolverInfo() map[string]resolver.Info {
	info := make(map[string]resolver.Info, len(c.Experiments))
	for name, e := range c.Experiments {
		info[name] = resolver.Info{Reactors: e.Reactors, Volume: e.Volume}
	}
	return info
}

// S3Config returns the export settings for export.NewS3Sink.
func (c *Config) S3Config() export.S3Config {
	return export.S3Config{
		Bucket:    c.Export.Bucket,
		Region:    c.Export.Region,
		Endpoint:  c.Export.Endpoint,
		PathStyle: c.Export.PathStyle,
		Prefix:    c.Export.Prefix,
	}
}

// ExportDir returns the file export directory resolved against the config
// file's directory.
func (c *Config) ExportDir() string {
	return c.resolvePath(c.Export.Dir)
}

func (c *Config) resolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) || c.dir == "" {
		return p
	}
	return filepath.Join(c.dir, p)
}
