// Package config loads the YAML configuration used by the cmstore tool.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/barca7453/ContextMemory"
	"github.com/barca7453/ContextMemory/ann"
	"github.com/barca7453/ContextMemory/ann/flat"
	"github.com/barca7453/ContextMemory/ann/hnsw"
	"github.com/barca7453/ContextMemory/distance"
	"github.com/barca7453/ContextMemory/persistence"
	"github.com/barca7453/ContextMemory/resource"
	"gopkg.in/yaml.v3"
)

// Backend types.
const (
	BackendLocal = "local"
	BackendMinIO = "minio"
	BackendS3    = "s3"
)

// Config holds all configuration for a store.
type Config struct {
	Store     StoreConfig    `yaml:"store"`
	Backend   BackendConfig  `yaml:"backend"`
	Resources ResourceConfig `yaml:"resources"`
	Log       LogConfig      `yaml:"log"`
}

// StoreConfig holds the store and index parameters.
type StoreConfig struct {
	Prefix              string `yaml:"prefix"`
	Dimension           int    `yaml:"dimension"`
	Capacity            int    `yaml:"capacity"`
	M                   int    `yaml:"m"`
	EFConstruction      int    `yaml:"ef_construction"`
	EF                  int    `yaml:"ef"`
	AllowReplaceDeleted *bool  `yaml:"allow_replace_deleted"`
	Metric              string `yaml:"metric"`
	Index               string `yaml:"index"`
	Compression         string `yaml:"compression"`
	ReserveChunk        int    `yaml:"reserve_chunk"`
	MaxCapacity         int    `yaml:"max_capacity"`
}

// BackendConfig selects where artifacts are stored.
type BackendConfig struct {
	Type      string `yaml:"type"`
	Root      string `yaml:"root"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// ResourceConfig mirrors resource.Config.
type ResourceConfig struct {
	MemoryLimitBytes       int64 `yaml:"memory_limit_bytes"`
	MaxConcurrentSnapshots int64 `yaml:"max_concurrent_snapshots"`
	IOLimitBytesPerSec     int64 `yaml:"io_limit_bytes_per_sec"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads and parses the config file at path, applies defaults and
// resolves relative local paths against the config file's directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	if cfg.Backend.Type == BackendLocal {
		configDir := filepath.Dir(path)
		cfg.Backend.Root = expandPath(cfg.Backend.Root, configDir)
	}
	return cfg, nil
}

// Parse decodes YAML, applies defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports settings that cannot be turned into a store.
func (c *Config) Validate() error {
	var errs []error
	if c.Store.Dimension < 0 {
		errs = append(errs, fmt.Errorf("store.dimension must not be negative, got %d", c.Store.Dimension))
	}
	if _, err := distance.ParseMetric(c.Store.Metric); err != nil {
		errs = append(errs, fmt.Errorf("store.metric: %w", err))
	}
	if _, err := persistence.ParseCompression(c.Store.Compression); err != nil {
		errs = append(errs, fmt.Errorf("store.compression: %w", err))
	}
	switch c.Store.Index {
	case "hnsw", "flat":
	default:
		errs = append(errs, fmt.Errorf("store.index: unknown index %q", c.Store.Index))
	}
	switch c.Backend.Type {
	case BackendLocal:
	case BackendMinIO, BackendS3:
		if c.Backend.Bucket == "" {
			errs = append(errs, fmt.Errorf("backend.bucket is required for %s", c.Backend.Type))
		}
		if c.Backend.Type == BackendMinIO && c.Backend.Endpoint == "" {
			errs = append(errs, errors.New("backend.endpoint is required for minio"))
		}
	default:
		errs = append(errs, fmt.Errorf("backend.type: unknown backend %q", c.Backend.Type))
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// IndexFactory returns the ann.Factory selected by store.index.
func (c *Config) IndexFactory() ann.Factory {
	comp, _ := persistence.ParseCompression(c.Store.Compression)
	if c.Store.Index == "flat" {
		return flat.Factory(func(o *flat.Options) { o.Compression = comp })
	}
	return hnsw.Factory(func(o *hnsw.Options) { o.Compression = comp })
}

// ResourceController returns a controller for the configured limits, or nil
// when no limit is set.
func (c *Config) ResourceController() *resource.Controller {
	r := c.Resources
	if r.MemoryLimitBytes == 0 && r.MaxConcurrentSnapshots == 0 && r.IOLimitBytesPerSec == 0 {
		return nil
	}
	return resource.NewController(resource.Config{
		MemoryLimitBytes:       r.MemoryLimitBytes,
		MaxConcurrentSnapshots: r.MaxConcurrentSnapshots,
		IOLimitBytesPerSec:     r.IOLimitBytesPerSec,
	})
}

// Logger builds the configured logger.
func (c *Config) Logger() *contextmemory.Logger {
	level, _ := parseLevel(c.Log.Level)
	if c.Log.Format == "json" {
		return contextmemory.NewJSONLogger(level)
	}
	return contextmemory.NewTextLogger(level)
}

// Options converts the configuration into store options. The blob store is
// not included; callers build it from Backend.
func (c *Config) Options() []contextmemory.Option {
	metric, _ := distance.ParseMetric(c.Store.Metric)
	return []contextmemory.Option{
		contextmemory.WithCapacity(c.Store.Capacity),
		contextmemory.WithM(c.Store.M),
		contextmemory.WithEFConstruction(c.Store.EFConstruction),
		contextmemory.WithEF(c.Store.EF),
		contextmemory.WithAllowReplaceDeleted(*c.Store.AllowReplaceDeleted),
		contextmemory.WithMetric(metric),
		contextmemory.WithIndexFactory(c.IndexFactory()),
		contextmemory.WithReserveChunk(c.Store.ReserveChunk),
		contextmemory.WithMaxCapacity(c.Store.MaxCapacity),
		contextmemory.WithResourceController(c.ResourceController()),
		contextmemory.WithLogger(c.Logger()),
	}
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

// expandPath converts a relative path to one rooted at configDir.
func expandPath(path, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return filepath.Join(configDir, path)
}
