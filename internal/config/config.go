// Package config provides configuration loading for debugmem.
//
// Values come from three layers, lowest precedence first: the defaults in
// NewDefaultConfig, an optional YAML file, and DEBUGMEM_* environment
// variables. The logging and telemetry packages own their own sections; read
// them with Section.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/v2"
)

// Storage backends.
const (
	BackendFile     = "file"
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

// Config holds the complete debugmem configuration.
type Config struct {
	Storage     StorageConfig     `koanf:"storage"`
	Search      SearchConfig      `koanf:"search"`
	Extraction  ExtractionConfig  `koanf:"extraction"`
	Aggregation AggregationConfig `koanf:"aggregation"`
	Server      ServerConfig      `koanf:"server"`
	Watch       WatchConfig       `koanf:"watch"`

	k *koanf.Koanf
}

// StorageConfig selects where incidents and patterns live.
type StorageConfig struct {
	Backend string `koanf:"backend"`

	// Path is the file backend root. A leading ~ expands to the home directory.
	Path string `koanf:"path"`

	// DSN is the PostgreSQL connection string.
	DSN Secret `koanf:"dsn"`
}

// SearchConfig holds retrieval defaults.
type SearchConfig struct {
	Threshold  float64  `koanf:"threshold"`
	MaxResults int      `koanf:"max_results"`
	FuzzyFloor float64  `koanf:"fuzzy_floor"`
	Timeout    Duration `koanf:"timeout"`
}

// ExtractionConfig holds pattern extraction thresholds.
type ExtractionConfig struct {
	MinIncidents   int     `koanf:"min_incidents"`
	MinSimilarity  float64 `koanf:"min_similarity"`
	MinConfidence  float64 `koanf:"min_confidence"`
	AutoExtract    bool    `koanf:"auto_extract"`
	AutoMinSimilar int     `koanf:"auto_min_similar"`
	AutoMinQuality float64 `koanf:"auto_min_quality"`

	// ScheduleInterval runs batch extraction periodically. Zero disables it.
	ScheduleInterval Duration `koanf:"schedule_interval"`
}

// AggregationConfig configures the result aggregator.
type AggregationConfig struct {
	MaxResults     int     `koanf:"max_results"`
	MinScore       float64 `koanf:"min_score"`
	DedupThreshold float64 `koanf:"dedup_threshold"`
	MaxActions     int     `koanf:"max_actions"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`

	// RateLimit is requests per second per client. Zero disables it.
	RateLimit float64 `koanf:"rate_limit"`
	RateBurst int     `koanf:"rate_burst"`
}

// WatchConfig controls the incident directory watcher.
type WatchConfig struct {
	Enabled bool `koanf:"enabled"`

	// Debounce delays handling of a file until writes to it settle.
	Debounce Duration `koanf:"debounce"`
}

// NewDefaultConfig returns the built-in defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Backend: BackendFile,
			Path:    filepath.Join("~", ".config", "debugmem", "memory"),
		},
		Search: SearchConfig{
			Threshold:  0.5,
			MaxResults: 10,
			FuzzyFloor: 0.7,
			Timeout:    Duration(30 * time.Second),
		},
		Extraction: ExtractionConfig{
			MinIncidents:   3,
			MinSimilarity:  0.7,
			MinConfidence:  0.7,
			AutoExtract:    true,
			AutoMinSimilar: 3,
			AutoMinQuality: 0.75,
		},
		Aggregation: AggregationConfig{
			MaxResults:     10,
			MinScore:       0.3,
			DedupThreshold: 0.8,
			MaxActions:     5,
		},
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            9191,
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Watch: WatchConfig{
			Debounce: Duration(200 * time.Millisecond),
		},
	}
}

// Section unmarshals the raw section at path into v. Fields absent from the
// loaded sources keep the values v already holds, so callers pass a struct
// pre-filled with their own defaults.
func (c *Config) Section(path string, v any) error {
	if c.k == nil {
		return nil
	}
	if err := c.k.Unmarshal(path, v); err != nil {
		return fmt.Errorf("unmarshal %s: %w", path, err)
	}
	return nil
}

// StoragePath returns Storage.Path with a leading ~ expanded.
func (c *Config) StoragePath() (string, error) {
	return ExpandHome(c.Storage.Path)
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error
	bad := func(field, format string, args ...any) {
		errs = append(errs, fmt.Errorf("%s: %s", field, fmt.Sprintf(format, args...)))
	}
	unit := func(field string, v float64) {
		if v < 0 || v > 1 {
			bad(field, "must be between 0 and 1, got %v", v)
		}
	}

	switch c.Storage.Backend {
	case BackendFile:
		if strings.TrimSpace(c.Storage.Path) == "" {
			bad("storage.path", "required for the file backend")
		}
	case BackendMemory:
	case BackendPostgres:
		if !c.Storage.DSN.IsSet() {
			bad("storage.dsn", "required for the postgres backend")
		}
	default:
		bad("storage.backend", "unknown backend %q", c.Storage.Backend)
	}

	unit("search.threshold", c.Search.Threshold)
	unit("search.fuzzy_floor", c.Search.FuzzyFloor)
	if c.Search.MaxResults < 0 {
		bad("search.max_results", "must not be negative")
	}

	unit("extraction.min_similarity", c.Extraction.MinSimilarity)
	unit("extraction.min_confidence", c.Extraction.MinConfidence)
	unit("extraction.auto_min_quality", c.Extraction.AutoMinQuality)
	if c.Extraction.MinIncidents < 0 {
		bad("extraction.min_incidents", "must not be negative")
	}
	if c.Extraction.AutoMinSimilar < 0 {
		bad("extraction.auto_min_similar", "must not be negative")
	}

	unit("aggregation.min_score", c.Aggregation.MinScore)
	unit("aggregation.dedup_threshold", c.Aggregation.DedupThreshold)
	if c.Aggregation.MaxResults < 0 {
		bad("aggregation.max_results", "must not be negative")
	}
	if c.Aggregation.MaxActions < 0 {
		bad("aggregation.max_actions", "must not be negative")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		bad("server.port", "must be 1-65535, got %d", c.Server.Port)
	}
	if c.Server.RateLimit < 0 {
		bad("server.rate_limit", "must not be negative")
	}
	if c.Server.RateBurst < 0 {
		bad("server.rate_burst", "must not be negative")
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		bad("server.shutdown_timeout", "must be positive")
	}

	return errors.Join(errs...)
}
