package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string, perm os.FileMode) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), perm))
	require.NoError(t, os.Chmod(path, perm))
	return path
}

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, BackendFile, cfg.Storage.Backend)
	assert.Equal(t, 0.5, cfg.Search.Threshold)
	assert.Equal(t, 10, cfg.Search.MaxResults)
	assert.Equal(t, 0.7, cfg.Search.FuzzyFloor)
	assert.Equal(t, 3, cfg.Extraction.MinIncidents)
	assert.Equal(t, 0.7, cfg.Extraction.MinSimilarity)
	assert.True(t, cfg.Extraction.AutoExtract)
	assert.Equal(t, 0.75, cfg.Extraction.AutoMinQuality)
	assert.Zero(t, cfg.Extraction.ScheduleInterval.Duration())
	assert.Equal(t, 0.3, cfg.Aggregation.MinScore)
	assert.Equal(t, 0.8, cfg.Aggregation.DedupThreshold)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout.Duration())
	assert.NoError(t, cfg.Validate())
}

func TestValidate_ReportsEveryField(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Storage.Backend = "s3"
	cfg.Search.Threshold = 1.5
	cfg.Aggregation.MaxActions = -1
	cfg.Server.Port = 0
	cfg.Server.RateLimit = -1

	err := cfg.Validate()
	require.Error(t, err)
	for _, field := range []string{"storage.backend", "search.threshold", "aggregation.max_actions", "server.port", "server.rate_limit"} {
		assert.Contains(t, err.Error(), field)
	}
}

func TestValidate_Backends(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"memory", func(c *Config) { c.Storage.Backend = BackendMemory }, ""},
		{"file without path", func(c *Config) { c.Storage.Path = " " }, "storage.path"},
		{"postgres without dsn", func(c *Config) { c.Storage.Backend = BackendPostgres }, "storage.dsn"},
		{"postgres with dsn", func(c *Config) {
			c.Storage.Backend = BackendPostgres
			c.Storage.DSN = "postgres://u:p@localhost/db"
		}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
storage:
  backend: memory
search:
  threshold: 0.6
  timeout: 5s
extraction:
  auto_extract: false
  schedule_interval: 1h
logging:
  level: debug
`, 0o600)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, BackendMemory, cfg.Storage.Backend)
	assert.Equal(t, 0.6, cfg.Search.Threshold)
	assert.Equal(t, 5*time.Second, cfg.Search.Timeout.Duration())
	assert.Equal(t, 10, cfg.Search.MaxResults, "absent keys keep defaults")
	assert.False(t, cfg.Extraction.AutoExtract)
	assert.Equal(t, time.Hour, cfg.Extraction.ScheduleInterval.Duration())

	var section struct {
		Level  string `koanf:"level"`
		Format string `koanf:"format"`
	}
	section.Format = "json"
	require.NoError(t, cfg.Section("logging", &section))
	assert.Equal(t, "debug", section.Level)
	assert.Equal(t, "json", section.Format)
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	path := writeConfig(t, "search:\n  max_results: 20\n", 0o600)
	t.Setenv("DEBUGMEM_SEARCH_MAX_RESULTS", "7")
	t.Setenv("DEBUGMEM_STORAGE_BACKEND", "memory")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Search.MaxResults)
	assert.Equal(t, BackendMemory, cfg.Storage.Backend)
}

func TestLoad_MissingFiles(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err, "missing default file falls back to defaults")
	assert.Equal(t, BackendFile, cfg.Storage.Backend)

	_, err = Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err, "missing explicit file is an error")
}

func TestLoad_Rejections(t *testing.T) {
	t.Run("invalid values", func(t *testing.T) {
		path := writeConfig(t, "search:\n  threshold: 3\n", 0o600)
		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "search.threshold")
	})

	t.Run("too large", func(t *testing.T) {
		big := "# " + strings.Repeat("x", maxConfigFileSize) + "\n"
		path := writeConfig(t, big, 0o600)
		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "too large")
	})

	t.Run("world writable", func(t *testing.T) {
		if runtime.GOOS == "windows" {
			t.Skip("permission model differs")
		}
		path := writeConfig(t, "search:\n  threshold: 0.5\n", 0o666)
		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "insecure config file permissions")
	})

	t.Run("directory", func(t *testing.T) {
		_, err := Load(t.TempDir())
		assert.Error(t, err)
	})
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "search.max_results", envKey("DEBUGMEM_SEARCH_MAX_RESULTS"))
	assert.Equal(t, "storage.backend", envKey("DEBUGMEM_STORAGE_BACKEND"))
	assert.Equal(t, "verbose", envKey("DEBUGMEM_VERBOSE"))
}

func TestExpandHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	got, err := ExpandHome("~/.config/debugmem")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".config", "debugmem"), got)

	got, err = ExpandHome("/var/lib/debugmem")
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/debugmem", got)
}

func TestSecret_Redacted(t *testing.T) {
	s := Secret("postgres://user:hunter2@db/debugmem")

	assert.Equal(t, "[REDACTED]", s.String())
	assert.NotContains(t, fmt.Sprintf("%v %#v", s, s), "hunter2")
	b, err := json.Marshal(struct{ DSN Secret }{s})
	require.NoError(t, err)
	assert.NotContains(t, string(b), "hunter2")
	assert.Equal(t, "postgres://user:hunter2@db/debugmem", s.Value())
	assert.Equal(t, "", Secret("").String())
}

func TestDuration_UnmarshalText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("90s")))
	assert.Equal(t, 90*time.Second, d.Duration())
	require.NoError(t, d.UnmarshalText([]byte(" 45 ")))
	assert.Equal(t, 45*time.Second, d.Duration())
	assert.Error(t, d.UnmarshalText([]byte("-1s")))
	assert.Error(t, d.UnmarshalText([]byte("-3")))
	assert.Error(t, d.UnmarshalText([]byte("soon")))

	b, err := json.Marshal(Duration(1500 * time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, `"1.5s"`, string(b))
}
