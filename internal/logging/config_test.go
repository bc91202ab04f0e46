package logging

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/debugmem/internal/config"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, zapcore.InfoLevel, cfg.Level.Zap())
	assert.Equal(t, "json", cfg.Format)
	assert.True(t, cfg.Output.Stdout)
	assert.Empty(t, cfg.Output.File.Path)
	assert.Equal(t, 50, cfg.Output.File.MaxSizeMB)
	assert.Equal(t, "debugmem", cfg.Fields["service"])
	assert.Contains(t, cfg.Redaction.Fields, "dsn")
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bad format", func(c *Config) { c.Format = "xml" }, "logging.format"},
		{"no outputs", func(c *Config) { c.Output.Stdout = false }, "at least one output"},
		{"stderr only", func(c *Config) {
			c.Output.Stdout = false
			c.Output.Stderr = true
		}, ""},
		{"file only", func(c *Config) {
			c.Output.Stdout = false
			c.Output.File.Path = "/tmp/debugmem.log"
		}, ""},
		{"negative file size", func(c *Config) {
			c.Output.File.Path = "/tmp/debugmem.log"
			c.Output.File.MaxSizeMB = -1
		}, "max_size_mb"},
		{"zero tick", func(c *Config) { c.Sampling.Tick = config.Duration(0) }, "logging.sampling.tick"},
		{"negative caller skip", func(c *Config) { c.Caller.Skip = -1 }, "logging.caller.skip"},
		{"bad pattern", func(c *Config) { c.Redaction.Patterns = []string{"("} }, "invalid redaction pattern"},
		{"long pattern", func(c *Config) { c.Redaction.Patterns = []string{strings.Repeat("a", maxPatternLen+1)} }, "too long"},
		{"empty field key", func(c *Config) { c.Fields[""] = "x" }, "key cannot be empty"},
		{"empty field value", func(c *Config) { c.Fields["env"] = "" }, "empty value"},
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
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestConfig_Validate_ReportsEveryField(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Format = "xml"
	cfg.Output.Stdout = false
	cfg.Caller.Skip = -1

	err := cfg.Validate()
	if assert.Error(t, err) {
		for _, field := range []string{"logging.format", "logging.output", "logging.caller.skip"} {
			assert.Contains(t, err.Error(), field)
		}
	}
}
