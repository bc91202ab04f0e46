package telemetry

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/fyrsmithlabs/debugmem/internal/config"
)

// Export protocols.
const (
	ProtocolGRPC = "grpc"
	ProtocolHTTP = "http/protobuf"
)

// Config is the telemetry section of the debugmem config file.
type Config struct {
	Enabled  bool   `koanf:"enabled"`
	Endpoint string `koanf:"endpoint"`
	Protocol string `koanf:"protocol"`

	// Insecure exports in plaintext. Only local endpoints accept it.
	Insecure      bool `koanf:"insecure"`
	TLSSkipVerify bool `koanf:"tls_skip_verify"`

	ServiceName    string `koanf:"service_name"`
	ServiceVersion string `koanf:"service_version"`

	// Attributes are added to the exported resource, for example
	// deployment.environment or team.
	Attributes map[string]string `koanf:"attributes"`

	Sampling SamplingConfig `koanf:"sampling"`
	Metrics  MetricsConfig  `koanf:"metrics"`
	Shutdown ShutdownConfig `koanf:"shutdown"`
}

// SamplingConfig sets the fraction of root spans kept (0.0 - 1.0).
type SamplingConfig struct {
	Rate float64 `koanf:"rate"`
}

// MetricsConfig controls counter and histogram export.
type MetricsConfig struct {
	Enabled        bool            `koanf:"enabled"`
	ExportInterval config.Duration `koanf:"export_interval"`
}

// ShutdownConfig bounds the final flush.
type ShutdownConfig struct {
	Timeout config.Duration `koanf:"timeout"`
}

// NewDefaultConfig returns the telemetry defaults. Export is off until a
// collector is configured.
func NewDefaultConfig() *Config {
	return &Config{
		Endpoint:       "localhost:4317",
		Protocol:       ProtocolGRPC,
		Insecure:       true,
		ServiceName:    "debugmem",
		ServiceVersion: "dev",
		Sampling:       SamplingConfig{Rate: 1.0},
		Metrics: MetricsConfig{
			Enabled:        true,
			ExportInterval: config.Duration(15 * time.Second),
		},
		Shutdown: ShutdownConfig{
			Timeout: config.Duration(5 * time.Second),
		},
	}
}

// Validate reports every invalid field of an enabled config. A disabled
// config is always valid.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	var errs []error
	bad := func(field, format string, args ...any) {
		errs = append(errs, fmt.Errorf("telemetry.%s: %s", field, fmt.Sprintf(format, args...)))
	}

	if c.Endpoint == "" {
		bad("endpoint", "required when telemetry is enabled")
	} else if c.Insecure && !c.isLocalEndpoint() {
		bad("insecure", "plaintext export is only allowed to localhost, got %q", c.Endpoint)
	}
	switch c.Protocol {
	case "", ProtocolGRPC, ProtocolHTTP:
	default:
		bad("protocol", "must be %q or %q, got %q", ProtocolGRPC, ProtocolHTTP, c.Protocol)
	}
	if c.ServiceName == "" {
		bad("service_name", "required when telemetry is enabled")
	}
	if c.ServiceVersion == "" {
		bad("service_version", "required when telemetry is enabled")
	}
	if c.Sampling.Rate < 0 || c.Sampling.Rate > 1 {
		bad("sampling.rate", "must be between 0 and 1, got %v", c.Sampling.Rate)
	}
	if c.Metrics.Enabled && c.Metrics.ExportInterval.Duration() <= 0 {
		bad("metrics.export_interval", "must be positive when metrics are enabled")
	}
	if c.Shutdown.Timeout.Duration() <= 0 {
		bad("shutdown.timeout", "must be positive")
	}
	return errors.Join(errs...)
}

// isLocalEndpoint reports whether the endpoint host is localhost or a
// loopback address.
func (c *Config) isLocalEndpoint() bool {
	host := stripScheme(c.Endpoint)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
