// Package mcp exposes the debugging memory as Model Context Protocol tools.
//
// This implementation uses the MCP SDK (github.com/modelcontextprotocol/go-sdk/mcp)
// and calls the memory service directly. Coding agents connect over stdio,
// check memory before debugging and store incidents once a fix is verified.
package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/debugmem/internal/memory"
	"github.com/fyrsmithlabs/debugmem/internal/telemetry"
)

// Server is an MCP server backed by a memory.Service.
type Server struct {
	mcp     *mcp.Server
	svc     memory.Service
	metrics *Metrics
	agent   string
	logger  *zap.Logger
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "debugmem")
	Name string

	// Version is the server version (default: "dev")
	Version string

	// Agent is recorded on stored incidents whose caller names none.
	Agent string

	// Logger for structured logging
	Logger *zap.Logger

	// Telemetry supplies the meter for tool metrics. Nil uses the global
	// meter provider.
	Telemetry *telemetry.Telemetry
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "debugmem",
		Version: "dev",
		Logger:  zap.NewNop(),
	}
}

// NewServer creates an MCP server and registers every memory tool.
func NewServer(cfg *Config, svc memory.Service) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if svc == nil {
		return nil, errors.New("memory service is required")
	}
	d := DefaultConfig()
	if cfg.Name == "" {
		cfg.Name = d.Name
	}
	if cfg.Version == "" {
		cfg.Version = d.Version
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		mcp: mcp.NewServer(
			&mcp.Implementation{
				Name:    cfg.Name,
				Version: cfg.Version,
			},
			nil,
		),
		svc:     svc,
		metrics: NewMetrics(cfg.Telemetry, logger),
		agent:   cfg.Agent,
		logger:  logger,
	}
	s.registerTools()
	return s, nil
}

// Run serves the MCP protocol on stdin and stdout until ctx is cancelled or
// the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	return s.Serve(ctx, &mcp.StdioTransport{})
}

// Serve serves the MCP protocol on t.
func (s *Server) Serve(ctx context.Context, t mcp.Transport) error {
	s.logger.Info("starting MCP server")
	if err := s.mcp.Run(ctx, t); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}
