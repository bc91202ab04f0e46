package main

import (
	"context"

	"github.com/spf13/cobra"

	mcpserver "github.com/fyrsmithlabs/debugmem/internal/mcp"
)

func newMCPCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the memory as MCP tools over stdio",
		Long: `mcp speaks the Model Context Protocol on stdin and stdout so coding
agents can check memory before debugging and store incidents once a fix is
verified. Logs go to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, flags, false, func(ctx context.Context, a *app) error {
				srv, err := newMCPServer(a, flags)
				if err != nil {
					return err
				}
				return srv.Run(ctx)
			})
		},
	}
}

func newMCPServer(a *app, flags *rootFlags) (*mcpserver.Server, error) {
	return mcpserver.NewServer(&mcpserver.Config{
		Version:   version,
		Agent:     flags.agent,
		Logger:    a.logger.Underlying().Named("mcp"),
		Telemetry: a.tel,
	}, a.svc)
}
