// Package main implements debugmem, a debugging memory for coding agents.
//
// It stores resolved incidents, retrieves similar ones, mines recurring
// incidents into reusable patterns and aggregates findings into a ranked
// summary. Every operation is available as a command, over HTTP through
// serve and as MCP tools through mcp.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

const (
	formatText = "text"
	formatJSON = "json"
)

// rootFlags are shared by every command.
type rootFlags struct {
	configPath string
	format     string
	verbose    bool
	agent      string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:   "debugmem",
		Short: "Debugging memory: incident retrieval and pattern mining",
		Long: `debugmem remembers how bugs were fixed.

Store resolved incidents, search them with exact, tag, fuzzy and category
strategies in parallel, and let recurring incidents be mined into reusable
patterns. Patterns are consulted before raw incidents. Agents can reach
the same operations as MCP tools with "debugmem mcp".

Configuration is read from ~/.config/debugmem/config.yaml (or --config) and
DEBUGMEM_* environment variables.`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, gitCommit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if flags.format != formatText && flags.format != formatJSON {
				return fmt.Errorf("--format must be %q or %q", formatText, formatJSON)
			}
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "config file (default ~/.config/debugmem/config.yaml)")
	pf.StringVarP(&flags.format, "format", "o", formatText, "output format: text or json")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "log at debug level to stderr")
	pf.StringVar(&flags.agent, "agent", "", "agent name recorded on stored incidents and logs")

	root.AddCommand(
		newSearchCmd(flags),
		newCheckCmd(flags),
		newPatternsCmd(flags),
		newStoreCmd(flags),
		newStatsCmd(flags),
		newAggregateCmd(flags),
		newServeCmd(flags),
		newMCPCmd(flags),
		newWatchCmd(flags),
	)
	return root
}
