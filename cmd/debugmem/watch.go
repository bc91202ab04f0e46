package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/debugmem/internal/incident"
)

func newWatchCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Run auto extraction for incidents written into the store directory",
		Long: `watch follows the file store's incident directory and runs the
auto-extraction check for every incident file that is created or rewritten.
Each pattern created is printed as it appears. Stop with Ctrl-C.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, flags, true, func(ctx context.Context, a *app) error {
				zl := a.logger.Underlying()
				out := cmd.OutOrStdout()
				w, err := newWatcherWith(a, zl, func(p *incident.Pattern) {
					if flags.format == formatJSON {
						_ = outputJSON(out, p)
						return
					}
					fmt.Fprintf(out, "%s %s (%d incidents)\n",
						goodStyle.Render("pattern"), idStyle.Render(p.ID), len(p.SourceIncidents))
				})
				if err != nil {
					return err
				}
				if w == nil {
					return fmt.Errorf("watch requires the file storage backend, got %q", a.cfg.Storage.Backend)
				}
				a.logger.Info(ctx, "watching for incidents")
				return w.Run(ctx)
			})
		},
	}
}
