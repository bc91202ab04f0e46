package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/debugmem/internal/config"
	httpserver "github.com/fyrsmithlabs/debugmem/internal/http"
	"github.com/fyrsmithlabs/debugmem/internal/incident"
	"github.com/fyrsmithlabs/debugmem/internal/patterns"
	"github.com/fyrsmithlabs/debugmem/internal/store"
	"github.com/fyrsmithlabs/debugmem/internal/watch"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	var (
		host string
		port int
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the memory API over HTTP",
		Long: `serve exposes every operation under /api/v1 and Prometheus metrics
under /metrics.

When extraction.schedule_interval is set, batch extraction runs
periodically. When watch.enabled is set and storage uses the file backend,
incidents written straight into the incident directory trigger auto
extraction.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, flags, true, func(ctx context.Context, a *app) error {
				cfg := &httpserver.Config{
					Host:      a.cfg.Server.Host,
					Port:      a.cfg.Server.Port,
					RateLimit: a.cfg.Server.RateLimit,
					RateBurst: a.cfg.Server.RateBurst,
				}
				if host != "" {
					cfg.Host = host
				}
				if port != 0 {
					cfg.Port = port
				}
				return serve(ctx, a, cfg)
			})
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "listen host (default from config)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (default from config)")
	return cmd
}

// serve runs the HTTP server and the background workers until ctx is
// cancelled or one of them fails.
func serve(ctx context.Context, a *app, cfg *httpserver.Config) error {
	zl := a.logger.Underlying()

	srv, err := httpserver.NewServer(a.svc, zl.Named("http"), cfg,
		httpserver.WithVersion(version),
		httpserver.WithTelemetry(a.tel),
		httpserver.WithMetrics(httpserver.NewRequestMetrics(a.tel, zl)),
		httpserver.WithGatherer(prometheus.DefaultGatherer),
	)
	if err != nil {
		return err
	}

	sched, err := startScheduler(a.cfg, a.extractor, zl)
	if err != nil {
		return err
	}
	if sched != nil {
		defer func() { _ = sched.Stop() }()
	}

	g, gctx := errgroup.WithContext(ctx)

	if a.cfg.Watch.Enabled {
		w, err := newWatcher(a, zl)
		if err != nil {
			return err
		}
		if w != nil {
			g.Go(func() error { return w.Run(gctx) })
		}
	}

	g.Go(func() error {
		a.logger.Info(ctx, "debugmem listening",
			zap.String("addr", srv.Addr()),
			zap.String("version", version),
			zap.String("backend", a.cfg.Storage.Backend))
		if err := srv.Start(); err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.WithoutCancel(gctx), a.cfg.Server.ShutdownTimeout.Duration())
		defer cancel()
		a.logger.Info(ctx, "shutting down")
		return srv.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// startScheduler starts periodic batch extraction, or returns nil when no
// interval is configured.
func startScheduler(cfg *config.Config, extractor *patterns.Extractor, logger *zap.Logger) (*patterns.Scheduler, error) {
	interval := cfg.Extraction.ScheduleInterval.Duration()
	if interval <= 0 {
		return nil, nil
	}
	sched, err := patterns.NewScheduler(extractor, logger.Named("scheduler"),
		patterns.WithInterval(interval),
		patterns.WithRunTimeout(cfg.Search.Timeout.Duration()),
		patterns.WithExtractOptions(patterns.ExtractOptions{AutoStore: true}),
	)
	if err != nil {
		return nil, err
	}
	if err := sched.Start(); err != nil {
		return nil, err
	}
	return sched, nil
}

// newWatcher watches the file store's incident directory and logs every
// pattern it produces.
func newWatcher(a *app, logger *zap.Logger) (*watch.Watcher, error) {
	return newWatcherWith(a, logger, func(p *incident.Pattern) {
		logger.Info("pattern extracted from watched incident",
			zap.String("pattern_id", p.ID),
			zap.Int("sources", len(p.SourceIncidents)))
	})
}

// newWatcherWith returns nil when the store is not file backed.
func newWatcherWith(a *app, logger *zap.Logger, onPattern func(*incident.Pattern)) (*watch.Watcher, error) {
	fst, ok := a.store.(*store.FileStore)
	if !ok {
		logger.Warn("watch ignored: storage backend is not file",
			zap.String("backend", a.cfg.Storage.Backend))
		return nil, nil
	}
	return watch.New(fst.IncidentsDir(), fst, a.svc,
		watch.WithDebounce(a.cfg.Watch.Debounce.Duration()),
		watch.WithLogger(logger.Named("watch")),
		watch.OnPattern(onPattern),
	)
}
