package main

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/debugmem/internal/aggregate"
	"github.com/fyrsmithlabs/debugmem/internal/config"
	"github.com/fyrsmithlabs/debugmem/internal/logging"
	"github.com/fyrsmithlabs/debugmem/internal/memory"
	"github.com/fyrsmithlabs/debugmem/internal/patterns"
	"github.com/fyrsmithlabs/debugmem/internal/search"
	"github.com/fyrsmithlabs/debugmem/internal/store"
	"github.com/fyrsmithlabs/debugmem/internal/telemetry"
)

// app holds the wired dependencies of one command invocation.
type app struct {
	cfg       *config.Config
	logger    *logging.Logger
	tel       *telemetry.Telemetry
	store     store.Store
	extractor *patterns.Extractor
	svc       memory.Service
}

// openApp loads configuration and wires logging, telemetry, the store and
// the memory service. Long-running commands set daemon so logs follow the
// logging section; other commands log to stderr only, keeping stdout for
// results.
func openApp(ctx context.Context, flags *rootFlags, daemon bool) (*app, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}

	logCfg, err := loggingConfig(cfg, flags, daemon)
	if err != nil {
		return nil, err
	}

	telCfg := telemetry.NewDefaultConfig()
	telCfg.ServiceVersion = version
	if err := cfg.Section("telemetry", telCfg); err != nil {
		return nil, err
	}
	tel, err := telemetry.New(ctx, telCfg,
		telemetry.WithAttributes(attribute.String("debugmem.storage.backend", cfg.Storage.Backend)))
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(logCfg, tel.LoggerProvider())
	if err != nil {
		_ = tel.Shutdown(ctx)
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	zl := logger.Underlying()

	path, err := cfg.StoragePath()
	if err != nil {
		_ = tel.Shutdown(ctx)
		return nil, err
	}
	st, err := store.Open(ctx, store.Options{
		Backend: cfg.Storage.Backend,
		Path:    path,
		DSN:     cfg.Storage.DSN.Value(),
	}, zl.Named("store"))
	if err != nil {
		_ = tel.Shutdown(ctx)
		return nil, fmt.Errorf("opening %s store: %w", cfg.Storage.Backend, err)
	}

	mcfg := memoryConfig(cfg)
	extractor, err := patterns.NewExtractor(st,
		patterns.WithConfig(mcfg.Extraction),
		patterns.WithLogger(zl.Named("patterns")),
		patterns.WithMetrics(patterns.NewMetrics()),
	)
	if err != nil {
		_ = st.Close()
		_ = tel.Shutdown(ctx)
		return nil, err
	}

	svc, err := memory.NewService(mcfg, st,
		memory.WithLogger(zl),
		memory.WithTelemetry(tel),
		memory.WithSearchMetrics(search.NewMetrics()),
		memory.WithExtractor(extractor),
	)
	if err != nil {
		_ = st.Close()
		_ = tel.Shutdown(ctx)
		return nil, err
	}

	logger.Debug(ctx, "debugmem ready",
		zap.String("backend", cfg.Storage.Backend),
		logging.Secret("dsn", cfg.Storage.DSN),
		zap.Bool("auto_extract", mcfg.AutoExtract))

	return &app{
		cfg:       cfg,
		logger:    logger,
		tel:       tel,
		store:     st,
		extractor: extractor,
		svc:       svc,
	}, nil
}

// Close releases the service, which closes the store, then flushes
// telemetry and logs.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if err := a.svc.Close(); err != nil {
		errs = append(errs, err)
	}
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := a.tel.Shutdown(sctx); err != nil {
		errs = append(errs, err)
	}
	_ = a.logger.Sync()
	return errors.Join(errs...)
}

// context attaches the --agent flag and the logger to ctx.
func (a *app) context(ctx context.Context, flags *rootFlags) context.Context {
	return logging.WithLogger(logging.WithAgent(ctx, flags.agent), a.logger)
}

// loggingConfig reads the logging section and applies command overrides.
func loggingConfig(cfg *config.Config, flags *rootFlags, daemon bool) (*logging.Config, error) {
	logCfg := logging.NewDefaultConfig()
	if err := cfg.Section("logging", logCfg); err != nil {
		return nil, err
	}
	if !daemon {
		logCfg.Output.Stdout = false
		logCfg.Output.Stderr = true
		logCfg.Format = "console"
		if logCfg.Level.Zap() < zapcore.WarnLevel {
			logCfg.Level = logging.Level(zapcore.WarnLevel)
		}
	}
	if flags.verbose {
		logCfg.Level = logging.Level(zapcore.DebugLevel)
	}
	return logCfg, nil
}

// memoryConfig maps the file configuration onto the service configuration.
func memoryConfig(cfg *config.Config) *memory.Config {
	return &memory.Config{
		Search: search.Options{
			Threshold:  search.Threshold(cfg.Search.Threshold),
			MaxResults: cfg.Search.MaxResults,
		},
		FuzzyFloor:    cfg.Search.FuzzyFloor,
		SearchTimeout: cfg.Search.Timeout.Duration(),
		Extraction: patterns.Config{
			MinIncidents:   cfg.Extraction.MinIncidents,
			MinSimilarity:  cfg.Extraction.MinSimilarity,
			MinConfidence:  cfg.Extraction.MinConfidence,
			AutoMinSimilar: cfg.Extraction.AutoMinSimilar,
			AutoMinQuality: cfg.Extraction.AutoMinQuality,
		},
		AutoExtract: cfg.Extraction.AutoExtract,
		Aggregation: aggregate.Config{
			MaxResults:     cfg.Aggregation.MaxResults,
			MinScore:       aggregate.Float(cfg.Aggregation.MinScore),
			DedupThreshold: cfg.Aggregation.DedupThreshold,
			MaxActions:     cfg.Aggregation.MaxActions,
		},
	}
}
