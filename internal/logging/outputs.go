package logging

import (
	"fmt"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/log"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const otelScope = "github.com/fyrsmithlabs/debugmem"

// newCore tees every enabled output and wraps the result with sampling.
// Each output is wrapped with the redaction rules.
func newCore(cfg *Config, otelProvider log.LoggerProvider) (zapcore.Core, error) {
	cores := make([]zapcore.Core, 0, 4)

	for _, out := range []struct {
		on bool
		f  *os.File
	}{{cfg.Output.Stdout, os.Stdout}, {cfg.Output.Stderr, os.Stderr}} {
		if !out.on {
			continue
		}
		cores = append(cores, zapcore.NewCore(newEncoder(cfg.Format), zapcore.Lock(out.f), cfg.Level.Zap()))
	}

	if cfg.Output.File.Path != "" {
		// Files are always JSON so they stay machine-readable.
		cores = append(cores, zapcore.NewCore(newEncoder("json"), zapcore.AddSync(newFileWriter(cfg.Output.File)), cfg.Level.Zap()))
	}

	if cfg.Output.OTEL && otelProvider != nil {
		cores = append(cores, otelzap.NewCore(otelScope, otelzap.WithLoggerProvider(otelProvider)))
	}

	if len(cores) == 0 {
		return nil, fmt.Errorf("at least one output must be enabled and available")
	}
	if cfg.Redaction.Enabled {
		r, err := newRedactor(cfg.Redaction)
		if err != nil {
			return nil, err
		}
		for i, c := range cores {
			cores[i] = &redactingCore{Core: c, r: r}
		}
	}

	core := cores[0]
	if len(cores) > 1 {
		core = zapcore.NewTee(cores...)
	}
	return newSampledCore(core, cfg.Sampling), nil
}

// newFileWriter returns a size-rotated writer for cfg.
func newFileWriter(cfg FileOutputConfig) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
}
