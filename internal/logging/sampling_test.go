package logging

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/fyrsmithlabs/debugmem/internal/config"
)

func sampledLogger(levels map[zapcore.Level]LevelSamplingConfig) (*Logger, *observer.ObservedLogs) {
	core, observed := observer.New(TraceLevel)
	cfg := SamplingConfig{
		Enabled: true,
		Tick:    config.Duration(time.Minute),
		Levels:  levels,
	}
	return newLogger(zap.New(newSampledCore(core, cfg)), NewDefaultConfig()), observed
}

func TestNewSampledCore_Disabled(t *testing.T) {
	core, _ := observer.New(zapcore.InfoLevel)
	assert.Equal(t, core, newSampledCore(core, SamplingConfig{Enabled: false}))
}

func TestNewSampledCore_ErrorsNeverSampled(t *testing.T) {
	logger, observed := sampledLogger(map[zapcore.Level]LevelSamplingConfig{
		zapcore.ErrorLevel: {Initial: 1, Thereafter: 0},
	})
	for i := 0; i < 50; i++ {
		logger.Error(context.Background(), "store write failed")
	}
	assert.Equal(t, 50, observed.FilterMessage("store write failed").Len())
}

func TestNewSampledCore_PerLevelRates(t *testing.T) {
	logger, observed := sampledLogger(DefaultLevelSamplingConfig())
	ctx := context.Background()
	for i := 0; i < 20; i++ {
		logger.Trace(ctx, "strategy complete")
		logger.Debug(ctx, "search complete")
		logger.Info(ctx, "incident stored")
	}

	assert.Equal(t, 1, observed.FilterMessage("strategy complete").Len())
	assert.Equal(t, 10, observed.FilterMessage("search complete").Len())
	assert.Equal(t, 20, observed.FilterMessage("incident stored").Len())
}

func TestNewSampledCore_TraceSampledAtOwnLevel(t *testing.T) {
	logger, observed := sampledLogger(map[zapcore.Level]LevelSamplingConfig{
		TraceLevel:         {Initial: 2, Thereafter: 5},
		zapcore.DebugLevel: {Initial: 1, Thereafter: 0},
	})
	ctx := context.Background()
	child := logger.With(zap.String("strategy", "fuzzy"))
	for i := 0; i < 12; i++ {
		child.Trace(ctx, "strategy complete")
		logger.Debug(ctx, "strategy complete")
	}

	// Trace: entries 1, 2, 7 and 12. Debug counts separately.
	traces := observed.FilterLevelExact(TraceLevel)
	assert.Equal(t, 4, traces.Len())
	assert.Equal(t, 1, observed.FilterLevelExact(zapcore.DebugLevel).Len())
	for _, e := range traces.All() {
		assert.Equal(t, "fuzzy", e.ContextMap()["strategy"])
	}
}

func TestLevelShiftCore(t *testing.T) {
	core, observed := observer.New(TraceLevel)
	shifted := &levelShiftCore{Core: core, from: zapcore.DebugLevel, to: TraceLevel}

	assert.True(t, shifted.Enabled(zapcore.DebugLevel))
	assert.False(t, shifted.Enabled(zapcore.InfoLevel))

	logger := zap.New(shifted)
	logger.Debug("moved")
	logger.Info("dropped")

	logs := observed.All()
	if assert.Len(t, logs, 1) {
		assert.Equal(t, TraceLevel, logs[0].Level)
		assert.Equal(t, "moved", logs[0].Message)
	}
}

func TestNewSampledCore_UnlistedLevelPassesThrough(t *testing.T) {
	logger, observed := sampledLogger(map[zapcore.Level]LevelSamplingConfig{
		zapcore.InfoLevel: {Initial: 2, Thereafter: 0},
	})
	for i := 0; i < 5; i++ {
		logger.Info(context.Background(), "info")
		logger.Warn(context.Background(), "warn")
	}
	assert.Equal(t, 2, observed.FilterMessage("info").Len())
	assert.Equal(t, 5, observed.FilterMessage("warn").Len())
}

func TestLevelFilterCore_With(t *testing.T) {
	core, observed := observer.New(TraceLevel)
	filtered := &levelFilterCore{Core: core, match: func(l zapcore.Level) bool { return l >= zapcore.WarnLevel }}

	logger := zap.New(filtered.With([]zapcore.Field{zap.String("component", "scheduler")}))
	logger.Info("dropped")
	logger.Warn("kept")

	logs := observed.All()
	if assert.Len(t, logs, 1) {
		assert.Equal(t, "scheduler", logs[0].ContextMap()["component"])
	}
}
