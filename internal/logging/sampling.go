package logging

import (
	"time"

	"go.uber.org/zap/zapcore"
)

// newSampledCore wraps core with per-level sampling from cfg.Levels.
// Error and above are never sampled, and levels without an entry pass
// through unsampled.
func newSampledCore(core zapcore.Core, cfg SamplingConfig) zapcore.Core {
	if !cfg.Enabled {
		return core
	}

	cores := []zapcore.Core{
		&levelFilterCore{Core: core, match: func(l zapcore.Level) bool {
			if l >= zapcore.ErrorLevel {
				return true
			}
			_, sampled := cfg.Levels[l]
			return !sampled
		}},
	}
	for lvl, rate := range cfg.Levels {
		if lvl >= zapcore.ErrorLevel {
			continue
		}
		cores = append(cores, sampleLevel(core, lvl, cfg.Tick.Duration(), rate))
	}
	return zapcore.NewTee(cores...)
}

// sampleLevel samples the entries of a single level. zapcore's sampler only
// counts Debug through Fatal and lets anything else through, so a level
// below Debug is presented to it as Debug and restored before core sees it.
func sampleLevel(core zapcore.Core, lvl zapcore.Level, tick time.Duration, rate LevelSamplingConfig) zapcore.Core {
	if lvl >= zapcore.DebugLevel {
		filtered := &levelFilterCore{Core: core, match: func(l zapcore.Level) bool { return l == lvl }}
		return zapcore.NewSamplerWithOptions(filtered, tick, rate.Initial, rate.Thereafter)
	}
	restore := &levelShiftCore{Core: core, from: zapcore.DebugLevel, to: lvl}
	sampler := zapcore.NewSamplerWithOptions(restore, tick, rate.Initial, rate.Thereafter)
	return &levelShiftCore{Core: sampler, from: lvl, to: zapcore.DebugLevel}
}

// levelShiftCore accepts only entries at level from and hands them to the
// wrapped core at level to.
type levelShiftCore struct {
	zapcore.Core
	from, to zapcore.Level
}

func (c *levelShiftCore) Enabled(lvl zapcore.Level) bool {
	return lvl == c.from && c.Core.Enabled(c.to)
}

func (c *levelShiftCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if e.Level != c.from {
		return ce
	}
	e.Level = c.to
	return c.Core.Check(e, ce)
}

func (c *levelShiftCore) With(fields []zapcore.Field) zapcore.Core {
	return &levelShiftCore{Core: c.Core.With(fields), from: c.from, to: c.to}
}

// levelFilterCore forwards only the levels match accepts.
type levelFilterCore struct {
	zapcore.Core
	match func(zapcore.Level) bool
}

func (c *levelFilterCore) Enabled(lvl zapcore.Level) bool {
	return c.match(lvl) && c.Core.Enabled(lvl)
}

func (c *levelFilterCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.Enabled(e.Level) {
		return ce
	}
	return c.Core.Check(e, ce)
}

// With creates a child core that preserves level filtering.
func (c *levelFilterCore) With(fields []zapcore.Field) zapcore.Core {
	return &levelFilterCore{
		Core:  c.Core.With(fields),
		match: c.match,
	}
}
