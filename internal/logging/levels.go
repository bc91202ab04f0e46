package logging

import (
	"strings"

	"go.uber.org/zap/zapcore"
)

// TraceLevel sits below Debug (-1). The search engine logs per-strategy
// match counts at this level.
const TraceLevel = zapcore.Level(-2)

// LevelFromString parses a level name, accepting "trace" in any case.
func LevelFromString(level string) (zapcore.Level, error) {
	if strings.EqualFold(strings.TrimSpace(level), "trace") {
		return TraceLevel, nil
	}
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return zapcore.InfoLevel, err
	}
	return l, nil
}

// Level is the configured minimum level. Unlike zapcore.Level it reads
// "trace" from config files and DEBUGMEM_LOGGING_LEVEL.
type Level zapcore.Level

// Zap returns l as a zapcore.Level.
func (l Level) Zap() zapcore.Level { return zapcore.Level(l) }

func (l Level) String() string {
	if l.Zap() == TraceLevel {
		return "trace"
	}
	return l.Zap().String()
}

// MarshalText implements encoding.TextMarshaler.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Level) UnmarshalText(text []byte) error {
	lvl, err := LevelFromString(string(text))
	if err != nil {
		return err
	}
	*l = Level(lvl)
	return nil
}
