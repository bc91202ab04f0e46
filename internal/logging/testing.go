package logging

import (
	"context"
	"reflect"
	"regexp"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestLogger records every entry, Trace included, for assertions. Pass
// Underlying() to the domain package under test.
type TestLogger struct {
	*Logger
	observed *observer.ObservedLogs
}

// NewTestLogger creates an observing logger without redaction, so tests
// can tell whether a caller logged a secret.
func NewTestLogger() *TestLogger {
	core, observed := observer.New(TraceLevel)
	return &TestLogger{
		Logger:   newLogger(zap.New(core), NewDefaultConfig()),
		observed: observed,
	}
}

// All returns every recorded entry.
func (t *TestLogger) All() []observer.LoggedEntry {
	return t.observed.All()
}

// FilterMessage returns entries whose message equals msg.
func (t *TestLogger) FilterMessage(msg string) *observer.ObservedLogs {
	return t.observed.FilterMessage(msg)
}

// Reset discards the recorded entries.
func (t *TestLogger) Reset() {
	t.observed.TakeAll()
}

func (t *TestLogger) find(level zapcore.Level, substr string) []observer.LoggedEntry {
	return t.observed.Filter(func(e observer.LoggedEntry) bool {
		return e.Level == level && strings.Contains(e.Message, substr)
	}).All()
}

// AssertLogged fails tb unless an entry at level contains substr.
func (t *TestLogger) AssertLogged(tb testing.TB, level zapcore.Level, substr string) {
	tb.Helper()
	if len(t.find(level, substr)) == 0 {
		tb.Errorf("no %v entry containing %q; got %s", level, substr, t.summary())
	}
}

// AssertNotLogged fails tb if an entry at level contains substr.
func (t *TestLogger) AssertNotLogged(tb testing.TB, level zapcore.Level, substr string) {
	tb.Helper()
	if n := len(t.find(level, substr)); n > 0 {
		tb.Errorf("unexpected %d %v entries containing %q", n, level, substr)
	}
}

// AssertField fails tb unless an entry with message msg carries key=want.
// Integer fields compare as int64 and objects as map[string]any, as the
// observer decodes them.
func (t *TestLogger) AssertField(tb testing.TB, msg, key string, want any) {
	tb.Helper()
	for _, e := range t.observed.FilterMessage(msg).All() {
		if got, ok := e.ContextMap()[key]; ok && reflect.DeepEqual(got, want) {
			return
		}
	}
	tb.Errorf("no %q entry with %s=%v; got %s", msg, key, want, t.summary())
}

// AssertCorrelated fails tb unless the entry with message msg carries the
// correlation field key that ContextFields derives from ctx.
func (t *TestLogger) AssertCorrelated(tb testing.TB, ctx context.Context, msg, key string) {
	tb.Helper()
	var want string
	for _, f := range ContextFields(ctx) {
		if f.Key == key {
			want = f.String
		}
	}
	if want == "" {
		tb.Fatalf("context carries no %q", key)
	}
	t.AssertField(tb, msg, key, want)
}

// AssertNoSecrets fails tb if an entry would leak through the default
// redaction rules: a sensitive key with a clear value, or a message or
// string field matching a redaction pattern.
func (t *TestLogger) AssertNoSecrets(tb testing.TB) {
	tb.Helper()
	rules := NewDefaultConfig().Redaction
	patterns := make([]*regexp.Regexp, len(rules.Patterns))
	for i, p := range rules.Patterns {
		patterns[i] = regexp.MustCompile(p)
	}
	leaks := func(s string) bool {
		for _, re := range patterns {
			if re.MatchString(s) {
				return true
			}
		}
		return false
	}

	for _, e := range t.observed.All() {
		if leaks(e.Message) {
			tb.Errorf("secret in message %q", e.Message)
		}
		for _, f := range e.Context {
			if f.Type != zapcore.StringType || f.String == "" {
				continue
			}
			if leaks(f.String) {
				tb.Errorf("secret in field %q of %q", f.Key, e.Message)
				continue
			}
			key := strings.ToLower(f.Key)
			for _, sensitive := range rules.Fields {
				if strings.Contains(key, sensitive) && !strings.HasPrefix(f.String, "[REDACTED") {
					tb.Errorf("sensitive field %q of %q not redacted", f.Key, e.Message)
				}
			}
		}
	}
}

func (t *TestLogger) summary() string {
	var b strings.Builder
	for i, e := range t.observed.All() {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(e.Level.String() + ":" + e.Message)
	}
	return "[" + b.String() + "]"
}
