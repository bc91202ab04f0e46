package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/debugmem/internal/config"
)

func TestTestLogger_Assertions(t *testing.T) {
	tl := NewTestLogger()
	ctx := WithAgent(context.Background(), "debug-assistant")

	tl.Info(ctx, "pattern extracted", zap.String("category", "react-hooks"), zap.Int("sources", 3))
	tl.Trace(ctx, "strategy complete", zap.String("strategy", "fuzzy"))

	tl.AssertLogged(t, zapcore.InfoLevel, "pattern extracted")
	tl.AssertLogged(t, TraceLevel, "strategy")
	tl.AssertNotLogged(t, zapcore.ErrorLevel, "pattern extracted")
	tl.AssertField(t, "pattern extracted", "category", "react-hooks")
	tl.AssertField(t, "pattern extracted", "sources", int64(3))
	tl.AssertCorrelated(t, ctx, "pattern extracted", "agent")
	tl.AssertNoSecrets(t)
	assert.Equal(t, 1, tl.FilterMessage("pattern extracted").Len())

	tl.Reset()
	assert.Empty(t, tl.All())
}

func TestTestLogger_RecordsSecretsForAssertion(t *testing.T) {
	tl := NewTestLogger()
	tl.Info(context.Background(), "unsafe", zap.String("password", "secret123"))

	logs := tl.All()
	assert.Len(t, logs, 1)
	assert.Equal(t, "secret123", logs[0].ContextMap()["password"])

	rec := &recordingTB{TB: t}
	tl.AssertNoSecrets(rec)
	assert.Equal(t, 1, rec.errors, "clear password is reported")
}

// recordingTB counts failures instead of failing the test.
type recordingTB struct {
	testing.TB
	errors int
}

func (r *recordingTB) Helper() {}

func (r *recordingTB) Errorf(string, ...any) { r.errors++ }

func TestTestLogger_AssertNoSecrets_AcceptsRedactedFields(t *testing.T) {
	tl := NewTestLogger()
	tl.Info(context.Background(), "opening store",
		Secret("dsn", config.Secret("postgres://u:p@db/memory")),
		RedactedString("api_token", "abc"),
		zap.String("backend", "postgres"))

	tl.AssertNoSecrets(t)
}
