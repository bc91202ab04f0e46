package logging

import (
	"context"
	"fmt"
	"regexp"
	"unicode/utf8"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type ctxKey uint8

const (
	agentKey ctxKey = iota + 1
	requestKey
	loggerKey
)

// correlated lists the context values copied onto every entry, in order.
var correlated = [...]struct {
	key   ctxKey
	field string
}{
	{agentKey, "agent"},
	{requestKey, "request.id"},
}

// ContextFields returns the correlation fields carried by ctx: the active
// span, the calling agent and the request id.
func ContextFields(ctx context.Context) []zap.Field {
	var fields []zap.Field
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()))
		if sc.IsSampled() {
			fields = append(fields, zap.Bool("trace_sampled", true))
		}
	}
	for _, c := range correlated {
		if v := stringValue(ctx, c.key); v != "" {
			fields = append(fields, zap.String(c.field, v))
		}
	}
	return fields
}

const maxIDLen = 128

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

// ValidateID reports whether id is usable as a correlation value: at most
// 128 characters of letters, digits, dot, hyphen and underscore.
func ValidateID(id, name string) error {
	switch {
	case id == "":
		return fmt.Errorf("%s is empty", name)
	case len(id) > maxIDLen:
		return fmt.Errorf("%s is longer than %d characters", name, maxIDLen)
	case !utf8.ValidString(id), !idPattern.MatchString(id):
		return fmt.Errorf("%s may only contain letters, digits, '.', '-' and '_'", name)
	}
	return nil
}

// WithAgent tags ctx with the calling agent, such as the assistant that
// stored an incident. Values rejected by ValidateID leave ctx unchanged, so
// request headers can be passed through as is.
func WithAgent(ctx context.Context, agent string) context.Context {
	return withID(ctx, agentKey, agent, "agent")
}

// WithRequestID tags ctx with a request id; invalid ids are ignored.
func WithRequestID(ctx context.Context, id string) context.Context {
	return withID(ctx, requestKey, id, "request id")
}

func AgentFromContext(ctx context.Context) string     { return stringValue(ctx, agentKey) }
func RequestIDFromContext(ctx context.Context) string { return stringValue(ctx, requestKey) }

func withID(ctx context.Context, key ctxKey, id, name string) context.Context {
	if ValidateID(id, name) != nil {
		return ctx
	}
	return context.WithValue(ctx, key, id)
}

func stringValue(ctx context.Context, key ctxKey) string {
	s, _ := ctx.Value(key).(string)
	return s
}

// WithLogger stores logger in ctx for FromContext.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext returns the logger stored by WithLogger, or a logger that
// discards everything.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerKey).(*Logger); ok && l != nil {
		return l
	}
	return newLogger(zap.NewNop(), NewDefaultConfig())
}
