// Package logging provides structured logging with OpenTelemetry integration.
//
// Logger wraps Zap with:
//   - a Trace level (-2, below Debug)
//   - stdout, rotated file and OpenTelemetry outputs
//   - context field injection (trace_id, agent, request id)
//   - secret redaction on every output
//   - per-level sampling; errors are never sampled
//
// Create a logger from the "logging" config section:
//
//	cfg := logging.NewDefaultConfig()
//	if err := appCfg.Section("logging", cfg); err != nil {
//	    return err
//	}
//	logger, err := logging.NewLogger(cfg, tel.LoggerProvider())
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
// Domain packages accept a *zap.Logger; pass logger.Underlying().
//
// Log with context:
//
//	ctx = logging.WithAgent(ctx, "debug-assistant")
//	logger.Info(ctx, "incident stored", zap.String("id", inc.ID))
//
// Secrets are redacted by config.Secret, by field name (password, token,
// dsn, ...) and by value pattern (bearer tokens, API keys, credentials in
// PostgreSQL URLs). Use RedactedString for ad hoc values.
//
// TestLogger records entries for assertions:
//
//	tl := logging.NewTestLogger()
//	svc := newThing(tl.Underlying())
//	tl.AssertLogged(t, zapcore.InfoLevel, "pattern extracted")
package logging
