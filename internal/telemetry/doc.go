// Package telemetry provides OpenTelemetry tracing and metrics for debugmem.
//
// Spans and counters are exported over OTLP (gRPC or HTTP/protobuf) to a
// collector. Export is disabled by default; the service then falls back to
// the global no-op providers.
//
//	tel, err := telemetry.New(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(ctx)
//
//	svc, err := memory.NewService(memCfg, st, memory.WithTelemetry(tel))
//
// # Configuration
//
//	telemetry:
//	  enabled: true
//	  endpoint: "localhost:4317"
//	  protocol: grpc        # or http/protobuf
//	  sampling:
//	    rate: 1.0
//	  metrics:
//	    export_interval: "15s"
//
// Plaintext export is only accepted for local endpoints.
//
// # Testing
//
// NewTestTelemetry records spans and metrics in memory:
//
//	tt := telemetry.NewTestTelemetry()
//	svc, _ := memory.NewService(nil, st, memory.WithTelemetry(tt.Telemetry))
//	svc.Search(ctx, "pool exhausted", search.Options{})
//	tt.AssertSpanExists(t, "memory.search")
package telemetry
