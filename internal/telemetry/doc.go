// Package telemetry exports repoctx traces and metrics over OTLP.
//
// The pipeline opens a pipeline.run span per run, with pipeline.listing and
// one scheduler.batch span per batch beneath it; the HTTP server records
// request counts and latencies through the meter. With telemetry disabled
// both come from the otel no-op providers, so callers never branch on it.
//
// A failing exporter does not fail New. The instance reports itself
// degraded through Health and keeps running on no-op providers.
//
// Tests use NewTestTelemetry, which records into memory:
//
//	tt := telemetry.NewTestTelemetry()
//	o, _ := pipeline.New(provider, store, pipeline.WithTracer(tt.Tracer("test")))
//	o.Run(ctx, url, events.Discard)
//	tt.AssertSpanCount(t, "scheduler.batch", 1)
package telemetry
