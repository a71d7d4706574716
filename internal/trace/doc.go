// Package trace records spans of abicheck runs: commands, pipeline stages,
// single units and, at the finest level, single entity comparisons.
//
// Enable tracing via command-line flags:
//
//	abicheck dump --trace=- --trace-level=stage units/*.json
//
// Tracers:
//
//   - Nop: no-op tracer when disabled
//   - StreamTracer: immediate write to a file or stderr
//   - RingTracer: circular buffer, dumped on failure
//   - MultiTracer: fans out to several tracers
//
// Levels map onto scopes: "stage" emits command and stage spans, "unit"
// adds per-unit spans, "debug" emits everything.
//
// Tracers travel through context:
//
//	ctx = trace.WithTracer(ctx, tracer)
//	ctx, span := trace.StartSpan(ctx, trace.ScopeStage, "link")
//	defer span.End("")
package trace
