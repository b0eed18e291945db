// Package trace records what a lowering run did, for diagnosing slow or
// failing runs.
//
// Events are grouped into spans by scope: a CLI command (driver), a pass
// (lower-types, fixup-paths), a module worker, and single rewrites such as
// a hierarchical path split. A Level decides how deep the recorded spans
// go; failures are recorded at every level except off.
//
// Two tracers store events. Stream writes them as they arrive. Recorder
// keeps the newest ones in a ring, so that a failed run can print what led
// up to the failure without paying for a full trace file:
//
//	firlower lower --trace-level=detail --trace-mode=ring in.fsnap
//
// The tracer and the current parent span travel in a context:
//
//	ctx = trace.WithTracer(ctx, t)
//	span := trace.Begin(trace.FromContext(ctx), trace.ScopePass, "lower-types", trace.ParentFrom(ctx))
//	defer span.End("")
package trace
