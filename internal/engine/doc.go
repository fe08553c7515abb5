// Package engine implements the dustrun execution engine.
//
// A run takes one validated program through three regimes:
//
//	Φ  admissibility resolver, runs once before any step
//	K  classical stepper over scoped bindings
//	Q  linear-resource stepper over an arena of handles
//
// and ends in exactly one Trace.
//
// ARCHITECTURE:
//
// Single logical thread:
// The dispatcher (Machine) consumes statements strictly in program order.
// Each executed K or Q statement advances the logical clock by 1 and may
// append one effect event. Nothing in a run reads wall-clock time or host
// state, so the trace is a pure function of (program, config).
//
// Run lifecycle:
//
//	Resolving -> Stepping -> Succeeded | Failed
//	                      -> Cancelled (host abort, no trace)
//
// Faults vs host errors:
// A semantic failure (Fault) always becomes a FailureTrace. Cancellation,
// malformed programs and incompatible bundles are host errors returned
// alongside an empty Trace.
//
// Internal parallelism:
// The resolver may solve independent constraint components concurrently.
// Results are merged by component index before anything observable is
// produced, so the witness and failure messages never depend on scheduling.
package engine
