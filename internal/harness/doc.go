// Package harness runs conformance fixtures against the dustrun engine.
//
// A fixture names a program source, an effect mode, the expected outcome
// and a list of assertions over the run. Each fixture is executed through
// engine.Execute with counting realizers, so fixtures can state how many
// external actions a run performed.
//
// # Fixture Format
//
// Fixtures are YAML files with the following structure:
//
//	name: hello
//	description: "Emitting Hello yields one event at tick 1"
//	program: ../programs/hello.json
//	mode: simulate
//	expect:
//	  outcome: Success
//	  tick: 1
//	assertions:
//	  - type: effect_contains
//	    kind: emit
//	    payload: Hello
//	  - type: realizer_calls
//	    count: 0
//	replay:
//	  expect: Success
//
// Program paths are resolved relative to the fixture file. Unknown keys are
// rejected so typos fail loudly.
//
// # Assertion Types
//
//   - effect_contains: an event with the kind (and payload, if given) was recorded
//   - effect_order: the kinds first appear in the given order
//   - effect_count: the kind was recorded exactly count times
//   - returned: the rendered return value equals value
//   - realizer_calls: realizers were called exactly count times
//
// # Replay
//
// A fixture with a replay block pins its run in a bundle, optionally
// tampers with it, and replays it. The replay outcome is either Success or
// ReplayMismatch.
//
// # Golden Traces
//
// Snapshot renders a result as one JSON line holding the trace and, when a
// replay ran, the replayed trace. Golden files live in a golden/ directory
// next to the fixtures, named after the fixture file.
package harness
