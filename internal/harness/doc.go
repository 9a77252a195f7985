// Package harness runs Cognos programs as conformance tests.
//
// A scenario pairs a program with the replay script it runs against and
// states what the run must produce. The harness executes the real
// interpreter against a Scripted boundary, so a scenario exercises the
// same code paths as `cognos run --script`.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: greet
//	description: "Reads a name and asks the model for a greeting"
//	program: |
//	  flow main():
//	      name = read(stdin)
//	      print(think(f"greet {name}"))
//	script:
//	  stdin: [ada]
//	  generations: ["hello, ada"]
//	expect:
//	  output: ["hello, ada"]
//	assertions:
//	  - type: trace_count
//	    kind: generate
//	    count: 1
//
// program_file may replace program; it is resolved relative to the
// scenario file. entry and args select the flow to run and its arguments.
//
// # Expectations
//
//   - output: the exact lines written to stdout
//   - result: the entry flow's return value (null for None)
//   - error_kind: the category of the uncaught error, e.g. ValidationError
//   - error_contains: a substring of the uncaught error
//
// # Assertion Types
//
//   - trace_contains: an event of the kind whose fields include the given ones
//   - trace_order: event kinds appear in the given order, possibly with gaps
//   - trace_count: exactly N events of the kind (and fields)
//
// # Deterministic Testing
//
// Every run uses a stepping wall clock (testutil.SteppingClock) and run
// ids derived from the scenario name (testutil.RunIDGenerator). Golden
// snapshots also strip timestamps and latencies, so a sequential program
// produces byte-identical snapshots on every run.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/greet.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(ctx, scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, msg := range result.Errors {
//	    log.Println(msg)
//	}
package harness
