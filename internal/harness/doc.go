// Package harness runs YAML commit scenarios against a fresh database.
//
// # Scenario Format
//
//	name: worked_example
//	description: "Two analog readings, the second calibrated"
//	start: "2024-01-02T03:04:05.678Z"
//	experiments:
//	  exp-A: { reactors: [R1, R2], volume: 1.5 }
//	commits:
//	  - { experiment: exp-A, reactor: R1, model: analog, value: 23.5, units: C }
//	  - { experiment: exp-A, reactor: R1, at: 1s, model: analog, value: 24.0, units: C, calibration: cal-2024-01 }
//	  - { experiment: exp-A, reactor: R1, model: spectro, value: 1, units: au, expect: UNKNOWN_MODEL }
//	assertions:
//	  - { type: latest, experiment: exp-A, reactor: R1, model: analog, value: 24.0, calibration: cal-2024-01 }
//	  - { type: row_count, model: analog, count: 2 }
//	export: exp-A
//
// A commit's "at" is an RFC 3339 timestamp or a duration offset from
// start; empty means start. "expect" names the error code the commit must
// fail with.
//
// # Assertion Types
//
//   - latest: the most recent row of a series has the given value/calibration
//   - history: a series holds exactly the given values in order
//   - row_count: a kind's table (optionally one experiment) has count rows
//   - experiment_count: the experiment table has count rows
//
// # Deterministic Testing
//
// Every scenario runs in its own in-memory SQLite database with a stopped
// clock and a fixed run id, so the CSV named by "export" is byte-stable and
// can be compared against a golden file.
package harness
