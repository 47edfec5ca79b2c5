// Package harness runs timeline scenarios and checks their outcomes.
//
// A scenario is a YAML file naming a tree (inline or via tree_file), the
// environment flags it starts with, timed steps and assertions:
//
//	name: soft-stop-nap
//	description: a soft stop cuts a soft sleep short
//	tree:
//	  main:
//	    kind: sequence
//	    name: main
//	    children:
//	      - {kind: soft_sleep, name: nap, delay: 10}
//	steps:
//	  - {at: 3, soft_stop: nap, expect: true}
//	assertions:
//	  - {type: finished_at, at: 3}
//
// Run drives a fresh timeline tick by tick, applying each step at its
// virtual time, and evaluates assertions against the trace. With WithStore
// the run and its trace are recorded, and Replay re-runs a recorded run to
// check that it reproduces the same trace.
//
// Golden files hold a stable text rendering of the trace (see FormatTrace)
// under testdata/golden.
package harness
