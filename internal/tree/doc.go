// Package tree defines the declarative form of element trees.
//
// A tree document names one or more trees. Each tree is a Node: a kind plus
// the fields that kind needs (children, delays, flags, and so on). Documents
// are written in YAML or CUE and compile into timeline.Element values through
// a Builder, against an Env that supplies the flags, counters and actions
// the tree refers to.
//
// Example (YAML):
//
//	root: main
//	tree:
//	  main:
//	    kind: sequence
//	    children:
//	      - {kind: function, name: greet}
//	      - {kind: sleep, name: nap, delay: 5}
//	      - {kind: ref, ref: cleanup}
//	  cleanup:
//	    kind: must_run
//	    child: {kind: function, name: tidy}
//
// Named trees may reference each other with "ref". References must form a
// DAG; Validate reports cycles.
//
// Documents have a content hash (Hash) computed over canonical JSON, so a
// recorded run can be tied to the exact tree that produced it.
package tree
