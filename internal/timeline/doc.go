// Package timeline implements the cooperative task-tree execution engine.
//
// The timeline drives trees of Elements: units of work that may finish
// immediately, suspend until a child element completes, or suspend until a
// timer fires. Completion threads a boolean result from child to parent
// until the root finishes.
//
// ARCHITECTURE:
//
// Single-Threaded Driver:
// All Run/Resume calls, timer processing and teardown happen on the goroutine
// that calls Simulate. There is no locking on engine state. "Concurrency"
// between the children of an All element is multiplexing inside one driver
// loop, never parallel execution.
//
// Driver Loop:
//  1. Simulate(until) runs per-tick callbacks once
//  2. Pending timers with wake time <= until are popped in (when, id) order
//  3. Each woken handle is entered through its element's Run method
//  4. Outcomes are interpreted: Finished resumes the parent, SuspendOnChild
//     enters the new child, SuspendSelfScheduled waits for a timer or wake
//  5. Completion propagates through the ready queue, one step at a time, so
//     stack depth never grows with tree depth
//
// Cancellation:
// Soft stop is advisory. It sets a flag and lets each element decide what to
// do at its next checkpoint (sleep boundary, sequence item boundary, predicate
// poll). Hard stop is synchronous and recursive: it tears down the whole
// subtree before returning, and no Run/Resume is ever called on that subtree
// again.
//
// Errors:
// Failure is the boolean result, never a Go error. The only faults the engine
// raises are contract violations (malformed trees or scheduler misuse). They
// panic with *ContractError; hosts that prefer an error value use Recover.
//
// CRITICAL PATTERNS:
//
// Logical Clock:
// Handles are stamped from a monotonic Clock. Timers with the same wake time
// fire in handle order, so a run is reproducible. Trace events carry their own
// sequence number, so attaching an observer never changes handle IDs.
//
// Virtual Time:
// Time is a time.Duration offset from the start of the timeline. Only
// Simulate moves it forward. Wall-clock time is never consulted.
package timeline
