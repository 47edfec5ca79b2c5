// Package store provides SQLite-backed durable storage for timeline runs.
//
// A run is one execution of a scenario: the tree it ran (by content hash),
// the scenario source needed to run it again, and its final result. Every
// trace event the timeline emitted during the run is stored alongside it.
//
// # Ordering
//
// Events are keyed by (run_id, seq), where seq is the timeline's trace
// sequence number. Queries always ORDER BY seq, never by virtual time or
// insertion order, so reading a run back yields the exact trace.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Events must belong to a run
package store
