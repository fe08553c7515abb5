// Package store provides SQLite-backed durable storage for dustrun runs.
//
// The store keeps:
//   - Runs: one row per run with its status, outcome and replayable bundle
//   - Realized effects: an outbox of external actions that actually happened
//
// The trace stays the source of truth for what a run means; the store is
// history. Nothing here feeds back into execution.
//
// # Ordering
//
// All ordering uses the seq column (insertion order), never timestamps.
// All list queries include ORDER BY seq ASC, id ASC COLLATE BINARY.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
