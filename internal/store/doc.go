// Package store provides SQLite-backed durable storage for recorded runs.
//
// The store is an append-only run log:
//   - Runs: one row per run with its title, location and final counts
//   - Events: every lifecycle event of a run, keyed by (run_id, seq)
//
// # Ordering
//
// Event order is the seq column assigned at record time, never a
// timestamp. All event queries use ORDER BY seq ASC so a replay delivers
// events exactly as they were first emitted.
//
// # Synthetic events
//
// Events a consumer emitted on top of the runner's stream (Payload.Synthetic)
// are not recorded. Replaying into the same consumers re-creates them.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
