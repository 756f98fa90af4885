// Package store provides SQLite-backed durable storage for record snapshots.
//
// The store is an append-only, per-source history:
//   - Save appends one immutable row per call inside its own transaction
//   - Latest returns the newest committed snapshot of a source
//   - Prune keeps the N most recent snapshots of a source, in a separate transaction
//
// # Ordering
//
// "Newest" means highest created_at, ties broken by highest id. created_at is
// stored as fixed-width ISO-8601 UTC text so lexical order equals time order.
// Identifiers come from AUTOINCREMENT and are never reused, even after prune.
//
// # Isolation
//
// Every query is scoped by source_name; two sources never touch the same
// rows. Concurrent writers for the same source are not coordinated here and
// must be serialized by the caller.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
