// Package store provides SQLite-backed storage for content event streams,
// workflows, access control and idempotency keys.
//
// # Critical Patterns
//
// Append-only streams
//   - content_events rows are never updated or deleted
//   - UNIQUE(content_id, version) rejects a second writer at the same version
//   - the stream version check and the insert run in one transaction
//
// Latest-state documents
//   - contents holds the state produced by the last append, written in the
//     same transaction, for listing and sampling without replay
//
// Deterministic ordering
//   - workflows and executions carry an AUTOINCREMENT seq and are always
//     read ORDER BY seq ASC
//   - re-saving a workflow keeps its seq
//
// Atomic idempotency claims
//   - INSERT ... ON CONFLICT DO NOTHING, claimed iff RowsAffected == 1
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
