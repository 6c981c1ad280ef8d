// Package store provides SQLite-backed storage for subscriber snapshots.
//
// A snapshot is an opaque state blob together with the point in the event
// history it was computed at (event key and offset map). Snapshots only
// shorten replay: deleting the database never changes what a subscriber
// observes, it only makes the next start slower.
//
// # Identity
//
// Snapshot ids are content-addressed via ir.SnapshotID over
// (semantics, session, version, event key). Storing the same snapshot twice
// is a no-op.
//
// # Ordering
//
// Event keys are stored as separate (lamport, stream, event_offset) columns
// so that "latest snapshot" and "snapshots at or after a key" are plain
// index range scans in EventKey order. Stream ids compare with BINARY
// collation, which matches Go string ordering.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
package store
