// Package ir provides the shared data model for evsync.
//
// This package contains value types only. All other internal packages
// import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Events are immutable once created
//   - Ordering uses EventKey (lamport, stream, offset), never wall-clock time
//   - OffsetMaps handed to consumers are copies and are never mutated afterwards
//   - Store response records are a closed sum type decoded by their "type" field
package ir
