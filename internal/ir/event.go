package ir

import (
	"cmp"
	"encoding/json"
	"fmt"
	"slices"
)

// StreamID identifies one append-only per-source event stream.
type StreamID string

// Offset is the zero-based position of an event within its stream.
type Offset uint64

// Lamport is a logical causal clock value.
type Lamport uint64

// Timestamp is a wall-clock time in microseconds since the Unix epoch.
// It is informational only; ordering never depends on it.
type Timestamp uint64

// Event is a single persisted event as delivered by the store.
type Event struct {
	Stream    StreamID        `json:"stream"`
	Offset    Offset          `json:"offset"`
	Lamport   Lamport         `json:"lamport"`
	Timestamp Timestamp       `json:"timestamp"`
	Tags      []string        `json:"tags"`
	AppID     string          `json:"appId"`
	Payload   json.RawMessage `json:"payload"`
}

// Key returns the ordering key of the event.
func (e Event) Key() EventKey {
	return EventKey{Lamport: e.Lamport, Stream: e.Stream, Offset: e.Offset}
}

// ID returns a string event id that sorts like the event's key for
// lamport values of equal width. Used as tie-break for timestamp ordering.
func (e Event) ID() string {
	return e.Key().String()
}

// EventKey defines the total order over events.
//
// Primary key is Lamport ascending, then Stream lexicographically, then
// Offset ascending. Payload never participates in ordering.
type EventKey struct {
	Lamport Lamport  `json:"lamport"`
	Stream  StreamID `json:"stream"`
	Offset  Offset   `json:"offset"`
}

// CompareKeys returns -1, 0 or +1 depending on whether a sorts before,
// equal to, or after b.
func CompareKeys(a, b EventKey) int {
	if c := cmp.Compare(a.Lamport, b.Lamport); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Stream, b.Stream); c != 0 {
		return c
	}
	return cmp.Compare(a.Offset, b.Offset)
}

// CompareEvents orders events by their keys.
func CompareEvents(a, b Event) int {
	return CompareKeys(a.Key(), b.Key())
}

// Less reports whether k sorts strictly before other.
func (k EventKey) Less(other EventKey) bool {
	return CompareKeys(k, other) < 0
}

// IsZero reports whether k is the minimal key. A zero key stands for
// "nothing consumed yet".
func (k EventKey) IsZero() bool {
	return k == EventKey{}
}

// String formats the key as "<lamport hex>/<stream>-<offset>".
func (k EventKey) String() string {
	return fmt.Sprintf("%016x/%s-%d", uint64(k.Lamport), k.Stream, uint64(k.Offset))
}

// MaxKey returns the greater of two keys.
func MaxKey(a, b EventKey) EventKey {
	if a.Less(b) {
		return b
	}
	return a
}

// SortEvents sorts events in place by key, ascending.
func SortEvents(events []Event) {
	slices.SortStableFunc(events, CompareEvents)
}

// SortEventsDesc sorts events in place by key, descending.
func SortEventsDesc(events []Event) {
	slices.SortStableFunc(events, func(a, b Event) int { return CompareEvents(b, a) })
}

// EventDraft is an event that has not been persisted yet.
type EventDraft struct {
	Tags    []string        `json:"tags"`
	Payload json.RawMessage `json:"payload"`
}
