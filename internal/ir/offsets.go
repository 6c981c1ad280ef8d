package ir

import (
	"maps"
	"slices"
)

// OffsetMap maps each stream to the highest offset known to be contiguous
// from zero.
//
// As a lower bound a missing stream means "nothing consumed"; as an upper
// bound a missing stream means "exclude this stream entirely".
//
// OffsetMaps grow monotonically: a later version of the same logical map
// never holds a smaller value for a key. Values handed to consumers are
// copies and must not be mutated by the producer afterwards.
type OffsetMap map[StreamID]Offset

// Copy returns an independent copy of m. The copy of a nil map is an
// empty, non-nil map.
func (m OffsetMap) Copy() OffsetMap {
	out := make(OffsetMap, len(m))
	maps.Copy(out, m)
	return out
}

// Get returns the offset for a stream and whether it is present.
func (m OffsetMap) Get(stream StreamID) (Offset, bool) {
	off, ok := m[stream]
	return off, ok
}

// Contains reports whether the event lies at or below the bound.
func (m OffsetMap) Contains(e Event) bool {
	off, ok := m[e.Stream]
	return ok && e.Offset <= off
}

// After reports whether the event lies strictly above m when m is used
// as an exclusive lower bound.
func (m OffsetMap) After(e Event) bool {
	off, ok := m[e.Stream]
	return !ok || e.Offset > off
}

// Merge returns the pointwise maximum of m and other.
func (m OffsetMap) Merge(other OffsetMap) OffsetMap {
	out := m.Copy()
	for stream, off := range other {
		if cur, ok := out[stream]; !ok || off > cur {
			out[stream] = off
		}
	}
	return out
}

// Equal reports whether both maps hold exactly the same entries.
// A nil map equals an empty map.
func (m OffsetMap) Equal(other OffsetMap) bool {
	return maps.Equal(m, other)
}

// Streams returns the streams in m in sorted order.
func (m OffsetMap) Streams() []StreamID {
	var streams []StreamID
	for s := range m {
		streams = append(streams, s)
	}
	slices.Sort(streams)
	return streams
}

// Offsets is the store's view of its own progress.
type Offsets struct {
	// Present holds the highest contiguous offset known per stream.
	Present OffsetMap `json:"present"`

	// ToReplicate holds the number of events per stream that are known to
	// exist but have not been replicated yet.
	ToReplicate map[StreamID]uint64 `json:"toReplicate"`
}
