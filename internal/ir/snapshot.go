package ir

import "encoding/json"

// Snapshot is a cached, opaque state blob of a subscriber together with
// the exact point in the event history it was computed at.
//
// Snapshots are a performance shortcut only. Losing them never affects
// correctness, only replay cost.
type Snapshot struct {
	// Semantics identifies the kind of state (the reducer).
	Semantics string `json:"semantics"`

	// Session identifies the subscriber instance the state belongs to.
	Session string `json:"session"`

	// Version of the state encoding. Snapshots of other versions are ignored.
	Version int `json:"version"`

	// EventKey is the key of the last event folded into State.
	EventKey EventKey `json:"eventKey"`

	// Offsets is the bound up to which events were folded into State.
	Offsets OffsetMap `json:"offsets"`

	// Horizon optionally marks events below it as irrelevant.
	Horizon *EventKey `json:"horizon,omitempty"`

	// Cycle counts how many snapshots preceded this one.
	Cycle int `json:"cycle"`

	// State is the serialized state.
	State json.RawMessage `json:"state"`
}

// FixedStart returns the resumption point that continues after the
// snapshot.
func (s Snapshot) FixedStart() FixedStart {
	return FixedStart{From: s.Offsets.Copy(), LatestEventKey: s.EventKey, Horizon: s.Horizon}
}
