package transport

import "sync/atomic"

// RequestID correlates a request with its responses on one connection.
type RequestID uint64

// Clock hands out correlation ids.
//
// Ids are strictly increasing for the lifetime of a Multiplexer, across
// reconnects, so a late response for an abandoned id can never be routed
// to a newer request. Safe for concurrent use.
type Clock struct {
	seq atomic.Uint64
}

// NewClock creates a clock whose first id is 1.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock whose next id is start+1.
func NewClockAt(start uint64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns a fresh id.
func (c *Clock) Next() RequestID {
	return RequestID(c.seq.Add(1))
}

// Current returns the last id handed out, or the start value.
func (c *Clock) Current() RequestID {
	return RequestID(c.seq.Load())
}
