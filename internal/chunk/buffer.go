package chunk

import (
	"time"

	"github.com/roach88/evsync/internal/ir"
)

// Buffer accumulates live events until either MaxSize events are pending
// or MaxTime has passed since the first pending event arrived.
//
// With MaxTime of zero nothing is held back: every Add returns all pending
// events, cut into pieces of at most MaxSize. With MaxSize of zero pieces
// are unbounded in size.
type Buffer struct {
	maxSize int
	maxTime time.Duration

	pending []ir.Event
	since   time.Time
}

// NewBuffer creates a buffer. Negative limits are treated as zero.
func NewBuffer(maxSize int, maxTime time.Duration) *Buffer {
	return &Buffer{maxSize: max(maxSize, 0), maxTime: max(maxTime, 0)}
}

// Add appends events received at now and returns the pieces that are ready
// for delivery, oldest first.
func (b *Buffer) Add(now time.Time, events []ir.Event) [][]ir.Event {
	if len(events) == 0 {
		return nil
	}
	if len(b.pending) == 0 {
		b.since = now
	}
	b.pending = append(b.pending, events...)

	if b.maxTime == 0 {
		return Split(b.Flush(), b.maxSize)
	}
	if b.maxSize == 0 || len(b.pending) < b.maxSize {
		if b.Expired(now) {
			return [][]ir.Event{b.Flush()}
		}
		return nil
	}

	full := len(b.pending) / b.maxSize * b.maxSize
	ready := Split(b.pending[:full:full], b.maxSize)
	b.pending = append([]ir.Event(nil), b.pending[full:]...)
	b.since = now
	return ready
}

// Deadline returns when the pending events must be flushed. ok is false
// when nothing is pending or no time limit is set.
func (b *Buffer) Deadline() (deadline time.Time, ok bool) {
	if len(b.pending) == 0 || b.maxTime == 0 {
		return time.Time{}, false
	}
	return b.since.Add(b.maxTime), true
}

// Expired reports whether pending events have waited at least MaxTime.
func (b *Buffer) Expired(now time.Time) bool {
	deadline, ok := b.Deadline()
	return ok && !now.Before(deadline)
}

// Flush returns and clears all pending events.
func (b *Buffer) Flush() []ir.Event {
	out := b.pending
	b.pending = nil
	return out
}

// Len returns the number of pending events.
func (b *Buffer) Len() int {
	return len(b.pending)
}
