// Package chunk turns event batches into offset-annotated chunks.
//
// An Assembler is a stateful fold: every call to Next consumes one batch
// and returns a Chunk whose bounds continue exactly where the previous
// chunk ended. Feeding a chunk's far bound back as the next query's near
// bound never re-delivers an event.
package chunk

import "github.com/roach88/evsync/internal/ir"

// Direction selects how bounds advance.
type Direction int

const (
	// Forward folds ascending batches; LowerBound is exclusive.
	Forward Direction = iota
	// Reverse folds descending batches; UpperBound is exclusive.
	Reverse
)

// String returns the direction name.
func (d Direction) String() string {
	if d == Reverse {
		return "reverse"
	}
	return "forward"
}

// DirectionFor returns the fold direction matching a query order.
func DirectionFor(order ir.Order) Direction {
	if order == ir.OrderDesc {
		return Reverse
	}
	return Forward
}

// Assembler folds batches into chunks. It is not safe for concurrent use;
// each subscription owns its own assembler.
type Assembler struct {
	dir   Direction
	bound ir.OffsetMap
}

// NewAssembler creates an assembler starting at initial. For Forward the
// initial map is the running lower bound, for Reverse the running upper
// bound. The map is copied.
func NewAssembler(initial ir.OffsetMap, dir Direction) *Assembler {
	return &Assembler{dir: dir, bound: initial.Copy()}
}

// Bound returns a copy of the running bound: the lower bound of the next
// chunk for Forward, the upper bound for Reverse.
func (a *Assembler) Bound() ir.OffsetMap {
	return a.bound.Copy()
}

// Direction returns the fold direction.
func (a *Assembler) Direction() Direction {
	return a.dir
}

// Next folds one batch. Empty batches produce an empty chunk whose bounds
// are equal; suppressing those is up to the caller.
func (a *Assembler) Next(events []ir.Event) ir.Chunk {
	if a.dir == Reverse {
		return a.nextReverse(events)
	}
	return a.nextForward(events)
}

func (a *Assembler) nextForward(events []ir.Event) ir.Chunk {
	lower := a.bound.Copy()
	upper := a.bound.Copy()
	for _, e := range events {
		upper[e.Stream] = e.Offset
	}
	a.bound = upper.Copy()
	return ir.Chunk{LowerBound: lower, UpperBound: upper, Events: events}
}

// nextReverse computes the exclusive lower bound: every touched stream is
// decremented by one after the batch, and an entry that would drop below
// zero is removed.
func (a *Assembler) nextReverse(events []ir.Event) ir.Chunk {
	upper := a.bound.Copy()
	lower := a.bound.Copy()
	touched := make(map[ir.StreamID]struct{})
	for _, e := range events {
		lower[e.Stream] = e.Offset
		touched[e.Stream] = struct{}{}
	}
	for stream := range touched {
		if lower[stream] == 0 {
			delete(lower, stream)
			continue
		}
		lower[stream]--
	}
	a.bound = lower.Copy()
	return ir.Chunk{LowerBound: lower, UpperBound: upper, Events: events}
}
