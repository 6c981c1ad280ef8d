package observe

import (
	"cmp"
	"context"

	"github.com/roach88/evsync/internal/eventstore"
	"github.com/roach88/evsync/internal/ir"
)

// Ordering selects how Earliest and Latest compare events.
type Ordering int

const (
	// OrderingLamport compares EventKeys. The store can answer the initial
	// extremum with a single ordered lookup.
	OrderingLamport Ordering = iota
	// OrderingTimestamp compares (timestamp, event id). Finding the
	// initial extremum needs a full scan.
	OrderingTimestamp
)

// String returns the ordering name.
func (o Ordering) String() string {
	if o == OrderingTimestamp {
		return "timestamp"
	}
	return "lamport"
}

func compareTimestamp(a, b ir.Event) int {
	if c := cmp.Compare(a.Timestamp, b.Timestamp); c != 0 {
		return c
	}
	return cmp.Compare(a.ID(), b.ID())
}

func compareFor(ordering Ordering) func(a, b ir.Event) int {
	if ordering == OrderingTimestamp {
		return compareTimestamp
	}
	return ir.CompareEvents
}

// Earliest emits the earliest event of the selection and then every
// strictly earlier event that becomes known.
func Earliest(ctx context.Context, store eventstore.EventStore, where ir.Where, ordering Ordering, emit func(ir.Event) error, opts ...Option) error {
	compare := compareFor(ordering)
	replace := func(candidate, current ir.Event) bool { return compare(candidate, current) < 0 }
	if ordering == OrderingLamport {
		return best(ctx, store, where, ir.OrderAsc, true, replace, emit, opts)
	}
	return best(ctx, store, where, ir.OrderStreamAsc, false, replace, emit, opts)
}

// Latest emits the latest event of the selection and then every strictly
// later event that becomes known.
func Latest(ctx context.Context, store eventstore.EventStore, where ir.Where, ordering Ordering, emit func(ir.Event) error, opts ...Option) error {
	compare := compareFor(ordering)
	replace := func(candidate, current ir.Event) bool { return compare(candidate, current) > 0 }
	if ordering == OrderingLamport {
		return best(ctx, store, where, ir.OrderDesc, true, replace, emit, opts)
	}
	return best(ctx, store, where, ir.OrderStreamAsc, false, replace, emit, opts)
}

// BestMatch emits the event preferred by shouldReplace and then every
// replacement. shouldReplace(candidate, current) must not hold in both
// directions for any pair, otherwise the result depends on delivery
// order.
func BestMatch(ctx context.Context, store eventstore.EventStore, where ir.Where, shouldReplace func(candidate, current ir.Event) bool, emit func(ir.Event) error, opts ...Option) error {
	return best(ctx, store, where, ir.OrderStreamAsc, false, shouldReplace, emit, opts)
}

// best holds the current match. With firstOnly the catch-up query is
// ordered so that its first event is already the answer.
func best(ctx context.Context, store eventstore.EventStore, where ir.Where, order ir.Order, firstOnly bool, shouldReplace func(candidate, current ir.Event) bool, emit func(ir.Event) error, opts []Option) error {
	f := follower{store: store, where: where, opts: buildOptions(opts)}

	var current ir.Event
	have := false
	consider := func(e ir.Event) bool {
		if !have || shouldReplace(e, current) {
			current, have = e, true
			return true
		}
		return false
	}

	bound, err := f.catchUp(ctx, order, func(e ir.Event) bool {
		consider(e)
		return !firstOnly
	})
	if err != nil {
		return err
	}
	if have {
		if err := emit(current); err != nil {
			return err
		}
	}

	return f.live(ctx, bound, func(c ir.Chunk) error {
		changed := false
		for _, e := range c.Events {
			if consider(e) {
				changed = true
			}
		}
		if !changed {
			return nil
		}
		return emit(current)
	})
}
