package observe

import (
	"context"

	"github.com/roach88/evsync/internal/eventstore"
	"github.com/roach88/evsync/internal/ir"
)

// UnorderedReduce folds every known event of the selection into initial
// and emits the result, then folds each live batch on top and emits again.
//
// reduce must be associative and commutative: events arrive in no
// particular order.
func UnorderedReduce[S any](ctx context.Context, store eventstore.EventStore, where ir.Where, initial S, reduce func(S, ir.Event) S, emit func(S) error, opts ...Option) error {
	f := follower{store: store, where: where, opts: buildOptions(opts)}

	state := initial
	bound, err := f.catchUp(ctx, ir.OrderStreamAsc, func(e ir.Event) bool {
		state = reduce(state, e)
		return true
	})
	if err != nil {
		return err
	}
	if err := emit(state); err != nil {
		return err
	}

	return f.live(ctx, bound, func(c ir.Chunk) error {
		for _, e := range c.Events {
			state = reduce(state, e)
		}
		return emit(state)
	})
}
