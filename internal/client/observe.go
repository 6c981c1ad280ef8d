package client

import (
	"context"

	"github.com/roach88/evsync/internal/ir"
	"github.com/roach88/evsync/internal/observe"
)

// ObserveEarliest reports the earliest event of the selection and every
// earlier one that becomes known.
func (c *Client) ObserveEarliest(ctx context.Context, where ir.Where, ordering observe.Ordering, onEvent func(ir.Event) error) *Handle {
	produce := func(ctx context.Context, send func(ir.Event) error) error {
		return observe.Earliest(ctx, c.store, where, ordering, send, observe.WithLogger(c.logger))
	}
	return start(ctx, c, produce, onEvent)
}

// ObserveLatest reports the latest event of the selection and every later
// one that becomes known.
func (c *Client) ObserveLatest(ctx context.Context, where ir.Where, ordering observe.Ordering, onEvent func(ir.Event) error) *Handle {
	produce := func(ctx context.Context, send func(ir.Event) error) error {
		return observe.Latest(ctx, c.store, where, ordering, send, observe.WithLogger(c.logger))
	}
	return start(ctx, c, produce, onEvent)
}

// ObserveBestMatch reports the event preferred by shouldReplace. See
// observe.BestMatch for the contract on shouldReplace.
func (c *Client) ObserveBestMatch(ctx context.Context, where ir.Where, shouldReplace func(candidate, current ir.Event) bool, onEvent func(ir.Event) error) *Handle {
	produce := func(ctx context.Context, send func(ir.Event) error) error {
		return observe.BestMatch(ctx, c.store, where, shouldReplace, send, observe.WithLogger(c.logger))
	}
	return start(ctx, c, produce, onEvent)
}

// ObserveUnorderedReduce reports the fold of every known event of the
// selection, once after catching up and once per live batch. reduce must
// be associative and commutative.
func ObserveUnorderedReduce[S any](ctx context.Context, c *Client, where ir.Where, initial S, reduce func(S, ir.Event) S, onState func(S) error) *Handle {
	produce := func(ctx context.Context, send func(S) error) error {
		return observe.UnorderedReduce(ctx, c.store, where, initial, reduce, send, observe.WithLogger(c.logger))
	}
	return start(ctx, c, produce, onState)
}
