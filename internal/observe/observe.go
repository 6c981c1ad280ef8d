// Package observe derives continuously updated values from an event
// selection.
//
// Every observer first catches up to the store's present with one finite
// query, then continues with a live subscription that starts exactly at
// the bound the catch-up ended on. Live batches are folded into chunks and
// each batch produces at most one emission.
package observe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/evsync/internal/chunk"
	"github.com/roach88/evsync/internal/eventstore"
	"github.com/roach88/evsync/internal/ir"
)

// ErrSubscriptionEnded is returned when the store ends a live
// subscription.
var ErrSubscriptionEnded = errors.New("observe: store ended the live subscription")

// Option configures an observer.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// follower runs the catch-up pass and then the live pass.
type follower struct {
	store eventstore.EventStore
	where ir.Where
	opts  options
}

// catchUp queries (zero, present] in order and feeds events to fn until it
// returns false. It returns present, the bound the live pass starts at.
func (f follower) catchUp(ctx context.Context, order ir.Order, fn func(ir.Event) bool) (ir.OffsetMap, error) {
	offsets, err := f.store.Offsets(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch present: %w", err)
	}
	present := offsets.Present

	stream, err := f.store.Query(ctx, ir.OffsetMap{}, present, f.where, order)
	if err != nil {
		return nil, fmt.Errorf("catch up: %w", err)
	}
	defer stream.Close()

	n := 0
	for {
		batch, err := stream.Recv(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("catch up: %w", err)
		}
		for _, e := range ir.EventsOf(batch) {
			n++
			if !fn(e) {
				f.opts.logger.Debug("catch-up stopped early", "events", n, "where", f.where.String())
				return present, nil
			}
		}
	}
	f.opts.logger.Debug("caught up", "events", n, "where", f.where.String())
	return present, nil
}

// live subscribes from bound and hands each non-empty batch to fn as a
// chunk.
func (f follower) live(ctx context.Context, bound ir.OffsetMap, fn func(ir.Chunk) error) error {
	stream, err := f.store.Subscribe(ctx, bound, f.where)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	defer stream.Close()

	asm := chunk.NewAssembler(bound, chunk.Forward)
	for {
		batch, err := stream.Recv(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return ErrSubscriptionEnded
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("subscription: %w", err)
		}
		events := ir.EventsOf(batch)
		if len(events) == 0 {
			continue
		}
		if err := fn(asm.Next(events)); err != nil {
			return err
		}
	}
}
