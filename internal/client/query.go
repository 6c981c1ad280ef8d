package client

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/evsync/internal/chunk"
	"github.com/roach88/evsync/internal/eventstore"
	"github.com/roach88/evsync/internal/ir"
)

// RangeQuery selects the events in (Lower, Upper]. A nil Lower starts at
// the beginning of every stream.
type RangeQuery struct {
	Lower ir.OffsetMap
	Upper ir.OffsetMap
	Where ir.Where
	Order ir.Order
}

// AllKnownQuery selects every event above Lower that the store knows
// now.
type AllKnownQuery struct {
	Lower ir.OffsetMap
	Where ir.Where
	Order ir.Order
}

// QueryKnownRange returns the events in the range in the requested order.
func (c *Client) QueryKnownRange(ctx context.Context, q RangeQuery) ([]ir.Event, error) {
	if q.Upper == nil {
		return nil, ErrMissingUpperBound
	}
	return eventstore.QueryEvents(ctx, c.store, q.Lower.Copy(), q.Upper, q.Where, q.Order)
}

// QueryKnownRangeChunked delivers the events in the range as chunks of at
// most chunkSize events. Each chunk's bounds cover exactly its events.
func (c *Client) QueryKnownRangeChunked(ctx context.Context, q RangeQuery, chunkSize int, onChunk func(ir.Chunk) error) *Handle {
	if q.Upper == nil {
		return finishedHandle(ErrMissingUpperBound)
	}
	produce := func(ctx context.Context, send func(ir.Chunk) error) error {
		return c.queryChunks(ctx, q, chunkSize, send)
	}
	return start(ctx, c, produce, onChunk)
}

// QueryAllKnown returns every event above Lower up to the store's present.
// The chunk's UpperBound is that present.
func (c *Client) QueryAllKnown(ctx context.Context, q AllKnownQuery) (ir.Chunk, error) {
	present, err := c.Present(ctx)
	if err != nil {
		return ir.Chunk{}, err
	}
	lower := q.Lower.Copy()
	events, err := eventstore.QueryEvents(ctx, c.store, lower, present, q.Where, q.Order)
	if err != nil {
		return ir.Chunk{}, err
	}
	if events == nil {
		events = []ir.Event{}
	}
	return ir.Chunk{LowerBound: lower, UpperBound: present, Events: events}, nil
}

// QueryAllKnownChunked is QueryKnownRangeChunked up to the store's
// present.
func (c *Client) QueryAllKnownChunked(ctx context.Context, q AllKnownQuery, chunkSize int, onChunk func(ir.Chunk) error) *Handle {
	produce := func(ctx context.Context, send func(ir.Chunk) error) error {
		present, err := c.Present(ctx)
		if err != nil {
			return err
		}
		return c.queryChunks(ctx, RangeQuery{Lower: q.Lower, Upper: present, Where: q.Where, Order: q.Order}, chunkSize, send)
	}
	return start(ctx, c, produce, onChunk)
}

// queryChunks regroups the store's batches into chunks of chunkSize.
// Ascending queries fold forward from Lower, descending ones backward
// from Upper.
func (c *Client) queryChunks(ctx context.Context, q RangeQuery, chunkSize int, send func(ir.Chunk) error) error {
	stream, err := c.store.Query(ctx, q.Lower.Copy(), q.Upper, q.Where, q.Order)
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}
	defer stream.Close()

	dir := chunk.DirectionFor(q.Order)
	initial := q.Lower
	if dir == chunk.Reverse {
		initial = q.Upper
	}
	asm := chunk.NewAssembler(initial, dir)

	var pending []ir.Event
	emit := func(events []ir.Event) error {
		return send(asm.Next(events))
	}
	for {
		batch, err := stream.Recv(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		pending = append(pending, ir.EventsOf(batch)...)
		if chunkSize < 1 {
			continue
		}
		for len(pending) >= chunkSize {
			piece := pending[:chunkSize:chunkSize]
			pending = pending[chunkSize:]
			if err := emit(piece); err != nil {
				return err
			}
		}
	}
	if len(pending) > 0 {
		return emit(pending)
	}
	return nil
}
