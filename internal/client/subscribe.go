package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/evsync/internal/chunk"
	"github.com/roach88/evsync/internal/config"
	"github.com/roach88/evsync/internal/ir"
	"github.com/roach88/evsync/internal/subscription"
)

// ErrSubscriptionEnded is returned when the store ends a live
// subscription.
var ErrSubscriptionEnded = errors.New("client: store ended the live subscription")

// SubscribeQuery selects every event above Lower, now and in the future.
type SubscribeQuery struct {
	Lower ir.OffsetMap
	Where ir.Where
}

// SubscribeChunked delivers the backlog and then live events as chunks.
// A chunk is delivered once limits.MaxSize events are pending or
// limits.MaxTime has passed since the first of them arrived. Zero limits
// use the client defaults.
func (c *Client) SubscribeChunked(ctx context.Context, q SubscribeQuery, limits config.Chunk, onChunk func(ir.Chunk) error) *Handle {
	if limits == (config.Chunk{}) {
		limits = c.chunk
	}
	produce := func(ctx context.Context, send func(ir.Chunk) error) error {
		return c.subscribeChunks(ctx, q, limits, send)
	}
	return start(ctx, c, produce, onChunk)
}

func (c *Client) subscribeChunks(ctx context.Context, q SubscribeQuery, limits config.Chunk, send func(ir.Chunk) error) error {
	lower := q.Lower.Copy()
	stream, err := c.store.Subscribe(ctx, lower, q.Where)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	defer stream.Close()

	g, ctx := errgroup.WithContext(ctx)
	batches := make(chan []ir.Event)
	g.Go(func() error {
		defer close(batches)
		for {
			batch, err := stream.Recv(ctx)
			if errors.Is(err, io.EOF) {
				return ErrSubscriptionEnded
			}
			if err != nil {
				return fmt.Errorf("subscription: %w", err)
			}
			events := ir.EventsOf(batch)
			if len(events) == 0 {
				continue
			}
			select {
			case batches <- events:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})
	g.Go(func() error {
		asm := chunk.NewAssembler(lower, chunk.Forward)
		buf := chunk.NewBuffer(limits.MaxSize, limits.MaxTime)
		deliver := func(pieces [][]ir.Event) error {
			for _, p := range pieces {
				if err := send(asm.Next(p)); err != nil {
					return err
				}
			}
			return nil
		}

		var timer *time.Timer
		defer func() {
			if timer != nil {
				timer.Stop()
			}
		}()
		for {
			var expired <-chan time.Time
			if deadline, ok := buf.Deadline(); ok {
				d := deadline.Sub(c.now())
				if timer == nil {
					timer = time.NewTimer(d)
				} else {
					timer.Reset(d)
				}
				expired = timer.C
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case events, ok := <-batches:
				if !ok {
					return nil
				}
				if err := deliver(buf.Add(c.now(), events)); err != nil {
					return err
				}
			case <-expired:
				if err := deliver([][]ir.Event{buf.Flush()}); err != nil {
					return err
				}
			}
		}
	})
	return g.Wait()
}

// MonotonicQuery describes a monotonic subscription. An empty Session is
// generated. Semantics and Version locate cached snapshots; snapshots are
// only consulted when Start is nil and Semantics is set.
type MonotonicQuery struct {
	Session   string
	Where     ir.Where
	Start     *ir.FixedStart
	Semantics string
	Version   int
}

// SubscribeMonotonic runs a monotonic subscription. onMessage receives
// Events, State and finally at most one TimeTravel, after which the
// handle finishes with a nil error.
func (c *Client) SubscribeMonotonic(ctx context.Context, q MonotonicQuery, onMessage func(subscription.Message) error) *Handle {
	session := q.Session
	if session == "" {
		session = c.sessions.Generate()
	}
	cfg := subscription.Config{
		Session:        session,
		Where:          q.Where,
		Start:          q.Start,
		Semantics:      q.Semantics,
		Version:        q.Version,
		ServerAssisted: c.serverAssisted,
	}
	if c.snapshots != nil && q.Semantics != "" {
		cfg.Snapshots = c.snapshots
	}
	sub := subscription.New(c.store, cfg, subscription.WithLogger(c.logger))

	produce := func(ctx context.Context, send func(subscription.Message) error) error {
		return sub.Run(ctx, send)
	}
	return start(ctx, c, produce, onMessage)
}
