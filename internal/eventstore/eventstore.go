// Package eventstore defines the event store as the sync core sees it and
// implements it over the transport multiplexer.
package eventstore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/evsync/internal/ir"
)

//go:generate mockgen -package=eventstore -destination=mock_eventstore.go github.com/roach88/evsync/internal/eventstore EventStore,MonotonicSubscriber,Stream

// Stream is a sequence of response batches. Each Recv returns the records
// of one store message. Finite streams end with io.EOF.
type Stream interface {
	Recv(ctx context.Context) ([]ir.Response, error)
	Close() error
}

// EventStore is the remote store.
type EventStore interface {
	// Offsets returns the store's present and replication backlog.
	Offsets(ctx context.Context) (ir.Offsets, error)

	// Query streams the events in (lower, upper] matching where, in order.
	// The stream is finite.
	Query(ctx context.Context, lower, upper ir.OffsetMap, where ir.Where, order ir.Order) (Stream, error)

	// Subscribe streams every event above lower matching where: first the
	// backlog, then one OffsetsResponse marking catch-up, then live events.
	// The stream never ends on its own.
	Subscribe(ctx context.Context, lower ir.OffsetMap, where ir.Where) (Stream, error)

	// Persist appends drafts and returns the persisted events.
	Persist(ctx context.Context, drafts []ir.EventDraft) ([]ir.Event, error)
}

// MonotonicSubscriber is implemented by stores that perform the monotonic
// ordering check themselves. start may be nil.
type MonotonicSubscriber interface {
	SubscribeMonotonic(ctx context.Context, session string, start *ir.FixedStart, where ir.Where) (Stream, error)
}

// Collect drains a finite stream and closes it.
func Collect(ctx context.Context, s Stream) ([]ir.Response, error) {
	defer s.Close()

	var out []ir.Response
	for {
		batch, err := s.Recv(ctx)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, batch...)
	}
}

// QueryEvents runs a finite query and returns its events in delivery
// order.
func QueryEvents(ctx context.Context, store EventStore, lower, upper ir.OffsetMap, where ir.Where, order ir.Order) ([]ir.Event, error) {
	s, err := store.Query(ctx, lower, upper, where, order)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	rs, err := Collect(ctx, s)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	return ir.EventsOf(rs), nil
}

// SliceStream replays fixed batches and then io.EOF. Useful for stores
// that compute results locally and for tests.
type SliceStream struct {
	batches [][]ir.Response
	closed  bool
}

// NewSliceStream creates a stream over batches.
func NewSliceStream(batches ...[]ir.Response) *SliceStream {
	return &SliceStream{batches: batches}
}

// Recv implements Stream.
func (s *SliceStream) Recv(ctx context.Context) ([]ir.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.closed || len(s.batches) == 0 {
		return nil, io.EOF
	}
	b := s.batches[0]
	s.batches = s.batches[1:]
	return b, nil
}

// Close implements Stream.
func (s *SliceStream) Close() error {
	s.closed = true
	return nil
}
