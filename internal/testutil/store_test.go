package testutil

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/evsync/internal/eventstore"
	"github.com/roach88/evsync/internal/ir"
)

func TestStore_AppendAssignsOffsetsAndLamports(t *testing.T) {
	s := NewStore()

	a0 := s.Append("A", []string{"t"}, nil)
	a1 := s.Append("A", []string{"t"}, nil)
	b0 := s.Append("B", nil, []byte(`{"n":1}`))

	assert.Equal(t, ir.EventKey{Lamport: 1, Stream: "A", Offset: 0}, a0.Key())
	assert.Equal(t, ir.EventKey{Lamport: 2, Stream: "A", Offset: 1}, a1.Key())
	assert.Equal(t, ir.EventKey{Lamport: 3, Stream: "B", Offset: 0}, b0.Key())
	assert.Equal(t, ir.Timestamp(3_000_000), b0.Timestamp)

	offsets, err := s.Offsets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ir.OffsetMap{"A": 1, "B": 0}, offsets.Present)
}

func TestStore_QueryRangeAndOrder(t *testing.T) {
	s := NewStore()
	for i := 0; i < 3; i++ {
		s.Append("A", []string{"a"}, nil)
		s.Append("B", []string{"b"}, nil)
	}
	ctx := context.Background()

	events, err := eventstore.QueryEvents(ctx, s, ir.OffsetMap{"A": 0}, ir.OffsetMap{"A": 2}, ir.AllEvents, ir.OrderAsc)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, ir.Offset(1), events[0].Offset)
	assert.Equal(t, ir.Offset(2), events[1].Offset)

	events, err = eventstore.QueryEvents(ctx, s, nil, nil, ir.Tags("b"), ir.OrderDesc)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, ir.Offset(2), events[0].Offset)
	assert.Equal(t, ir.StreamID("B"), events[0].Stream)
}

func TestStore_QueryBatchSize(t *testing.T) {
	s := NewStore(WithBatchSize(2))
	for i := 0; i < 5; i++ {
		s.Append("A", nil, nil)
	}

	stream, err := s.Query(context.Background(), nil, nil, ir.AllEvents, ir.OrderAsc)
	require.NoError(t, err)
	rs, err := eventstore.Collect(context.Background(), stream)
	require.NoError(t, err)
	assert.Len(t, rs, 5)
}

func TestStore_SubscribeBacklogThenOffsetsThenLive(t *testing.T) {
	s := NewStore()
	s.Append("A", nil, nil)
	s.Append("A", nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := s.Subscribe(ctx, ir.OffsetMap{"A": 0}, ir.AllEvents)
	require.NoError(t, err)
	defer stream.Close()

	batch, err := stream.Recv(ctx)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, ir.Offset(1), batch[0].(ir.EventResponse).Offset)

	batch, err = stream.Recv(ctx)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, ir.OffsetsResponse{Offsets: ir.OffsetMap{"A": 1}}, batch[0])

	s.Append("B", nil, nil)
	batch, err = stream.Recv(ctx)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, ir.StreamID("B"), batch[0].(ir.EventResponse).Stream)
}

func TestStore_InjectDeliversOneBatch(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	stream, err := s.Subscribe(ctx, nil, ir.AllEvents)
	require.NoError(t, err)
	defer stream.Close()

	_, err = stream.Recv(ctx) // caught up, empty store
	require.NoError(t, err)

	require.NoError(t, s.Inject(
		ir.Event{Stream: "C", Offset: 0, Lamport: 7},
		ir.Event{Stream: "B", Offset: 0, Lamport: 9},
	))

	batch, err := stream.Recv(ctx)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, ir.StreamID("C"), batch[0].(ir.EventResponse).Stream)
	assert.Equal(t, ir.Timestamp(7_000_000), batch[0].(ir.EventResponse).Timestamp)

	// The clock continues after the highest injected lamport.
	assert.Equal(t, ir.Lamport(10), s.Append("A", nil, nil).Lamport)
}

func TestStore_InjectRejectsGaps(t *testing.T) {
	s := NewStore()

	err := s.Inject(ir.Event{Stream: "A", Offset: 1, Lamport: 1})
	require.Error(t, err)
	assert.Empty(t, s.Events())
}

func TestStore_FailAndBreak(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	boom := errors.New("boom")

	s.Fail(OpOffsets, boom)
	_, err := s.Offsets(ctx)
	assert.ErrorIs(t, err, boom)

	s.Fail(OpOffsets, nil)
	_, err = s.Offsets(ctx)
	assert.NoError(t, err)

	stream, err := s.Subscribe(ctx, nil, ir.AllEvents)
	require.NoError(t, err)
	_, err = stream.Recv(ctx)
	require.NoError(t, err)

	s.Break(boom)
	_, err = stream.Recv(ctx)
	assert.ErrorIs(t, err, boom)

	assert.Equal(t, []Op{OpOffsets, OpOffsets, OpSubscribe}, s.Calls())
}

func TestStore_CloseUnsubscribes(t *testing.T) {
	s := NewStore()
	stream, err := s.Subscribe(context.Background(), nil, ir.AllEvents)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Subscribers())

	require.NoError(t, stream.Close())
	require.NoError(t, stream.Close())
	assert.Equal(t, 0, s.Subscribers())
}

func TestStore_PersistAppendsToLocalStream(t *testing.T) {
	s := NewStore(WithLocalStream("me"), WithAppID("com.example.app"))

	out, err := s.Persist(context.Background(), []ir.EventDraft{
		{Tags: []string{"x"}, Payload: []byte(`1`)},
		{Tags: []string{"y"}, Payload: []byte(`2`)},
	})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, ir.StreamID("me"), out[1].Stream)
	assert.Equal(t, ir.Offset(1), out[1].Offset)
	assert.Equal(t, "com.example.app", out[0].AppID)
}
