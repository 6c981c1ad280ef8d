package eventstore

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/roach88/evsync/internal/ir"
)

func TestCollect_DrainsAndCloses(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := NewMockStream(ctrl)
	ctx := context.Background()

	batch := []ir.Response{ir.EventResponse{Event: ir.Event{Stream: "A", Lamport: 1}}}
	gomock.InOrder(
		s.EXPECT().Recv(ctx).Return(batch, nil),
		s.EXPECT().Recv(ctx).Return([]ir.Response{ir.OffsetsResponse{Offsets: ir.OffsetMap{"A": 0}}}, nil),
		s.EXPECT().Recv(ctx).Return(nil, io.EOF),
	)
	s.EXPECT().Close().Return(nil).Times(1)

	rs, err := Collect(ctx, s)
	require.NoError(t, err)
	assert.Len(t, rs, 2)
}

func TestCollect_StopsOnError(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := NewMockStream(ctrl)
	boom := errors.New("boom")

	s.EXPECT().Recv(gomock.Any()).Return(nil, boom)
	s.EXPECT().Close().Return(nil)

	_, err := Collect(context.Background(), s)
	assert.ErrorIs(t, err, boom)
}

func TestQueryEvents_UsesStore(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := NewMockEventStore(ctrl)
	ctx := context.Background()

	e0 := ir.Event{Stream: "A", Offset: 0, Lamport: 1}
	e1 := ir.Event{Stream: "A", Offset: 1, Lamport: 2}
	store.EXPECT().
		Query(ctx, ir.OffsetMap(nil), ir.OffsetMap{"A": 1}, ir.AllEvents, ir.OrderAsc).
		Return(NewSliceStream(
			[]ir.Response{ir.EventResponse{Event: e0}},
			[]ir.Response{ir.EventResponse{Event: e1}},
		), nil)

	events, err := QueryEvents(ctx, store, nil, ir.OffsetMap{"A": 1}, ir.AllEvents, ir.OrderAsc)
	require.NoError(t, err)
	assert.Equal(t, []ir.Event{e0, e1}, events)
}

func TestSliceStream(t *testing.T) {
	s := NewSliceStream([]ir.Response{ir.OffsetsResponse{}})
	ctx := context.Background()

	b, err := s.Recv(ctx)
	require.NoError(t, err)
	assert.Len(t, b, 1)
	_, err = s.Recv(ctx)
	assert.ErrorIs(t, err, io.EOF)

	s = NewSliceStream([]ir.Response{ir.OffsetsResponse{}})
	require.NoError(t, s.Close())
	_, err = s.Recv(ctx)
	assert.ErrorIs(t, err, io.EOF)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = NewSliceStream().Recv(cancelled)
	assert.ErrorIs(t, err, context.Canceled)
}
