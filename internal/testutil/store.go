package testutil

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/roach88/evsync/internal/chunk"
	"github.com/roach88/evsync/internal/eventstore"
	"github.com/roach88/evsync/internal/ir"
)

// Op names a store operation for failure injection and call recording.
type Op string

const (
	OpOffsets   Op = "offsets"
	OpQuery     Op = "query"
	OpSubscribe Op = "subscribe"
	OpPersist   Op = "persist"
)

// DefaultLocalStream is the stream Persist appends to.
const DefaultLocalStream ir.StreamID = "local"

// Store is an in-memory event store for tests.
//
// Subscriptions deliver the backlog, then an offsets record, then one
// batch per Append or Inject call. Timestamps are derived from lamport
// values so runs are reproducible.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Store struct {
	mu          sync.Mutex
	clock       *LamportClock
	streams     map[ir.StreamID][]ir.Event
	toReplicate map[ir.StreamID]uint64
	local       ir.StreamID
	appID       string
	batchSize   int
	subs        map[*liveStream]struct{}
	errs        map[Op]error
	calls       []Op
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLocalStream sets the stream Persist appends to.
func WithLocalStream(id ir.StreamID) StoreOption {
	return func(s *Store) { s.local = id }
}

// WithBatchSize splits query results and subscription backlogs into
// batches of at most n events. Zero delivers one batch.
func WithBatchSize(n int) StoreOption {
	return func(s *Store) { s.batchSize = n }
}

// WithAppID sets the app id stamped on persisted events.
func WithAppID(id string) StoreOption {
	return func(s *Store) { s.appID = id }
}

// NewStore creates an empty store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		clock:       NewLamportClock(),
		streams:     make(map[ir.StreamID][]ir.Event),
		toReplicate: make(map[ir.StreamID]uint64),
		local:       DefaultLocalStream,
		appID:       "com.example.test",
		subs:        make(map[*liveStream]struct{}),
		errs:        make(map[Op]error),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ eventstore.EventStore = (*Store)(nil)

// Append writes one event to stream with the next lamport value and
// delivers it to live subscriptions.
func (s *Store) Append(stream ir.StreamID, tags []string, payload json.RawMessage) ir.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.appendLocked(stream, tags, payload)
	s.deliverLocked([]ir.Event{e})
	return e
}

// Inject adds events with caller-chosen keys, as if replicated from
// another node. Offsets must continue each stream without gaps. All
// events are delivered to live subscriptions as one batch, in the given
// order.
func (s *Store) Inject(events ...ir.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	events = slices.Clone(events)
	for i := range events {
		if events[i].Timestamp == 0 {
			events[i].Timestamp = timestampOf(events[i].Lamport)
		}
	}

	next := make(map[ir.StreamID]ir.Offset)
	ordered := slices.Clone(events)
	slices.SortStableFunc(ordered, func(a, b ir.Event) int {
		if c := cmp.Compare(a.Stream, b.Stream); c != 0 {
			return c
		}
		return cmp.Compare(a.Offset, b.Offset)
	})
	for _, e := range ordered {
		want, ok := next[e.Stream]
		if !ok {
			want = ir.Offset(len(s.streams[e.Stream]))
		}
		if e.Offset != want {
			return fmt.Errorf("inject %s: expected offset %d", e.Key(), want)
		}
		next[e.Stream] = want + 1
	}

	for _, e := range ordered {
		s.streams[e.Stream] = append(s.streams[e.Stream], e)
		s.clock.Observe(e.Lamport)
	}
	s.deliverLocked(events)
	return nil
}

// SetToReplicate sets the replication backlog reported by Offsets.
func (s *Store) SetToReplicate(stream ir.StreamID, n uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n == 0 {
		delete(s.toReplicate, stream)
		return
	}
	s.toReplicate[stream] = n
}

// Fail makes op return err until cleared with a nil err.
func (s *Store) Fail(op Op, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.errs, op)
		return
	}
	s.errs[op] = err
}

// Break fails every live subscription with err.
func (s *Store) Break(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sub := range s.subs {
		sub.fail(err)
	}
}

// Subscribers returns the number of open live subscriptions.
func (s *Store) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Calls returns the operations invoked so far, in order.
func (s *Store) Calls() []Op {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.calls)
}

// Events returns every stored event in EventKey order.
func (s *Store) Events() []ir.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectLocked(nil, nil, ir.AllEvents)
}

// Offsets implements eventstore.EventStore.
func (s *Store) Offsets(ctx context.Context) (ir.Offsets, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.beginLocked(ctx, OpOffsets); err != nil {
		return ir.Offsets{}, err
	}
	toReplicate := make(map[ir.StreamID]uint64, len(s.toReplicate))
	for k, v := range s.toReplicate {
		toReplicate[k] = v
	}
	return ir.Offsets{Present: s.presentLocked(), ToReplicate: toReplicate}, nil
}

// Query implements eventstore.EventStore.
func (s *Store) Query(ctx context.Context, lower, upper ir.OffsetMap, where ir.Where, order ir.Order) (eventstore.Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.beginLocked(ctx, OpQuery); err != nil {
		return nil, err
	}
	if upper == nil {
		upper = s.presentLocked()
	}
	events := s.selectLocked(lower, upper, where)
	switch order {
	case ir.OrderDesc:
		ir.SortEventsDesc(events)
	case ir.OrderStreamAsc:
		slices.SortStableFunc(events, func(a, b ir.Event) int {
			if c := cmp.Compare(a.Stream, b.Stream); c != 0 {
				return c
			}
			return cmp.Compare(a.Offset, b.Offset)
		})
	}
	return eventstore.NewSliceStream(s.batches(events)...), nil
}

// Subscribe implements eventstore.EventStore.
func (s *Store) Subscribe(ctx context.Context, lower ir.OffsetMap, where ir.Where) (eventstore.Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.beginLocked(ctx, OpSubscribe); err != nil {
		return nil, err
	}
	sub := &liveStream{
		store:  s,
		lower:  lower.Copy(),
		where:  where,
		signal: make(chan struct{}, 1),
	}
	present := s.presentLocked()
	backlog := s.selectLocked(lower, present, where)
	for _, b := range s.batches(backlog) {
		sub.push(b)
	}
	sub.push([]ir.Response{ir.OffsetsResponse{Offsets: present}})
	for _, e := range backlog {
		sub.advance(e)
	}
	s.subs[sub] = struct{}{}
	return sub, nil
}

// Persist implements eventstore.EventStore.
func (s *Store) Persist(ctx context.Context, drafts []ir.EventDraft) ([]ir.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.beginLocked(ctx, OpPersist); err != nil {
		return nil, err
	}
	out := make([]ir.Event, 0, len(drafts))
	for _, d := range drafts {
		out = append(out, s.appendLocked(s.local, d.Tags, d.Payload))
	}
	s.deliverLocked(out)
	return out, nil
}

func (s *Store) beginLocked(ctx context.Context, op Op) error {
	s.calls = append(s.calls, op)
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.errs[op]
}

func (s *Store) appendLocked(stream ir.StreamID, tags []string, payload json.RawMessage) ir.Event {
	if payload == nil {
		payload = json.RawMessage("null")
	}
	lamport := s.clock.Next()
	e := ir.Event{
		Stream:    stream,
		Offset:    ir.Offset(len(s.streams[stream])),
		Lamport:   lamport,
		Timestamp: timestampOf(lamport),
		Tags:      slices.Clone(tags),
		AppID:     s.appID,
		Payload:   payload,
	}
	s.streams[stream] = append(s.streams[stream], e)
	return e
}

func (s *Store) presentLocked() ir.OffsetMap {
	present := make(ir.OffsetMap, len(s.streams))
	for id, events := range s.streams {
		if len(events) > 0 {
			present[id] = ir.Offset(len(events) - 1)
		}
	}
	return present
}

// selectLocked returns the events in (lower, upper] matching where in
// EventKey order. A nil upper is unbounded.
func (s *Store) selectLocked(lower, upper ir.OffsetMap, where ir.Where) []ir.Event {
	var out []ir.Event
	for _, events := range s.streams {
		for _, e := range events {
			if !lower.After(e) {
				continue
			}
			if upper != nil && !upper.Contains(e) {
				continue
			}
			if where.Matches(e) {
				out = append(out, e)
			}
		}
	}
	ir.SortEvents(out)
	return out
}

func (s *Store) batches(events []ir.Event) [][]ir.Response {
	if len(events) == 0 {
		return nil
	}
	pieces := [][]ir.Event{events}
	if s.batchSize > 0 {
		pieces = chunk.Split(events, s.batchSize)
	}
	out := make([][]ir.Response, 0, len(pieces))
	for _, p := range pieces {
		out = append(out, responses(p))
	}
	return out
}

func (s *Store) deliverLocked(events []ir.Event) {
	for sub := range s.subs {
		var batch []ir.Event
		for _, e := range events {
			if sub.lower.After(e) && sub.where.Matches(e) {
				batch = append(batch, e)
			}
		}
		if len(batch) == 0 {
			continue
		}
		for _, e := range batch {
			sub.advance(e)
		}
		sub.push(responses(batch))
	}
}

func (s *Store) unsubscribe(sub *liveStream) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, sub)
}

func responses(events []ir.Event) []ir.Response {
	out := make([]ir.Response, len(events))
	for i, e := range events {
		out[i] = ir.EventResponse{Event: e}
	}
	return out
}

func timestampOf(l ir.Lamport) ir.Timestamp {
	return ir.Timestamp(l) * 1_000_000
}

// errStreamClosed is returned by Recv after Close.
var errStreamClosed = errors.New("testutil: stream closed")

type liveStream struct {
	store *Store
	where ir.Where

	// lower is guarded by store.mu.
	lower ir.OffsetMap

	mu      sync.Mutex
	pending [][]ir.Response
	err     error
	closed  bool
	signal  chan struct{}
}

func (l *liveStream) advance(e ir.Event) {
	if cur, ok := l.lower[e.Stream]; !ok || e.Offset > cur {
		l.lower[e.Stream] = e.Offset
	}
}

func (l *liveStream) push(batch []ir.Response) {
	l.mu.Lock()
	l.pending = append(l.pending, batch)
	l.mu.Unlock()
	l.wake()
}

func (l *liveStream) fail(err error) {
	l.mu.Lock()
	l.err = err
	l.mu.Unlock()
	l.wake()
}

func (l *liveStream) wake() {
	select {
	case l.signal <- struct{}{}:
	default:
	}
}

// Recv implements eventstore.Stream.
func (l *liveStream) Recv(ctx context.Context) ([]ir.Response, error) {
	for {
		l.mu.Lock()
		switch {
		case l.closed:
			l.mu.Unlock()
			return nil, errStreamClosed
		case len(l.pending) > 0:
			b := l.pending[0]
			l.pending = l.pending[1:]
			l.mu.Unlock()
			return b, nil
		case l.err != nil:
			err := l.err
			l.mu.Unlock()
			return nil, err
		}
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-l.signal:
		}
	}
}

// Close implements eventstore.Stream.
func (l *liveStream) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()
	l.wake()
	l.store.unsubscribe(l)
	return nil
}

var _ eventstore.Stream = (*liveStream)(nil)
