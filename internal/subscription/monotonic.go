package subscription

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/roach88/evsync/internal/chunk"
	"github.com/roach88/evsync/internal/eventstore"
	"github.com/roach88/evsync/internal/ir"
)

var (
	// ErrAlreadyRunning is returned when Run is called twice.
	ErrAlreadyRunning = errors.New("subscription: already running")

	// ErrStreamEnded is returned when the store ends a subscription that
	// should be infinite.
	ErrStreamEnded = errors.New("subscription: store ended the live stream")
)

// SnapshotStore is the cache of states consulted before replaying from
// zero. *store.Store implements it.
type SnapshotStore interface {
	RetrieveSnapshot(ctx context.Context, semantics, session string, version int) (ir.Snapshot, bool, error)
	InvalidateSnapshots(ctx context.Context, semantics, session string, key ir.EventKey) (int64, error)
}

// Config describes one monotonic subscription.
type Config struct {
	// Session identifies the subscriber. Required for snapshots and the
	// server-assisted variant.
	Session string

	// Where selects the events.
	Where ir.Where

	// Start is the caller-asserted resumption point. Nil starts from zero,
	// or from a cached snapshot when Snapshots is set.
	Start *ir.FixedStart

	// Snapshots, Semantics and Version locate a cached state.
	Snapshots SnapshotStore
	Semantics string
	Version   int

	// ServerAssisted delegates the ordering check to the store when it
	// implements eventstore.MonotonicSubscriber.
	ServerAssisted bool
}

// Option configures a Subscription.
type Option func(*Subscription)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Subscription) {
		if l != nil {
			s.logger = l
		}
	}
}

// Subscription is a monotonic subscription. It runs once.
type Subscription struct {
	store  eventstore.EventStore
	cfg    Config
	logger *slog.Logger

	started atomic.Bool
	phase   atomic.Int32
}

// New creates a subscription over store.
func New(store eventstore.EventStore, cfg Config, opts ...Option) *Subscription {
	s := &Subscription{
		store:  store,
		cfg:    cfg,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("session", cfg.Session)
	return s
}

// Phase returns the current phase.
func (s *Subscription) Phase() Phase {
	return Phase(s.phase.Load())
}

func (s *Subscription) setPhase(p Phase) {
	s.phase.Store(int32(p))
}

// Run drives the subscription until it time-travels, ctx is done, the
// store fails or emit returns an error. emit is called sequentially from
// the calling goroutine.
//
// Run returns nil after emitting TimeTravel. Store errors are returned
// unchanged in meaning (wrapped); there is no retry at this layer.
func (s *Subscription) Run(ctx context.Context, emit func(Message) error) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer func() {
		if s.Phase() != PhaseTimeTravel {
			s.setPhase(PhaseStopped)
		}
	}()

	if s.cfg.ServerAssisted {
		if ms, ok := s.store.(eventstore.MonotonicSubscriber); ok {
			return s.runServerAssisted(ctx, ms, emit)
		}
		s.logger.Warn("store has no server-assisted monotonic subscriptions, checking locally")
	}

	s.setPhase(PhaseValidating)
	offsets, err := s.store.Offsets(ctx)
	if err != nil {
		return fmt.Errorf("fetch present: %w", err)
	}
	present := offsets.Present

	start := s.cfg.Start
	switch {
	case start != nil:
		trigger, invalid, err := s.validate(ctx, *start, present)
		if err != nil {
			return err
		}
		if invalid {
			return s.timeTravel(trigger, emit)
		}
	case s.cfg.Snapshots != nil:
		start, err = s.fromSnapshot(ctx, present, emit)
		if err != nil {
			return err
		}
	}

	return s.live(ctx, start, emit)
}

// validate looks for the earliest event in (start.From, present] and
// reports it as trigger when it sorts before start.LatestEventKey.
func (s *Subscription) validate(ctx context.Context, start ir.FixedStart, present ir.OffsetMap) (ir.EventKey, bool, error) {
	stream, err := s.store.Query(ctx, start.From, present, s.cfg.Where, ir.OrderAsc)
	if err != nil {
		return ir.EventKey{}, false, fmt.Errorf("validate start: %w", err)
	}
	defer stream.Close()

	for {
		batch, err := stream.Recv(ctx)
		if errors.Is(err, io.EOF) {
			return ir.EventKey{}, false, nil
		}
		if err != nil {
			return ir.EventKey{}, false, fmt.Errorf("validate start: %w", err)
		}
		for _, e := range ir.EventsOf(batch) {
			k := e.Key()
			if start.BelowHorizon(k) {
				continue
			}
			if k.Less(start.LatestEventKey) {
				return k, true, nil
			}
			return ir.EventKey{}, false, nil
		}
	}
}

// fromSnapshot emits a cached state when one exists and is still valid,
// and returns the start to continue from. Snapshot lookup failures only
// cost replay time, so they are logged and ignored.
func (s *Subscription) fromSnapshot(ctx context.Context, present ir.OffsetMap, emit func(Message) error) (*ir.FixedStart, error) {
	snap, found, err := s.cfg.Snapshots.RetrieveSnapshot(ctx, s.cfg.Semantics, s.cfg.Session, s.cfg.Version)
	if err != nil {
		s.logger.Warn("snapshot lookup failed, replaying from zero", "semantics", s.cfg.Semantics, "error", err)
		return nil, nil
	}
	if !found {
		return nil, nil
	}

	start := snap.FixedStart()
	trigger, invalid, err := s.validate(ctx, start, present)
	if err != nil {
		return nil, err
	}
	if invalid {
		n, err := s.cfg.Snapshots.InvalidateSnapshots(ctx, s.cfg.Semantics, s.cfg.Session, trigger)
		if err != nil {
			s.logger.Warn("snapshot invalidation failed", "trigger", trigger.String(), "error", err)
		}
		s.logger.Info("snapshot invalid, replaying from zero",
			"semantics", s.cfg.Semantics,
			"trigger", trigger.String(),
			"invalidated", n,
		)
		return nil, nil
	}

	s.logger.Debug("resuming from snapshot", "semantics", s.cfg.Semantics, "eventKey", snap.EventKey.String())
	if err := emit(State{Snapshot: snap}); err != nil {
		return nil, err
	}
	return &start, nil
}

// live subscribes from start and emits ordered chunks until the order
// check fails.
func (s *Subscription) live(ctx context.Context, start *ir.FixedStart, emit func(Message) error) error {
	s.setPhase(PhaseLive)

	from := ir.OffsetMap{}
	var latest ir.EventKey
	if start != nil {
		from = start.From.Copy()
		latest = start.LatestEventKey
	}

	stream, err := s.store.Subscribe(ctx, from, s.cfg.Where)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	defer stream.Close()

	asm := chunk.NewAssembler(from, chunk.Forward)
	caughtUp := false
	for {
		batch, err := stream.Recv(ctx)
		if err != nil {
			return s.recvError(ctx, err)
		}

		wasCaughtUp := caughtUp
		events := make([]ir.Event, 0, len(batch))
		for _, r := range batch {
			switch r := r.(type) {
			case ir.EventResponse:
				if start != nil && start.BelowHorizon(r.Key()) {
					s.logger.Debug("dropping event below horizon", "event", r.Key().String())
					continue
				}
				events = append(events, r.Event)
				if r.CaughtUp != nil && *r.CaughtUp {
					caughtUp = true
				}
			case ir.OffsetsResponse:
				caughtUp = true
			case ir.DiagnosticResponse:
				s.logger.Warn("store diagnostic", "severity", r.Severity, "message", r.Message)
			default:
				s.logger.Debug("ignoring response", "type", fmt.Sprintf("%T", r))
			}
		}

		if len(events) == 0 {
			if caughtUp && !wasCaughtUp {
				if err := emit(Events{Chunk: asm.Next(events), CaughtUp: true}); err != nil {
					return err
				}
			}
			continue
		}

		ir.SortEvents(events)
		first := events[0].Key()
		if first.Less(latest) {
			return s.timeTravel(first, emit)
		}
		latest = ir.MaxKey(latest, events[len(events)-1].Key())

		if err := emit(Events{Chunk: asm.Next(events), CaughtUp: caughtUp}); err != nil {
			return err
		}
	}
}

// runServerAssisted translates the store's monotonic stream one to one.
func (s *Subscription) runServerAssisted(ctx context.Context, ms eventstore.MonotonicSubscriber, emit func(Message) error) error {
	s.setPhase(PhaseLive)

	from := ir.OffsetMap{}
	if s.cfg.Start != nil {
		from = s.cfg.Start.From.Copy()
	}

	stream, err := ms.SubscribeMonotonic(ctx, s.cfg.Session, s.cfg.Start, s.cfg.Where)
	if err != nil {
		return fmt.Errorf("subscribe monotonic: %w", err)
	}
	defer stream.Close()

	asm := chunk.NewAssembler(from, chunk.Forward)
	caughtUp := false
	for {
		batch, err := stream.Recv(ctx)
		if err != nil {
			return s.recvError(ctx, err)
		}

		wasCaughtUp := caughtUp
		events := make([]ir.Event, 0, len(batch))
		flush := func() error {
			if len(events) == 0 && (!caughtUp || wasCaughtUp) {
				return nil
			}
			wasCaughtUp = caughtUp
			err := emit(Events{Chunk: asm.Next(events), CaughtUp: caughtUp})
			events = make([]ir.Event, 0)
			return err
		}

		for _, r := range batch {
			switch r := r.(type) {
			case ir.EventResponse:
				events = append(events, r.Event)
				if r.CaughtUp != nil {
					caughtUp = *r.CaughtUp
				}
			case ir.OffsetsResponse:
				caughtUp = true
			case ir.TimeTravelResponse:
				if err := flush(); err != nil {
					return err
				}
				return s.timeTravel(r.NewStart, emit)
			case ir.DiagnosticResponse:
				s.logger.Warn("store diagnostic", "severity", r.Severity, "message", r.Message)
			}
		}
		if err := flush(); err != nil {
			return err
		}
	}
}

func (s *Subscription) recvError(ctx context.Context, err error) error {
	if errors.Is(err, io.EOF) {
		return ErrStreamEnded
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("subscription stream: %w", err)
}

func (s *Subscription) timeTravel(trigger ir.EventKey, emit func(Message) error) error {
	s.setPhase(PhaseTimeTravel)
	s.logger.Info("time travel", "trigger", trigger.String())
	return emit(TimeTravel{Trigger: trigger})
}
