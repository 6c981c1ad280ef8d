// Package harness runs YAML scenarios through the monotonic subscription
// state machine and records the messages it emits.
//
// Each scenario runs against a fresh in-memory event store and a fresh
// in-memory snapshot database. The store's lamport clock, the session id
// and the batching of injected events are all fixed by the scenario, so a
// run produces the same trace every time and can be compared against a
// golden file.
//
// Execution:
//
//  1. Write the scenario log to the store and cache the snapshot, if any.
//  2. Start the subscription and read messages until it has caught up or
//     time-travelled.
//  3. For each step, inject its events as one batch and read the message
//     the step expects.
//  4. Stop the subscription and evaluate the assertions.
package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/evsync/internal/ir"
	"github.com/roach88/evsync/internal/store"
	"github.com/roach88/evsync/internal/subscription"
	"github.com/roach88/evsync/internal/testutil"
)

// DefaultTimeout bounds every wait for a subscription message.
const DefaultTimeout = 2 * time.Second

// Harness is the execution state of one scenario run.
type Harness struct {
	events    *testutil.Store
	snapshots *store.Store
	next      map[ir.StreamID]ir.Offset
	messages  chan subscription.Message
	done      chan error
	timeout   time.Duration
	logger    *slog.Logger
}

// Run executes a scenario and returns the result.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	snaps, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory snapshot store: %w", err)
	}
	defer snaps.Close()

	h := &Harness{
		events:    testutil.NewStore(),
		snapshots: snaps,
		next:      make(map[ir.StreamID]ir.Offset),
		messages:  make(chan subscription.Message),
		done:      make(chan error, 1),
		timeout:   DefaultTimeout,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	if len(scenario.Log) > 0 {
		if _, err := h.inject(scenario.Log); err != nil {
			return nil, fmt.Errorf("failed to write log: %w", err)
		}
	}

	session := testutil.NewFixedSessionGenerator(scenario.Session).Generate()
	cfg := subscription.Config{
		Session: session,
		Where:   buildWhere(scenario.Where),
		Start:   buildStart(scenario.Start),
	}
	if spec := scenario.Snapshot; spec != nil {
		if err := snaps.StoreSnapshot(ctx, buildSnapshot(spec, session)); err != nil {
			return nil, fmt.Errorf("failed to cache snapshot: %w", err)
		}
		cfg.Snapshots = snaps
		cfg.Semantics = spec.Semantics
		cfg.Version = spec.Version
	}

	sub := subscription.New(h.events, cfg, subscription.WithLogger(h.logger))
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		h.done <- sub.Run(runCtx, func(m subscription.Message) error {
			select {
			case h.messages <- m:
				return nil
			case <-runCtx.Done():
				return runCtx.Err()
			}
		})
	}()

	result := NewResult()
	travelled, err := h.settle(result)
	if err != nil {
		return nil, err
	}
	if err := h.executeSteps(scenario.Steps, travelled, result); err != nil {
		return nil, err
	}
	result.Phase = sub.Phase().String()

	cancel()
	if err := <-h.done; err != nil && !errors.Is(err, context.Canceled) {
		return nil, fmt.Errorf("subscription failed: %w", err)
	}

	if cfg.Semantics != "" {
		cached, err := snaps.ListSnapshots(ctx, cfg.Semantics)
		if err != nil {
			return nil, fmt.Errorf("failed to list snapshots: %w", err)
		}
		result.Snapshots = len(cached)
	}

	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(errMsg)
	}

	h.logger.Info("scenario completed",
		"scenario", scenario.Name,
		"messages", len(result.Trace),
		"pass", result.Pass,
	)
	return result, nil
}

// settle reads messages until the subscription has caught up or
// time-travelled.
func (h *Harness) settle(result *Result) (bool, error) {
	for {
		m, err := h.receive()
		if err != nil {
			return false, fmt.Errorf("waiting for catch-up: %w", err)
		}
		record(result, m)
		switch m := m.(type) {
		case subscription.TimeTravel:
			return true, nil
		case subscription.Events:
			if m.CaughtUp {
				return false, nil
			}
		}
	}
}

// executeSteps injects each step's batch and checks the message it
// produces. Steps after a time travel are reported, not executed.
func (h *Harness) executeSteps(steps []Step, travelled bool, result *Result) error {
	for i, step := range steps {
		if travelled {
			result.AddError(fmt.Sprintf("steps[%d]: not executed, subscription already time-travelled", i))
			return nil
		}

		injected, err := h.inject(step.Inject)
		if err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
		result.add(TraceEvent{Type: TraceInject, Events: labels(injected)})

		expect := step.Expect
		if expect == "" {
			expect = ExpectEvents
		}
		if expect == ExpectNone {
			continue
		}

		m, err := h.receive()
		if err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
		record(result, m)

		got := messageType(m)
		if got != expect {
			result.AddError(fmt.Sprintf("steps[%d]: expected %s message, got %s", i, expect, got))
		}
		if got == TraceTimeTravel {
			travelled = true
		}
	}
	return nil
}

// inject writes events to the store as one batch, assigning offsets in
// order per stream.
func (h *Harness) inject(specs []EventSpec) ([]ir.Event, error) {
	events := make([]ir.Event, 0, len(specs))
	for _, spec := range specs {
		stream := ir.StreamID(spec.Stream)
		payload, err := json.Marshal(spec.Payload)
		if err != nil {
			return nil, fmt.Errorf("event %s: payload: %w", stream, err)
		}
		events = append(events, ir.Event{
			Stream:  stream,
			Offset:  h.next[stream],
			Lamport: ir.Lamport(spec.Lamport),
			Tags:    spec.Tags,
			AppID:   "com.example.harness",
			Payload: payload,
		})
		h.next[stream]++
	}
	if err := h.events.Inject(events...); err != nil {
		return nil, err
	}
	return events, nil
}

func (h *Harness) receive() (subscription.Message, error) {
	timer := time.NewTimer(h.timeout)
	defer timer.Stop()

	select {
	case m := <-h.messages:
		return m, nil
	case err := <-h.done:
		h.done <- err
		if err == nil {
			err = errors.New("subscription returned")
		}
		return nil, fmt.Errorf("subscription stopped: %w", err)
	case <-timer.C:
		return nil, fmt.Errorf("no message within %s", h.timeout)
	}
}

func record(result *Result, m subscription.Message) {
	switch m := m.(type) {
	case subscription.Events:
		result.add(TraceEvent{
			Type:     TraceEvents,
			Events:   labels(m.Chunk.Events),
			Lower:    offsets(m.Chunk.LowerBound),
			Upper:    offsets(m.Chunk.UpperBound),
			CaughtUp: m.CaughtUp,
		})
	case subscription.State:
		result.add(TraceEvent{
			Type:  TraceState,
			Key:   keyLabel(m.Snapshot.EventKey),
			Upper: offsets(m.Snapshot.Offsets),
		})
	case subscription.TimeTravel:
		result.add(TraceEvent{Type: TraceTimeTravel, Key: keyLabel(m.Trigger)})
	}
}

func messageType(m subscription.Message) string {
	switch m.(type) {
	case subscription.Events:
		return TraceEvents
	case subscription.State:
		return TraceState
	case subscription.TimeTravel:
		return TraceTimeTravel
	default:
		return fmt.Sprintf("%T", m)
	}
}

func buildWhere(clauses [][]string) ir.Where {
	where := ir.AllEvents
	for i, clause := range clauses {
		if i == 0 {
			where = ir.Tags(clause...)
			continue
		}
		where = where.Or(ir.Tags(clause...))
	}
	return where
}

func buildStart(spec *StartSpec) *ir.FixedStart {
	if spec == nil {
		return nil
	}
	start := &ir.FixedStart{
		From:           offsetMap(spec.From),
		LatestEventKey: spec.Latest.Key(),
	}
	if spec.Horizon != nil {
		k := spec.Horizon.Key()
		start.Horizon = &k
	}
	return start
}

func buildSnapshot(spec *SnapshotSpec, session string) ir.Snapshot {
	state := spec.State
	if state == "" {
		state = "{}"
	}
	snap := ir.Snapshot{
		Semantics: spec.Semantics,
		Session:   session,
		Version:   spec.Version,
		EventKey:  spec.Key.Key(),
		Offsets:   offsetMap(spec.Offsets),
		State:     json.RawMessage(state),
	}
	if spec.Horizon != nil {
		k := spec.Horizon.Key()
		snap.Horizon = &k
	}
	return snap
}

func offsetMap(m map[string]uint64) ir.OffsetMap {
	out := make(ir.OffsetMap, len(m))
	for stream, off := range m {
		out[ir.StreamID(stream)] = ir.Offset(off)
	}
	return out
}

func offsets(m ir.OffsetMap) map[string]uint64 {
	out := make(map[string]uint64, len(m))
	for stream, off := range m {
		out[string(stream)] = uint64(off)
	}
	return out
}

// label formats an event as stream-offset@lamport.
func label(e ir.Event) string {
	return keyLabel(e.Key())
}

func keyLabel(k ir.EventKey) string {
	return fmt.Sprintf("%s-%d@%d", k.Stream, k.Offset, k.Lamport)
}

func labels(events []ir.Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = label(e)
	}
	return out
}
