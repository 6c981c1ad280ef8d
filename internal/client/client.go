// Package client is the application-facing API: queries, chunked
// queries, subscriptions, monotonic subscriptions, observers and
// publishing over one event store.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/evsync/internal/config"
	"github.com/roach88/evsync/internal/eventstore"
	"github.com/roach88/evsync/internal/ir"
	"github.com/roach88/evsync/internal/subscription"
)

var (
	// ErrMissingUpperBound is returned by range queries without an upper
	// bound.
	ErrMissingUpperBound = errors.New("client: range query needs an upper bound")

	// ErrNoSnapshots is returned when snapshot operations are used on a
	// client without a snapshot cache.
	ErrNoSnapshots = errors.New("client: no snapshot cache configured")

	// ErrClientClosed is returned by operations started after Close.
	ErrClientClosed = errors.New("client: closed")
)

// SnapshotCache stores state snapshots for monotonic subscriptions.
// *store.Store implements it.
type SnapshotCache interface {
	subscription.SnapshotStore
	StoreSnapshot(ctx context.Context, snap ir.Snapshot) error
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithSnapshots enables the snapshot short-circuit of monotonic
// subscriptions.
func WithSnapshots(s SnapshotCache) Option {
	return func(c *Client) { c.snapshots = s }
}

// WithServerAssisted prefers store-side monotonic subscriptions.
func WithServerAssisted(on bool) Option {
	return func(c *Client) { c.serverAssisted = on }
}

// WithChunkDefaults sets the limits used by SubscribeChunked when the
// caller passes zero limits.
func WithChunkDefaults(limits config.Chunk) Option {
	return func(c *Client) { c.chunk = limits }
}

// WithSessions sets the generator for monotonic session ids.
func WithSessions(gen subscription.SessionGenerator) Option {
	return func(c *Client) {
		if gen != nil {
			c.sessions = gen
		}
	}
}

// WithRegisterer registers transport metrics with reg. Only used by Dial.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *Client) { c.registerer = reg }
}

// WithNow sets the clock used for time-limited chunking.
func WithNow(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// Client is safe for concurrent use.
type Client struct {
	store          eventstore.EventStore
	snapshots      SnapshotCache
	logger         *slog.Logger
	serverAssisted bool
	chunk          config.Chunk
	sessions       subscription.SessionGenerator
	registerer     prometheus.Registerer
	now            func() time.Time

	mu      sync.Mutex
	handles map[*Handle]struct{}
	closers []func() error
	closed  bool
}

// New creates a client over store.
func New(store eventstore.EventStore, opts ...Option) *Client {
	c := newClient(opts)
	c.store = store
	return c
}

func newClient(opts []Option) *Client {
	c := &Client{
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		sessions: subscription.UUIDv7Sessions{},
		now:      time.Now,
		handles:  make(map[*Handle]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Store returns the underlying event store.
func (c *Client) Store() eventstore.EventStore {
	return c.store
}

// Present returns the highest offset per stream known to the store.
func (c *Client) Present(ctx context.Context) (ir.OffsetMap, error) {
	offsets, err := c.store.Offsets(ctx)
	if err != nil {
		return nil, fmt.Errorf("present: %w", err)
	}
	return offsets.Present, nil
}

// Offsets returns the store's present and its replication backlog.
func (c *Client) Offsets(ctx context.Context) (ir.Offsets, error) {
	offsets, err := c.store.Offsets(ctx)
	if err != nil {
		return ir.Offsets{}, fmt.Errorf("offsets: %w", err)
	}
	return offsets, nil
}

// Publish persists drafts and returns the persisted events.
func (c *Client) Publish(ctx context.Context, drafts ...ir.EventDraft) ([]ir.Event, error) {
	if len(drafts) == 0 {
		return nil, nil
	}
	events, err := c.store.Persist(ctx, drafts)
	if err != nil {
		return nil, fmt.Errorf("publish: %w", err)
	}
	c.logger.Debug("published", "events", len(events))
	return events, nil
}

// StoreSnapshot caches a state snapshot for later monotonic
// subscriptions.
func (c *Client) StoreSnapshot(ctx context.Context, snap ir.Snapshot) error {
	if c.snapshots == nil {
		return ErrNoSnapshots
	}
	return c.snapshots.StoreSnapshot(ctx, snap)
}

// Snapshots returns the snapshot cache, or nil.
func (c *Client) Snapshots() SnapshotCache {
	return c.snapshots
}

// track registers a handle so Close can stop it. It returns false after
// Close.
func (c *Client) track(h *Handle) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case <-h.done:
	default:
		c.handles[h] = struct{}{}
	}
	return true
}

func (c *Client) untrack(h *Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.handles, h)
}

// start runs a pipe tracked by the client.
func start[T any](ctx context.Context, c *Client, produce func(ctx context.Context, send func(T) error) error, consume func(T) error) *Handle {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return finishedHandle(ErrClientClosed)
	}

	h := pipe(ctx, produce, consume, c.untrack)
	if !c.track(h) {
		h.Cancel()
		<-h.Done()
		h.err = ErrClientClosed
	}
	return h
}

// Close cancels every running operation, waits for them to stop and
// releases the client's resources. Close is idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	handles := make([]*Handle, 0, len(c.handles))
	for h := range c.handles {
		handles = append(handles, h)
	}
	closers := c.closers
	c.mu.Unlock()

	for _, h := range handles {
		h.Cancel()
	}
	for _, h := range handles {
		<-h.Done()
	}

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.logger.Debug("client closed", "operations", len(handles))
	return errors.Join(errs...)
}
