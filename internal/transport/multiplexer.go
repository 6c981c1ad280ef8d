package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// QueueReason records why a request waits in the disconnect queue.
type QueueReason string

const (
	// ReasonDisconnected marks requests issued while no connection was up.
	ReasonDisconnected QueueReason = "disconnected"
	// ReasonThrottling marks requests waiting to be retried after the
	// store reported overload.
	ReasonThrottling QueueReason = "throttling"
)

const (
	// DefaultRedialInterval is the minimum spacing of dial attempts.
	DefaultRedialInterval = time.Second

	// DefaultOverloadRetryDelay is the pause before an overloaded request
	// is sent again.
	DefaultOverloadRetryDelay = 500 * time.Millisecond

	connectionErrorBuffer = 8
)

// Option configures a Multiplexer.
type Option func(*Multiplexer)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(m *Multiplexer) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithRedialInterval sets the minimum spacing of dial attempts. Queued
// requests expire after 1.5 times this interval.
func WithRedialInterval(d time.Duration) Option {
	return func(m *Multiplexer) {
		if d > 0 {
			m.redialInterval = d
		}
	}
}

// WithOverloadRetryDelay sets the pause before an overloaded request is
// retried.
func WithOverloadRetryDelay(d time.Duration) Option {
	return func(m *Multiplexer) {
		if d >= 0 {
			m.overloadRetryDelay = d
		}
	}
}

// WithMetrics sets the prometheus instruments.
func WithMetrics(metrics *Metrics) Option {
	return func(m *Multiplexer) {
		if metrics != nil {
			m.metrics = metrics
		}
	}
}

// WithNow sets the time source used for queue timestamps and pruning.
func WithNow(now func() time.Time) Option {
	return func(m *Multiplexer) {
		if now != nil {
			m.now = now
		}
	}
}

// WithClock sets the correlation id source.
func WithClock(c *Clock) Option {
	return func(m *Multiplexer) {
		if c != nil {
			m.ids = c
		}
	}
}

// Multiplexer shares one connection between many logical requests.
//
// The correlation-id registry (inFlight) and the disconnect queue
// (pending) are the only shared mutable state; both are guarded by mu and
// every mutation completes before mu is released.
type Multiplexer struct {
	dialer             Dialer
	logger             *slog.Logger
	metrics            *Metrics
	now                func() time.Time
	ids                *Clock
	redialInterval     time.Duration
	overloadRetryDelay time.Duration
	limiter            *rate.Limiter

	mu           sync.Mutex
	conn         *connection
	inFlight     map[RequestID]*ResponseStream
	pending      []*ResponseStream
	closed       bool
	observers    map[int]chan error
	nextObserver int
}

type connection struct {
	conn   Conn
	outbox *queue[[]byte]
}

// New creates a multiplexer. Nothing is dialed until Run is called;
// requests issued before that wait in the disconnect queue.
func New(dialer Dialer, opts ...Option) *Multiplexer {
	m := &Multiplexer{
		dialer:             dialer,
		logger:             slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:                time.Now,
		ids:                NewClock(),
		redialInterval:     DefaultRedialInterval,
		overloadRetryDelay: DefaultOverloadRetryDelay,
		inFlight:           make(map[RequestID]*ResponseStream),
		observers:          make(map[int]chan error),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.metrics == nil {
		m.metrics = NewMetrics(nil)
	}
	m.limiter = rate.NewLimiter(rate.Every(m.redialInterval), 1)
	return m
}

// RedialInterval returns the configured redial interval.
func (m *Multiplexer) RedialInterval() time.Duration {
	return m.redialInterval
}

// Connected reports whether a connection is currently up.
func (m *Multiplexer) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn != nil
}

// Request opens a logical request stream to serviceID. payload is encoded
// as JSON. When connected the request is written immediately; otherwise
// it waits in the disconnect queue.
func (m *Multiplexer) Request(ctx context.Context, serviceID string, payload any) (*ResponseStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", serviceID, err)
	}

	s := &ResponseStream{
		m:         m,
		serviceID: serviceID,
		payload:   raw,
		inbox:     newQueue[json.RawMessage](),
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}
	if m.conn == nil {
		m.enqueueLocked(s, ReasonDisconnected)
		return s, nil
	}
	m.sendLocked(s)
	return s, nil
}

// ConnectionErrors subscribes to dial and connection failures. Delivery is
// best effort: notifications are dropped when the channel is full. The
// returned func unsubscribes and closes the channel.
func (m *Multiplexer) ConnectionErrors() (<-chan error, func()) {
	ch := make(chan error, connectionErrorBuffer)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		close(ch)
		return ch, func() {}
	}
	id := m.nextObserver
	m.nextObserver++
	m.observers[id] = ch

	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if c, ok := m.observers[id]; ok {
			delete(m.observers, id)
			close(c)
		}
	}
}

// Run dials, serves and redials until ctx is done, then fails every open
// request with ErrClosed. Run must be called at most once.
func (m *Multiplexer) Run(ctx context.Context) error {
	m.logger.Info("multiplexer starting", "redial_interval", m.redialInterval)
	defer m.shutdown()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return m.pruneLoop(ctx) })
	g.Go(func() error { return m.dialLoop(ctx) })

	err := g.Wait()
	m.logger.Info("multiplexer stopping", "reason", err)
	return err
}

func (m *Multiplexer) dialLoop(ctx context.Context) error {
	for {
		if err := m.limiter.Wait(ctx); err != nil {
			// The next token lies beyond ctx's deadline.
			<-ctx.Done()
			return ctx.Err()
		}

		m.metrics.Dials.Inc()
		conn, err := m.dialer.Dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			m.metrics.DialFailures.Inc()
			m.logger.Warn("dial failed", "error", err)
			m.notify(err)
			continue
		}

		err = m.serve(ctx, conn)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		m.logger.Warn("connection lost", "error", err)
		m.notify(err)
	}
}

// serve runs the read and write pumps of one connection until either
// fails.
func (m *Multiplexer) serve(ctx context.Context, conn Conn) error {
	c := &connection{conn: conn, outbox: newQueue[[]byte]()}
	m.attach(c)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return m.readPump(gctx, c) })
	g.Go(func() error { return m.writePump(gctx, c) })
	err := g.Wait()

	m.detach(c)
	if cerr := conn.Close(); cerr != nil {
		m.logger.Debug("close connection", "error", cerr)
	}
	return err
}

func (m *Multiplexer) readPump(ctx context.Context, c *connection) error {
	for {
		data, err := c.conn.Read(ctx)
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		msg, err := DecodeIncoming(data)
		if err != nil {
			m.logger.Warn("dropping malformed message", "error", err)
			continue
		}
		m.dispatch(msg)
	}
}

func (m *Multiplexer) writePump(ctx context.Context, c *connection) error {
	for {
		frame, ok, closed := c.outbox.Poll()
		if ok {
			if err := c.conn.Write(ctx, frame); err != nil {
				return fmt.Errorf("write: %w", err)
			}
			continue
		}
		if closed {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.outbox.Wait():
		}
	}
}

func (m *Multiplexer) pruneLoop(ctx context.Context) error {
	ticker := time.NewTicker(max(m.redialInterval/2, time.Millisecond))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.prune()
		}
	}
}

// attach makes c the live connection and replays the disconnect queue in
// order. Each replayed request gets a fresh correlation id.
func (m *Multiplexer) attach(c *connection) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.conn = c
	m.metrics.Connected.Set(1)

	queued := m.pending
	m.pending = nil
	for _, s := range queued {
		m.sendLocked(s)
	}
	m.logger.Info("connected", "replayed", len(queued))
}

// detach fails every request that was on the wire of c.
func (m *Multiplexer) detach(c *connection) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn == c {
		m.conn = nil
	}
	c.outbox.Close()
	m.metrics.Connected.Set(0)

	for id, s := range m.inFlight {
		delete(m.inFlight, id)
		s.finishLocked(newLocalError(ErrCodeConnectionLost, s.serviceID, id, ErrConnectionLost))
	}
	m.metrics.InFlight.Set(0)
}

// prune fails queued requests older than 1.5 × RedialInterval.
func (m *Multiplexer) prune() {
	now := m.now()
	maxAge := m.redialInterval * 3 / 2

	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.pending[:0]
	for _, s := range m.pending {
		if now.Sub(s.queuedAt) > maxAge {
			m.metrics.RequestsExpired.Inc()
			m.logger.Debug("queued request expired",
				"service", s.serviceID,
				"reason", s.reason,
				"age", now.Sub(s.queuedAt),
			)
			s.finishLocked(newLocalError(ErrCodeDisconnected, s.serviceID, 0, ErrDisconnected))
			continue
		}
		kept = append(kept, s)
	}
	clear(m.pending[len(kept):])
	m.pending = kept
}

func (m *Multiplexer) shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	for id, s := range m.inFlight {
		delete(m.inFlight, id)
		s.finishLocked(newLocalError(ErrCodeClosed, s.serviceID, id, ErrClosed))
	}
	for _, s := range m.pending {
		s.finishLocked(newLocalError(ErrCodeClosed, s.serviceID, 0, ErrClosed))
	}
	m.pending = nil
	for id, ch := range m.observers {
		delete(m.observers, id)
		close(ch)
	}
	m.metrics.InFlight.Set(0)
}

func (m *Multiplexer) notify(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.observers {
		select {
		case ch <- err:
		default:
		}
	}
}

// dispatch routes one store message to its request stream.
func (m *Multiplexer) dispatch(msg Incoming) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.inFlight[msg.ID()]
	if !ok {
		m.logger.Debug("dropping message for unknown request", "request_id", msg.ID())
		return
	}

	switch msg := msg.(type) {
	case Next:
		s.gotNext = true
		s.inbox.Push(msg.Payload)

	case Complete:
		m.removeInFlightLocked(s.id)
		s.finishLocked(io.EOF)

	case Error:
		m.removeInFlightLocked(s.id)
		if se, ok := msg.Kind.(ServiceError); ok && se.Overloaded() && !s.gotNext {
			m.retryLocked(s)
			return
		}
		m.logger.Debug("request failed",
			"service", s.serviceID,
			"request_id", s.id,
			"kind", msg.Kind.String(),
		)
		s.finishLocked(newKindError(s.serviceID, s.id, msg.Kind))
	}
}

func (m *Multiplexer) sendLocked(s *ResponseStream) {
	id := m.ids.Next()
	frame, err := EncodeOutgoing(Request{RequestID: id, ServiceID: s.serviceID, Payload: s.payload})
	if err != nil {
		s.finishLocked(fmt.Errorf("encode request: %w", err))
		return
	}

	s.id = id
	s.state = stateInFlight
	s.gotNext = false
	m.inFlight[id] = s
	m.conn.outbox.Push(frame)

	m.metrics.RequestsSent.Inc()
	m.metrics.InFlight.Set(float64(len(m.inFlight)))
	m.logger.Debug("request sent", "service", s.serviceID, "request_id", id)
}

func (m *Multiplexer) enqueueLocked(s *ResponseStream, reason QueueReason) {
	s.state = stateQueued
	s.reason = reason
	s.queuedAt = m.now()
	m.pending = append(m.pending, s)
	m.metrics.RequestsQueued.WithLabelValues(string(reason)).Inc()
}

func (m *Multiplexer) removeInFlightLocked(id RequestID) {
	delete(m.inFlight, id)
	m.metrics.InFlight.Set(float64(len(m.inFlight)))
}

func (m *Multiplexer) removePendingLocked(s *ResponseStream) {
	for i, p := range m.pending {
		if p == s {
			m.pending = append(m.pending[:i], m.pending[i+1:]...)
			return
		}
	}
}

// retryLocked parks an overloaded request and resends it after the retry
// delay. If the connection drops meanwhile, the request is replayed with
// the rest of the queue on reconnect.
func (m *Multiplexer) retryLocked(s *ResponseStream) {
	m.metrics.RequestsRetried.Inc()
	m.logger.Debug("store overloaded, retrying",
		"service", s.serviceID,
		"request_id", s.id,
		"delay", m.overloadRetryDelay,
	)
	m.enqueueLocked(s, ReasonThrottling)
	time.AfterFunc(m.overloadRetryDelay, func() { m.resend(s) })
}

func (m *Multiplexer) resend(s *ResponseStream) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s.state != stateQueued || s.reason != ReasonThrottling || m.conn == nil {
		return
	}
	m.removePendingLocked(s)
	m.sendLocked(s)
}

// cancel tears down a stream. Queued requests are dropped from the queue;
// requests on the wire get a Cancel message. Streams the store already
// finished are left alone.
func (m *Multiplexer) cancel(s *ResponseStream) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch s.state {
	case stateQueued:
		m.removePendingLocked(s)
	case stateInFlight:
		m.removeInFlightLocked(s.id)
		if m.conn != nil {
			if frame, err := EncodeOutgoing(Cancel{RequestID: s.id}); err == nil {
				m.conn.outbox.Push(frame)
				m.metrics.CancelsSent.Inc()
			}
		}
	default:
		return
	}
	s.finishLocked(ErrCanceled)
}

type streamState int

const (
	stateQueued streamState = iota + 1
	stateInFlight
	stateDone
)

// ResponseStream is the client side of one logical request.
//
// Recv yields the store's Next payloads in order and then io.EOF when the
// store completes the request, or the terminal error. Close cancels the
// request; it is idempotent and safe to call from any goroutine.
type ResponseStream struct {
	m         *Multiplexer
	serviceID string
	payload   json.RawMessage
	inbox     *queue[json.RawMessage]

	// Guarded by m.mu.
	id       RequestID
	state    streamState
	reason   QueueReason
	queuedAt time.Time
	gotNext  bool

	// Written under m.mu before inbox is closed, read after Poll reports
	// the inbox closed.
	err error
}

// ServiceID returns the endpoint the request addresses.
func (s *ResponseStream) ServiceID() string {
	return s.serviceID
}

// ID returns the correlation id of the latest attempt, zero while the
// request has never been sent.
func (s *ResponseStream) ID() RequestID {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	return s.id
}

// Recv returns the next payload. It blocks until one arrives, the stream
// terminates, or ctx is done.
func (s *ResponseStream) Recv(ctx context.Context) (json.RawMessage, error) {
	for {
		payload, ok, closed := s.inbox.Poll()
		if ok {
			return payload, nil
		}
		if closed {
			return nil, s.err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.inbox.Wait():
		}
	}
}

// Close cancels the request. Payloads already received stay readable.
func (s *ResponseStream) Close() error {
	s.m.cancel(s)
	return nil
}

func (s *ResponseStream) finishLocked(err error) {
	if s.state == stateDone {
		return
	}
	s.state = stateDone
	s.err = err
	s.inbox.Close()
}
