package transport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var errFakeClosed = errors.New("fake connection closed")

// fakeConn is an in-memory Conn; the test plays the store side.
type fakeConn struct {
	toClient   chan []byte
	fromClient chan []byte
	closed     chan struct{}
	once       sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		toClient:   make(chan []byte, 64),
		fromClient: make(chan []byte, 64),
		closed:     make(chan struct{}),
	}
}

func (c *fakeConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.closed:
		return nil, io.EOF
	case data := <-c.toClient:
		return data, nil
	}
}

func (c *fakeConn) Write(ctx context.Context, data []byte) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.closed:
		return errFakeClosed
	case c.fromClient <- data:
		return nil
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

// next returns the next client message or fails the test.
func (c *fakeConn) next(t *testing.T) Outgoing {
	t.Helper()
	select {
	case data := <-c.fromClient:
		msg, err := DecodeOutgoing(data)
		require.NoError(t, err)
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for client message")
		return nil
	}
}

func (c *fakeConn) nextRequest(t *testing.T) Request {
	t.Helper()
	msg := c.next(t)
	req, ok := msg.(Request)
	require.True(t, ok, "expected request, got %T", msg)
	return req
}

// quiet asserts that the client sends nothing for a short while.
func (c *fakeConn) quiet(t *testing.T) {
	t.Helper()
	select {
	case data := <-c.fromClient:
		t.Fatalf("unexpected client message: %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func (c *fakeConn) send(t *testing.T, msg Incoming) {
	t.Helper()
	data, err := EncodeIncoming(msg)
	require.NoError(t, err)
	c.toClient <- data
}

// fakeDialer hands out fresh fakeConns and records dial times.
type fakeDialer struct {
	conns chan *fakeConn
	fail  error

	mu    sync.Mutex
	dials []time.Time
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{conns: make(chan *fakeConn, 16)}
}

func (d *fakeDialer) Dial(ctx context.Context) (Conn, error) {
	d.mu.Lock()
	d.dials = append(d.dials, time.Now())
	d.mu.Unlock()

	if d.fail != nil {
		return nil, d.fail
	}
	c := newFakeConn()
	d.conns <- c
	return c, nil
}

func (d *fakeDialer) dialTimes() []time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]time.Time(nil), d.dials...)
}

func (d *fakeDialer) accept(t *testing.T) *fakeConn {
	t.Helper()
	select {
	case c := <-d.conns:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dial")
		return nil
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startMux runs m until the test ends and returns Run's result channel.
func startMux(t *testing.T, m *Multiplexer) (cancel context.CancelFunc, done <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan error, 1)
	go func() {
		ch <- m.Run(ctx)
		close(ch)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-ch:
		case <-time.After(2 * time.Second):
			t.Error("multiplexer did not stop")
		}
	})
	return cancel, ch
}

func recvWithin(t *testing.T, s *ResponseStream) ([]byte, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.Recv(ctx)
}
