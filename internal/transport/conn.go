package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"
)

// Conn is one live duplex connection carrying whole JSON messages.
//
// Read and Write may be called concurrently with each other, but each from
// a single goroutine at a time. Read must return once ctx is done.
type Conn interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close() error
}

// Dialer opens connections to the store.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context) (Conn, error)

// Dial calls f(ctx).
func (f DialerFunc) Dial(ctx context.Context) (Conn, error) {
	return f(ctx)
}

const (
	defaultReadLimit    = 16 << 20
	defaultPingInterval = 20 * time.Second
	wsPingTimeout       = 5 * time.Second
)

// WebSocketDialer dials the store's websocket endpoint.
type WebSocketDialer struct {
	// URL is the ws:// or wss:// endpoint.
	URL string

	// Header is sent with the upgrade request (for example an
	// Authorization bearer token).
	Header http.Header

	// ReadLimit caps the size of one incoming message. Defaults to 16 MiB.
	ReadLimit int64

	// PingInterval is the keepalive period. Defaults to 20s; negative
	// disables pings.
	PingInterval time.Duration
}

// Dial implements Dialer.
func (d WebSocketDialer) Dial(ctx context.Context) (Conn, error) {
	c, _, err := websocket.Dial(ctx, d.URL, &websocket.DialOptions{HTTPHeader: d.Header})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", d.URL, err)
	}

	limit := d.ReadLimit
	if limit <= 0 {
		limit = defaultReadLimit
	}
	c.SetReadLimit(limit)

	pingCtx, cancel := context.WithCancel(context.Background())
	wc := &wsConn{c: c, cancel: cancel}

	interval := d.PingInterval
	if interval == 0 {
		interval = defaultPingInterval
	}
	if interval > 0 {
		go wc.keepalive(pingCtx, interval)
	}
	return wc, nil
}

type wsConn struct {
	c         *websocket.Conn
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func (w *wsConn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := w.c.Read(ctx)
	return data, err
}

func (w *wsConn) Write(ctx context.Context, data []byte) error {
	return w.c.Write(ctx, websocket.MessageText, data)
}

func (w *wsConn) Close() error {
	var err error
	w.closeOnce.Do(func() {
		w.cancel()
		err = w.c.Close(websocket.StatusNormalClosure, "client closed")
	})
	return err
}

func (w *wsConn) keepalive(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, wsPingTimeout)
			_ = w.c.Ping(pingCtx)
			cancel()
		}
	}
}
