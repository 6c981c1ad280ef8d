package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/roach88/evsync/internal/config"
	"github.com/roach88/evsync/internal/eventstore"
	"github.com/roach88/evsync/internal/store"
	"github.com/roach88/evsync/internal/transport"
)

// Dial builds a client from cfg: one websocket multiplexer to
// cfg.Endpoint, the remote store over it, and the snapshot cache when
// cfg.SnapshotDB is set.
//
// Dial does not wait for the connection; requests made while
// disconnected are queued. The connection lives until Close or until ctx
// is done.
func Dial(ctx context.Context, cfg config.Config, opts ...Option) (*Client, error) {
	c := newClient(opts)
	c.serverAssisted = cfg.ServerAssisted
	c.chunk = cfg.Chunk

	header := http.Header{}
	if cfg.Token != "" {
		header.Set("Authorization", "Bearer "+cfg.Token)
	}
	mux := transport.New(
		transport.WebSocketDialer{URL: cfg.Endpoint, Header: header},
		transport.WithLogger(c.logger),
		transport.WithRedialInterval(cfg.RedialInterval),
		transport.WithOverloadRetryDelay(cfg.OverloadRetryDelay),
		transport.WithMetrics(transport.NewMetrics(c.registerer)),
	)

	runCtx, stop := context.WithCancel(ctx)
	runDone := make(chan error, 1)
	go func() { runDone <- mux.Run(runCtx) }()
	c.closers = append(c.closers, func() error {
		stop()
		if err := <-runDone; err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("multiplexer: %w", err)
		}
		return nil
	})

	if cfg.SnapshotDB != "" {
		st, err := store.Open(cfg.SnapshotDB)
		if err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("open snapshot cache: %w", err)
		}
		c.snapshots = st
		c.closers = append(c.closers, st.Close)
	}

	c.store = eventstore.NewRemote(
		eventstore.FromMultiplexer(mux),
		eventstore.WithAppID(cfg.AppID),
		eventstore.WithLogger(c.logger),
	)
	c.logger.Info("client dialing", "endpoint", cfg.Endpoint, "snapshots", cfg.SnapshotDB != "")
	return c, nil
}
