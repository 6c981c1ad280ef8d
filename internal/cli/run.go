package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/roach88/evsync/internal/client"
	"github.com/roach88/evsync/internal/config"
)

// DialFunc connects a client to the event store described by cfg.
type DialFunc func(ctx context.Context, cfg config.Config, opts ...client.Option) (*client.Client, error)

// session is everything a store command needs: configuration, logger,
// connected client and the optional metrics endpoint.
type session struct {
	ctx     context.Context
	cancel  context.CancelFunc
	cfg     config.Config
	logger  *slog.Logger
	client  *client.Client
	metrics *http.Server
}

// loadConfig reads --config, overlays EVSYNC_* variables and validates.
func (o *RootOptions) loadConfig() (config.Config, error) {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	return cfg, nil
}

// newLogger builds the stderr logger. --verbose forces debug level.
func (o *RootOptions) newLogger(cmd *cobra.Command, cfg config.Config) *slog.Logger {
	level := cfg.Level()
	if o.Verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: level,
	})
	return slog.New(handler)
}

// connect loads the configuration, starts the metrics endpoint when
// configured and dials the store. The session's context ends on SIGINT or
// SIGTERM.
func (o *RootOptions) connect(cmd *cobra.Command) (*session, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	s := &session{cfg: cfg, logger: o.newLogger(cmd, cfg)}
	s.ctx, s.cancel = signalContext(cmd, s.logger)

	opts := []client.Option{client.WithLogger(s.logger)}
	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		srv, err := serveMetrics(cfg.MetricsAddr, reg, s.logger)
		if err != nil {
			s.Close()
			return nil, WrapExitError(ExitCommandError, "failed to start metrics endpoint", err)
		}
		s.metrics = srv
		opts = append(opts, client.WithRegisterer(reg))
	}

	dial := o.Dial
	if dial == nil {
		dial = client.Dial
	}
	c, err := dial(s.ctx, cfg, opts...)
	if err != nil {
		s.Close()
		return nil, WrapExitError(ExitCommandError, "failed to connect", err)
	}
	s.client = c
	return s, nil
}

// Close releases the client and stops the metrics endpoint.
func (s *session) Close() {
	if s.client != nil {
		if err := s.client.Close(); err != nil {
			s.logger.Error("error closing client", "error", err)
		}
	}
	s.cancel()
	if s.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.metrics.Shutdown(ctx); err != nil {
			s.logger.Error("error stopping metrics endpoint", "error", err)
		}
	}
}

// serveMetrics exposes reg on addr under /metrics. The listener is bound
// before returning so address errors surface immediately.
func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics endpoint failed", "error", err)
		}
	}()
	logger.Info("metrics endpoint listening", "addr", ln.Addr().String())
	return srv, nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
// Uses the command's context if available (for testing).
func signalContext(cmd *cobra.Command, logger *slog.Logger) (context.Context, context.CancelFunc) {
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// storeError maps a store operation failure to an exit error.
func storeError(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return WrapExitError(ExitFailure, fmt.Sprintf("%s failed", op), err)
}
