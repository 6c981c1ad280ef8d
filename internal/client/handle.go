package client

import (
	"context"
	"errors"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Handle controls a running subscription, observer or chunked query.
type Handle struct {
	cancel   context.CancelFunc
	canceled atomic.Bool
	done     chan struct{}
	err      error
}

// Cancel stops the operation: the store stream is closed and the callback
// is not invoked again. Cancel is idempotent and may be called from inside
// the callback.
func (h *Handle) Cancel() {
	h.canceled.Store(true)
	h.cancel()
}

// Done is closed when the operation has stopped.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the operation has stopped and returns its error. A
// finished query and a cancelled operation both return nil.
func (h *Handle) Wait() error {
	<-h.done
	return h.err
}

// finishedHandle returns a handle that has already stopped with err.
func finishedHandle(err error) *Handle {
	h := &Handle{cancel: func() {}, done: make(chan struct{}), err: err}
	close(h.done)
	return h
}

// pipe runs produce and consume joined by a channel of capacity one: at
// most one value is pending while consume runs, and consume is never
// invoked concurrently with itself.
func pipe[T any](parent context.Context, produce func(ctx context.Context, send func(T) error) error, consume func(T) error, finished func(*Handle)) *Handle {
	ctx, cancel := context.WithCancel(parent)
	h := &Handle{cancel: cancel, done: make(chan struct{})}

	ch := make(chan T, 1)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(ch)
		return produce(gctx, func(v T) error {
			select {
			case ch <- v:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	})
	g.Go(func() error {
		for v := range ch {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := consume(v); err != nil {
				return err
			}
		}
		return nil
	})

	go func() {
		err := g.Wait()
		if h.canceled.Load() && errors.Is(err, context.Canceled) {
			err = nil
		}
		h.err = err
		cancel()
		close(h.done)
		if finished != nil {
			finished(h)
		}
	}()
	return h
}
