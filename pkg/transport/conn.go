package transport

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// wire is the minimal surface a concrete connection exposes to streamConn.
type wire interface {
	// readMessage blocks until one complete inbound message is available.
	readMessage() ([]byte, error)
	// writeMessage writes data as one outbound message.
	writeMessage(data []byte, deadline time.Time) error
	// close tears the connection down, unblocking readMessage.
	close() error
	// clean reports whether err marks an orderly shutdown by the peer.
	clean(err error) bool
}

type dialFunc func(ctx context.Context) (wire, error)

const (
	stateConnecting int32 = iota
	stateOpen
	stateClosed
)

// streamConn drives a wire: it dials, runs the read and write loops under an
// errgroup and reports everything through Callbacks.
type streamConn struct {
	opts   options
	cb     Callbacks
	logger *slog.Logger

	state   atomic.Int32
	closing atomic.Bool
	send    chan []byte

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func newStreamConn(opts options, cb Callbacks, logger *slog.Logger) *streamConn {
	ctx, cancel := context.WithCancel(context.Background())
	return &streamConn{
		opts:   opts,
		cb:     cb,
		logger: logger,
		send:   make(chan []byte, opts.bufferSize),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Send queues data for the write loop.
func (c *streamConn) Send(data []byte) error {
	switch c.state.Load() {
	case stateConnecting:
		return ErrNotOpen
	case stateClosed:
		return ErrClosed
	}
	if c.closing.Load() {
		return ErrClosed
	}

	select {
	case c.send <- data:
		return nil
	default:
		return ErrBufferFull
	}
}

// Close stops the connection. OnClose still fires, with a nil error.
// Safe to call multiple times.
func (c *streamConn) Close() error {
	c.closeOnce.Do(func() {
		c.closing.Store(true)
		c.cancel()
	})
	return nil
}

// run owns the connection for its whole life. It must be started exactly
// once, in its own goroutine.
func (c *streamConn) run(dial dialFunc) {
	defer c.state.Store(stateClosed)

	dialCtx, cancelDial := context.WithTimeout(c.ctx, c.opts.dialTimeout)
	w, err := dial(dialCtx)
	cancelDial()
	if err != nil {
		c.state.Store(stateClosed)
		if c.closing.Load() {
			c.cb.close(nil)
			return
		}
		c.logger.Warn("dial failed", "error", err)
		c.cb.error(err)
		c.cb.close(err)
		return
	}
	if c.closing.Load() {
		c.state.Store(stateClosed)
		w.close()
		c.cb.close(nil)
		return
	}

	c.state.Store(stateOpen)
	c.logger.Debug("transport open")
	c.cb.open()

	group, gctx := errgroup.WithContext(c.ctx)
	group.Go(func() error {
		return c.readLoop(w)
	})
	flushed := make(chan struct{})
	group.Go(func() error {
		defer close(flushed)
		return c.writeLoop(gctx, w)
	})
	group.Go(func() error {
		<-gctx.Done()
		<-flushed
		w.close()
		return nil
	})

	err = group.Wait()
	c.state.Store(stateClosed)
	c.cancel()

	if c.closing.Load() || w.clean(err) || errors.Is(err, context.Canceled) {
		c.logger.Debug("transport closed")
		c.cb.close(nil)
		return
	}

	c.logger.Info("transport closed with error", "error", err)
	c.cb.error(err)
	c.cb.close(err)
}

func (c *streamConn) readLoop(w wire) error {
	for {
		data, err := w.readMessage()
		if err != nil {
			return err
		}
		c.cb.message(data)
	}
}

func (c *streamConn) writeLoop(ctx context.Context, w wire) error {
	for {
		select {
		case data := <-c.send:
			if err := w.writeMessage(data, time.Now().Add(c.opts.writeTimeout)); err != nil {
				return err
			}
		case <-ctx.Done():
			if c.closing.Load() {
				c.flush(w)
			}
			return ctx.Err()
		}
	}
}

// flush writes whatever was queued before a local Close.
func (c *streamConn) flush(w wire) {
	for {
		select {
		case data := <-c.send:
			if err := w.writeMessage(data, time.Now().Add(c.opts.writeTimeout)); err != nil {
				c.logger.Debug("flush failed", "error", err)
				return
			}
		default:
			return
		}
	}
}
