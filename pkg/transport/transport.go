// Package transport defines the byte-stream boundary the Pomelo client runs
// over, plus two implementations: WebSocket (gorilla/websocket) and raw TCP.
//
// A transport is opened through a Factory. Open returns a handle at once;
// the connection is established asynchronously and reported through the
// Callbacks. Each OnMessage delivery carries one or more complete frames.
package transport

import (
	"errors"
	"log/slog"
	"time"
)

// Errors returned by transport handles.
var (
	// ErrNotOpen is returned by Send before the connection is established.
	ErrNotOpen = errors.New("transport: not open")
	// ErrClosed is returned by Send after the connection has closed.
	ErrClosed = errors.New("transport: closed")
	// ErrBufferFull is returned when the send queue cannot accept more data.
	ErrBufferFull = errors.New("transport: send buffer full")
)

// Callbacks receive connection events. Implementations call them from their
// own goroutines, one at a time and in order; OnClose is called exactly once
// per handle, after which no other callback fires.
type Callbacks struct {
	OnOpen    func()
	OnMessage func(data []byte)
	OnError   func(err error)
	OnClose   func(err error)
}

func (cb Callbacks) open() {
	if cb.OnOpen != nil {
		cb.OnOpen()
	}
}

func (cb Callbacks) message(data []byte) {
	if cb.OnMessage != nil {
		cb.OnMessage(data)
	}
}

func (cb Callbacks) error(err error) {
	if cb.OnError != nil {
		cb.OnError(err)
	}
}

func (cb Callbacks) close(err error) {
	if cb.OnClose != nil {
		cb.OnClose(err)
	}
}

// Conn is an open (or opening) transport handle.
type Conn interface {
	// Send queues data for delivery as one transport message.
	Send(data []byte) error
	// Close releases the connection. Safe to call multiple times.
	Close() error
}

// Factory creates transport handles.
type Factory interface {
	Open(url string, cb Callbacks) (Conn, error)
}

// FactoryFunc adapts a function to the Factory interface.
type FactoryFunc func(url string, cb Callbacks) (Conn, error)

// Open calls f(url, cb).
func (f FactoryFunc) Open(url string, cb Callbacks) (Conn, error) {
	return f(url, cb)
}

// Default configuration values.
const (
	// DefaultBufferSize is the default size of the send queue.
	DefaultBufferSize = 64
	// DefaultDialTimeout bounds connection establishment.
	DefaultDialTimeout = 10 * time.Second
	// DefaultWriteTimeout bounds a single write.
	DefaultWriteTimeout = 10 * time.Second
	// DefaultMaxMessageSize is the largest accepted inbound message (frame header + max body).
	DefaultMaxMessageSize = 4 + 1<<24 - 1
)

// options holds the configuration shared by the transports.
type options struct {
	logger         *slog.Logger
	bufferSize     int
	dialTimeout    time.Duration
	writeTimeout   time.Duration
	maxMessageSize int
}

// Option configures a transport factory.
type Option func(*options)

// WithLogger sets the logger.
// If not set, slog.Default() is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithBufferSize sets the size of the send queue.
// A larger buffer allows more messages to be queued before Send fails with ErrBufferFull.
func WithBufferSize(size int) Option {
	return func(o *options) {
		o.bufferSize = size
	}
}

// WithDialTimeout bounds how long establishing the connection may take.
func WithDialTimeout(d time.Duration) Option {
	return func(o *options) {
		o.dialTimeout = d
	}
}

// WithWriteTimeout sets the deadline applied to every write.
func WithWriteTimeout(d time.Duration) Option {
	return func(o *options) {
		o.writeTimeout = d
	}
}

// WithMaxMessageSize bounds the size of one inbound message.
func WithMaxMessageSize(size int) Option {
	return func(o *options) {
		o.maxMessageSize = size
	}
}

// buildOptions applies opts over the defaults.
func buildOptions(opts []Option) options {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.bufferSize <= 0 {
		o.bufferSize = DefaultBufferSize
	}
	if o.dialTimeout <= 0 {
		o.dialTimeout = DefaultDialTimeout
	}
	if o.writeTimeout <= 0 {
		o.writeTimeout = DefaultWriteTimeout
	}
	if o.maxMessageSize <= 0 {
		o.maxMessageSize = DefaultMaxMessageSize
	}
	return o
}
