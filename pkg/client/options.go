package client

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/vango-dev/pomelo/pkg/protocol"
	"github.com/vango-dev/pomelo/pkg/transport"
)

// Default option values.
const (
	DefaultMaxReconnectAttempts = 10
	DefaultReconnectDelay       = 5 * time.Second
	DefaultGapThreshold         = 100 * time.Millisecond
	DefaultTracerName           = "pomelo"
)

type options struct {
	logger     *slog.Logger
	transport  transport.Factory
	urlBuilder URLBuilder
	codec      Codec
	clock      Clock

	reconnect      bool
	maxAttempts    int
	reconnectDelay time.Duration
	maxDelay       time.Duration
	gapThreshold   time.Duration

	clientType    string
	clientVersion string
	user          any
	onHandshake   func(user json.RawMessage)

	registerer prometheus.Registerer
	namespace  string
	tracerName string

	sendRate  rate.Limit
	sendBurst int
}

// Option configures a Session.
type Option func(*options)

// WithLogger sets the logger.
// If not set, slog.Default() tagged with component=pomelo is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithTransport sets the transport factory.
// If not set, a gorilla/websocket transport is used.
func WithTransport(f transport.Factory) Option {
	return func(o *options) {
		o.transport = f
	}
}

// WithURLBuilder sets how Connect's host and port become a transport URL.
func WithURLBuilder(b URLBuilder) Option {
	return func(o *options) {
		o.urlBuilder = b
	}
}

// WithCodec sets the application codec. The default is JSONCodec.
func WithCodec(c Codec) Option {
	return func(o *options) {
		o.codec = c
	}
}

// WithClock replaces the time source for heartbeat and reconnect timers.
func WithClock(c Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithReconnect enables or disables automatic reconnection after an
// unsolicited close. Disabled by default.
func WithReconnect(enabled bool) Option {
	return func(o *options) {
		o.reconnect = enabled
	}
}

// WithMaxReconnectAttempts sets the reconnect budget. Values <= 0 select
// DefaultMaxReconnectAttempts.
func WithMaxReconnectAttempts(n int) Option {
	return func(o *options) {
		o.maxAttempts = n
	}
}

// WithReconnectDelay sets the first reconnect delay. It doubles after each
// attempt and resets after a successful handshake.
func WithReconnectDelay(d time.Duration) Option {
	return func(o *options) {
		o.reconnectDelay = d
	}
}

// WithMaxReconnectDelay caps the reconnect delay. 0 leaves it uncapped.
func WithMaxReconnectDelay(d time.Duration) Option {
	return func(o *options) {
		o.maxDelay = d
	}
}

// WithHeartbeatGapThreshold sets how much timer drift the heartbeat watchdog
// tolerates before declaring a timeout.
func WithHeartbeatGapThreshold(d time.Duration) Option {
	return func(o *options) {
		o.gapThreshold = d
	}
}

// WithClientInfo sets the client type and version announced in the handshake.
func WithClientInfo(clientType, version string) Option {
	return func(o *options) {
		o.clientType = clientType
		o.clientVersion = version
	}
}

// WithUser sets the user payload sent with every handshake.
func WithUser(user any) Option {
	return func(o *options) {
		o.user = user
	}
}

// WithHandshakeCallback sets a function called with the server's user
// payload after every successful handshake.
func WithHandshakeCallback(fn func(user json.RawMessage)) Option {
	return func(o *options) {
		o.onHandshake = fn
	}
}

// WithMetrics registers session metrics with reg under namespace
// (default "pomelo").
func WithMetrics(reg prometheus.Registerer, namespace string) Option {
	return func(o *options) {
		o.registerer = reg
		o.namespace = namespace
	}
}

// WithTracerName sets the OpenTelemetry tracer name used for request spans.
func WithTracerName(name string) Option {
	return func(o *options) {
		o.tracerName = name
	}
}

// WithSendRateLimit caps Request, Call and Notify to perSecond with the given
// burst. Sends over the limit fail with ErrRateLimited.
func WithSendRateLimit(perSecond float64, burst int) Option {
	return func(o *options) {
		o.sendRate = rate.Limit(perSecond)
		o.sendBurst = burst
	}
}

func buildOptions(opts []Option) options {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	if o.logger == nil {
		o.logger = slog.Default().With("component", "pomelo")
	}
	if o.transport == nil {
		o.transport = transport.NewWebSocket(transport.WithLogger(o.logger))
	}
	if o.urlBuilder == nil {
		o.urlBuilder = DefaultURLBuilder
	}
	if o.codec == nil {
		o.codec = JSONCodec{}
	}
	if o.clock == nil {
		o.clock = realClock{}
	}
	if o.maxAttempts <= 0 {
		o.maxAttempts = DefaultMaxReconnectAttempts
	}
	if o.reconnectDelay <= 0 {
		o.reconnectDelay = DefaultReconnectDelay
	}
	if o.maxDelay < 0 {
		o.maxDelay = 0
	}
	if o.gapThreshold <= 0 {
		o.gapThreshold = DefaultGapThreshold
	}
	if o.clientType == "" {
		o.clientType = protocol.DefaultClientType
	}
	if o.clientVersion == "" {
		o.clientVersion = protocol.DefaultClientVersion
	}
	if o.namespace == "" {
		o.namespace = "pomelo"
	}
	if o.tracerName == "" {
		o.tracerName = DefaultTracerName
	}
	if o.sendRate > 0 && o.sendBurst <= 0 {
		o.sendBurst = 1
	}
	return o
}
