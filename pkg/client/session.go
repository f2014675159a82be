package client

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/vango-dev/pomelo/pkg/protocol"
	"github.com/vango-dev/pomelo/pkg/transport"
)

// Session is one logical connection to a Pomelo server.
//
// Transport callbacks and timer fires are posted to a per-session loop
// goroutine. Event handlers, route handlers and request callbacks all run on
// that goroutine, one at a time, with no session lock held, so they may call
// back into the session. Public methods are safe for concurrent use.
type Session struct {
	opts    options
	logger  *slog.Logger
	clock   Clock
	events  *eventRegistry
	loop    *loop
	metrics *metrics
	tracer  trace.Tracer
	limiter *rate.Limiter

	mu           sync.Mutex
	state        State
	host         string
	port         int
	conn         transport.Conn
	gen          uint64 // bumped whenever the current connection is abandoned
	reconnecting bool
	reqID        uint64
	pending      pendingTable
	codec        Codec
	hb           heartbeat
	rc           reconnectPolicy
}

// New creates an idle session. Call Connect to dial the server.
func New(opts ...Option) *Session {
	o := buildOptions(opts)

	s := &Session{
		opts:    o,
		logger:  o.logger,
		clock:   o.clock,
		events:  newEventRegistry(o.logger),
		loop:    newLoop(o.logger),
		metrics: newMetrics(o.registerer, o.namespace),
		tracer:  newTracer(o.tracerName),
		state:   StateIdle,
		codec:   o.codec,
		hb:      heartbeat{gapThreshold: o.gapThreshold},
		rc:      newReconnectPolicy(o),
	}
	if o.sendRate > 0 {
		s.limiter = rate.NewLimiter(o.sendRate, o.sendBurst)
	}

	go s.loop.run()
	return s
}

// Connect dials host:port through the configured transport. It returns once
// the transport has been asked to open; readiness is reported by EventReady
// (see WaitReady).
func (s *Session) Connect(host string, port int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateIdle:
	case StateClosing, StateClosed:
		return ErrClosed
	default:
		return ErrAlreadyConnected
	}

	s.rc.cancel()
	s.rc.reset()
	s.host, s.port = host, port

	if err := s.dialLocked(false); err != nil {
		s.state = StateIdle
		return connectionError(err)
	}
	return nil
}

// Disconnect cancels all timers, releases the transport and moves the
// session to Closed. Outstanding Calls fail with ErrClosed. EventClose and
// EventDisconnect are delivered before Done is closed.
func (s *Session) Disconnect() {
	s.mu.Lock()
	if s.state == StateClosing || s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosing

	s.hb.configure(0)
	s.rc.cancel()
	s.gen++
	conn := s.conn
	s.conn = nil
	dropped := s.pending.drain()
	s.metrics.setPending(0)
	s.state = StateClosed
	s.mu.Unlock()

	s.logger.Debug("session disconnected", "dropped_requests", len(dropped))
	if conn != nil {
		if err := conn.Close(); err != nil {
			s.logger.Debug("transport close failed", "error", err)
		}
	}

	s.post(func() {
		failPending(dropped, ErrClosed)
		s.events.emit(Event{Kind: EventClose})
		s.events.emit(Event{Kind: EventDisconnect})
		s.loop.stop()
	})
}

// Request sends a request to route. cb receives the response body exactly
// once; it is never called if the connection drops first.
func (s *Session) Request(route string, payload any, cb func(body []byte)) error {
	_, err := s.request(context.Background(), route, payload, cb, nil)
	return err
}

// Call sends a request and waits for its response. It fails with
// ErrConnectionLost when the connection drops and with ctx.Err() when ctx
// ends first. Call must not be used from an event handler, which runs on the
// goroutine that delivers the response.
func (s *Session) Call(ctx context.Context, route string, payload any) ([]byte, error) {
	type result struct {
		body []byte
		err  error
	}
	done := make(chan result, 1)

	id, err := s.request(ctx, route, payload,
		func(body []byte) { done <- result{body: body} },
		func(err error) { done <- result{err: err} },
	)
	if err != nil {
		return nil, err
	}

	select {
	case r := <-done:
		return r.body, r.err
	case <-ctx.Done():
		s.mu.Lock()
		p := s.pending.take(id)
		s.metrics.setPending(s.pending.len())
		s.mu.Unlock()
		if p != nil {
			endSpan(p.span, ctx.Err())
		}
		return nil, ctx.Err()
	}
}

// Notify sends a one-way message to route.
func (s *Session) Notify(route string, payload any) error {
	if err := s.checkSend(route); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.readyLocked(); err != nil {
		return err
	}

	data, err := s.codec.Encode(0, route, payload)
	if err != nil {
		return encodeError(err)
	}
	return s.sendFrameLocked(protocol.FrameData, data)
}

func (s *Session) request(ctx context.Context, route string, payload any, onResponse func([]byte), onDrop func(error)) (uint64, error) {
	if err := s.checkSend(route); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.readyLocked(); err != nil {
		return 0, err
	}

	s.reqID++
	id := s.reqID
	data, err := s.codec.Encode(id, route, payload)
	if err != nil {
		return 0, encodeError(err)
	}

	span := startRequestSpan(ctx, s.tracer, route)
	s.pending.add(id, &pendingRequest{
		route:      route,
		started:    s.clock.Now(),
		span:       span,
		onResponse: onResponse,
		onDrop:     onDrop,
	})

	if err := s.sendFrameLocked(protocol.FrameData, data); err != nil {
		s.pending.take(id)
		endSpan(span, err)
		return 0, err
	}
	s.metrics.requestSent(s.pending.len())
	return id, nil
}

func (s *Session) checkSend(route string) error {
	if route == "" {
		return ErrEmptyRoute
	}
	if s.limiter != nil && !s.limiter.Allow() {
		return ErrRateLimited
	}
	return nil
}

func (s *Session) readyLocked() error {
	switch s.state {
	case StateReady:
		return nil
	case StateClosing, StateClosed:
		return ErrClosed
	default:
		return ErrNotReady
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Pending returns the number of requests awaiting a response.
func (s *Session) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending.len()
}

// Subscribe registers fn for events of kind and returns a function that
// removes it.
func (s *Session) Subscribe(kind EventKind, fn Handler) func() {
	return s.events.subscribe(kind, fn)
}

// On registers fn for pushes and notifies on route and returns a function
// that removes it.
func (s *Session) On(route string, fn RouteHandler) func() {
	return s.events.on(route, fn)
}

// Done is closed once the session reaches Closed and its final events have
// been delivered.
func (s *Session) Done() <-chan struct{} {
	return s.loop.done
}

// WaitReady blocks until the session completes a handshake, ctx ends, or the
// session closes.
func (s *Session) WaitReady(ctx context.Context) error {
	ready := make(chan struct{}, 1)
	unsubscribe := s.Subscribe(EventReady, func(Event) {
		select {
		case ready <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	switch s.State() {
	case StateReady:
		return nil
	case StateClosed:
		return ErrClosed
	}

	select {
	case <-ready:
		return nil
	case <-s.Done():
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post hands fn to the session loop.
func (s *Session) post(fn func()) {
	if !s.loop.post(fn) {
		s.logger.Debug("session loop stopped, dropping callback")
	}
}

// dialLocked opens a new transport connection. Callbacks from it carry the
// generation they were created under and are ignored once it is abandoned.
func (s *Session) dialLocked(reconnect bool) error {
	s.gen++
	gen := s.gen
	s.state = StateConnecting
	s.reconnecting = reconnect

	url := s.opts.urlBuilder(s.host, s.port)
	s.logger.Debug("dialing", "url", url, "reconnect", reconnect)

	conn, err := s.opts.transport.Open(url, transport.Callbacks{
		OnOpen: func() {
			s.post(func() { s.handleOpen(gen) })
		},
		OnMessage: func(data []byte) {
			s.post(func() { s.handleMessage(gen, data) })
		},
		OnError: func(err error) {
			s.post(func() { s.handleTransportError(gen, err) })
		},
		OnClose: func(err error) {
			s.post(func() { s.handleClose(gen, err) })
		},
	})
	if err != nil {
		return err
	}
	s.conn = conn
	return nil
}

// sendFrameLocked wraps body in a frame of kind and hands it to the
// transport.
func (s *Session) sendFrameLocked(kind protocol.FrameKind, body []byte) error {
	if s.conn == nil {
		return transport.ErrNotOpen
	}
	frame, err := protocol.EncodeFrame(kind, body)
	if err != nil {
		return encodeError(err)
	}
	if err := s.conn.Send(frame); err != nil {
		return err
	}
	s.metrics.frameSent(kind)
	return nil
}

func (s *Session) handleOpen(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || s.state != StateConnecting {
		s.mu.Unlock()
		return
	}
	s.state = StateAwaitingHandshakeAck
	reconnect := s.reconnecting

	var effects []func()
	if err := s.sendHandshakeLocked(); err != nil {
		sendErr := err
		effects = append(effects, func() { s.emitError(sendErr) })
	}
	if reconnect {
		effects = append(effects, func() { s.events.emit(Event{Kind: EventReconnect}) })
	}
	s.mu.Unlock()

	runEffects(effects)
}

func (s *Session) sendHandshakeLocked() error {
	hello := protocol.NewClientHello(s.opts.user)
	hello.Sys.Type = s.opts.clientType
	hello.Sys.Version = s.opts.clientVersion

	body, err := protocol.EncodeClientHello(hello)
	if err != nil {
		return encodeError(err)
	}
	if err := s.sendFrameLocked(protocol.FrameHandshake, body); err != nil {
		return sendError(err)
	}
	return nil
}

func (s *Session) handleMessage(gen uint64, data []byte) {
	s.mu.Lock()
	if gen != s.gen || !s.state.acceptsFrames() {
		s.mu.Unlock()
		return
	}

	frames, err := protocol.DecodeFrames(data)
	if err != nil {
		s.mu.Unlock()
		s.emitError(decodeError(err))
		return
	}

	var effects []func()
	for _, f := range frames {
		s.metrics.frameReceived(f.Kind)
		effects = append(effects, s.handleFrameLocked(f)...)
	}
	s.hb.touch(s.clock.Now())
	s.mu.Unlock()

	runEffects(effects)
}

func (s *Session) handleFrameLocked(f protocol.Frame) []func() {
	switch f.Kind {
	case protocol.FrameHandshake:
		return s.handleHandshakeLocked(f.Body)

	case protocol.FrameHandshakeAck:
		s.logger.Warn("unexpected handshake ack from server")
		return nil

	case protocol.FrameHeartbeat:
		s.scheduleHeartbeatLocked()
		return nil

	case protocol.FrameData:
		return s.handleDataLocked(f.Body)

	case protocol.FrameKick:
		return s.handleKickLocked(f.Body)

	default:
		s.logger.Warn("unhandled frame kind", "kind", f.Kind)
		return nil
	}
}

func (s *Session) handleHandshakeLocked(body []byte) []func() {
	if s.state != StateAwaitingHandshakeAck {
		s.logger.Warn("ignoring handshake outside handshake phase", "state", s.state)
		return nil
	}

	hello, err := protocol.DecodeServerHello(body)
	if err != nil {
		invalid := invalidHandshakeError(err)
		return []func(){func() { s.emitError(invalid) }}
	}
	if hello.Code != protocol.HandshakeOK {
		rejected := handshakeError(hello.Code)
		s.logger.Warn("handshake rejected", "code", int(hello.Code))
		return []func(){func() { s.emitError(rejected) }}
	}

	s.state = StateReady
	s.rc.reset()

	dict := protocol.NewRouteDict(hello.Sys.Dict)
	s.codec = s.opts.codec
	if rc, ok := s.codec.(RouteCompressor); ok {
		s.codec = rc.WithRouteDict(dict)
	}

	var effects []func()
	if err := s.sendFrameLocked(protocol.FrameHandshakeAck, nil); err != nil {
		ackErr := sendError(err)
		effects = append(effects, func() { s.emitError(ackErr) })
	}

	s.hb.configure(hello.Sys.Heartbeat)
	s.hb.touch(s.clock.Now())
	s.scheduleHeartbeatLocked()

	s.logger.Info("session ready",
		"heartbeat", s.hb.interval,
		"routes", dict.Len())

	user := hello.User
	if fn := s.opts.onHandshake; fn != nil {
		effects = append(effects, func() { fn(user) })
	}
	effects = append(effects, func() { s.events.emit(Event{Kind: EventReady, User: user}) })
	return effects
}

func (s *Session) handleDataLocked(body []byte) []func() {
	msg, err := s.codec.Decode(body)
	if err != nil {
		decodeErr := decodeError(err)
		return []func(){func() { s.emitError(decodeErr) }}
	}

	if msg.ID == 0 {
		if msg.Route == "" {
			empty := decodeError(ErrEmptyRoute)
			return []func(){func() { s.emitError(empty) }}
		}
		route, payload := msg.Route, msg.Body
		return []func(){func() {
			s.events.emit(Event{Kind: EventMessage, Route: route, Body: payload})
			s.events.emitRoute(route, payload)
		}}
	}

	p := s.pending.take(msg.ID)
	if p == nil {
		s.logger.Debug("dropping response for unknown request", "id", msg.ID)
		return nil
	}
	s.metrics.requestDone(s.clock.Now().Sub(p.started), s.pending.len())

	payload := msg.Body
	return []func(){func() {
		endSpan(p.span, nil)
		if p.onResponse != nil {
			p.onResponse(payload)
		}
	}}
}

func (s *Session) handleKickLocked(body []byte) []func() {
	text, err := protocol.DecodeText(body)
	if err != nil {
		decodeErr := decodeError(err)
		return []func(){func() { s.emitError(decodeErr) }}
	}

	var kick struct {
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal([]byte(text), &kick); err != nil {
		s.logger.Debug("kick body is not a JSON object", "error", err)
	}
	s.logger.Warn("kicked by server", "reason", kick.Reason)

	ev := Event{Kind: EventKick, Body: []byte(text), Reason: kick.Reason}
	return []func(){func() { s.events.emit(ev) }}
}

func (s *Session) handleTransportError(gen uint64, err error) {
	s.mu.Lock()
	stale := gen != s.gen
	s.mu.Unlock()
	if stale {
		return
	}
	s.emitError(connectionError(err))
}

func (s *Session) handleClose(gen uint64, err error) {
	s.mu.Lock()
	if gen != s.gen || s.state == StateClosing || s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.logger.Info("transport closed", "state", s.state, "error", err)
	s.conn = nil
	effects := s.dropLocked(err)
	s.mu.Unlock()

	runEffects(effects)
}

// dropLocked abandons the current connection after an unsolicited close and
// lets the reconnect policy decide what follows. The caller has already
// released the transport.
func (s *Session) dropLocked(cause error) []func() {
	s.gen++
	s.hb.configure(0)
	s.codec = s.opts.codec

	dropped := s.pending.drain()
	s.metrics.setPending(0)

	effects := []func(){func() {
		failPending(dropped, ErrConnectionLost)
		s.events.emit(Event{Kind: EventClose, Err: cause})
		s.events.emit(Event{Kind: EventDisconnect, Err: cause})
	}}

	if delay, ok := s.rc.next(); ok {
		s.state = StateIdle
		s.metrics.reconnectScheduled()
		s.logger.Info("scheduling reconnect",
			"attempt", s.rc.attempts,
			"max", s.rc.maxAttempts,
			"delay", delay)
		s.scheduleReconnectLocked(delay)
		return effects
	}

	// Exhaustion ends the reconnect cycle but not the session: a later
	// Connect starts over with a fresh budget.
	s.state = StateIdle
	if s.rc.exhausted() {
		s.logger.Warn("reconnect attempts exhausted", "attempts", s.rc.attempts)
		exhausted := reconnectExhaustedError(s.rc.attempts)
		effects = append(effects, func() { s.emitError(exhausted) })
	}
	return effects
}

func (s *Session) emitError(err error) {
	s.metrics.sessionError(err)
	s.logger.Debug("session error", "error", err)
	s.events.emit(Event{Kind: EventError, Err: err})
}

// failPending tells blocked callers why their request will not be answered.
func failPending(dropped []*pendingRequest, err error) {
	for _, p := range dropped {
		endSpan(p.span, err)
		if p.onDrop != nil {
			p.onDrop(err)
		}
	}
}

func runEffects(effects []func()) {
	for _, fn := range effects {
		fn()
	}
}
