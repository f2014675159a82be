package client

import (
	"encoding/json"
	"log/slog"
	"runtime/debug"
	"sync"
)

// EventKind identifies a session event.
type EventKind int

const (
	// EventError reports a session-level failure. Event.Err is set.
	EventError EventKind = iota
	// EventKick reports a Kick frame. Event.Body holds the kick payload, Event.Reason its "reason" field.
	EventKick
	// EventHeartbeatTimeout reports that the server stopped answering heartbeats.
	EventHeartbeatTimeout
	// EventReconnect reports that a reconnect attempt reached the open state.
	EventReconnect
	// EventClose reports that the transport closed.
	EventClose
	// EventDisconnect follows every EventClose.
	EventDisconnect
	// EventMessage reports a push or notify. Event.Route and Event.Body are set.
	EventMessage
	// EventReady reports a successful handshake. Event.User holds the server user payload.
	EventReady
)

// String returns the string representation of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventError:
		return "error"
	case EventKick:
		return "kick"
	case EventHeartbeatTimeout:
		return "heartbeat-timeout"
	case EventReconnect:
		return "reconnect"
	case EventClose:
		return "close"
	case EventDisconnect:
		return "disconnect"
	case EventMessage:
		return "message"
	case EventReady:
		return "ready"
	default:
		return "unknown"
	}
}

// Event is delivered to subscribers on the session loop.
type Event struct {
	Kind   EventKind
	Route  string
	Body   []byte
	Reason string
	User   json.RawMessage
	Err    error
}

// Handler receives session events.
type Handler func(Event)

// RouteHandler receives the body of pushes for one route.
type RouteHandler func(body []byte)

type subscription[H any] struct {
	id uint64
	fn H
}

// eventRegistry holds event and per-route subscribers. It is safe for use
// from any goroutine; dispatch happens on the session loop.
type eventRegistry struct {
	logger *slog.Logger

	mu     sync.Mutex
	nextID uint64
	kinds  map[EventKind][]subscription[Handler]
	routes map[string][]subscription[RouteHandler]
}

func newEventRegistry(logger *slog.Logger) *eventRegistry {
	return &eventRegistry{
		logger: logger,
		kinds:  make(map[EventKind][]subscription[Handler]),
		routes: make(map[string][]subscription[RouteHandler]),
	}
}

func (r *eventRegistry) subscribe(kind EventKind, fn Handler) func() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	id := r.nextID
	r.kinds[kind] = append(r.kinds[kind], subscription[Handler]{id: id, fn: fn})

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.kinds[kind] = remove(r.kinds[kind], id)
	}
}

func (r *eventRegistry) on(route string, fn RouteHandler) func() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	id := r.nextID
	r.routes[route] = append(r.routes[route], subscription[RouteHandler]{id: id, fn: fn})

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.routes[route] = remove(r.routes[route], id)
		if len(r.routes[route]) == 0 {
			delete(r.routes, route)
		}
	}
}

func remove[H any](subs []subscription[H], id uint64) []subscription[H] {
	out := make([]subscription[H], 0, len(subs))
	for _, s := range subs {
		if s.id != id {
			out = append(out, s)
		}
	}
	return out
}

// emit calls every handler subscribed to ev.Kind. Handlers subscribed or
// removed during dispatch take effect from the next event.
func (r *eventRegistry) emit(ev Event) {
	r.mu.Lock()
	subs := append([]subscription[Handler](nil), r.kinds[ev.Kind]...)
	r.mu.Unlock()

	for _, s := range subs {
		r.call(ev.Kind.String(), func() { s.fn(ev) })
	}
}

// emitRoute calls every handler registered for route.
func (r *eventRegistry) emitRoute(route string, body []byte) {
	r.mu.Lock()
	subs := append([]subscription[RouteHandler](nil), r.routes[route]...)
	r.mu.Unlock()

	for _, s := range subs {
		r.call(route, func() { s.fn(body) })
	}
}

func (r *eventRegistry) call(name string, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("event handler panic",
				"event", name,
				"panic", rec,
				"stack", string(debug.Stack()))
		}
	}()
	fn()
}
