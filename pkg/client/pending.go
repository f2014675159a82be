package client

import (
	"time"

	"go.opentelemetry.io/otel/trace"
)

// pendingRequest is one outstanding Request awaiting its Response.
type pendingRequest struct {
	route   string
	started time.Time
	span    trace.Span

	// onResponse receives the response body. May be nil.
	onResponse func(body []byte)
	// onDrop is told why the request will never be answered. Only blocking
	// calls set it; callback requests are dropped silently.
	onDrop func(err error)
}

// pendingTable correlates request ids with their waiters. Guarded by the
// session mutex.
type pendingTable struct {
	m map[uint64]*pendingRequest
}

func (t *pendingTable) add(id uint64, p *pendingRequest) {
	if t.m == nil {
		t.m = make(map[uint64]*pendingRequest)
	}
	t.m[id] = p
}

// take removes and returns the entry for id, or nil.
func (t *pendingTable) take(id uint64) *pendingRequest {
	p, ok := t.m[id]
	if !ok {
		return nil
	}
	delete(t.m, id)
	return p
}

// drain removes and returns every entry.
func (t *pendingTable) drain() []*pendingRequest {
	if len(t.m) == 0 {
		return nil
	}
	out := make([]*pendingRequest, 0, len(t.m))
	for _, p := range t.m {
		out = append(out, p)
	}
	t.m = nil
	return out
}

func (t *pendingTable) len() int {
	return len(t.m)
}
