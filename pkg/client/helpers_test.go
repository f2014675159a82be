package client

import (
	"encoding/json"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/vango-dev/pomelo/pkg/protocol"
	"github.com/vango-dev/pomelo/pkg/transport"
)

// manualClock fires timers only when Advance moves time past them.
type manualClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*manualTimer
}

type manualTimer struct {
	clock   *manualClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Unix(1700000000, 0)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// Advance moves time forward by d and runs every timer that became due, in
// deadline order.
func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*manualTimer
	live := c.timers[:0]
	for _, t := range c.timers {
		switch {
		case t.stopped || t.fired:
		case !t.at.After(c.now):
			t.fired = true
			due = append(due, t)
		default:
			live = append(live, t)
		}
	}
	c.timers = live
	c.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, t := range due {
		t.f()
	}
}

// active returns the number of timers still waiting to fire.
func (c *manualClock) active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// fakeTransport records every Open and hands out fakeConns the test drives.
type fakeTransport struct {
	mu      sync.Mutex
	urls    []string
	conns   []*fakeConn
	openErr error
}

func (f *fakeTransport) Open(url string, cb transport.Callbacks) (transport.Conn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, url)
	if f.openErr != nil {
		return nil, f.openErr
	}
	c := &fakeConn{cb: cb}
	f.conns = append(f.conns, c)
	return c, nil
}

func (f *fakeTransport) opens() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.urls)
}

func (f *fakeTransport) last(t *testing.T) *fakeConn {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.conns) == 0 {
		t.Fatal("transport was never opened")
	}
	return f.conns[len(f.conns)-1]
}

type fakeConn struct {
	cb transport.Callbacks

	mu      sync.Mutex
	sent    [][]byte
	closed  bool
	sendErr error
}

func (c *fakeConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	if c.closed {
		return transport.ErrClosed
	}
	c.sent = append(c.sent, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// frames decodes everything sent so far.
func (c *fakeConn) frames(t *testing.T) []protocol.Frame {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []protocol.Frame
	for _, data := range c.sent {
		fs, err := protocol.DecodeFrames(data)
		if err != nil {
			t.Fatalf("sent bytes do not decode: %v", err)
		}
		out = append(out, fs...)
	}
	return out
}

// countKind returns how many frames of kind were sent.
func (c *fakeConn) countKind(t *testing.T, kind protocol.FrameKind) int {
	t.Helper()
	n := 0
	for _, f := range c.frames(t) {
		if f.Kind == kind {
			n++
		}
	}
	return n
}

// lastMessage decodes the body of the last Data frame sent.
func (c *fakeConn) lastMessage(t *testing.T) *protocol.Message {
	t.Helper()
	frames := c.frames(t)
	for i := len(frames) - 1; i >= 0; i-- {
		if frames[i].Kind == protocol.FrameData {
			msg, err := protocol.DecodeMessage(frames[i].Body)
			if err != nil {
				t.Fatalf("DecodeMessage: %v", err)
			}
			return msg
		}
	}
	t.Fatal("no data frame sent")
	return nil
}

func (c *fakeConn) deliver(t *testing.T, kind protocol.FrameKind, body []byte) {
	t.Helper()
	data, err := protocol.EncodeFrame(kind, body)
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}
	c.cb.OnMessage(data)
}

func (c *fakeConn) deliverHandshake(t *testing.T, hello *protocol.ServerHello) {
	t.Helper()
	body, err := protocol.EncodeServerHello(hello)
	if err != nil {
		t.Fatalf("EncodeServerHello: %v", err)
	}
	c.deliver(t, protocol.FrameHandshake, body)
}

func (c *fakeConn) deliverPush(t *testing.T, route, jsonBody string) {
	t.Helper()
	msg, err := protocol.EncodeMessage(0, protocol.MessagePush, false, route, 0, protocol.EncodeText(jsonBody))
	if err != nil {
		t.Fatalf("EncodeMessage: %v", err)
	}
	c.deliver(t, protocol.FrameData, msg)
}

func (c *fakeConn) deliverResponse(t *testing.T, id uint64, jsonBody string) {
	t.Helper()
	msg, err := protocol.EncodeMessage(id, protocol.MessageResponse, false, "", 0, protocol.EncodeText(jsonBody))
	if err != nil {
		t.Fatalf("EncodeMessage: %v", err)
	}
	c.deliver(t, protocol.FrameData, msg)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSession(t *testing.T, opts ...Option) (*Session, *fakeTransport, *manualClock) {
	t.Helper()
	ft := &fakeTransport{}
	clk := newManualClock()
	base := []Option{WithTransport(ft), WithClock(clk), WithLogger(discardLogger())}
	s := New(append(base, opts...)...)
	t.Cleanup(s.Disconnect)
	return s, ft, clk
}

// barrier waits until everything posted to the session loop so far has run.
func barrier(t *testing.T, s *Session) {
	t.Helper()
	done := make(chan struct{})
	if !s.loop.post(func() { close(done) }) {
		return
	}
	select {
	case <-done:
	case <-s.loop.done:
	case <-time.After(2 * time.Second):
		t.Fatal("session loop did not drain")
	}
}

// connectReady dials, opens the transport and completes a handshake with the
// given heartbeat interval.
func connectReady(t *testing.T, s *Session, ft *fakeTransport, heartbeat int) *fakeConn {
	t.Helper()
	if err := s.Connect("127.0.0.1", 3010); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	c := ft.last(t)
	c.cb.OnOpen()
	barrier(t, s)
	c.deliverHandshake(t, protocol.NewServerHello(heartbeat))
	barrier(t, s)
	if got := s.State(); got != StateReady {
		t.Fatalf("State() = %v, want Ready", got)
	}
	return c
}

// recorder collects events of the given kinds.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func record(s *Session, kinds ...EventKind) *recorder {
	r := &recorder{}
	for _, k := range kinds {
		s.Subscribe(k, func(ev Event) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.events = append(r.events, ev)
		})
	}
	return r
}

func (r *recorder) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventKind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind
	}
	return out
}

func (r *recorder) of(kind EventKind) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, ev := range r.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("json.Marshal: %v", err)
	}
	return b
}
