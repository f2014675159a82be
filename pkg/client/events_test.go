package client

import (
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestEventKindString(t *testing.T) {
	tests := []struct {
		kind EventKind
		want string
	}{
		{EventError, "error"},
		{EventKick, "kick"},
		{EventHeartbeatTimeout, "heartbeat-timeout"},
		{EventReconnect, "reconnect"},
		{EventClose, "close"},
		{EventDisconnect, "disconnect"},
		{EventMessage, "message"},
		{EventReady, "ready"},
		{EventKind(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("EventKind(%d).String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

func TestEventRegistrySubscribe(t *testing.T) {
	r := newEventRegistry(discardLogger())

	var got []string
	unsubA := r.subscribe(EventKick, func(ev Event) { got = append(got, "a:"+ev.Reason) })
	r.subscribe(EventKick, func(ev Event) { got = append(got, "b:"+ev.Reason) })
	r.subscribe(EventClose, func(Event) { got = append(got, "close") })

	r.emit(Event{Kind: EventKick, Reason: "1"})
	unsubA()
	unsubA()
	r.emit(Event{Kind: EventKick, Reason: "2"})

	want := []string{"a:1", "b:1", "b:2"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("calls (-want +got):\n%s", diff)
	}
}

func TestEventRegistryRoutes(t *testing.T) {
	r := newEventRegistry(discardLogger())

	var got []string
	off := r.on("onChat", func(body []byte) { got = append(got, string(body)) })
	r.emitRoute("onChat", []byte("x"))
	r.emitRoute("onOther", []byte("y"))
	off()
	r.emitRoute("onChat", []byte("z"))

	if diff := cmp.Diff([]string{"x"}, got); diff != "" {
		t.Errorf("calls (-want +got):\n%s", diff)
	}
	if _, ok := r.routes["onChat"]; ok {
		t.Error("empty route entry not removed")
	}
}

func TestEventRegistrySubscribeDuringDispatch(t *testing.T) {
	r := newEventRegistry(discardLogger())

	calls := 0
	r.subscribe(EventReady, func(Event) {
		calls++
		r.subscribe(EventReady, func(Event) { calls += 10 })
	})

	r.emit(Event{Kind: EventReady})
	if calls != 1 {
		t.Errorf("calls after first emit = %d, want 1", calls)
	}
	r.emit(Event{Kind: EventReady})
	if calls != 12 {
		t.Errorf("calls after second emit = %d, want 12", calls)
	}
}

func TestEventRegistryRecoversPanic(t *testing.T) {
	r := newEventRegistry(discardLogger())

	var after bool
	r.subscribe(EventError, func(Event) { panic("boom") })
	r.subscribe(EventError, func(Event) { after = true })
	r.emit(Event{Kind: EventError})

	if !after {
		t.Error("handler after a panicking handler was not called")
	}
}

func TestLoopOrder(t *testing.T) {
	l := newLoop(discardLogger())
	go l.run()
	defer l.stop()

	var mu sync.Mutex
	var got []int
	done := make(chan struct{})
	for i := 0; i < 100; i++ {
		i := i
		l.post(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		})
	}
	l.post(func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not run")
	}

	mu.Lock()
	defer mu.Unlock()
	for i, v := range got {
		if v != i {
			t.Fatalf("got[%d] = %d, want posts in order", i, v)
		}
	}
	if len(got) != 100 {
		t.Errorf("ran %d, want 100", len(got))
	}
}

func TestLoopRecoversPanic(t *testing.T) {
	l := newLoop(discardLogger())
	go l.run()
	defer l.stop()

	done := make(chan struct{})
	l.post(func() { panic("boom") })
	l.post(func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop stopped after a panic")
	}
}

func TestLoopStop(t *testing.T) {
	l := newLoop(discardLogger())
	finished := make(chan struct{})
	go func() {
		l.run()
		close(finished)
	}()

	ran := false
	l.post(l.stop)
	l.post(func() { ran = true })

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("run did not return after stop")
	}
	if ran {
		t.Error("function queued behind stop ran")
	}
	if l.post(func() {}) {
		t.Error("post after stop = true, want false")
	}
	l.stop()
}
