package client

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	perrors "github.com/vango-dev/pomelo/internal/errors"
	"github.com/vango-dev/pomelo/pkg/protocol"
)

func TestSessionHandshake(t *testing.T) {
	var gotUser json.RawMessage
	s, ft, _ := newTestSession(t,
		WithUser(map[string]string{"token": "abc"}),
		WithClientInfo("go-tcp", "1.2.3"),
		WithHandshakeCallback(func(user json.RawMessage) { gotUser = user }),
	)
	rec := record(s, EventReady, EventReconnect)

	if err := s.Connect("127.0.0.1", 3010); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if got := s.State(); got != StateConnecting {
		t.Errorf("State() after Connect = %v, want Connecting", got)
	}
	if diff := cmp.Diff([]string{"ws://127.0.0.1:3010"}, ft.urls); diff != "" {
		t.Errorf("dialed urls (-want +got):\n%s", diff)
	}

	c := ft.last(t)
	c.cb.OnOpen()
	barrier(t, s)

	if got := s.State(); got != StateAwaitingHandshakeAck {
		t.Fatalf("State() after open = %v, want AwaitingHandshakeAck", got)
	}
	frames := c.frames(t)
	if len(frames) != 1 || frames[0].Kind != protocol.FrameHandshake {
		t.Fatalf("sent frames = %v, want one Handshake", frames)
	}
	var hello struct {
		Sys struct {
			Type    string         `json:"type"`
			Version string         `json:"version"`
			RSA     map[string]any `json:"rsa"`
		} `json:"sys"`
		User map[string]string `json:"user"`
	}
	if err := json.Unmarshal(frames[0].Body, &hello); err != nil {
		t.Fatalf("handshake body: %v", err)
	}
	if hello.Sys.Type != "go-tcp" || hello.Sys.Version != "1.2.3" {
		t.Errorf("sys = %+v, want go-tcp 1.2.3", hello.Sys)
	}
	if hello.Sys.RSA == nil {
		t.Error("sys.rsa missing")
	}
	if hello.User["token"] != "abc" {
		t.Errorf("user = %v, want token abc", hello.User)
	}

	sh := protocol.NewServerHello(5)
	sh.User = json.RawMessage(`{"uid":42}`)
	c.deliverHandshake(t, sh)
	barrier(t, s)

	if got := s.State(); got != StateReady {
		t.Fatalf("State() after handshake = %v, want Ready", got)
	}
	if got := c.countKind(t, protocol.FrameHandshakeAck); got != 1 {
		t.Errorf("HandshakeAck frames = %d, want 1", got)
	}
	if string(gotUser) != `{"uid":42}` {
		t.Errorf("handshake callback user = %s", gotUser)
	}
	ready := rec.of(EventReady)
	if len(ready) != 1 || string(ready[0].User) != `{"uid":42}` {
		t.Errorf("ready events = %+v", ready)
	}
	if n := len(rec.of(EventReconnect)); n != 0 {
		t.Errorf("reconnect events on first connect = %d, want 0", n)
	}

	s.mu.Lock()
	interval, timeout := s.hb.interval, s.hb.timeout
	s.mu.Unlock()
	if interval != 5*time.Second || timeout != 10*time.Second {
		t.Errorf("heartbeat interval/timeout = %v/%v, want 5s/10s", interval, timeout)
	}
}

func TestSessionConnectStates(t *testing.T) {
	s, _, _ := newTestSession(t)

	if err := s.Connect("localhost", 3010); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := s.Connect("localhost", 3010); !errors.Is(err, ErrAlreadyConnected) {
		t.Errorf("second Connect = %v, want ErrAlreadyConnected", err)
	}

	s.Disconnect()
	if err := s.Connect("localhost", 3010); !errors.Is(err, ErrClosed) {
		t.Errorf("Connect after Disconnect = %v, want ErrClosed", err)
	}
}

func TestSessionConnectOpenFailure(t *testing.T) {
	s, ft, _ := newTestSession(t)
	openErr := errors.New("dns failure")
	ft.openErr = openErr

	err := s.Connect("nowhere", 1)
	if !errors.Is(err, openErr) {
		t.Fatalf("Connect = %v, want wrapped %v", err, openErr)
	}
	if got := perrors.CodeOf(err); got != perrors.CodeConnectionFailed {
		t.Errorf("CodeOf = %q, want %q", got, perrors.CodeConnectionFailed)
	}
	if got := s.State(); got != StateIdle {
		t.Errorf("State() = %v, want Idle", got)
	}

	ft.openErr = nil
	if err := s.Connect("somewhere", 1); err != nil {
		t.Errorf("Connect after failure: %v", err)
	}
}

func TestSessionHandshakeRejected(t *testing.T) {
	tests := []struct {
		name   string
		status protocol.HandshakeStatus
		want   error
		code   string
	}{
		{"fail", protocol.HandshakeFail, ErrHandshakeRejected, perrors.CodeHandshakeRejected},
		{"old client", protocol.HandshakeOldClient, ErrOldClientVersion, perrors.CodeOldClientVersion},
		{"unknown", 403, ErrHandshakeRejected, perrors.CodeHandshakeRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, ft, _ := newTestSession(t)
			rec := record(s, EventError, EventReady)

			if err := s.Connect("127.0.0.1", 3010); err != nil {
				t.Fatalf("Connect: %v", err)
			}
			c := ft.last(t)
			c.cb.OnOpen()
			c.deliverHandshake(t, &protocol.ServerHello{Code: tt.status})
			barrier(t, s)

			errs := rec.of(EventError)
			if len(errs) != 1 {
				t.Fatalf("error events = %d, want 1", len(errs))
			}
			if !errors.Is(errs[0].Err, tt.want) {
				t.Errorf("error = %v, want %v", errs[0].Err, tt.want)
			}
			if got := perrors.CodeOf(errs[0].Err); got != tt.code {
				t.Errorf("CodeOf = %q, want %q", got, tt.code)
			}
			if n := len(rec.of(EventReady)); n != 0 {
				t.Errorf("ready events = %d, want 0", n)
			}
			if got := s.State(); got != StateAwaitingHandshakeAck {
				t.Errorf("State() = %v, want AwaitingHandshakeAck", got)
			}
			if c.isClosed() {
				t.Error("rejected handshake closed the transport")
			}
			if got := c.countKind(t, protocol.FrameHandshakeAck); got != 0 {
				t.Errorf("HandshakeAck frames = %d, want 0", got)
			}
		})
	}
}

func TestSessionInvalidHandshake(t *testing.T) {
	s, ft, _ := newTestSession(t)
	rec := record(s, EventError)

	if err := s.Connect("127.0.0.1", 3010); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	c := ft.last(t)
	c.cb.OnOpen()
	c.deliver(t, protocol.FrameHandshake, []byte("not json"))
	barrier(t, s)

	errs := rec.of(EventError)
	if len(errs) != 1 || perrors.CodeOf(errs[0].Err) != perrors.CodeInvalidHandshake {
		t.Fatalf("error events = %+v, want one %s", errs, perrors.CodeInvalidHandshake)
	}
	if !errors.Is(errs[0].Err, protocol.ErrInvalidHandshake) {
		t.Errorf("error = %v, want ErrInvalidHandshake", errs[0].Err)
	}
}

func TestSessionHandshakeIgnoredWhenReady(t *testing.T) {
	s, ft, _ := newTestSession(t)
	rec := record(s, EventReady)
	c := connectReady(t, s, ft, 0)

	c.deliverHandshake(t, protocol.NewServerHello(3))
	barrier(t, s)

	if n := len(rec.of(EventReady)); n != 1 {
		t.Errorf("ready events = %d, want 1", n)
	}
	if got := c.countKind(t, protocol.FrameHandshakeAck); got != 1 {
		t.Errorf("HandshakeAck frames = %d, want 1", got)
	}
}

func TestSessionRequestCorrelation(t *testing.T) {
	s, ft, _ := newTestSession(t)
	c := connectReady(t, s, ft, 0)

	var mu sync.Mutex
	var calls []string
	err := s.Request("area.playerHandler.move", map[string]int{"x": 1}, func(body []byte) {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, string(body))
	})
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if got := s.Pending(); got != 1 {
		t.Errorf("Pending() = %d, want 1", got)
	}

	msg := c.lastMessage(t)
	if msg.Kind != protocol.MessageRequest || msg.ID != 1 || msg.Route != "area.playerHandler.move" {
		t.Errorf("sent message = %+v", msg)
	}
	body, err := protocol.DecodeText(msg.Body)
	if err != nil {
		t.Fatalf("DecodeText: %v", err)
	}
	if body != `{"x":1}` {
		t.Errorf("request body = %s", body)
	}

	c.deliverResponse(t, msg.ID, `{"ok":true}`)
	c.deliverResponse(t, msg.ID, `{"ok":"again"}`)
	c.deliverResponse(t, 99, `{}`)
	barrier(t, s)

	mu.Lock()
	defer mu.Unlock()
	if diff := cmp.Diff([]string{`{"ok":true}`}, calls); diff != "" {
		t.Errorf("callback calls (-want +got):\n%s", diff)
	}
	if got := s.Pending(); got != 0 {
		t.Errorf("Pending() = %d, want 0", got)
	}

	if err := s.Request("r", nil, nil); err != nil {
		t.Fatalf("second Request: %v", err)
	}
	if id := c.lastMessage(t).ID; id != 2 {
		t.Errorf("second request id = %d, want 2", id)
	}
}

func TestSessionNotify(t *testing.T) {
	s, ft, _ := newTestSession(t)
	c := connectReady(t, s, ft, 0)

	if err := s.Notify("chat.chatHandler.send", map[string]string{"msg": "héllo"}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	msg := c.lastMessage(t)
	if msg.Kind != protocol.MessageNotify || msg.ID != 0 || msg.Route != "chat.chatHandler.send" {
		t.Errorf("sent message = %+v", msg)
	}
	body, err := protocol.DecodeText(msg.Body)
	if err != nil {
		t.Fatalf("DecodeText: %v", err)
	}
	if body != `{"msg":"héllo"}` {
		t.Errorf("notify body = %s", body)
	}
	if got := s.Pending(); got != 0 {
		t.Errorf("Pending() = %d, want 0", got)
	}
}

func TestSessionSendErrors(t *testing.T) {
	s, ft, _ := newTestSession(t)

	if err := s.Request("r", nil, nil); !errors.Is(err, ErrNotReady) {
		t.Errorf("Request before connect = %v, want ErrNotReady", err)
	}
	if err := s.Notify("r", nil); !errors.Is(err, ErrNotReady) {
		t.Errorf("Notify before connect = %v, want ErrNotReady", err)
	}

	connectReady(t, s, ft, 0)

	if err := s.Request("", nil, nil); !errors.Is(err, ErrEmptyRoute) {
		t.Errorf("Request empty route = %v, want ErrEmptyRoute", err)
	}
	longRoute := strings.Repeat("r", 256)
	err := s.Notify(longRoute, nil)
	if !errors.Is(err, protocol.ErrRouteTooLong) {
		t.Errorf("Notify long route = %v, want ErrRouteTooLong", err)
	}
	if got := perrors.CodeOf(err); got != perrors.CodeRouteTooLong {
		t.Errorf("CodeOf = %q, want %q", got, perrors.CodeRouteTooLong)
	}
	if err := s.Request("r", make(chan int), nil); perrors.CodeOf(err) != perrors.CodePayloadEncode {
		t.Errorf("Request unencodable payload = %v, want %s", err, perrors.CodePayloadEncode)
	}
	if got := s.Pending(); got != 0 {
		t.Errorf("Pending() after failed sends = %d, want 0", got)
	}

	s.Disconnect()
	if err := s.Request("r", nil, nil); !errors.Is(err, ErrClosed) {
		t.Errorf("Request after Disconnect = %v, want ErrClosed", err)
	}
}

func TestSessionSendFailureRemovesPending(t *testing.T) {
	s, ft, _ := newTestSession(t)
	c := connectReady(t, s, ft, 0)

	sendErr := errors.New("buffer full")
	c.mu.Lock()
	c.sendErr = sendErr
	c.mu.Unlock()

	if err := s.Request("r", nil, func([]byte) {}); !errors.Is(err, sendErr) {
		t.Errorf("Request = %v, want %v", err, sendErr)
	}
	if got := s.Pending(); got != 0 {
		t.Errorf("Pending() = %d, want 0", got)
	}
}

func TestSessionPush(t *testing.T) {
	s, ft, _ := newTestSession(t)
	rec := record(s, EventMessage)
	c := connectReady(t, s, ft, 0)

	var got []string
	unsubscribe := s.On("onChat", func(body []byte) { got = append(got, string(body)) })

	c.deliverPush(t, "onChat", `{"from":"a"}`)
	c.deliverPush(t, "onOther", `{}`)
	barrier(t, s)

	unsubscribe()
	c.deliverPush(t, "onChat", `{"from":"b"}`)
	barrier(t, s)

	if diff := cmp.Diff([]string{`{"from":"a"}`}, got); diff != "" {
		t.Errorf("route handler bodies (-want +got):\n%s", diff)
	}

	msgs := rec.of(EventMessage)
	var routes []string
	for _, ev := range msgs {
		routes = append(routes, ev.Route)
	}
	if diff := cmp.Diff([]string{"onChat", "onOther", "onChat"}, routes); diff != "" {
		t.Errorf("message event routes (-want +got):\n%s", diff)
	}
}

func TestSessionMultiFrameDelivery(t *testing.T) {
	s, ft, _ := newTestSession(t)
	var got []string
	s.On("onTick", func(body []byte) { got = append(got, string(body)) })
	c := connectReady(t, s, ft, 0)

	var delivery []byte
	for _, body := range []string{`1`, `2`, `3`} {
		msg, err := protocol.EncodeMessage(0, protocol.MessagePush, false, "onTick", 0, protocol.EncodeText(body))
		if err != nil {
			t.Fatalf("EncodeMessage: %v", err)
		}
		frame, err := protocol.EncodeFrame(protocol.FrameData, msg)
		if err != nil {
			t.Fatalf("EncodeFrame: %v", err)
		}
		delivery = append(delivery, frame...)
	}
	c.cb.OnMessage(delivery)
	barrier(t, s)

	if diff := cmp.Diff([]string{"1", "2", "3"}, got); diff != "" {
		t.Errorf("bodies (-want +got):\n%s", diff)
	}
}

func dataFrame(t *testing.T, id uint64, kind protocol.MessageKind, compress bool, route string, code uint32) []byte {
	t.Helper()
	msg, err := protocol.EncodeMessage(id, kind, compress, route, code, protocol.EncodeText(`{}`))
	if err != nil {
		t.Fatalf("EncodeMessage: %v", err)
	}
	frame, err := protocol.EncodeFrame(protocol.FrameData, msg)
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}
	return frame
}

func TestSessionBadDelivery(t *testing.T) {
	s, ft, _ := newTestSession(t)
	rec := record(s, EventError, EventMessage)
	c := connectReady(t, s, ft, 0)

	tests := []struct {
		name string
		data []byte
		want error
		code string
	}{
		{"truncated frame", []byte{0x04, 0x00, 0x00, 0x09, 0x01}, protocol.ErrTruncatedFrame, perrors.CodeTruncatedFrame},
		{"unknown kind", []byte{0x09, 0x00, 0x00, 0x00}, protocol.ErrInvalidFrameKind, perrors.CodeUnknownFrameKind},
		{"malformed message", []byte{0x04, 0x00, 0x00, 0x00}, protocol.ErrMalformedMessage, perrors.CodeMalformedMessage},
		{"unknown route code", dataFrame(t, 0, protocol.MessagePush, true, "", 99), ErrUnknownRouteCode, perrors.CodeMalformedMessage},
		{"empty route", dataFrame(t, 0, protocol.MessagePush, false, "", 0), ErrEmptyRoute, perrors.CodeMalformedMessage},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c.cb.OnMessage(tt.data)
			barrier(t, s)

			errs := rec.of(EventError)
			if len(errs) != i+1 {
				t.Fatalf("error events = %d, want %d", len(errs), i+1)
			}
			last := errs[i].Err
			if !errors.Is(last, tt.want) {
				t.Errorf("error = %v, want %v", last, tt.want)
			}
			if got := perrors.CodeOf(last); got != tt.code {
				t.Errorf("CodeOf = %q, want %q", got, tt.code)
			}
		})
	}

	if n := len(rec.of(EventMessage)); n != 0 {
		t.Errorf("message events = %d, want 0", n)
	}
	if got := s.State(); got != StateReady {
		t.Errorf("State() = %v, want Ready", got)
	}
}

func TestSessionKick(t *testing.T) {
	s, ft, _ := newTestSession(t)
	rec := record(s, EventKick)
	c := connectReady(t, s, ft, 0)

	c.deliver(t, protocol.FrameKick, protocol.EncodeText(`{"reason":"kicked by admin"}`))
	barrier(t, s)

	kicks := rec.of(EventKick)
	if len(kicks) != 1 {
		t.Fatalf("kick events = %d, want 1", len(kicks))
	}
	if kicks[0].Reason != "kicked by admin" {
		t.Errorf("Reason = %q", kicks[0].Reason)
	}
	if string(kicks[0].Body) != `{"reason":"kicked by admin"}` {
		t.Errorf("Body = %s", kicks[0].Body)
	}
	if got := s.State(); got != StateReady {
		t.Errorf("State() after kick = %v, want Ready", got)
	}
	if c.isClosed() {
		t.Error("kick closed the transport")
	}
}

func TestSessionTransportError(t *testing.T) {
	s, ft, _ := newTestSession(t)
	rec := record(s, EventError, EventClose)
	c := connectReady(t, s, ft, 0)

	ioErr := errors.New("read: connection reset")
	c.cb.OnError(ioErr)
	barrier(t, s)

	errs := rec.of(EventError)
	if len(errs) != 1 || !errors.Is(errs[0].Err, ioErr) {
		t.Fatalf("error events = %+v", errs)
	}
	if got := perrors.CodeOf(errs[0].Err); got != perrors.CodeConnectionFailed {
		t.Errorf("CodeOf = %q, want %q", got, perrors.CodeConnectionFailed)
	}
	if n := len(rec.of(EventClose)); n != 0 {
		t.Errorf("close events = %d, want 0", n)
	}
	if got := s.State(); got != StateReady {
		t.Errorf("State() = %v, want Ready", got)
	}
}

func TestSessionUnsolicitedClose(t *testing.T) {
	s, ft, clk := newTestSession(t)
	rec := record(s, EventClose, EventDisconnect)
	c := connectReady(t, s, ft, 5)

	cause := errors.New("EOF")
	c.cb.OnClose(cause)
	barrier(t, s)

	if diff := cmp.Diff([]EventKind{EventClose, EventDisconnect}, rec.kinds()); diff != "" {
		t.Errorf("events (-want +got):\n%s", diff)
	}
	if ev := rec.of(EventClose); len(ev) != 1 || !errors.Is(ev[0].Err, cause) {
		t.Errorf("close event = %+v", ev)
	}
	if got := s.State(); got != StateIdle {
		t.Errorf("State() = %v, want Idle", got)
	}
	if n := clk.active(); n != 0 {
		t.Errorf("active timers = %d, want 0", n)
	}

	if err := s.Connect("127.0.0.1", 3010); err != nil {
		t.Errorf("Connect after close: %v", err)
	}
	if got := ft.opens(); got != 2 {
		t.Errorf("opens = %d, want 2", got)
	}
}

func TestSessionDisconnect(t *testing.T) {
	s, ft, clk := newTestSession(t)
	rec := record(s, EventClose, EventDisconnect)
	c := connectReady(t, s, ft, 5)

	s.Disconnect()

	if got := s.State(); got != StateClosed {
		t.Errorf("State() = %v, want Closed", got)
	}
	if !c.isClosed() {
		t.Error("transport not closed")
	}
	if n := clk.active(); n != 0 {
		t.Errorf("active timers = %d, want 0", n)
	}

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Done not closed")
	}
	if diff := cmp.Diff([]EventKind{EventClose, EventDisconnect}, rec.kinds()); diff != "" {
		t.Errorf("events (-want +got):\n%s", diff)
	}

	// Late callbacks from the released transport are ignored.
	c.cb.OnClose(errors.New("late"))
	s.Disconnect()
	if n := len(rec.kinds()); n != 2 {
		t.Errorf("events after second Disconnect = %d, want 2", n)
	}
}

func TestSessionDisconnectBeforeConnect(t *testing.T) {
	s, ft, _ := newTestSession(t)
	s.Disconnect()

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Done not closed")
	}
	if got := ft.opens(); got != 0 {
		t.Errorf("opens = %d, want 0", got)
	}
}

func TestSessionCall(t *testing.T) {
	s, ft, _ := newTestSession(t)
	c := connectReady(t, s, ft, 0)

	type result struct {
		body []byte
		err  error
	}
	done := make(chan result, 1)
	go func() {
		body, err := s.Call(context.Background(), "connector.entryHandler.entry", map[string]string{"uid": "1"})
		done <- result{body, err}
	}()

	waitPending(t, s, 1)
	c.deliverResponse(t, c.lastMessage(t).ID, `{"code":200}`)

	select {
	case r := <-done:
		if r.err != nil {
			t.Fatalf("Call: %v", r.err)
		}
		if string(r.body) != `{"code":200}` {
			t.Errorf("Call body = %s", r.body)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Call did not return")
	}
}

func TestSessionCallContextCancel(t *testing.T) {
	s, ft, _ := newTestSession(t)
	connectReady(t, s, ft, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := s.Call(ctx, "r", nil)
		done <- err
	}()

	waitPending(t, s, 1)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Call = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Call did not return")
	}
	if got := s.Pending(); got != 0 {
		t.Errorf("Pending() = %d, want 0", got)
	}
}

func TestSessionCallConnectionLost(t *testing.T) {
	s, ft, _ := newTestSession(t)
	c := connectReady(t, s, ft, 0)

	var cbCalled bool
	if err := s.Request("cb", nil, func([]byte) { cbCalled = true }); err != nil {
		t.Fatalf("Request: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := s.Call(context.Background(), "r", nil)
		done <- err
	}()
	waitPending(t, s, 2)

	c.cb.OnClose(errors.New("reset"))

	select {
	case err := <-done:
		if !errors.Is(err, ErrConnectionLost) {
			t.Errorf("Call = %v, want ErrConnectionLost", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Call did not return")
	}
	barrier(t, s)
	if cbCalled {
		t.Error("request callback invoked after connection loss")
	}
	if got := s.Pending(); got != 0 {
		t.Errorf("Pending() = %d, want 0", got)
	}
}

func TestSessionCallDisconnect(t *testing.T) {
	s, ft, _ := newTestSession(t)
	connectReady(t, s, ft, 0)

	done := make(chan error, 1)
	go func() {
		_, err := s.Call(context.Background(), "r", nil)
		done <- err
	}()
	waitPending(t, s, 1)

	s.Disconnect()

	select {
	case err := <-done:
		if !errors.Is(err, ErrClosed) {
			t.Errorf("Call = %v, want ErrClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Call did not return")
	}
}

func TestSessionWaitReady(t *testing.T) {
	s, ft, _ := newTestSession(t)

	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		done <- s.WaitReady(ctx)
	}()

	connectReady(t, s, ft, 0)
	if err := <-done; err != nil {
		t.Errorf("WaitReady: %v", err)
	}
	if err := s.WaitReady(context.Background()); err != nil {
		t.Errorf("WaitReady when ready: %v", err)
	}

	s.Disconnect()
	if err := s.WaitReady(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("WaitReady after Disconnect = %v, want ErrClosed", err)
	}
}

func TestSessionWaitReadyTimeout(t *testing.T) {
	s, _, _ := newTestSession(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := s.WaitReady(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("WaitReady = %v, want DeadlineExceeded", err)
	}
}

func TestSessionRouteDict(t *testing.T) {
	s, ft, _ := newTestSession(t)
	if err := s.Connect("127.0.0.1", 3010); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	c := ft.last(t)
	c.cb.OnOpen()
	sh := protocol.NewServerHello(0)
	sh.Sys.Dict = map[string]uint16{"chat.chatHandler.send": 7, "onChat": 8}
	c.deliverHandshake(t, sh)
	barrier(t, s)

	if err := s.Notify("chat.chatHandler.send", nil); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	msg := c.lastMessage(t)
	if !msg.CompressRoute || msg.RouteCode != 7 {
		t.Errorf("sent message = %+v, want compressed route 7", msg)
	}

	var got []string
	s.On("onChat", func(body []byte) { got = append(got, string(body)) })
	push, err := protocol.EncodeMessage(0, protocol.MessagePush, true, "", 8, protocol.EncodeText(`{"m":1}`))
	if err != nil {
		t.Fatalf("EncodeMessage: %v", err)
	}
	c.deliver(t, protocol.FrameData, push)
	barrier(t, s)

	if diff := cmp.Diff([]string{`{"m":1}`}, got); diff != "" {
		t.Errorf("compressed push (-want +got):\n%s", diff)
	}

	// The dictionary belongs to the connection it was negotiated on.
	c.cb.OnClose(nil)
	barrier(t, s)
	s.mu.Lock()
	_, bound := s.codec.(RouteCompressor)
	compressed := s.codec.(JSONCodec).dict != nil
	s.mu.Unlock()
	if !bound || compressed {
		t.Error("codec still carries the old route dictionary after close")
	}
}

func TestSessionSendRateLimit(t *testing.T) {
	s, ft, _ := newTestSession(t, WithSendRateLimit(0.001, 2))
	connectReady(t, s, ft, 0)

	for i := 0; i < 2; i++ {
		if err := s.Notify("r", nil); err != nil {
			t.Fatalf("Notify %d: %v", i, err)
		}
	}
	if err := s.Notify("r", nil); !errors.Is(err, ErrRateLimited) {
		t.Errorf("Notify over limit = %v, want ErrRateLimited", err)
	}
}

func TestSessionHandlerMayCallSession(t *testing.T) {
	s, ft, _ := newTestSession(t)
	c := connectReady(t, s, ft, 0)

	s.On("onPing", func([]byte) {
		if err := s.Notify("pong", nil); err != nil {
			t.Errorf("Notify from handler: %v", err)
		}
	})
	c.deliverPush(t, "onPing", `{}`)
	barrier(t, s)

	if route := c.lastMessage(t).Route; route != "pong" {
		t.Errorf("last route = %q, want pong", route)
	}
}

func TestSessionURLBuilder(t *testing.T) {
	s, ft, _ := newTestSession(t, WithURLBuilder(SchemeURLBuilder("wss", "/gate")))
	if err := s.Connect("example.com", 443); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if diff := cmp.Diff([]string{"wss://example.com:443/gate"}, ft.urls); diff != "" {
		t.Errorf("urls (-want +got):\n%s", diff)
	}
}

func waitPending(t *testing.T, s *Session, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for s.Pending() != n {
		if time.Now().After(deadline) {
			t.Fatalf("Pending() = %d, want %d", s.Pending(), n)
		}
		time.Sleep(time.Millisecond)
	}
}
