// Package client implements a Pomelo game-server session.
//
// A Session owns one transport connection at a time. It performs the JSON
// handshake, keeps the connection alive with heartbeats, correlates requests
// with responses, delivers server pushes to subscribers and, when enabled,
// reconnects with exponential backoff after an unsolicited close.
//
// # Usage
//
//	s := client.New(
//	    client.WithReconnect(true),
//	    client.WithUser(map[string]any{"token": token}),
//	)
//	s.On("onChat", func(body []byte) { ... })
//	if err := s.Connect("127.0.0.1", 3010); err != nil {
//	    return err
//	}
//	if err := s.WaitReady(ctx); err != nil {
//	    return err
//	}
//	resp, err := s.Call(ctx, "connector.entryHandler.entry", req)
//
// # Threading
//
// Transport callbacks and timers never touch session state directly. They
// post to a per-session loop goroutine, which is also where every handler and
// request callback runs. Handlers may call any Session method except Call,
// which would wait on the goroutine it is blocking.
//
// # Events
//
// Subscribe receives lifecycle events (EventReady, EventError, EventKick,
// EventHeartbeatTimeout, EventReconnect, EventClose, EventDisconnect,
// EventMessage). On receives the body of every push or notify for a route.
// Errors delivered with EventError unwrap to the package sentinels, so
// errors.Is(ev.Err, client.ErrHandshakeRejected) works.
package client
