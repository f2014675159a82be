// Package errors provides structured, coded errors for the Pomelo client
// and its command-line tool.
//
// Every error carries a registered code (e.g., "E050") that maps to a short
// message, a longer explanation and a category. Errors wrap the underlying
// cause, so errors.Is and errors.As keep working against sentinel errors
// such as client.ErrHeartbeatTimeout.
//
// # Error Categories
//
//   - protocol: frame and message decoding failures
//   - encoding: text, route and payload codec failures
//   - handshake: rejected or unreadable handshake responses
//   - heartbeat: liveness timeouts
//   - transport: connection failures and losses
//   - reconnect: reconnect policy exhaustion
//   - config: pomelo.json problems
//   - cli: command-line usage failures
//
// # Usage
//
//	err := errors.New(errors.CodeInvalidPort).
//	    WithLocation("pomelo.json", 3, 13).
//	    WithSuggestion("Use a port between 1 and 65535")
//
//	fmt.Println(err.Format())
//	// Output:
//	// ERROR E082: Invalid port number
//	//
//	//   pomelo.json:3:13
//	//
//	//      1 │ {
//	//      2 │   "host": "127.0.0.1",
//	//   →  3 │   "port": 70000,
//	//        │             ^
//	//      4 │ }
//	//
//	//   Hint: Use a port between 1 and 65535
package errors
