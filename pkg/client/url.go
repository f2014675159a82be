package client

import (
	"net"
	"strconv"
)

// URLBuilder turns the host and port passed to Connect into the endpoint
// handed to the transport factory.
type URLBuilder func(host string, port int) string

// DefaultURLBuilder returns ws://host, with :port appended when port is
// nonzero.
func DefaultURLBuilder(host string, port int) string {
	if port == 0 {
		return "ws://" + host
	}
	return "ws://" + net.JoinHostPort(host, strconv.Itoa(port))
}

// SchemeURLBuilder returns a builder for another scheme, such as "wss" or
// "tcp", with an optional path for WebSocket endpoints.
func SchemeURLBuilder(scheme, path string) URLBuilder {
	return func(host string, port int) string {
		addr := host
		if port != 0 {
			addr = net.JoinHostPort(host, strconv.Itoa(port))
		}
		if scheme == "tcp" {
			return "tcp://" + addr
		}
		return scheme + "://" + addr + path
	}
}
