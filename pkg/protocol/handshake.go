package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// HandshakeStatus is the result code a server returns in its handshake.
type HandshakeStatus int

const (
	HandshakeOK        HandshakeStatus = 200
	HandshakeFail      HandshakeStatus = 500
	HandshakeOldClient HandshakeStatus = 501 // Client version rejected
)

// String returns the string representation of the handshake status.
func (hs HandshakeStatus) String() string {
	switch hs {
	case HandshakeOK:
		return "OK"
	case HandshakeFail:
		return "Fail"
	case HandshakeOldClient:
		return "OldClientVersion"
	default:
		return fmt.Sprintf("Status(%d)", int(hs))
	}
}

// Default client identity announced in the handshake.
const (
	DefaultClientType    = "go-websocket"
	DefaultClientVersion = "0.0.1"
)

// ErrInvalidHandshake is returned when a handshake body is not valid JSON.
var ErrInvalidHandshake = errors.New("protocol: invalid handshake")

// ClientHello is the body of the Handshake frame sent after the transport opens.
type ClientHello struct {
	Sys  ClientSys `json:"sys"`
	User any       `json:"user,omitempty"`
}

// ClientSys describes the client runtime to the server.
type ClientSys struct {
	Type    string         `json:"type"`
	Version string         `json:"version"`
	RSA     map[string]any `json:"rsa"`
}

// ServerHello is the server's handshake response.
type ServerHello struct {
	Code HandshakeStatus `json:"code"`
	Sys  ServerSys       `json:"sys"`
	User json.RawMessage `json:"user,omitempty"`
}

// ServerSys carries the connection parameters chosen by the server.
type ServerSys struct {
	// Heartbeat is the heartbeat interval in seconds; 0 disables heartbeats.
	Heartbeat int `json:"heartbeat,omitempty"`

	// Dict maps route strings to the codes used for compressed routes.
	Dict map[string]uint16 `json:"dict,omitempty"`
}

// NewClientHello creates a ClientHello with the default client identity.
func NewClientHello(user any) *ClientHello {
	return &ClientHello{
		Sys: ClientSys{
			Type:    DefaultClientType,
			Version: DefaultClientVersion,
			RSA:     map[string]any{},
		},
		User: user,
	}
}

// EncodeClientHello encodes a ClientHello as text-encoded JSON.
func EncodeClientHello(ch *ClientHello) ([]byte, error) {
	data, err := json.Marshal(ch)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidHandshake, err)
	}
	return EncodeText(string(data)), nil
}

// DecodeServerHello decodes a server handshake body.
func DecodeServerHello(data []byte) (*ServerHello, error) {
	text, err := DecodeText(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidHandshake, err)
	}
	sh := &ServerHello{}
	if err := json.Unmarshal([]byte(text), sh); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidHandshake, err)
	}
	return sh, nil
}

// EncodeServerHello encodes a ServerHello. Clients never send one; peers and
// tests use it to play the server side.
func EncodeServerHello(sh *ServerHello) ([]byte, error) {
	data, err := json.Marshal(sh)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidHandshake, err)
	}
	return EncodeText(string(data)), nil
}

// NewServerHello creates a successful ServerHello with the given heartbeat interval.
func NewServerHello(heartbeatSeconds int) *ServerHello {
	return &ServerHello{
		Code: HandshakeOK,
		Sys:  ServerSys{Heartbeat: heartbeatSeconds},
	}
}
