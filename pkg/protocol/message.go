package protocol

import (
	"errors"
	"fmt"
)

// Message layout constants.
const (
	// MaxRouteCode is the largest route code a compressed route can carry.
	MaxRouteCode = 0xFFFF

	// MaxRouteLen is the largest encoded route string, bounded by its 1-byte length.
	MaxRouteLen = 255

	msgCompressRouteMask = 0x01
	msgKindMask          = 0x07
)

// MessageKind identifies the type of routed message.
type MessageKind uint8

const (
	MessageRequest  MessageKind = 0x00 // Client → Server, expects a response
	MessageNotify   MessageKind = 0x01 // Client → Server, fire and forget
	MessageResponse MessageKind = 0x02 // Server → Client, answers a request
	MessagePush     MessageKind = 0x03 // Server → Client, unsolicited
)

// String returns the string representation of the message kind.
func (mk MessageKind) String() string {
	switch mk {
	case MessageRequest:
		return "Request"
	case MessageNotify:
		return "Notify"
	case MessageResponse:
		return "Response"
	case MessagePush:
		return "Push"
	default:
		return "Unknown"
	}
}

// Valid reports whether mk is one of the four known message kinds.
func (mk MessageKind) Valid() bool {
	return mk <= MessagePush
}

// HasID reports whether messages of this kind carry an id.
func (mk MessageKind) HasID() bool {
	return mk == MessageRequest || mk == MessageResponse
}

// HasRoute reports whether messages of this kind carry a route.
func (mk MessageKind) HasRoute() bool {
	return mk == MessageRequest || mk == MessageNotify || mk == MessagePush
}

// Message errors.
var (
	ErrInvalidMessageKind = errors.New("protocol: invalid message kind")
	ErrRouteOverflow      = errors.New("protocol: route code overflow")
	ErrRouteTooLong       = errors.New("protocol: route too long")
	ErrMalformedMessage   = errors.New("protocol: malformed message")
)

// Message is a routed message carried in the body of a Data frame.
//
// Wire format:
//
//	┌──────────┬──────────────────┬─────────────────────────┬──────────┐
//	│ Flag     │ ID               │ Route                   │ Body     │
//	│ (1 byte) │ (varint, opt.)   │ (2 bytes or len+bytes)  │ (rest)   │
//	└──────────┴──────────────────┴─────────────────────────┴──────────┘
//
// Flag bit 0 marks a compressed route, bits 1-3 hold the kind. The id is
// present for Request and Response; the route for Request, Notify and Push.
type Message struct {
	ID            uint64
	Kind          MessageKind
	CompressRoute bool
	Route         string // used when CompressRoute is false
	RouteCode     uint32 // used when CompressRoute is true
	Body          []byte
}

// Encode encodes the message to bytes.
func (m *Message) Encode() ([]byte, error) {
	if !m.Kind.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidMessageKind, uint8(m.Kind))
	}

	e := NewEncoderWithCap(1 + UvarintLen(m.ID) + 1 + len(m.Route) + len(m.Body))

	flag := byte(m.Kind) << 1
	if m.CompressRoute {
		flag |= msgCompressRouteMask
	}
	e.WriteByte(flag)

	if m.Kind.HasID() {
		e.WriteUvarint(m.ID)
	}

	if m.Kind.HasRoute() {
		if err := m.encodeRoute(e); err != nil {
			return nil, err
		}
	}

	e.WriteBytes(m.Body)
	return e.Bytes(), nil
}

func (m *Message) encodeRoute(e *Encoder) error {
	if m.CompressRoute {
		if m.RouteCode > MaxRouteCode {
			return fmt.Errorf("%w: %d", ErrRouteOverflow, m.RouteCode)
		}
		e.WriteUint16(uint16(m.RouteCode))
		return nil
	}

	route := EncodeText(m.Route)
	if len(route) > MaxRouteLen {
		return fmt.Errorf("%w: %d bytes", ErrRouteTooLong, len(route))
	}
	e.WriteByte(byte(len(route)))
	e.WriteBytes(route)
	return nil
}

// EncodeMessage encodes a routed message from its parts.
// route is used for uncompressed routes, routeCode for compressed ones.
func EncodeMessage(id uint64, kind MessageKind, compressRoute bool, route string, routeCode uint32, body []byte) ([]byte, error) {
	m := Message{
		ID:            id,
		Kind:          kind,
		CompressRoute: compressRoute,
		Route:         route,
		RouteCode:     routeCode,
		Body:          body,
	}
	return m.Encode()
}

// DecodeMessage decodes a routed message from bytes.
// Every byte after the route is returned as the body.
func DecodeMessage(data []byte) (*Message, error) {
	d := NewDecoder(data)

	flag, err := d.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: empty message", ErrMalformedMessage)
	}

	m := &Message{
		Kind:          MessageKind((flag >> 1) & msgKindMask),
		CompressRoute: flag&msgCompressRouteMask != 0,
	}
	if !m.Kind.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidMessageKind, uint8(m.Kind))
	}

	if m.Kind.HasID() {
		m.ID, err = d.ReadUvarint()
		if err != nil {
			return nil, fmt.Errorf("%w: id: %w", ErrMalformedMessage, err)
		}
	}

	if m.Kind.HasRoute() {
		if err := m.decodeRoute(d); err != nil {
			return nil, err
		}
	}

	m.Body = d.ReadRest()
	return m, nil
}

func (m *Message) decodeRoute(d *Decoder) error {
	if m.CompressRoute {
		code, err := d.ReadUint16()
		if err != nil {
			return fmt.Errorf("%w: route code: %w", ErrMalformedMessage, err)
		}
		m.RouteCode = uint32(code)
		return nil
	}

	n, err := d.ReadByte()
	if err != nil {
		return fmt.Errorf("%w: route length: %w", ErrMalformedMessage, err)
	}
	raw, err := d.ReadBytes(int(n))
	if err != nil {
		return fmt.Errorf("%w: route wants %d bytes, %d remain", ErrMalformedMessage, n, d.Remaining())
	}
	m.Route, err = DecodeText(raw)
	if err != nil {
		return fmt.Errorf("%w: route: %w", ErrMalformedMessage, err)
	}
	return nil
}
