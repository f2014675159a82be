package client

import (
	"encoding/json"
	"fmt"

	"github.com/vango-dev/pomelo/pkg/protocol"
)

// Codec turns application payloads into routed messages and back.
//
// Encode builds the message-layer bytes for one outbound message: a Request
// when reqID is nonzero, a Notify otherwise. Decode parses the body of an
// inbound Data frame.
type Codec interface {
	Encode(reqID uint64, route string, payload any) ([]byte, error)
	Decode(data []byte) (*protocol.Message, error)
}

// RouteCompressor is implemented by codecs that can use the route dictionary
// negotiated in the handshake. WithRouteDict returns a codec bound to dict;
// the receiver is left unchanged.
type RouteCompressor interface {
	WithRouteDict(dict *protocol.RouteDict) Codec
}

// JSONCodec is the default codec. Payloads are marshaled to JSON and
// carried through the text codec; decoded bodies are plain UTF-8 JSON.
//
// Payloads of type []byte or json.RawMessage are sent as-is and must already
// be JSON. A nil payload is sent as {}.
type JSONCodec struct {
	dict *protocol.RouteDict
}

// WithRouteDict implements RouteCompressor.
func (c JSONCodec) WithRouteDict(dict *protocol.RouteDict) Codec {
	return JSONCodec{dict: dict}
}

// Encode implements Codec.
func (c JSONCodec) Encode(reqID uint64, route string, payload any) ([]byte, error) {
	raw, err := marshalJSON(payload)
	if err != nil {
		return nil, err
	}
	return encodeRouted(c.dict, reqID, route, protocol.EncodeText(string(raw)))
}

// Decode implements Codec.
func (c JSONCodec) Decode(data []byte) (*protocol.Message, error) {
	msg, err := decodeRouted(c.dict, data)
	if err != nil {
		return nil, err
	}
	if len(msg.Body) > 0 {
		text, err := protocol.DecodeText(msg.Body)
		if err != nil {
			return nil, fmt.Errorf("body: %w", err)
		}
		msg.Body = []byte(text)
	}
	return msg, nil
}

func marshalJSON(payload any) ([]byte, error) {
	switch p := payload.(type) {
	case nil:
		return []byte("{}"), nil
	case json.RawMessage:
		return p, nil
	case []byte:
		return p, nil
	default:
		return json.Marshal(p)
	}
}

// encodeRouted builds a Request or Notify, compressing the route when the
// dictionary knows it.
func encodeRouted(dict *protocol.RouteDict, reqID uint64, route string, body []byte) ([]byte, error) {
	kind := protocol.MessageNotify
	if reqID != 0 {
		kind = protocol.MessageRequest
	}
	if code, ok := dict.Code(route); ok {
		return protocol.EncodeMessage(reqID, kind, true, "", uint32(code), body)
	}
	return protocol.EncodeMessage(reqID, kind, false, route, 0, body)
}

// decodeRouted decodes a message and expands a compressed route through the
// dictionary. A code the dictionary does not know is an error.
func decodeRouted(dict *protocol.RouteDict, data []byte) (*protocol.Message, error) {
	msg, err := protocol.DecodeMessage(data)
	if err != nil {
		return nil, err
	}
	if msg.CompressRoute {
		route, ok := dict.Route(uint16(msg.RouteCode))
		if !ok {
			return nil, fmt.Errorf("%w: %d", ErrUnknownRouteCode, msg.RouteCode)
		}
		msg.Route = route
	}
	return msg, nil
}
