package client

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/proto"

	"github.com/vango-dev/pomelo/pkg/protocol"
)

// ErrNotProtoMessage is returned by ProtoCodec for payloads that are not
// protobuf messages.
var ErrNotProtoMessage = errors.New("client: payload is not a proto.Message")

// ProtoCodec carries protobuf-encoded payloads. Decoded bodies are left in
// wire form; unmarshal them with proto.Unmarshal into the type the route
// expects.
type ProtoCodec struct {
	dict *protocol.RouteDict
}

// WithRouteDict implements RouteCompressor.
func (c ProtoCodec) WithRouteDict(dict *protocol.RouteDict) Codec {
	return ProtoCodec{dict: dict}
}

// Encode implements Codec. A nil payload is sent as an empty body.
func (c ProtoCodec) Encode(reqID uint64, route string, payload any) ([]byte, error) {
	var body []byte
	if payload != nil {
		m, ok := payload.(proto.Message)
		if !ok {
			return nil, fmt.Errorf("%w: %T", ErrNotProtoMessage, payload)
		}
		var err error
		body, err = proto.Marshal(m)
		if err != nil {
			return nil, err
		}
	}
	return encodeRouted(c.dict, reqID, route, body)
}

// Decode implements Codec.
func (c ProtoCodec) Decode(data []byte) (*protocol.Message, error) {
	return decodeRouted(c.dict, data)
}
