// Package protocol implements the binary wire protocol spoken by Pomelo
// game servers.
//
// The protocol has two nested layers. The outer layer frames every unit sent
// over the transport ("packages" in Pomelo terms); the inner layer is the
// routed message carried inside Data frames. Both are bit-exact with other
// Pomelo peers.
//
// # Frames
//
// All frames carry a 4-byte header:
//
//	┌─────────────┬───────────────────────────────────────────┐
//	│ Kind        │ Body Length                               │
//	│ (1 byte)    │ (3 bytes, big-endian)                     │
//	└─────────────┴───────────────────────────────────────────┘
//
// Frame kinds:
//
//   - FrameHandshake (0x01): Client hello / server response (JSON)
//   - FrameHandshakeAck (0x02): Client confirms the handshake
//   - FrameHeartbeat (0x03): Liveness, both directions
//   - FrameData (0x04): One routed message
//   - FrameKick (0x05): Server forced disconnect (JSON)
//
// A single transport delivery may hold several frames back to back;
// DecodeFrames returns all of them in order.
//
// # Messages
//
//	[Flag: 1 byte][ID: varint, Request/Response only][Route][Body: rest]
//
// The flag holds the compressed-route bit (bit 0) and the kind (bits 1-3).
// IDs are little-endian base-128 varints. A compressed route is a 2-byte
// big-endian code; otherwise it is a 1-byte length followed by the encoded
// route string.
//
// # Text
//
// Route strings and JSON bodies use EncodeText/DecodeText, a UTF-8 variant
// limited to three bytes per UTF-16 code unit.
//
// # Usage Example
//
//	body, _ := protocol.EncodeMessage(7, protocol.MessageRequest, false, "chat.send", 0, payload)
//	frame, _ := protocol.EncodeFrame(protocol.FrameData, body)
//
//	frames, err := protocol.DecodeFrames(delivery)
//	if err != nil {
//	    // drop the delivery
//	}
//	for _, f := range frames {
//	    if f.Kind == protocol.FrameData {
//	        msg, err := protocol.DecodeMessage(f.Body)
//	        // ...
//	    }
//	}
//
// # File Structure
//
//   - varint.go: Varint encoding/decoding
//   - encoder.go: Binary encoder
//   - decoder.go: Binary decoder
//   - frame.go: Frame kinds and framing
//   - message.go: Routed message codec
//   - text.go: Text codec
//   - handshake.go: Handshake documents
//   - dict.go: Route dictionary
package protocol
