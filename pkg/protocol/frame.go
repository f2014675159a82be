package protocol

import (
	"errors"
	"fmt"
	"io"
)

// Frame constants.
const (
	// FrameHeaderSize is the size of the frame header in bytes.
	FrameHeaderSize = 4

	// MaxFrameBodySize is the largest body the 3-byte length field can carry (2^24 - 1 bytes).
	MaxFrameBodySize = 1<<24 - 1
)

// FrameKind identifies the type of frame (a "package" on the Pomelo wire).
type FrameKind uint8

const (
	FrameHandshake    FrameKind = 0x01 // Client hello / server handshake response
	FrameHandshakeAck FrameKind = 0x02 // Client confirms the handshake
	FrameHeartbeat    FrameKind = 0x03 // Liveness ping, both directions
	FrameData         FrameKind = 0x04 // Carries one routed message
	FrameKick         FrameKind = 0x05 // Server forces the client off
)

// String returns the string representation of the frame kind.
func (fk FrameKind) String() string {
	switch fk {
	case FrameHandshake:
		return "Handshake"
	case FrameHandshakeAck:
		return "HandshakeAck"
	case FrameHeartbeat:
		return "Heartbeat"
	case FrameData:
		return "Data"
	case FrameKick:
		return "Kick"
	default:
		return "Unknown"
	}
}

// Valid reports whether fk is one of the known frame kinds.
func (fk FrameKind) Valid() bool {
	return fk >= FrameHandshake && fk <= FrameKick
}

// Frame errors.
var (
	ErrFrameTooLarge    = errors.New("protocol: frame body too large")
	ErrInvalidFrameKind = errors.New("protocol: invalid frame kind")
	ErrTruncatedFrame   = errors.New("protocol: truncated frame")
)

// Frame represents a protocol frame with header and body.
//
// Wire format (4 bytes header + variable body):
//
//	┌─────────────┬───────────────────────────────────────────┐
//	│ Kind        │ Body Length                               │
//	│ (1 byte)    │ (3 bytes, big-endian)                     │
//	└─────────────┴───────────────────────────────────────────┘
//	│                                                         │
//	│  Body (variable length)                                 │
//	│                                                         │
//	└─────────────────────────────────────────────────────────┘
type Frame struct {
	Kind FrameKind
	Body []byte
}

// Encode encodes the frame to bytes including the header.
func (f *Frame) Encode() ([]byte, error) {
	return EncodeFrame(f.Kind, f.Body)
}

// EncodeFrame encodes a frame of the given kind around body.
// A nil or empty body produces a bare 4-byte header.
func EncodeFrame(kind FrameKind, body []byte) ([]byte, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: 0x%02x", ErrInvalidFrameKind, uint8(kind))
	}
	length := len(body)
	if length > MaxFrameBodySize {
		return nil, ErrFrameTooLarge
	}

	e := NewEncoderWithCap(FrameHeaderSize + length)
	e.WriteByte(byte(kind))
	e.WriteUint24(uint32(length))
	e.WriteBytes(body)
	return e.Bytes(), nil
}

// DecodeFrames splits data into every frame it contains.
// A single transport delivery may coalesce several frames; they are returned
// in wire order. Any short header or short body fails the whole call with
// ErrTruncatedFrame, so a partial sequence is never returned.
func DecodeFrames(data []byte) ([]Frame, error) {
	d := NewDecoder(data)
	frames := make([]Frame, 0, 1)

	for !d.EOF() {
		kind, length, err := decodeHeader(d)
		if err != nil {
			return nil, err
		}

		raw, err := d.ReadBytes(length)
		if err != nil {
			return nil, fmt.Errorf("%w: %s body wants %d bytes, %d remain",
				ErrTruncatedFrame, kind, length, d.Remaining())
		}

		var body []byte
		if length > 0 {
			body = make([]byte, length)
			copy(body, raw)
		}
		frames = append(frames, Frame{Kind: kind, Body: body})
	}

	return frames, nil
}

// decodeHeader reads and validates one frame header.
func decodeHeader(d *Decoder) (FrameKind, int, error) {
	if d.Remaining() < FrameHeaderSize {
		return 0, 0, fmt.Errorf("%w: %d header bytes", ErrTruncatedFrame, d.Remaining())
	}

	b, _ := d.ReadByte()
	kind := FrameKind(b)
	if !kind.Valid() {
		return 0, 0, fmt.Errorf("%w: 0x%02x", ErrInvalidFrameKind, b)
	}

	length, _ := d.ReadUint24()
	return kind, int(length), nil
}

// DecodeFrameHeader decodes just the frame header, returning kind and body length.
func DecodeFrameHeader(data []byte) (FrameKind, int, error) {
	return decodeHeader(NewDecoder(data))
}

// ReadFrame reads exactly one raw frame (header and body) from a stream.
// It is meant for transports that do not preserve message boundaries; the
// returned bytes can be handed to DecodeFrames unchanged. maxBody bounds the
// accepted body length; values <= 0 mean MaxFrameBodySize.
func ReadFrame(r io.Reader, maxBody int) ([]byte, error) {
	if maxBody <= 0 || maxBody > MaxFrameBodySize {
		maxBody = MaxFrameBodySize
	}

	header := make([]byte, FrameHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}

	_, length, err := DecodeFrameHeader(header)
	if err != nil {
		return nil, err
	}
	if length > maxBody {
		return nil, ErrFrameTooLarge
	}

	raw := make([]byte, FrameHeaderSize+length)
	copy(raw, header)
	if length > 0 {
		if _, err := io.ReadFull(r, raw[FrameHeaderSize:]); err != nil {
			return nil, err
		}
	}
	return raw, nil
}
