package protocol

import (
	"errors"
	"io"
)

// MaxVarintLen is the longest varint DecodeUvarint accepts.
const MaxVarintLen = 10

// ErrVarintOverflow is returned when a varint does not terminate within
// MaxVarintLen bytes.
var ErrVarintOverflow = errors.New("protocol: varint overflow")

// AppendUvarint appends v as a message id varint: seven bits per byte, least
// significant group first, high bit set on every byte but the last.
//
//	0   → 00
//	300 → ac 02
func AppendUvarint(dst []byte, v uint64) []byte {
	for v >= 0x80 {
		dst = append(dst, byte(v)|0x80)
		v >>= 7
	}
	return append(dst, byte(v))
}

// DecodeUvarint reads a varint from the front of buf and reports how many
// bytes it used. A buffer that ends mid-varint yields io.ErrUnexpectedEOF;
// a value past 64 bits yields ErrVarintOverflow.
func DecodeUvarint(buf []byte) (uint64, int, error) {
	var v uint64
	for i, b := range buf {
		// The tenth byte carries only bit 63.
		if i == MaxVarintLen-1 && b > 1 {
			return 0, 0, ErrVarintOverflow
		}
		v |= uint64(b&0x7F) << (7 * i)
		if b&0x80 == 0 {
			return v, i + 1, nil
		}
	}
	return 0, 0, io.ErrUnexpectedEOF
}

// UvarintLen returns the encoded size of v.
func UvarintLen(v uint64) int {
	n := 1
	for ; v >= 0x80; v >>= 7 {
		n++
	}
	return n
}
