package protocol

import "io"

// Decoder reads frame and message fields from a byte slice. Every read
// that runs past the end fails with io.ErrUnexpectedEOF and leaves the
// position unchanged.
type Decoder struct {
	buf []byte
	pos int
}

// NewDecoder returns a Decoder positioned at the start of buf.
func NewDecoder(buf []byte) *Decoder {
	return &Decoder{buf: buf}
}

// Remaining returns the number of unread bytes.
func (d *Decoder) Remaining() int { return len(d.buf) - d.pos }

// EOF reports whether every byte has been read.
func (d *Decoder) EOF() bool { return d.pos >= len(d.buf) }

// Position returns the offset of the next unread byte.
func (d *Decoder) Position() int { return d.pos }

// ReadByte reads one byte.
func (d *Decoder) ReadByte() (byte, error) {
	b, err := d.ReadBytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadBytes reads n bytes. The result aliases the decoder's buffer.
func (d *Decoder) ReadBytes(n int) ([]byte, error) {
	if n < 0 || n > d.Remaining() {
		return nil, io.ErrUnexpectedEOF
	}
	b := d.buf[d.pos : d.pos+n : d.pos+n]
	d.pos += n
	return b, nil
}

// ReadRest returns a copy of every unread byte and moves to the end.
func (d *Decoder) ReadRest() []byte {
	rest := append([]byte(nil), d.buf[d.pos:]...)
	d.pos = len(d.buf)
	return rest
}

// ReadUvarint reads a message id varint.
func (d *Decoder) ReadUvarint() (uint64, error) {
	v, n, err := DecodeUvarint(d.buf[d.pos:])
	if err != nil {
		return 0, err
	}
	d.pos += n
	return v, nil
}

// ReadUint16 reads a big-endian route code.
func (d *Decoder) ReadUint16() (uint16, error) {
	b, err := d.ReadBytes(2)
	if err != nil {
		return 0, err
	}
	return uint16(b[0])<<8 | uint16(b[1]), nil
}

// ReadUint24 reads a big-endian frame length.
func (d *Decoder) ReadUint24() (uint32, error) {
	b, err := d.ReadBytes(3)
	if err != nil {
		return 0, err
	}
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2]), nil
}
