package protocol

import (
	"errors"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// ErrMalformedText is returned when a text byte sequence ends mid-character.
var ErrMalformedText = errors.New("protocol: malformed text")

// EncodeText encodes s the way Pomelo peers expect route strings and JSON
// bodies: every UTF-16 code unit becomes one to three bytes. Code points
// above U+FFFF are written as a surrogate pair, each half in the three-byte
// form, so no four-byte sequence is ever produced.
func EncodeText(s string) []byte {
	buf := make([]byte, 0, len(s))
	for _, r := range s {
		if r > 0xFFFF {
			hi, lo := utf16.EncodeRune(r)
			buf = appendUnit(buf, hi)
			buf = appendUnit(buf, lo)
			continue
		}
		buf = appendUnit(buf, r)
	}
	return buf
}

func appendUnit(buf []byte, c rune) []byte {
	switch {
	case c <= 0x7F:
		return append(buf, byte(c))
	case c <= 0x7FF:
		return append(buf, 0xC0|byte(c>>6), 0x80|byte(c&0x3F))
	default:
		return append(buf, 0xE0|byte(c>>12), 0x80|byte((c>>6)&0x3F), 0x80|byte(c&0x3F))
	}
}

// DecodeText is the inverse of EncodeText. Lead bytes for one to four byte
// sequences are accepted; surrogate halves are re-joined into a single rune.
// Continuation bytes are taken by position, matching the peer decoder.
func DecodeText(data []byte) (string, error) {
	var b strings.Builder
	b.Grow(len(data))

	var pending rune = -1 // unpaired high surrogate
	for i := 0; i < len(data); {
		lead := data[i]
		var c rune
		var n int
		switch {
		case lead < 0x80:
			c, n = rune(lead), 1
		case lead < 0xE0:
			n = 2
		case lead < 0xF0:
			n = 3
		default:
			n = 4
		}
		if i+n > len(data) {
			return "", ErrMalformedText
		}

		switch n {
		case 2:
			c = rune(lead&0x3F)<<6 | rune(data[i+1]&0x3F)
		case 3:
			c = rune(lead&0x0F)<<12 | rune(data[i+1]&0x3F)<<6 | rune(data[i+2]&0x3F)
		case 4:
			c = rune(lead&0x07)<<18 | rune(data[i+1]&0x3F)<<12 |
				rune(data[i+2]&0x3F)<<6 | rune(data[i+3]&0x3F)
		}
		i += n

		if pending >= 0 {
			if r := utf16.DecodeRune(pending, c); r != utf8.RuneError {
				b.WriteRune(r)
				pending = -1
				continue
			}
			b.WriteRune(utf8.RuneError)
			pending = -1
		}
		if c >= 0xD800 && c < 0xDC00 {
			pending = c
			continue
		}
		b.WriteRune(c)
	}
	if pending >= 0 {
		b.WriteRune(utf8.RuneError)
	}

	return b.String(), nil
}
