package cryptox

import (
	"errors"
	"strings"
)

// base32Alphabet is the RFC 4648 alphabet authenticator apps expect.
const base32Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ234567"

var ErrBase32 = errors.New("cryptox: invalid base32 input")

// EncodeBase32 encodes b with the RFC 4648 alphabet, five bits per symbol and
// no padding. A trailing partial group is left aligned and zero filled.
func EncodeBase32(b []byte) string {
	var sb strings.Builder
	sb.Grow((len(b)*8 + 4) / 5)

	var buffer uint32
	var bits uint
	for _, c := range b {
		buffer = buffer<<8 | uint32(c)
		bits += 8
		for bits >= 5 {
			bits -= 5
			sb.WriteByte(base32Alphabet[(buffer>>bits)&0x1f])
		}
	}
	if bits > 0 {
		sb.WriteByte(base32Alphabet[(buffer<<(5-bits))&0x1f])
	}
	return sb.String()
}

// DecodeBase32 reverses EncodeBase32. It accepts lowercase input and ignores
// spaces, hyphens and '=' padding since users often retype secrets by hand.
// Leftover bits shorter than a byte are discarded.
func DecodeBase32(s string) ([]byte, error) {
	out := make([]byte, 0, len(s)*5/8)

	var buffer uint32
	var bits uint
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == ' ' || c == '-' || c == '=':
			continue
		case c >= 'a' && c <= 'z':
			c -= 'a' - 'A'
		}

		v := strings.IndexByte(base32Alphabet, c)
		if v < 0 {
			return nil, ErrBase32
		}

		buffer = buffer<<5 | uint32(v)
		bits += 5
		if bits >= 8 {
			bits -= 8
			out = append(out, byte(buffer>>bits))
		}
	}
	return out, nil
}
