package tlv

import (
	"errors"
	"fmt"
)

// MaxLongFormOctets is the largest number of subsequent length octets accepted
// in the long form (0x81..0x84).
const MaxLongFormOctets = 4

var (
	// ErrTruncatedLength is returned when the length field runs past the input.
	ErrTruncatedLength = errors.New("tlv: truncated length field")
	// ErrUnsupportedLength is returned for the indefinite form (0x80) and for
	// long forms wider than MaxLongFormOctets.
	ErrUnsupportedLength = errors.New("tlv: unsupported length encoding")
)

// DecodeLength reads a BER length field from the start of b.
// It returns the decoded length and the number of bytes the field occupies.
//
//	0x00..0x7F           length itself, 1 byte
//	0x81..0x84 + n bytes big-endian length, 1+n bytes
func DecodeLength(b []byte) (length int, size int, err error) {
	if len(b) == 0 {
		return 0, 0, ErrTruncatedLength
	}

	first := b[0]
	if first&0x80 == 0 {
		return int(first), 1, nil
	}

	n := int(first & 0x7F)
	if n == 0 || n > MaxLongFormOctets {
		return 0, 0, fmt.Errorf("%w: first octet 0x%02X", ErrUnsupportedLength, first)
	}
	if len(b) < 1+n {
		return 0, 0, fmt.Errorf("%w: need %d octets, have %d", ErrTruncatedLength, 1+n, len(b))
	}

	var l uint64
	for _, o := range b[1 : 1+n] {
		l = l<<8 | uint64(o)
	}
	if l > uint64(^uint(0)>>1) {
		return 0, 0, fmt.Errorf("%w: length %d overflows int", ErrUnsupportedLength, l)
	}

	return int(l), 1 + n, nil
}

// EncodeLength returns the shortest BER encoding of n.
func EncodeLength(n int) []byte {
	if n < 0 {
		panic(fmt.Sprintf("tlv: negative length %d", n))
	}
	if n < 0x80 {
		return []byte{byte(n)}
	}

	var octets []byte
	for v := n; v > 0; v >>= 8 {
		octets = append([]byte{byte(v)}, octets...)
	}
	return append([]byte{0x80 | byte(len(octets))}, octets...)
}
