// Package cbcmac implements the secure element's message authentication code:
// AES in CBC mode over the zero-padded message with an all-zero IV, keeping the
// leading bytes of the last ciphertext block.
//
// This is not CMAC. The padding has no marker byte and an empty message pads
// to one zero block; both must stay bit-for-bit compatible with the applet.
package cbcmac

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
)

const (
	// BlockSize is the AES block size.
	BlockSize = aes.BlockSize

	// DefaultTagSize is the tag length used on the wire.
	DefaultTagSize = BlockSize
)

// MAC accumulates message parts until Finalize.
type MAC struct {
	block   cipher.Block
	tagSize int
	buf     []byte
}

// Option configures a MAC.
type Option func(*MAC)

// WithTagSize truncates tags to n bytes (1..16).
func WithTagSize(n int) Option {
	return func(m *MAC) {
		m.tagSize = n
	}
}

// New returns an accumulator keyed with an AES-128/192/256 key.
func New(key []byte, opts ...Option) (*MAC, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cbcmac: %w", err)
	}

	m := &MAC{block: block, tagSize: DefaultTagSize}
	for _, opt := range opts {
		opt(m)
	}
	if m.tagSize < 1 || m.tagSize > BlockSize {
		return nil, fmt.Errorf("cbcmac: tag size %d out of range 1..%d", m.tagSize, BlockSize)
	}
	return m, nil
}

// Write appends p to the message. It never fails.
func (m *MAC) Write(p []byte) (int, error) {
	m.buf = append(m.buf, p...)
	return len(p), nil
}

// Finalize returns the tag over everything written since the last Finalize
// and resets the accumulator.
func (m *MAC) Finalize() []byte {
	padded := zeroPad(m.buf)
	clear(m.buf)
	m.buf = m.buf[:0]

	out := make([]byte, len(padded))
	iv := make([]byte, BlockSize)
	cipher.NewCBCEncrypter(m.block, iv).CryptBlocks(out, padded)

	last := out[len(out)-BlockSize:]
	tag := make([]byte, m.tagSize)
	copy(tag, last)

	clear(padded)
	clear(out)
	return tag
}

// Sum is the one-shot form: the tag over the concatenation of parts.
func Sum(key []byte, parts ...[]byte) ([]byte, error) {
	m, err := New(key)
	if err != nil {
		return nil, err
	}
	for _, p := range parts {
		m.Write(p)
	}
	return m.Finalize(), nil
}

// zeroPad copies data and appends zeros up to the next block boundary. An empty
// input becomes one zero block; aligned input is left as is.
func zeroPad(data []byte) []byte {
	n := len(data)
	if rem := n % BlockSize; rem != 0 || n == 0 {
		n += BlockSize - rem
	}
	padded := make([]byte, n)
	copy(padded, data)
	return padded
}
