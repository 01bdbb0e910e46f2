package securechannel

import (
	"crypto/ecdh"
	"crypto/rand"
	"io"
)

// KeySource supplies the ephemeral P-256 key of each Open.
type KeySource interface {
	GenerateKey() (*ecdh.PrivateKey, error)
}

// RandomKeySource draws a fresh key from Rand, crypto/rand when nil.
type RandomKeySource struct {
	Rand io.Reader
}

func (s RandomKeySource) GenerateKey() (*ecdh.PrivateKey, error) {
	r := s.Rand
	if r == nil {
		r = rand.Reader
	}
	return ecdh.P256().GenerateKey(r)
}
