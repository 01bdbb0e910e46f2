package iso7816

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"errors"
	"fmt"
	"strings"

	"github.com/gregLibert/secure-channel/pkg/tlv"
)

// SIGN RESPONSE LAYOUT:
//
//	A0 | LEN | SIGNATURE (DER) | 04 41 | PUB[65]
//
// LEN is a BER length, either direct (< 0x80) or 0x81..0x84 followed by one to
// four length bytes, and must cover the rest of the data exactly. The applet
// guarantees this structure, so every deviation is fatal.

const (
	TagSignatureTemplate byte = 0xA0
	TagOctetString       byte = 0x04

	// keyTrailerSize is 04 41 followed by the uncompressed point.
	keyTrailerSize = 2 + PublicKeySize
)

// ErrMalformedSignResponse is returned for any structural mismatch.
var ErrMalformedSignResponse = errors.New("malformed sign response")

// SignResponse is the view over a successful SIGN answer.
type SignResponse struct {
	*Response
	signature []byte
	publicKey []byte
}

// NewSignResponse validates the signature template and splits it.
func NewSignResponse(r *Response) (*SignResponse, error) {
	if err := requireOK(r); err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}

	data := r.Data
	if len(data) < 2 {
		return nil, fmt.Errorf("sign: %w: %d bytes", ErrMalformedSignResponse, len(data))
	}
	if data[0] != TagSignatureTemplate {
		return nil, fmt.Errorf("sign: %w: tag %02X, want %02X", ErrMalformedSignResponse, data[0], TagSignatureTemplate)
	}

	length, size, err := tlv.DecodeLength(data[1:])
	if err != nil {
		return nil, fmt.Errorf("sign: %w: %w", ErrMalformedSignResponse, err)
	}

	body := data[1+size:]
	if length != len(body) {
		return nil, fmt.Errorf("sign: %w: declared %d bytes, got %d", ErrMalformedSignResponse, length, len(body))
	}
	if len(body) <= keyTrailerSize {
		return nil, fmt.Errorf("sign: %w: no room for signature", ErrMalformedSignResponse)
	}

	split := len(body) - keyTrailerSize
	trailer := body[split:]
	if trailer[0] != TagOctetString || trailer[1] != PublicKeySize || trailer[2] != 0x04 {
		return nil, fmt.Errorf("sign: %w: bad public key trailer %X", ErrMalformedSignResponse, trailer[:3])
	}

	return &SignResponse{
		Response:  r,
		signature: append([]byte(nil), body[:split]...),
		publicKey: append([]byte(nil), trailer[2:]...),
	}, nil
}

// Signature returns the DER encoded ECDSA signature.
func (s *SignResponse) Signature() []byte {
	return append([]byte(nil), s.signature...)
}

// PublicKey returns the uncompressed public key of the signing slot.
func (s *SignResponse) PublicKey() []byte {
	return append([]byte(nil), s.publicKey...)
}

// Verify checks the signature over hash with the embedded P-256 key.
func (s *SignResponse) Verify(hash []byte) (bool, error) {
	pub, err := ecdsa.ParseUncompressedPublicKey(elliptic.P256(), s.publicKey)
	if err != nil {
		return false, fmt.Errorf("sign: invalid public key: %w", err)
	}
	return ecdsa.VerifyASN1(pub, hash, s.signature), nil
}

// Describe generates a human-readable report of the sign answer.
func (s *SignResponse) Describe() string {
	var sb strings.Builder

	sb.WriteString("=== SIGN RESPONSE REPORT ===\n")
	sb.WriteString(fmt.Sprintf("    + Result:    [%02X %02X] [OK] %s\n", s.Status.SW1(), s.Status.SW2(), s.Status))
	sb.WriteString(fmt.Sprintf("    + Signature: %X (%d bytes)\n", s.signature, len(s.signature)))
	sb.WriteString(fmt.Sprintf("    + PublicKey: %X", s.publicKey))
	return sb.String()
}
