package iso7816

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gregLibert/secure-channel/pkg/tlv"
	"github.com/moov-io/bertlv"
)

// SELECT RESPONSE LAYOUT:
//
// The applet answers SELECT with an application template. Two layouts exist:
//
//	Base (87 bytes):     A4 55 | 8F 10 UID[16] | 80 41 PUB[65]
//	Versioned (92 bytes): A4 5A | 8F 10 UID[16] | 80 41 PUB[65] | 02 03 MAJ MIN PATCH
//
// The public key is the card's static, uncompressed P-256 point (leading 04).
// Any other length means an applet this package does not understand.

const (
	// PublicKeySize is the length of an uncompressed P-256 point.
	PublicKeySize = 65

	selectBaseLength      = 87
	selectVersionedLength = 92
	selectKeyOffset       = 22
)

// ErrUnknownSelectLayout is returned for select responses of unexpected length.
var ErrUnknownSelectLayout = errors.New("unknown select response layout")

// ApplicationInfo is the decoded application template.
type ApplicationInfo struct {
	InstanceUID []byte       `tlv:"8F"`
	PublicKey   []byte       `tlv:"80"`
	Version     []byte       `tlv:"02" fmt:"version"`
	Unknown     []bertlv.TLV `tlv:",unknown"`
}

type selectTemplate struct {
	Application *ApplicationInfo `tlv:"A4"`
}

// SelectResponse is the view over a successful SELECT answer.
type SelectResponse struct {
	*Response
	publicKey []byte
}

// NewSelectResponse validates the layout and extracts the card public key.
func NewSelectResponse(r *Response) (*SelectResponse, error) {
	if err := requireOK(r); err != nil {
		return nil, fmt.Errorf("select: %w", err)
	}

	data := r.Data
	if len(data) != selectBaseLength && len(data) != selectVersionedLength {
		return nil, fmt.Errorf("select: %w: %d bytes", ErrUnknownSelectLayout, len(data))
	}

	if data[selectKeyOffset-2] != 0x80 || data[selectKeyOffset-1] != PublicKeySize || data[selectKeyOffset] != 0x04 {
		return nil, fmt.Errorf("select: %w: no uncompressed public key at offset %d", ErrUnknownSelectLayout, selectKeyOffset)
	}

	key := make([]byte, PublicKeySize)
	copy(key, data[selectKeyOffset:selectKeyOffset+PublicKeySize])

	return &SelectResponse{Response: r, publicKey: key}, nil
}

// PublicKey returns a copy of the card's static public key.
func (s *SelectResponse) PublicKey() []byte {
	return append([]byte(nil), s.publicKey...)
}

// HasVersion reports whether the applet appended its version.
func (s *SelectResponse) HasVersion() bool {
	return len(s.Data) == selectVersionedLength
}

// Info decodes the application template as TLV.
func (s *SelectResponse) Info() (*ApplicationInfo, error) {
	var tmpl selectTemplate
	if err := tlv.Unmarshal(s.Data, &tmpl); err != nil {
		return nil, fmt.Errorf("select: %w", err)
	}
	if tmpl.Application == nil {
		return nil, errors.New("select: application template A4 not found")
	}
	return tmpl.Application, nil
}

// Describe generates a human-readable report of the select answer.
func (s *SelectResponse) Describe() string {
	var sb strings.Builder

	sb.WriteString("=== SELECT RESPONSE REPORT ===\n")
	sb.WriteString(fmt.Sprintf("    + Result:  [%02X %02X] [OK] %s\n", s.Status.SW1(), s.Status.SW2(), s.Status))

	layout := "Base"
	if s.HasVersion() {
		layout = "Versioned"
	}
	sb.WriteString(fmt.Sprintf("    + Layout:  %s (%d bytes)\n", layout, len(s.Data)))
	sb.WriteString("\n[=] APPLICATION TEMPLATE:")

	info, err := s.Info()
	if err != nil {
		sb.WriteString(fmt.Sprintf("\n    (!) %v", err))
		return sb.String()
	}

	var fields strings.Builder
	tlv.WriteStructFields(&fields, "App", info)
	if fields.Len() > 0 {
		sb.WriteString("\n")
		sb.WriteString(fields.String())
	}
	return sb.String()
}
