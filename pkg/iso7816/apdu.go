package iso7816

import (
	"errors"
	"fmt"
)

// COMMAND APDU (C-APDU), short form only:
//
//	CLA | INS | P1 | P2 | Lc | DATA[Lc]
//
// Lc is always present, 0x00 for an empty body. Le is never sent: every
// command used by the secure element is case 3.
//
// RESPONSE APDU (R-APDU):
//
//	DATA... | SW1 | SW2

// APDU limits.
const (
	// HeaderSize is the length of CLA INS P1 P2.
	HeaderSize = 4

	// MinCommandSize is a header plus the Lc byte.
	MinCommandSize = HeaderSize + 1

	// MaxShortLc is the largest data length encodable on the single Lc byte.
	MaxShortLc = 255

	// StatusSize is the length of the SW1 SW2 trailer.
	StatusSize = 2
)

var (
	ErrDataTooLong      = errors.New("command data exceeds short APDU length")
	ErrCommandTooShort  = errors.New("command too short")
	ErrLengthMismatch   = errors.New("declared length does not match data")
	ErrResponseTooShort = errors.New("response too short")
)

// Command is a logical command APDU. It is built per operation, serialized once
// and discarded.
type Command struct {
	Class       byte
	Instruction byte
	P1, P2      byte
	Data        []byte
}

// NewCommand creates a command.
func NewCommand(cla, ins, p1, p2 byte, data []byte) *Command {
	return &Command{
		Class:       cla,
		Instruction: ins,
		P1:          p1,
		P2:          p2,
		Data:        data,
	}
}

// Header returns CLA INS P1 P2.
func (c *Command) Header() []byte {
	return []byte{c.Class, c.Instruction, c.P1, c.P2}
}

// Bytes encodes the command as header | Lc | data.
func (c *Command) Bytes() ([]byte, error) {
	if len(c.Data) > MaxShortLc {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrDataTooLong, len(c.Data), MaxShortLc)
	}

	buf := make([]byte, 0, MinCommandSize+len(c.Data))
	buf = append(buf, c.Header()...)
	buf = append(buf, byte(len(c.Data)))
	buf = append(buf, c.Data...)
	return buf, nil
}

// String returns a readable representation of the command meta-data.
func (c *Command) String() string {
	return fmt.Sprintf("CLA: %02X, INS: %02X | P1: %02X, P2: %02X | Lc: %d",
		c.Class, c.Instruction, c.P1, c.P2, len(c.Data))
}

// ParseCommand decodes a short-form command APDU. The Lc byte must match the
// number of bytes that follow it exactly.
func ParseCommand(raw []byte) (*Command, error) {
	if len(raw) < MinCommandSize {
		return nil, fmt.Errorf("%w: length %d", ErrCommandTooShort, len(raw))
	}

	lc := int(raw[HeaderSize])
	body := raw[MinCommandSize:]
	if lc != len(body) {
		return nil, fmt.Errorf("%w: Lc %d, %d data bytes", ErrLengthMismatch, lc, len(body))
	}

	var data []byte
	if lc > 0 {
		data = append([]byte(nil), body...)
	}

	return NewCommand(raw[0], raw[1], raw[2], raw[3], data), nil
}

// Response represents the reply from the card (R-APDU).
type Response struct {
	Data   []byte
	Status StatusWord
}

// ParseResponse parses raw bytes received from the card.
// The input must contain at least the 2 status bytes.
func ParseResponse(raw []byte) (*Response, error) {
	if len(raw) < StatusSize {
		return nil, fmt.Errorf("%w: length %d", ErrResponseTooShort, len(raw))
	}

	indexSW1 := len(raw) - StatusSize
	return &Response{
		Data:   append([]byte(nil), raw[:indexSW1]...),
		Status: NewStatusWord(raw[indexSW1], raw[indexSW1+1]),
	}, nil
}

// Bytes encodes the response as data | SW1 | SW2.
func (r *Response) Bytes() []byte {
	buf := make([]byte, 0, len(r.Data)+StatusSize)
	buf = append(buf, r.Data...)
	return append(buf, r.Status.SW1(), r.Status.SW2())
}

// IsOK reports whether the response carries 9000.
func (r *Response) IsOK() bool {
	return r.Status.IsOK()
}

// String returns a readable representation of the response.
func (r *Response) String() string {
	return fmt.Sprintf("Data (%d bytes) | Status: %s", len(r.Data), r.Status.Verbose())
}

// requireOK is the precondition shared by the specialized response views.
func requireOK(r *Response) error {
	if r == nil {
		return errors.New("nil response")
	}
	if !r.IsOK() {
		return fmt.Errorf("%w: %s", ErrUnexpectedStatus, r.Status.Verbose())
	}
	return nil
}
