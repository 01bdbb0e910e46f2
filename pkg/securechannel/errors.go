package securechannel

import (
	"errors"
	"fmt"

	"github.com/gregLibert/secure-channel/pkg/iso7816"
)

var (
	// ErrInvalidMAC means a response failed authentication. The session is aborted.
	ErrInvalidMAC = errors.New("invalid MAC")
	// ErrInvalidPadding means the decrypted payload has no padding marker.
	ErrInvalidPadding = errors.New("invalid padding")

	ErrPayloadTooLarge = errors.New("payload too large")
	ErrNotConnected    = errors.New("not connected")
	ErrNoCardKey       = errors.New("card public key unknown")
	ErrNoPairingKey    = errors.New("pairing key missing")
	ErrSessionAborted  = errors.New("session aborted")
	ErrSessionOpen     = errors.New("secure session already open")
)

// TransportError wraps a failure of the underlying Reader. It is never retried.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Handshake steps reported by HandshakeError.
const (
	StepKeyAgreement = "key agreement"
	StepOpen         = "open secure channel"
	StepMutualAuth   = "mutually authenticate"
)

// HandshakeError fails one Open attempt. The caller may retry; a new ephemeral
// key is generated every time.
type HandshakeError struct {
	Step   string
	Status iso7816.StatusWord
	Reason string
	Err    error
}

func (e *HandshakeError) Error() string {
	msg := fmt.Sprintf("handshake failed at %s", e.Step)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %s)", e.Status.Verbose())
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *HandshakeError) Unwrap() error {
	return e.Err
}
