// Package securechannel implements the authenticated, encrypted channel to the
// secure element.
//
// An Engine starts Closed. Connect brings it to Connected, where commands such
// as SELECT travel in plaintext. Open performs the P-256 key agreement and the
// mutual authentication; from then on every command is wrapped (AES-256-CBC
// plus a CBC-MAC tag that also becomes the next IV) and every response is
// authenticated before it is returned. An integrity failure moves the engine to
// Aborted: nothing else is sent until a fresh Open or a Disconnect.
package securechannel

// Protocol constants. They are fixed by the applet version and never negotiated.
const (
	CLA byte = 0xA0

	INS_OPEN_SECURE_CHANNEL   byte = 0x20
	INS_MUTUALLY_AUTHENTICATE byte = 0x21
	INS_SIGN                  byte = 0x30
	INS_ECHO                  byte = 0x31

	// MaxPayloadSize bounds the wrapped frame so that its Lc fits in one byte.
	MaxPayloadSize = 223

	KeySize       = 32
	IVSize        = 16
	NonceSize     = 32
	ChallengeSize = 32
	HashSize      = 32

	// OpenResponseSize is keyRandomData followed by the initial IV.
	OpenResponseSize = NonceSize + IVSize
)

// Reader is the byte transport to the card: one request, one response, no
// buffering. Timeouts and card detection belong to the implementation.
type Reader interface {
	Connect() error
	Transmit(cmd []byte) ([]byte, error)
	Disconnect() error
}
