// Package emulator is an in-process secure element. It answers the same
// commands as the applet (SELECT, OPEN SECURE CHANNEL, MUTUALLY AUTHENTICATE,
// SIGN and ECHO) and implements securechannel.Reader, so the engine and the CLI
// can run without hardware.
package emulator

import (
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/gregLibert/secure-channel/pkg/iso7816"
	"github.com/gregLibert/secure-channel/pkg/tlv"
	"github.com/moov-io/bertlv"
	"go.uber.org/zap"
)

// DefaultAID is the applet instance selected when none is configured.
var DefaultAID = tlv.Hex("A0 00 00 08 20 00 01 01")

// ErrNotConnected is returned by Transmit before Connect.
var ErrNotConnected = errors.New("emulator: card not connected")

// Card is the simulated secure element. Its methods are safe for concurrent use.
type Card struct {
	mu sync.Mutex

	log        *zap.Logger
	rand       io.Reader
	aid        []byte
	uid        []byte
	version    []byte
	identity   *ecdh.PrivateKey
	pairingKey []byte
	slots      map[byte]*ecdsa.PrivateKey

	connected bool
	selected  bool
	sess      *cardSession

	// Tamper, when set, may rewrite every raw response before it leaves the card.
	Tamper func(resp []byte) []byte
}

// Option configures a Card.
type Option func(*Card)

// WithIdentity sets the card's static key agreement key.
func WithIdentity(key *ecdh.PrivateKey) Option {
	return func(c *Card) { c.identity = key }
}

// WithAID sets the applet AID answered by SELECT.
func WithAID(aid []byte) Option {
	return func(c *Card) { c.aid = append([]byte(nil), aid...) }
}

// WithUID sets the 16-byte instance UID.
func WithUID(uid []byte) Option {
	return func(c *Card) { c.uid = append([]byte(nil), uid...) }
}

// WithVersion makes SELECT answer with the versioned layout.
func WithVersion(major, minor, patch byte) Option {
	return func(c *Card) { c.version = []byte{major, minor, patch} }
}

// WithSlotKey installs a signing key in slot.
func WithSlotKey(slot byte, key *ecdsa.PrivateKey) Option {
	return func(c *Card) { c.slots[slot] = key }
}

// WithRand sets the randomness used for nonces, IVs, keys and signatures.
func WithRand(r io.Reader) Option {
	return func(c *Card) { c.rand = r }
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(c *Card) { c.log = log }
}

// New creates a card paired with pairingKey.
func New(pairingKey []byte, opts ...Option) (*Card, error) {
	if len(pairingKey) == 0 {
		return nil, errors.New("emulator: empty pairing key")
	}

	c := &Card{
		log:        zap.NewNop(),
		rand:       rand.Reader,
		aid:        DefaultAID,
		pairingKey: append([]byte(nil), pairingKey...),
		slots:      make(map[byte]*ecdsa.PrivateKey),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.identity == nil {
		key, err := ecdh.P256().GenerateKey(c.rand)
		if err != nil {
			return nil, fmt.Errorf("emulator: identity key: %w", err)
		}
		c.identity = key
	}
	if c.uid == nil {
		c.uid = make([]byte, 16)
		if _, err := io.ReadFull(c.rand, c.uid); err != nil {
			return nil, fmt.Errorf("emulator: uid: %w", err)
		}
	}
	if len(c.uid) != 16 {
		return nil, fmt.Errorf("emulator: uid must be 16 bytes, got %d", len(c.uid))
	}
	return c, nil
}

// PublicKey returns the card's static public key, as SELECT reports it.
func (c *Card) PublicKey() []byte {
	return c.identity.PublicKey().Bytes()
}

// SlotPublicKey returns the uncompressed public key of a signing slot,
// generating the slot key on first use.
func (c *Card) SlotPublicKey(slot byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key, err := c.slotKey(slot)
	if err != nil {
		return nil, err
	}
	return marshalPublicKey(key), nil
}

func (c *Card) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = true
	return nil
}

// Disconnect drops the selection and any session, as a card reset would.
func (c *Card) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	c.selected = false
	c.dropSession()
	return nil
}

// Transmit processes one command frame.
func (c *Card) Transmit(cmd []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return nil, ErrNotConnected
	}

	resp := c.process(cmd)
	if c.Tamper != nil {
		resp = c.Tamper(resp)
	}
	return resp, nil
}

func (c *Card) selectResponse() ([]byte, error) {
	children := []bertlv.TLV{
		{Tag: "8F", Value: c.uid},
		{Tag: "80", Value: c.PublicKey()},
	}
	if c.version != nil {
		children = append(children, bertlv.TLV{Tag: "02", Value: c.version})
	}
	return bertlv.Encode([]bertlv.TLV{{Tag: "A4", TLVs: children}})
}

func (c *Card) slotKey(slot byte) (*ecdsa.PrivateKey, error) {
	if key, ok := c.slots[slot]; ok {
		return key, nil
	}
	key, err := ecdsa.GenerateKey(elliptic.P256(), c.rand)
	if err != nil {
		return nil, fmt.Errorf("emulator: slot %d key: %w", slot, err)
	}
	c.slots[slot] = key
	return key, nil
}

func marshalPublicKey(key *ecdsa.PrivateKey) []byte {
	pub, err := key.PublicKey.ECDH()
	if err != nil {
		return nil
	}
	return pub.Bytes()
}

// status returns a bare status word response.
func status(sw iso7816.StatusWord) []byte {
	return []byte{sw.SW1(), sw.SW2()}
}
