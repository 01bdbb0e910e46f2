package securechannel

import (
	"crypto/ecdh"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/gregLibert/secure-channel/pkg/iso7816"
	"go.uber.org/zap"
)

// Engine owns one Reader and at most one session. Its methods are serialized;
// the IV still advances per call, so callers must not interleave logical
// exchanges from several goroutines.
type Engine struct {
	mu sync.Mutex

	reader     Reader
	client     *iso7816.Client
	log        *zap.Logger
	keys       KeySource
	rand       io.Reader
	pairingKey []byte
	cardKey    *ecdh.PublicKey

	state State
	sess  *session
}

// New creates a Closed engine. pairingKey is copied.
func New(reader Reader, pairingKey []byte, opts ...Option) (*Engine, error) {
	if reader == nil {
		return nil, errors.New("securechannel: nil reader")
	}
	if len(pairingKey) == 0 {
		return nil, ErrNoPairingKey
	}

	o := options{
		keys: RandomKeySource{},
		rand: rand.Reader,
		log:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	e := &Engine{
		reader:     reader,
		log:        o.log,
		keys:       o.keys,
		rand:       o.rand,
		pairingKey: append([]byte(nil), pairingKey...),
	}

	if o.cardKey != nil {
		key, err := ecdh.P256().NewPublicKey(o.cardKey)
		if err != nil {
			return nil, fmt.Errorf("securechannel: card public key: %w", err)
		}
		e.cardKey = key
	}

	clientOpts := []iso7816.ClientOption{iso7816.WithClientLogger(o.log)}
	if o.trace {
		clientOpts = append(clientOpts, iso7816.WithTrace())
	}
	e.client = iso7816.NewClient(transport{reader}, clientOpts...)
	return e, nil
}

// transport tags Reader failures so callers can tell them from protocol errors.
type transport struct {
	r Reader
}

func (t transport) Transmit(cmd []byte) ([]byte, error) {
	resp, err := t.r.Transmit(cmd)
	if err != nil {
		return nil, &TransportError{Op: "transmit", Err: err}
	}
	return resp, nil
}

// State returns the current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Trace returns the recorded frames, empty unless WithTrace was given.
func (e *Engine) Trace() iso7816.Trace {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.client.Trace()
}

// Connect opens the Reader. It is a no-op once connected.
func (e *Engine) Connect() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != Closed {
		return nil
	}
	if err := e.reader.Connect(); err != nil {
		return &TransportError{Op: "connect", Err: err}
	}
	e.state = Connected
	e.log.Debug("reader connected")
	return nil
}

// Disconnect tears the session down, zeroes the pairing key and closes the
// Reader. The engine cannot open a new session afterwards.
func (e *Engine) Disconnect() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.teardown()
	clear(e.pairingKey)
	e.pairingKey = nil

	if e.state == Closed {
		return nil
	}
	e.state = Closed
	if err := e.reader.Disconnect(); err != nil {
		return &TransportError{Op: "disconnect", Err: err}
	}
	e.log.Debug("reader disconnected")
	return nil
}

// Select sends SELECT in plaintext and records the card public key. It is only
// valid before a session is opened.
func (e *Engine) Select(aid []byte) (*iso7816.SelectResponse, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case Closed:
		return nil, ErrNotConnected
	case Open:
		return nil, ErrSessionOpen
	case Aborted:
		return nil, ErrSessionAborted
	}

	resp, err := e.client.Send(iso7816.SelectByAID(aid))
	if err != nil {
		return nil, err
	}
	sel, err := iso7816.NewSelectResponse(resp)
	if err != nil {
		return nil, err
	}

	key, err := ecdh.P256().NewPublicKey(sel.PublicKey())
	if err != nil {
		return nil, fmt.Errorf("select: card public key: %w", err)
	}
	e.cardKey = key
	e.log.Info("applet selected", zap.Bool("versioned", sel.HasVersion()))
	return sel, nil
}

// Open runs the handshake. Any running session is discarded first. On failure
// the partial session is wiped and the engine stays Connected.
func (e *Engine) Open() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == Closed {
		return ErrNotConnected
	}
	e.teardown()
	e.state = Connected

	if e.cardKey == nil {
		return ErrNoCardKey
	}
	if len(e.pairingKey) == 0 {
		return ErrNoPairingKey
	}

	if err := e.handshake(); err != nil {
		e.teardown()
		e.state = Connected
		e.log.Warn("secure channel handshake failed", zap.Error(err))
		return err
	}

	e.log.Info("secure channel open")
	return nil
}

func (e *Engine) handshake() error {
	eph, err := e.keys.GenerateKey()
	if err != nil {
		return &HandshakeError{Step: StepKeyAgreement, Reason: "ephemeral key", Err: err}
	}
	secret, err := eph.ECDH(e.cardKey)
	if err != nil {
		return &HandshakeError{Step: StepKeyAgreement, Err: err}
	}

	sess := &session{ephemeral: eph, secret: secret}

	open := iso7816.NewCommand(CLA, INS_OPEN_SECURE_CHANNEL, 0x00, 0x00, eph.PublicKey().Bytes())
	resp, err := e.client.Send(open)
	if err != nil {
		sess.wipe()
		return err
	}
	if !resp.IsOK() {
		sess.wipe()
		return &HandshakeError{Step: StepOpen, Status: resp.Status, Reason: "unexpected status"}
	}
	if len(resp.Data) != OpenResponseSize {
		sess.wipe()
		return &HandshakeError{Step: StepOpen, Reason: fmt.Sprintf("response is %d bytes, want %d", len(resp.Data), OpenResponseSize)}
	}

	sess.keyRandom = append([]byte(nil), resp.Data[:NonceSize]...)
	sess.iv = append([]byte(nil), resp.Data[NonceSize:]...)
	clear(resp.Data)
	sess.encKey, sess.macKey = DeriveSessionKeys(sess.secret, e.pairingKey, sess.keyRandom)

	e.sess = sess
	e.state = Open

	challenge := make([]byte, ChallengeSize)
	if _, err := io.ReadFull(e.rand, challenge); err != nil {
		return &HandshakeError{Step: StepMutualAuth, Reason: "challenge", Err: err}
	}

	auth, err := e.transmitWrapped(iso7816.NewCommand(CLA, INS_MUTUALLY_AUTHENTICATE, 0x00, 0x00, challenge))
	if err != nil {
		var te *TransportError
		if errors.As(err, &te) {
			return err
		}
		return &HandshakeError{Step: StepMutualAuth, Err: err}
	}
	if !auth.Status.IsOK() {
		return &HandshakeError{Step: StepMutualAuth, Status: auth.Status, Reason: "unexpected status"}
	}
	return nil
}

// Transmit sends cmd, wrapped when a session is open and in plaintext when
// only connected. The returned Data is always plaintext; Status is the outer
// status word.
func (e *Engine) Transmit(cmd *iso7816.Command) (*iso7816.Response, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case Closed:
		return nil, ErrNotConnected
	case Aborted:
		return nil, ErrSessionAborted
	case Connected:
		return e.client.Send(cmd)
	}
	return e.transmitWrapped(cmd)
}

func (e *Engine) transmitWrapped(cmd *iso7816.Command) (*iso7816.Response, error) {
	wire, err := e.sess.wrap(cmd)
	if err != nil {
		if errors.Is(err, ErrPayloadTooLarge) {
			return nil, err
		}
		e.abort(err)
		return nil, err
	}

	resp, err := e.client.Send(wire)
	if err != nil {
		// The card may or may not have advanced its IV.
		e.abort(err)
		return nil, err
	}

	plain, err := e.sess.unwrap(resp)
	if err != nil {
		e.abort(err)
		return nil, err
	}

	return &iso7816.Response{Data: plain, Status: resp.Status}, nil
}

// Sign asks the card to sign a 32-byte hash with the key in slot.
func (e *Engine) Sign(slot byte, hash []byte) (*iso7816.SignResponse, error) {
	if len(hash) != HashSize {
		return nil, fmt.Errorf("sign: hash is %d bytes, want %d", len(hash), HashSize)
	}
	resp, err := e.Transmit(iso7816.NewCommand(CLA, INS_SIGN, slot, 0x00, hash))
	if err != nil {
		return nil, err
	}
	return iso7816.NewSignResponse(resp)
}

// Echo sends data through the channel and returns the card's reply.
func (e *Engine) Echo(data []byte) ([]byte, error) {
	resp, err := e.Transmit(iso7816.NewCommand(CLA, INS_ECHO, 0x00, 0x00, data))
	if err != nil {
		return nil, err
	}
	if !resp.IsOK() {
		return nil, fmt.Errorf("echo: %w: %s", iso7816.ErrUnexpectedStatus, resp.Status.Verbose())
	}
	return resp.Data, nil
}

func (e *Engine) abort(cause error) {
	e.teardown()
	e.state = Aborted
	e.log.Error("secure channel aborted", zap.Error(cause))
}

func (e *Engine) teardown() {
	if e.sess != nil {
		e.sess.wipe()
		e.sess = nil
	}
}
