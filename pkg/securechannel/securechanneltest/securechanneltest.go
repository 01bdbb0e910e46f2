// Package securechanneltest provides deterministic collaborators for tests of
// code built on securechannel: a fixed ephemeral key and a scripted Reader.
package securechanneltest

import (
	"bytes"
	"crypto/ecdh"
	"errors"
	"fmt"
	"sync"
)

// FixedKey is a KeySource that returns the same P-256 private key every time.
// It exists for test vectors only.
type FixedKey []byte

func (k FixedKey) GenerateKey() (*ecdh.PrivateKey, error) {
	return ecdh.P256().NewPrivateKey(k)
}

// Exchange is one scripted step: the expected command (nil accepts anything)
// and the reply or error to return.
type Exchange struct {
	Expect  []byte
	Respond []byte
	Err     error
}

// ErrScriptExhausted is returned when more commands arrive than were scripted.
var ErrScriptExhausted = errors.New("script exhausted")

// ScriptedReader replays a fixed conversation.
type ScriptedReader struct {
	mu sync.Mutex

	Script     []Exchange
	ConnectErr error

	Sent      [][]byte
	Connected bool
}

// NewScriptedReader returns a reader that will play steps in order.
func NewScriptedReader(steps ...Exchange) *ScriptedReader {
	return &ScriptedReader{Script: steps}
}

func (r *ScriptedReader) Connect() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ConnectErr != nil {
		return r.ConnectErr
	}
	r.Connected = true
	return nil
}

func (r *ScriptedReader) Disconnect() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Connected = false
	return nil
}

func (r *ScriptedReader) Transmit(cmd []byte) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Sent = append(r.Sent, append([]byte(nil), cmd...))
	step := len(r.Sent) - 1
	if step >= len(r.Script) {
		return nil, fmt.Errorf("%w: unexpected command %X", ErrScriptExhausted, cmd)
	}

	ex := r.Script[step]
	if ex.Expect != nil && !bytes.Equal(ex.Expect, cmd) {
		return nil, fmt.Errorf("step %d: command mismatch\nExpected: %X\nGot:      %X", step, ex.Expect, cmd)
	}
	if ex.Err != nil {
		return nil, ex.Err
	}
	return append([]byte(nil), ex.Respond...), nil
}

// Remaining returns the number of steps not played yet.
func (r *ScriptedReader) Remaining() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n := len(r.Script) - len(r.Sent); n > 0 {
		return n
	}
	return 0
}
