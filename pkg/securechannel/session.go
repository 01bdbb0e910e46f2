package securechannel

import (
	"crypto/ecdh"
	"crypto/subtle"
	"fmt"

	"github.com/gregLibert/secure-channel/pkg/cbcmac"
	"github.com/gregLibert/secure-channel/pkg/iso7816"
)

type session struct {
	ephemeral *ecdh.PrivateKey
	secret    []byte
	keyRandom []byte
	encKey    []byte
	macKey    []byte
	iv        []byte
}

// advanceState is shared by wrap and unwrap: the tag of every message becomes
// the IV of the next one.
func (s *session) advanceState(meta, ciphertext []byte) ([]byte, error) {
	tag, err := ComputeTag(s.macKey, meta, ciphertext)
	if err != nil {
		return nil, err
	}
	copy(s.iv, tag)
	return tag, nil
}

func (s *session) wrap(cmd *iso7816.Command) (*iso7816.Command, error) {
	if len(cmd.Data) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadTooLarge, len(cmd.Data), MaxPayloadSize)
	}

	padded := Pad(cmd.Data)
	ct, err := EncryptCBC(s.encKey, s.iv, padded)
	clear(padded)
	if err != nil {
		return nil, fmt.Errorf("encrypt: %w", err)
	}

	tag, err := s.advanceState(CommandMeta(cmd.Header(), len(ct)), ct)
	if err != nil {
		return nil, fmt.Errorf("mac: %w", err)
	}

	data := make([]byte, 0, len(tag)+len(ct))
	data = append(data, tag...)
	data = append(data, ct...)
	return iso7816.NewCommand(cmd.Class, cmd.Instruction, cmd.P1, cmd.P2, data), nil
}

func (s *session) unwrap(resp *iso7816.Response) ([]byte, error) {
	data := resp.Data
	if len(data) < cbcmac.DefaultTagSize+IVSize || (len(data)-cbcmac.DefaultTagSize)%IVSize != 0 {
		return nil, fmt.Errorf("%w: %d byte payload with status %s", ErrInvalidMAC, len(data), resp.Status.Verbose())
	}

	wireTag := data[:cbcmac.DefaultTagSize]
	ct := data[cbcmac.DefaultTagSize:]

	iv := append([]byte(nil), s.iv...)
	computed, err := s.advanceState(ResponseMeta(len(ct)), ct)
	if err != nil {
		return nil, fmt.Errorf("mac: %w", err)
	}
	if subtle.ConstantTimeCompare(computed, wireTag) != 1 {
		return nil, ErrInvalidMAC
	}

	padded, err := DecryptCBC(s.encKey, iv, ct)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	plain, err := Unpad(padded)
	if err != nil {
		clear(padded)
		return nil, err
	}
	return plain, nil
}

func (s *session) wipe() {
	for _, b := range [][]byte{s.secret, s.keyRandom, s.encKey, s.macKey, s.iv} {
		clear(b)
	}
	s.ephemeral = nil
}
