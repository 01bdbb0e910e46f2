package emulator

import (
	"bytes"
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"io"

	"github.com/gregLibert/secure-channel/pkg/cbcmac"
	"github.com/gregLibert/secure-channel/pkg/iso7816"
	"github.com/gregLibert/secure-channel/pkg/securechannel"
	"github.com/gregLibert/secure-channel/pkg/tlv"
	"github.com/skythen/apdu"
	"go.uber.org/zap"
)

type cardSession struct {
	secret        []byte
	encKey        []byte
	macKey        []byte
	iv            []byte
	authenticated bool
}

func (s *cardSession) wipe() {
	for _, b := range [][]byte{s.secret, s.encKey, s.macKey, s.iv} {
		clear(b)
	}
}

func (c *Card) dropSession() {
	if c.sess != nil {
		c.sess.wipe()
		c.sess = nil
	}
}

func (c *Card) process(raw []byte) []byte {
	capdu, err := apdu.ParseCapdu(raw)
	if err != nil {
		c.log.Debug("unparsable command", zap.Error(err))
		return status(iso7816.SW_ERR_WRONG_LENGTH)
	}

	header := []byte{capdu.Cla, capdu.Ins, capdu.P1, capdu.P2}
	c.log.Debug("command", zap.String("header", fmt.Sprintf("%X", header)), zap.Int("lc", len(capdu.Data)))

	switch {
	case capdu.Cla == iso7816.CLA_ISO && capdu.Ins == iso7816.INS_SELECT:
		return c.handleSelect(capdu.P1, capdu.Data)
	case capdu.Cla == securechannel.CLA && capdu.Ins == securechannel.INS_OPEN_SECURE_CHANNEL:
		return c.handleOpen(capdu.Data)
	case capdu.Cla == securechannel.CLA:
		return c.handleSecured(header, capdu.Data)
	}
	return status(iso7816.SW_ERR_CLA_NOT_SUPPORTED)
}

func (c *Card) handleSelect(p1 byte, aid []byte) []byte {
	if p1 != iso7816.P1_SELECT_BY_AID {
		return status(iso7816.SW_ERR_INCORRECT_PARAMS_P1P2)
	}
	if !bytes.Equal(aid, c.aid) {
		return status(iso7816.SW_ERR_FILE_NOT_FOUND)
	}

	data, err := c.selectResponse()
	if err != nil {
		c.log.Error("select response", zap.Error(err))
		return status(iso7816.SW_ERR_UNKNOWN)
	}

	c.selected = true
	c.dropSession()
	return respond(data, iso7816.SW_NO_ERROR)
}

func (c *Card) handleOpen(data []byte) []byte {
	if !c.selected {
		return status(iso7816.SW_ERR_COND_OF_USE_NOT_SAT)
	}
	c.dropSession()

	peer, err := ecdh.P256().NewPublicKey(data)
	if err != nil {
		return status(iso7816.SW_ERR_INCORRECT_PARAMS_DATA)
	}
	secret, err := c.identity.ECDH(peer)
	if err != nil {
		return status(iso7816.SW_ERR_INCORRECT_PARAMS_DATA)
	}

	out := make([]byte, securechannel.OpenResponseSize)
	if _, err := io.ReadFull(c.rand, out); err != nil {
		return status(iso7816.SW_ERR_UNKNOWN)
	}
	keyRandom, iv := out[:securechannel.NonceSize], out[securechannel.NonceSize:]

	encKey, macKey := securechannel.DeriveSessionKeys(secret, c.pairingKey, keyRandom)
	c.sess = &cardSession{
		secret: secret,
		encKey: encKey,
		macKey: macKey,
		iv:     append([]byte(nil), iv...),
	}
	c.log.Debug("secure channel opened")
	return respond(out, iso7816.SW_NO_ERROR)
}

// handleSecured authenticates and decrypts a wrapped command, then answers
// with a wrapped response. Integrity failures drop the session and answer in
// plaintext, as there is no key left to wrap with.
func (c *Card) handleSecured(header, data []byte) []byte {
	s := c.sess
	if s == nil {
		return status(iso7816.SW_ERR_COND_OF_USE_NOT_SAT)
	}

	if len(data) < cbcmac.DefaultTagSize+securechannel.IVSize || (len(data)-cbcmac.DefaultTagSize)%securechannel.IVSize != 0 {
		c.dropSession()
		return status(iso7816.SW_ERR_SM_OBJ_INCORRECT)
	}
	tag, ct := data[:cbcmac.DefaultTagSize], data[cbcmac.DefaultTagSize:]

	computed, err := securechannel.ComputeTag(s.macKey, securechannel.CommandMeta(header, len(ct)), ct)
	if err != nil || subtle.ConstantTimeCompare(computed, tag) != 1 {
		c.log.Debug("command MAC mismatch")
		c.dropSession()
		return status(iso7816.SW_ERR_SECURITY_STATUS_NOT_SAT)
	}

	padded, err := securechannel.DecryptCBC(s.encKey, s.iv, ct)
	copy(s.iv, computed)
	if err != nil {
		c.dropSession()
		return status(iso7816.SW_ERR_SM_OBJ_INCORRECT)
	}
	plain, err := securechannel.Unpad(padded)
	if err != nil {
		c.dropSession()
		return status(iso7816.SW_ERR_SM_OBJ_INCORRECT)
	}

	ins := header[1]
	if !s.authenticated && ins != securechannel.INS_MUTUALLY_AUTHENTICATE {
		return c.wrapResponse(nil, iso7816.SW_ERR_SECURITY_STATUS_NOT_SAT)
	}

	switch ins {
	case securechannel.INS_MUTUALLY_AUTHENTICATE:
		if len(plain) != securechannel.ChallengeSize {
			return c.wrapResponse(nil, iso7816.SW_ERR_INCORRECT_PARAMS_DATA)
		}
		cryptogram := sha256.Sum256(append(append([]byte(nil), s.secret...), plain...))
		s.authenticated = true
		return c.wrapResponse(cryptogram[:], iso7816.SW_NO_ERROR)

	case securechannel.INS_SIGN:
		if len(plain) != securechannel.HashSize {
			return c.wrapResponse(nil, iso7816.SW_ERR_INCORRECT_PARAMS_DATA)
		}
		body, err := c.sign(header[2], plain)
		if err != nil {
			c.log.Error("sign", zap.Error(err))
			return c.wrapResponse(nil, iso7816.SW_ERR_UNKNOWN)
		}
		return c.wrapResponse(body, iso7816.SW_NO_ERROR)

	case securechannel.INS_ECHO:
		return c.wrapResponse(plain, iso7816.SW_NO_ERROR)
	}

	return c.wrapResponse(nil, iso7816.SW_ERR_INS_INVALID)
}

// sign builds A0 | LEN | DER signature | 04 41 | public key.
func (c *Card) sign(slot byte, hash []byte) ([]byte, error) {
	key, err := c.slotKey(slot)
	if err != nil {
		return nil, err
	}
	sig, err := ecdsa.SignASN1(c.rand, key, hash)
	if err != nil {
		return nil, err
	}

	pub := marshalPublicKey(key)
	body := make([]byte, 0, len(sig)+2+len(pub))
	body = append(body, sig...)
	body = append(body, iso7816.TagOctetString, byte(len(pub)))
	body = append(body, pub...)

	out := []byte{iso7816.TagSignatureTemplate}
	out = append(out, tlv.EncodeLength(len(body))...)
	return append(out, body...), nil
}

func (c *Card) wrapResponse(data []byte, sw iso7816.StatusWord) []byte {
	s := c.sess

	padded := securechannel.Pad(data)
	ct, err := securechannel.EncryptCBC(s.encKey, s.iv, padded)
	if err != nil {
		c.dropSession()
		return status(iso7816.SW_ERR_UNKNOWN)
	}
	tag, err := securechannel.ComputeTag(s.macKey, securechannel.ResponseMeta(len(ct)), ct)
	if err != nil {
		c.dropSession()
		return status(iso7816.SW_ERR_UNKNOWN)
	}
	copy(s.iv, tag)

	return respond(append(tag, ct...), sw)
}

func respond(data []byte, sw iso7816.StatusWord) []byte {
	rapdu := apdu.Rapdu{Data: data, SW1: sw.SW1(), SW2: sw.SW2()}
	out, err := rapdu.Bytes()
	if err != nil {
		return status(iso7816.SW_ERR_UNKNOWN)
	}
	return out
}
